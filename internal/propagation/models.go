package propagation

import "fmt"

// NewModel builds the model named in cfg.
func NewModel(cfg PropConfig) (Model, error) {
	switch cfg.Model {
	case "", ModelSecular:
		return NewSecular(KeplerSolver{
			Tolerance:     cfg.KeplerTolerance,
			MaxIterations: cfg.KeplerMaxIterations,
		}), nil
	case ModelSGP4:
		return NewSGP4(cfg.Gravity)
	default:
		return nil, fmt.Errorf("unknown propagation model %q", cfg.Model)
	}
}
