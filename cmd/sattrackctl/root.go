package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpaludi/SatelliteTraker/internal/logging"
	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	catalog  string
	model    string
	gravity  string
	logLevel string
	json     bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "sattrackctl",
		Short: "Offline satellite propagation tools",
		Long: `Propagate two-line element sets from a local catalog file.

Examples:
  sattrackctl parse data/tle/active.tle
  sattrackctl propagate --catalog active.tle --id 25544 --at 2025-02-14T12:00:00Z
  sattrackctl track --catalog active.tle --id 25544 --step 60s --duration 95m
  sattrackctl passes --catalog active.tle --id 25544 --lat 39.74 --lon -104.99 --alt 1609`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(cmd.ErrOrStderr(), opts.logLevel, "text")
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.catalog, "catalog", envOr("SATTRACK_CATALOG_PATH", "./data/tle"), "catalog file or directory")
	pf.StringVar(&opts.model, "model", propagation.ModelSecular, "propagation model: secular or sgp4")
	pf.StringVar(&opts.gravity, "gravity", "wgs72", "sgp4 gravity constants: wgs72 or wgs84")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	pf.BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddCommand(
		newParseCmd(opts),
		newPropagateCmd(opts),
		newTrackCmd(opts),
		newPassesCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *globalOptions) propagator() (*propagation.Propagator, error) {
	cfg := propagation.PropConfig{Model: o.model, Gravity: o.gravity}
	model, err := propagation.NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return propagation.NewPropagator(model, cfg, o.logger), nil
}

func (o *globalOptions) loadCatalog() (*tle.Catalog, error) {
	return tle.NewSource(o.catalog).Load(o.logger)
}

func (o *globalOptions) lookup(id int) (tle.Entry, error) {
	c, err := o.loadCatalog()
	if err != nil {
		return tle.Entry{}, err
	}
	e, ok := c.Lookup(id)
	if !ok {
		return tle.Entry{}, fmt.Errorf("satellite %d not in %s", id, c.Source)
	}
	return e, nil
}

// parseAt reads an RFC 3339 instant; empty means now.
func parseAt(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339", v)
	}
	return t.UTC(), nil
}
