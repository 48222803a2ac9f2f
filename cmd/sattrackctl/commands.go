package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpaludi/SatelliteTraker/internal/passes"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Validate a catalog file and list its element sets",
		Long: `Parse a catalog file and list every valid element set.
Invalid entries are reported on stderr and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.catalog
			if len(args) == 1 {
				path = args[0]
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := tle.Parse(f, opts.logger)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("%s has no valid entries", path)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				type row struct {
					NORADID       int       `json:"norad_id"`
					Name          string    `json:"name"`
					Epoch         time.Time `json:"epoch"`
					Inclination   float64   `json:"inclination_deg"`
					Eccentricity  float64   `json:"eccentricity"`
					MeanMotion    float64   `json:"mean_motion"`
					PeriodMinutes float64   `json:"period_minutes"`
				}
				rows := make([]row, len(entries))
				for i, e := range entries {
					el := e.Elements
					rows[i] = row{e.NORADID(), e.Name, el.Epoch, el.Inclination, el.Eccentricity, el.MeanMotion, 1440 / el.MeanMotion}
				}
				return printJSON(out, rows)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NORAD\tNAME\tEPOCH\tINC\tECC\tPERIOD")
			for _, e := range entries {
				el := e.Elements
				fmt.Fprintf(tw, "%05d\t%s\t%s\t%.4f\t%.7f\t%.2fm\n",
					e.NORADID(), e.Name, el.Epoch.Format(time.RFC3339), el.Inclination, el.Eccentricity, 1440/el.MeanMotion)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d element sets\n", len(entries))
			return nil
		},
	}
}

func newPropagateCmd(opts *globalOptions) *cobra.Command {
	var (
		id int
		at string
	)
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Print one satellite's state at an instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseAt(at)
			if err != nil {
				return err
			}
			entry, err := opts.lookup(id)
			if err != nil {
				return err
			}
			prop, err := opts.propagator()
			if err != nil {
				return err
			}
			smp, err := track.NewSampler(prop, nil).At(entry.Elements, t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, smp)
			}
			fmt.Fprintf(out, "%s (%05d) at %s, %s model\n", entry.Name, entry.NORADID(), t.Format(time.RFC3339Nano), prop.ModelName())
			printState(out, smp.Inertial)
			printState(out, smp.Fixed)
			fmt.Fprintf(out, "geodetic  lat %.4f  lon %.4f  alt %.3f km\n", smp.Geodetic.LatDeg, smp.Geodetic.LonDeg, smp.Geodetic.AltKm)
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "NORAD catalog number")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 instant (default now)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func printState(w io.Writer, sv transform.StateVector) {
	p, v := sv.Position, sv.Velocity
	fmt.Fprintf(w, "%-4s  r [%12.3f %12.3f %12.3f] km  v [%9.5f %9.5f %9.5f] km/s\n",
		sv.Frame, p[0], p[1], p[2], v[0], v[1], v[2])
}

func newTrackCmd(opts *globalOptions) *cobra.Command {
	var (
		id       int
		start    string
		duration time.Duration
		step     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Print a satellite's trajectory as CSV",
		Long: `Sample a satellite's trajectory over [start, start+duration] and print
one CSV row per sample. Output stops at the first propagation error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t0, err := parseAt(start)
			if err != nil {
				return err
			}
			entry, err := opts.lookup(id)
			if err != nil {
				return err
			}
			prop, err := opts.propagator()
			if err != nil {
				return err
			}

			w := track.Window{Start: t0, End: t0.Add(duration), Step: step}
			seq, err := track.NewSampler(prop, nil).Samples(entry.Elements, w)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "time,x_teme_km,y_teme_km,z_teme_km,lat_deg,lon_deg,alt_km")
			for smp, err := range seq {
				if err != nil {
					return err
				}
				p := smp.Inertial.Position
				fmt.Fprintf(out, "%s,%.3f,%.3f,%.3f,%.5f,%.5f,%.3f\n",
					smp.At.Format(time.RFC3339), p[0], p[1], p[2],
					smp.Geodetic.LatDeg, smp.Geodetic.LonDeg, smp.Geodetic.AltKm)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "NORAD catalog number")
	cmd.Flags().StringVar(&start, "start", "", "RFC 3339 window start (default now)")
	cmd.Flags().DurationVar(&duration, "duration", 95*time.Minute, "window length")
	cmd.Flags().DurationVar(&step, "step", track.DefaultPathStep, "sample step")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newPassesCmd(opts *globalOptions) *cobra.Command {
	var (
		ids       []int
		lat, lon  float64
		altM      float64
		start     string
		hours     float64
		minEl     float64
		maxPasses int
	)
	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Predict passes over a ground observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			t0, err := parseAt(start)
			if err != nil {
				return err
			}
			c, err := opts.loadCatalog()
			if err != nil {
				return err
			}
			entries := c.Satellites
			if len(ids) > 0 {
				entries = make([]tle.Entry, 0, len(ids))
				for _, id := range ids {
					e, ok := c.Lookup(id)
					if !ok {
						return fmt.Errorf("satellite %d not in %s", id, c.Source)
					}
					entries = append(entries, e)
				}
			}
			prop, err := opts.propagator()
			if err != nil {
				return err
			}

			results := passes.NewPredictor(prop, 0).Predict(context.Background(), passes.Request{
				Observer:     transform.NewObserverPosition(lat, lon, altM/1000),
				Entries:      entries,
				Start:        t0,
				HorizonHours: hours,
				MinElevation: minEl,
				MaxPasses:    maxPasses,
			})

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, results)
			}
			total := 0
			for _, sat := range results {
				if sat.Error != "" {
					fmt.Fprintf(out, "%05d %s: error: %s\n", sat.NORADID, sat.Name, sat.Error)
					continue
				}
				fmt.Fprintf(out, "%05d %s: %d passes\n", sat.NORADID, sat.Name, len(sat.Passes))
				total += len(sat.Passes)
				for j, p := range sat.Passes {
					fmt.Fprintf(out, "  pass %d: start=%s max_el=%.1f az=%.0f dur=%.0fs\n",
						j, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.AzimuthAtMax, p.DurationSeconds)
				}
			}
			fmt.Fprintf(out, "total passes: %d\n", total)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntSliceVar(&ids, "id", nil, "NORAD catalog numbers (default all)")
	f.Float64Var(&lat, "lat", 0, "observer latitude, degrees")
	f.Float64Var(&lon, "lon", 0, "observer longitude, degrees")
	f.Float64Var(&altM, "alt", 0, "observer altitude, metres")
	f.StringVar(&start, "start", "", "RFC 3339 search start (default now)")
	f.Float64Var(&hours, "hours", 24, "search horizon, hours")
	f.Float64Var(&minEl, "min-el", 10, "minimum peak elevation, degrees")
	f.IntVar(&maxPasses, "max-passes", 10, "passes per satellite")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}
