package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fabianabarca/estimator"
	"github.com/fabianabarca/estimator/model"
	"github.com/fabianabarca/estimator/parse"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates stop_times.txt for scheduled trips",
	Long: `Generates stop_times.txt for every scheduled trip in the input.

Input is a directory or zip archive (local or URL) holding
stop_times_measurement, route_stops, trip_times and trips tables. A
GTFS feed given with --gtfs fills in route_stops, trip_times and trips
when missing from the input.`,
	Args: cobra.NoArgs,
	RunE: generate,
}

var (
	generateInput  string
	generateGTFS   string
	generateOutput string
	generateMethod string
	generateCurves string
	generateStore  bool
)

func init() {
	generateCmd.Flags().StringVarP(&generateInput, "input", "i", "", "Input directory, zip file or URL")
	generateCmd.Flags().StringVarP(&generateGTFS, "gtfs", "g", "", "GTFS static feed, zip file or URL")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "-", "Output file, - for stdout")
	generateCmd.Flags().StringVarP(&generateMethod, "method", "m", "B", "Estimation method: A (geometry) or B (delay curves)")
	generateCmd.Flags().StringVarP(&generateCurves, "curves", "c", "", "Use a stored curve set, by ID or \"latest\"")
	generateCmd.Flags().BoolVarP(&generateStore, "store", "s", false, "Store fitted curves for later runs")
	generateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(generateCmd)
}

func generate(cmd *cobra.Command, args []string) error {
	defer writeMetrics()

	method, err := estimator.ParseMethod(generateMethod)
	if err != nil {
		return err
	}
	if method == model.MethodA {
		return fmt.Errorf("geometry based estimation (method A): %w", estimator.ErrNotImplemented)
	}

	h, err := parseHeaders(headers)
	if err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}

	m, s, err := newManager()
	if err != nil {
		return err
	}
	defer s.Close()

	tables, err := m.Load(context.Background(), generateInput, generateGTFS, h)
	if err != nil {
		return err
	}
	collector.ObserveInput(len(tables.Observations))

	for _, name := range []string{parse.RouteStopsFile, parse.ScheduledTripsFile, parse.TripsFile} {
		if !tables.Found[name] {
			return fmt.Errorf("input lacks %s table", name)
		}
	}

	curves, err := resolveCurves(m, generateCurves, generateStore, generateInput, tables)
	if err != nil {
		return err
	}

	g := &estimator.Generator{
		Method:  method,
		Fitter:  m.Fitter,
		Logger:  logger,
		Metrics: collector,
	}

	result, err := g.Generate(&estimator.Input{
		Observations:   tables.Observations,
		RouteStops:     tables.RouteStops,
		ScheduledTrips: tables.ScheduledTrips,
		Trips:          tables.Trips,
		Curves:         curves,
	})
	if err != nil {
		return err
	}

	for _, skipped := range result.Skipped {
		logger.Debug("skipped trip", slog.String("trip_id", skipped.TripID), slog.String("error", skipped.Err.Error()))
	}

	return writeOutput(cmd.OutOrStdout(), generateOutput, func(w io.Writer) error {
		if err := parse.WriteStopTimes(w, result.StopTimes); err != nil {
			return fmt.Errorf("writing stop times: %w", err)
		}
		return nil
	})
}
