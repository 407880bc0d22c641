package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabianabarca/estimator"
	"github.com/fabianabarca/estimator/parse"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <route_id> <service_id> <shape_id> <start_time>",
	Short: "Estimates arrival times for a single trip",
	Args:  cobra.ExactArgs(4),
	RunE:  estimate,
}

var (
	estimateInput  string
	estimateGTFS   string
	estimateCurves string
)

func init() {
	estimateCmd.Flags().StringVarP(&estimateInput, "input", "i", "", "Input directory, zip file or URL")
	estimateCmd.Flags().StringVarP(&estimateGTFS, "gtfs", "g", "", "GTFS static feed, zip file or URL")
	estimateCmd.Flags().StringVarP(&estimateCurves, "curves", "c", "", "Use a stored curve set, by ID or \"latest\"")
	estimateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(estimateCmd)
}

func estimate(cmd *cobra.Command, args []string) error {
	defer writeMetrics()

	h, err := parseHeaders(headers)
	if err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}

	m, s, err := newManager()
	if err != nil {
		return err
	}
	defer s.Close()

	tables, err := m.Load(context.Background(), estimateInput, estimateGTFS, h)
	if err != nil {
		return err
	}
	if !tables.Found[parse.RouteStopsFile] {
		return errors.New("input lacks route_stops table")
	}

	curves, err := resolveCurves(m, estimateCurves, false, estimateInput, tables)
	if err != nil {
		return err
	}

	result, err := estimator.Estimate(estimator.TripQuery{
		RouteID:   args[0],
		ServiceID: args[1],
		ShapeID:   args[2],
		StartTime: args[3],
	}, curves, tables.RouteStops)
	if err != nil {
		return err
	}

	if len(result.Sequence) == 0 {
		return fmt.Errorf("no stops for route '%s' and shape '%s'", args[0], args[2])
	}

	for _, a := range result.Arrivals {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", a.StopID, a.Time)
	}

	return nil
}
