package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabianabarca/estimator/model"
	"github.com/fabianabarca/estimator/parse"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Records observed arrivals from GTFS Realtime feeds",
	Long: `Records arrivals reported by the trip updates of GTFS Realtime feeds
as a stop_times_measurement table.

Trips are matched against the GTFS static feed given with --gtfs.
Arrival times are taken relative to midnight in the agency's timezone,
unless --timezone says otherwise. With --append, arrivals are merged
into an existing output file, so that repeated runs build up a
history.`,
	Args: cobra.NoArgs,
	RunE: record,
}

var (
	recordFeeds    []string
	recordGTFS     string
	recordOutput   string
	recordAppend   bool
	recordTimezone string
)

func init() {
	recordCmd.Flags().StringSliceVarP(&recordFeeds, "feed", "f", []string{}, "GTFS Realtime feed, file or URL")
	recordCmd.Flags().StringVarP(&recordGTFS, "gtfs", "g", "", "GTFS static feed, zip file or URL")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "-", "Output file, - for stdout")
	recordCmd.Flags().BoolVarP(&recordAppend, "append", "a", false, "Merge into an existing output file")
	recordCmd.Flags().StringVarP(&recordTimezone, "timezone", "", "", "Timezone of arrival times, defaults to the agency's")
	recordCmd.MarkFlagRequired("feed")
	recordCmd.MarkFlagRequired("gtfs")
	rootCmd.AddCommand(recordCmd)
}

func record(cmd *cobra.Command, args []string) error {
	defer writeMetrics()

	if recordAppend && recordOutput == "-" {
		return fmt.Errorf("--append requires --output")
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

	ctx := context.Background()

	static, err := m.LoadGTFS(ctx, recordGTFS, h)
	if err != nil {
		return err
	}

	tz := recordTimezone
	if tz == "" {
		tz = static.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	rt, err := m.Record(ctx, recordFeeds, static.Trips, h, loc)
	if err != nil {
		return err
	}
	collector.ObserveInput(len(rt.Observations))

	observations := rt.Observations
	if recordAppend {
		existing, err := readObservations(recordOutput)
		if err != nil {
			return err
		}
		observations = parse.MergeObservations(existing, observations)
	}

	return writeOutput(cmd.OutOrStdout(), recordOutput, func(w io.Writer) error {
		if err := parse.WriteObservations(w, observations); err != nil {
			return fmt.Errorf("writing observations: %w", err)
		}
		return nil
	})
}

// Reads a previously recorded table. A missing file holds no
// observations.
func readObservations(path string) ([]model.Observation, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Observation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	observations, err := parse.ParseObservations(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return observations, nil
}
