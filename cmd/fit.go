package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fits and stores delay curves from recorded arrivals",
	Args:  cobra.NoArgs,
	RunE:  fit,
}

var fitInput string

func init() {
	fitCmd.Flags().StringVarP(&fitInput, "input", "i", "", "Input directory, zip file or URL")
	fitCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(fitCmd)
}

func fit(cmd *cobra.Command, args []string) error {
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

	tables, err := m.Load(context.Background(), fitInput, "", h)
	if err != nil {
		return err
	}
	collector.ObserveInput(len(tables.Observations))

	if len(tables.Observations) == 0 {
		return fmt.Errorf("no observations in %s", fitInput)
	}

	start := time.Now()
	set, _, err := m.Fit(fitInput, tables.Observations, start)
	if err != nil {
		return err
	}
	collector.ObserveFit(time.Since(start))

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d curves from %d observations\n", set.ID, set.Curves, set.Observations)

	return nil
}
