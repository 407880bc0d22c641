package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var curvesCmd = &cobra.Command{
	Use:   "curves [set_id]",
	Short: "Lists stored curve sets, or the curves of one set",
	Args:  cobra.MaximumNArgs(1),
	RunE:  curves,
}

var (
	curvesSource string
	curvesDelete bool
)

func init() {
	curvesCmd.Flags().StringVarP(&curvesSource, "source", "", "", "Only list sets fitted from this source")
	curvesCmd.Flags().BoolVarP(&curvesDelete, "delete", "", false, "Delete the given set")
	rootCmd.AddCommand(curvesCmd)
}

func curves(cmd *cobra.Command, args []string) error {
	m, s, err := newManager()
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 0 {
		if curvesDelete {
			return fmt.Errorf("--delete requires a set ID")
		}

		sets, err := m.List(curvesSource)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tDEGREE\tOBSERVATIONS\tCURVES")
		for _, set := range sets {
			fmt.Fprintf(
				w, "%s\t%s\t%s\t%d\t%d\t%d\n",
				set.ID, set.CreatedAt.Format(time.RFC3339), set.Source,
				set.Degree, set.Observations, set.Curves,
			)
		}
		return nil
	}

	if curvesDelete {
		if err := m.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted %s\n", args[0])
		return nil
	}

	id := args[0]
	if id == "latest" {
		id = ""
	}
	_, fitted, err := m.Curves(id)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "ROUTE\tSERVICE\tSHAPE\tSTOP\tSAMPLES\tRANK\tFROM\tTO\tRMSE\tFLAGS")
	for _, key := range fitted.Keys() {
		c := fitted[key]
		flags := ""
		if c.UnderDetermined() {
			flags = "under-determined"
		}
		fmt.Fprintf(
			w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%.1f\t%s\n",
			key.RouteID, key.ServiceID, key.ShapeID, key.StopID,
			c.Samples, c.Rank, clock(c.MinX), clock(c.MaxX), c.RMSE, flags,
		)
	}

	return nil
}

func clock(seconds float64) string {
	return fmt.Sprintf("%02d:%02d", int(seconds)/3600, (int(seconds)%3600)/60)
}
