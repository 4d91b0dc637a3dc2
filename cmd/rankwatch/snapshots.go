package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/rankcap/rankwatch"
)

var (
	snapSource string
	snapStatus string
	snapLimit  int
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		snaps, err := svc.Snapshots(cmd.Context(), rankwatch.Filter{
			Source: snapSource,
			Status: rankwatch.Status(strings.ToUpper(snapStatus)),
			Limit:  snapLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSOURCE\tCAPTURED\tBUCKET\tSTATUS\tITEMS\tMS\tERROR")
		for _, s := range snaps {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				s.ID, s.Source, s.CapturedAt.Format(time.RFC3339), s.HourBucketKey,
				s.Status, s.ItemCount, s.DurationMs, s.ErrorMessage)
		}
		return tw.Flush()
	},
}

func init() {
	f := snapshotsCmd.Flags()
	f.StringVar(&snapSource, "source", "", "filter by source id")
	f.StringVar(&snapStatus, "status", "", "filter by status (SUCCESS or FAILED)")
	f.IntVar(&snapLimit, "limit", 50, "max rows (max 500)")
	rootCmd.AddCommand(snapshotsCmd)
}
