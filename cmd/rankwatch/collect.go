package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

var collectCmd = &cobra.Command{
	Use:   "collect [source...]",
	Short: "Capture sources once (all unpaused sources by default) and print the snapshots as JSON lines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		snaps, err := svc.CollectSources(cmd.Context(), args...)
		for _, s := range snaps {
			line, encErr := ranking.MarshalSnapshot(s)
			if encErr != nil {
				return encErr
			}
			if _, encErr = os.Stdout.Write(append(line, '\n')); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
