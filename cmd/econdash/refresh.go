package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the country and indicator catalog from upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.catalog.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		snapshot, _ := a.catalog.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "refresh complete (countries=%s indicators=%s)\n",
			humanize.Comma(int64(len(snapshot.Countries))),
			humanize.Comma(int64(len(snapshot.Indicators))),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
