package main

import (
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print every project's snapshot as JSON",
	RunE:  refresh,
}

func refresh(cmd *cobra.Command, argv []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Scheduler.RefreshAll(ctx)
	if err != nil {
		return err
	}
	projects, err := a.Registry.List(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"outcome":  summary.Outcome(),
		"currency": a.Settings.Get().Currency,
		"projects": a.Scheduler.Snapshots(projects),
		"total":    a.Scheduler.Total(projects),
	})
}
