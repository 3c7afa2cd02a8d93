package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/pulse/internal/report"
)

var reportArgs struct {
	projects  []string
	days      int
	marketing bool
	json      bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Refresh every project, then write a performance report",
	RunE:  writeReport,
}

func writeReport(cmd *cobra.Command, argv []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// The report's snapshot section reads the scheduler's current data.
	if _, err := a.Scheduler.RefreshAll(ctx); err != nil {
		return err
	}

	rep, err := a.Reports.Generate(ctx, report.Request{
		ProjectIDs:       reportArgs.projects,
		Days:             reportArgs.days,
		IncludeMarketing: reportArgs.marketing,
	})
	if err != nil {
		return err
	}
	if reportArgs.json {
		return printJSON(rep)
	}

	status := "approved"
	if !rep.Approved {
		status = "not approved"
	}
	fmt.Printf("%s to %s, %s after %d attempt(s)\n\n%s\n", rep.Start, rep.End, status, rep.Attempts, rep.Report)
	return nil
}

func init() {
	flags := reportCmd.Flags()

	flags.StringSliceVar(
		&reportArgs.projects,
		"project",
		nil,
		"Project id to include (repeatable, default all)",
	)
	flags.IntVar(
		&reportArgs.days,
		"days",
		0,
		"Report window in days (default from settings)",
	)
	flags.BoolVar(
		&reportArgs.marketing,
		"marketing",
		false,
		"Include attribution data",
	)
	flags.BoolVar(
		&reportArgs.json,
		"json",
		false,
		"Print the report as JSON",
	)
}
