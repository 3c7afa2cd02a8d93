package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/pulse/internal/appsflyer"
	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/revenuecat"
)

var connectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check every project's credentials against the upstream APIs",
	RunE:  testConnections,
}

func testConnections(cmd *cobra.Command, argv []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.Registry.List(ctx)
	if err != nil {
		return err
	}

	var failed int
	for _, p := range projects {
		key, err := credentials.Lookup(ctx, a.Credentials, credentials.Subscription, p.ID)
		if err != nil {
			return err
		}
		if err := a.Subscriptions.TestConnection(ctx, revenuecat.Credentials{APIKey: key, ProjectID: p.SubscriptionProjectID}); err != nil {
			failed++
			fmt.Printf("%-24s subscriptions  FAIL  %v\n", p.Name, err)
		} else {
			fmt.Printf("%-24s subscriptions  OK\n", p.Name)
		}

		if !p.HasAttribution() {
			continue
		}
		token, err := a.Credentials.Get(ctx, credentials.ForProject(credentials.Attribution, p.ID))
		if err != nil {
			return err
		}
		if appsflyer.NormalizeToken(token) == "" {
			failed++
			fmt.Printf("%-24s attribution    FAIL  no token configured\n", p.Name)
			continue
		}
		for _, appID := range p.AttributionAppIDs {
			res := a.Attribution.TestConnection(ctx, appID, token)
			mark := "OK  "
			if !res.OK() {
				failed++
				mark = "FAIL"
			}
			fmt.Printf("%-24s attribution    %s  %s: %s\n", p.Name, mark, appID, res.Message())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d connection check(s) failed", failed)
	}
	return nil
}
