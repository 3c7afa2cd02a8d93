package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osteele/liquid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/pulse/internal/aggregate"
	"github.com/ignite/pulse/internal/appsflyer"
	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/llm"
	"github.com/ignite/pulse/internal/notify"
	"github.com/ignite/pulse/internal/pkg/logger"
	"github.com/ignite/pulse/internal/revenuecat"
	"github.com/ignite/pulse/internal/settings"
)

// ErrNoProjects is returned when the request selects no known project.
var ErrNoProjects = errors.New("no projects selected for the report")

// ChartFetcher fetches one project's report charts.
type ChartFetcher interface {
	FetchReportCharts(ctx context.Context, creds revenuecat.Credentials, currency string, start, end time.Time) domain.ReportChartSet
}

// MarketingFetcher fetches attribution data across app ids.
type MarketingFetcher interface {
	FetchMarketingData(ctx context.Context, appIDs []string, token, currency string, start, end time.Time) (domain.MarketingReport, error)
}

// ProjectLister returns the tracked projects.
type ProjectLister interface {
	List(ctx context.Context) ([]domain.Project, error)
}

// SnapshotSource returns the latest published snapshot of a project.
type SnapshotSource interface {
	Snapshot(projectID string) (domain.DashboardData, bool)
}

// SettingsReader returns the current user settings.
type SettingsReader interface {
	Get() settings.Settings
}

// Observer receives report metrics.
type Observer interface {
	ObserveReport(outcome string, attempts int)
}

// Deps are the service's collaborators.
type Deps struct {
	LLM         llm.Client
	Charts      ChartFetcher
	Marketing   MarketingFetcher
	Projects    ProjectLister
	Snapshots   SnapshotSource
	Credentials credentials.Store
	Settings    SettingsReader
	Observer    Observer
	Notifier    notify.Notifier
}

// Request selects what to report on. Empty ProjectIDs means every
// project; Days <= 0 uses the configured report window.
type Request struct {
	ProjectIDs       []string `json:"project_ids"`
	Days             int      `json:"days"`
	IncludeMarketing bool     `json:"include_marketing"`
}

// Report is a finished report.
type Report struct {
	Result
	Projects    []string  `json:"projects"`
	Currency    string    `json:"currency"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service gathers report data and runs the generator.
type Service struct {
	deps   Deps
	engine *liquid.Engine
	log    logger.Func
	now    func() time.Time
}

// NewService creates a report service.
func NewService(deps Deps, log logger.Func) *Service {
	if log == nil {
		log = logger.Nop
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Service{deps: deps, engine: liquid.NewEngine(), log: log, now: time.Now}
}

type projectData struct {
	current   domain.ReportChartSet
	previous  domain.ReportChartSet
	marketing *domain.MarketingReport
}

// Generate builds and writes a report. It fails before any network call
// when no text-generation key is set, and aborts on the first model error.
func (s *Service) Generate(ctx context.Context, req Request) (Report, error) {
	if err := s.deps.LLM.Ready(ctx); err != nil {
		return Report{}, err
	}

	projects, err := s.selectProjects(ctx, req.ProjectIDs)
	if err != nil {
		return Report{}, err
	}

	cfg := s.deps.Settings.Get()
	days := req.Days
	if days <= 0 {
		days = cfg.ReportDays
	}
	if days <= 0 {
		days = 7
	}
	now := s.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(days - 1))
	prevStart, prevEnd := PreviousWindow(start, end)

	results := make([]projectData, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			key, err := credentials.Lookup(gctx, s.deps.Credentials, credentials.Subscription, p.ID)
			if err != nil {
				return fmt.Errorf("reading credentials for %s: %w", p.Name, err)
			}
			creds := revenuecat.Credentials{APIKey: key, ProjectID: p.SubscriptionProjectID}

			inner, ictx := errgroup.WithContext(gctx)
			inner.Go(func() error {
				results[i].current = s.deps.Charts.FetchReportCharts(ictx, creds, cfg.Currency, start, end)
				return nil
			})
			inner.Go(func() error {
				results[i].previous = s.deps.Charts.FetchReportCharts(ictx, creds, cfg.Currency, prevStart, prevEnd)
				return nil
			})
			if req.IncludeMarketing && p.HasAttribution() && s.deps.Marketing != nil {
				inner.Go(func() error {
					results[i].marketing = s.fetchMarketing(ictx, p, cfg.Currency, start, end)
					return nil
				})
			}
			return inner.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	current := make([]domain.ReportChartSet, 0, len(projects))
	previous := make([]domain.ReportChartSet, 0, len(projects))
	var snapshots []domain.DashboardData
	var marketing *domain.MarketingReport
	ids := make([]string, 0, len(projects))
	for i, p := range projects {
		ids = append(ids, p.ID)
		current = append(current, results[i].current)
		previous = append(previous, results[i].previous)
		if d, ok := s.deps.Snapshots.Snapshot(p.ID); ok {
			snapshots = append(snapshots, d)
		}
		if m := results[i].marketing; m != nil {
			if marketing == nil {
				marketing = &domain.MarketingReport{}
			}
			merged := marketing.Merge(*m)
			marketing = &merged
		}
	}
	if req.IncludeMarketing && marketing == nil {
		marketing = &domain.MarketingReport{}
	}

	name := projects[0].Name
	if len(projects) > 1 {
		name = fmt.Sprintf("all projects (%d)", len(projects))
	}
	dataPrompt := BuildDataPrompt(PromptInput{
		Project:       name,
		Currency:      cfg.Currency,
		Start:         start,
		End:           end,
		Current:       aggregate.Total(snapshots),
		Charts:        aggregate.MergeReportChartSets(current),
		PreviousStart: prevStart,
		PreviousEnd:   prevEnd,
		Previous:      aggregate.MergeReportChartSets(previous),
		Marketing:     marketing,
	})

	prompts, err := RenderPrompts(s.engine, PromptVars{
		Project:   name,
		Currency:  cfg.Currency,
		Days:      days,
		Marketing: marketing != nil && !marketing.Empty(),
	})
	if err != nil {
		return Report{}, err
	}

	result, err := NewGenerator(s.deps.LLM, prompts, s.log).Run(ctx, dataPrompt)
	if err != nil {
		s.observe("failed", 0)
		return Report{}, err
	}

	outcome := "exhausted"
	if result.Approved {
		outcome = "approved"
	}
	s.observe(outcome, result.Attempts)
	s.deps.Notifier.Notify("Report ready", fmt.Sprintf("Your %d-day report for %s is ready.", days, name))

	return Report{
		Result:      result,
		Projects:    ids,
		Currency:    cfg.Currency,
		Start:       start.Format("2006-01-02"),
		End:         end.Format("2006-01-02"),
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) selectProjects(ctx context.Context, ids []string) ([]domain.Project, error) {
	all, err := s.deps.Projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if len(ids) == 0 {
		if len(all) == 0 {
			return nil, ErrNoProjects
		}
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Project
	for _, p := range all {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoProjects
	}
	return out, nil
}

// fetchMarketing returns nil when the project has no usable token or the
// fetch fails; attribution data is optional in a report.
func (s *Service) fetchMarketing(ctx context.Context, p domain.Project, currency string, start, end time.Time) *domain.MarketingReport {
	token, err := s.deps.Credentials.Get(ctx, credentials.ForProject(credentials.Attribution, p.ID))
	if err != nil {
		s.log(fmt.Sprintf("reading attribution token for %s: %v", p.Name, err), logger.WARN, category)
		return nil
	}
	if appsflyer.NormalizeToken(token) == "" {
		s.log(fmt.Sprintf("no attribution token for %s, skipping marketing data", p.Name), logger.INFO, category)
		return nil
	}

	m, err := s.deps.Marketing.FetchMarketingData(ctx, p.AttributionAppIDs, token, currency, start, end)
	if err != nil {
		s.log(fmt.Sprintf("fetching marketing data for %s: %v", p.Name, err), logger.WARN, category)
		return nil
	}
	return &m
}

func (s *Service) observe(outcome string, attempts int) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveReport(outcome, attempts)
	}
}
