// Package scheduler refreshes every project's dashboard snapshot on a
// timer and on demand, isolating failures per project.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/pulse/internal/aggregate"
	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/notify"
	"github.com/ignite/pulse/internal/pkg/distlock"
	"github.com/ignite/pulse/internal/pkg/logger"
	"github.com/ignite/pulse/internal/revenuecat"
)

const category = "scheduler"

var (
	// ErrNoProjects is returned by RefreshAll when no project is configured.
	ErrNoProjects = errors.New("no projects configured")
	// ErrRefreshInProgress is returned when another refresh is running.
	// RefreshAll drops the request; RefreshProject queues one follow-up.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrAlreadyRunning is returned by Start when the timer is running.
	ErrAlreadyRunning = errors.New("scheduler already running")
)

// State is the refresh state.
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
)

// DashboardFetcher builds one project's snapshot.
type DashboardFetcher interface {
	FetchDashboardData(ctx context.Context, creds revenuecat.Credentials, currency string) (domain.DashboardData, error)
}

// ProjectLister returns the tracked projects in display order.
type ProjectLister interface {
	List(ctx context.Context) ([]domain.Project, error)
}

// Observer receives refresh metrics.
type Observer interface {
	ObserveRefresh(outcome string, took time.Duration, at time.Time)
	ObserveProject(project string, ok bool, mrr float64, currency string)
	ForgetProject(project string)
}

// Options are the scheduler's collaborators. Fetcher, Projects and
// Credentials are required.
type Options struct {
	Fetcher     DashboardFetcher
	Projects    ProjectLister
	Credentials credentials.Store
	// Currency returns the display currency at the start of each refresh.
	Currency func() string
	Interval time.Duration
	Lock     distlock.DistLock
	Observer Observer
	Notifier notify.Notifier
}

// Summary describes one finished refresh.
type Summary struct {
	Projects  int               `json:"projects"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	Took      time.Duration     `json:"took"`
}

// Outcome is "ok", "partial" or "failed".
func (s Summary) Outcome() string {
	switch {
	case len(s.Failed) == 0:
		return "ok"
	case len(s.Succeeded) == 0:
		return "failed"
	}
	return "partial"
}

// Scheduler owns the per-project snapshot and error maps. Only the
// scheduler writes them; each completed project task replaces its entry in
// one locked update.
type Scheduler struct {
	fetcher  DashboardFetcher
	projects ProjectLister
	creds    credentials.Store
	currency func() string
	lock     distlock.DistLock
	observer Observer
	notifier notify.Notifier
	log      logger.Func
	now      func() time.Time

	mu          sync.RWMutex
	state       State
	snapshots   map[string]domain.DashboardData
	errors      map[string]string
	pending     map[string]domain.Project
	lastRefresh time.Time

	timerMu  sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan struct{}
}

// New creates an idle scheduler.
func New(opts Options, log logger.Func) *Scheduler {
	if log == nil {
		log = logger.Nop
	}
	if opts.Currency == nil {
		opts.Currency = func() string { return "USD" }
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.Lock == nil {
		opts.Lock = distlock.NewLocalLock()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Scheduler{
		fetcher:   opts.Fetcher,
		projects:  opts.Projects,
		creds:     opts.Credentials,
		currency:  opts.Currency,
		lock:      opts.Lock,
		observer:  opts.Observer,
		notifier:  opts.Notifier,
		log:       log,
		now:       time.Now,
		state:     StateIdle,
		snapshots: make(map[string]domain.DashboardData),
		errors:    make(map[string]string),
		pending:   make(map[string]domain.Project),
		interval:  opts.Interval,
	}
}

type result struct {
	project domain.Project
	data    domain.DashboardData
	err     error
}

// RefreshAll fetches every project concurrently and publishes the results.
// Per-project failures are recorded against that project and never fail
// the call; the error return is reserved for ErrNoProjects,
// ErrRefreshInProgress and registry failures.
func (s *Scheduler) RefreshAll(ctx context.Context) (Summary, error) {
	if !s.begin() {
		s.observeRefresh("skipped", 0)
		return Summary{}, ErrRefreshInProgress
	}
	defer s.runPending(ctx)
	defer s.end()

	acquired, err := s.lock.Acquire(ctx)
	switch {
	case err != nil:
		s.log(fmt.Sprintf("refresh lock unavailable, continuing unlocked: %v", err), logger.WARN, category)
	case !acquired:
		s.observeRefresh("skipped", 0)
		return Summary{}, ErrRefreshInProgress
	default:
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log(fmt.Sprintf("releasing refresh lock: %v", err), logger.WARN, category)
			}
		}()
	}

	projects, err := s.projects.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) == 0 {
		return Summary{}, ErrNoProjects
	}

	start := s.now()
	currency := s.currency()
	summary := Summary{Projects: len(projects), Failed: make(map[string]string)}

	results := make(chan result, len(projects))
	var wg sync.WaitGroup
	for _, p := range projects {
		wg.Add(1)
		go func(p domain.Project) {
			defer wg.Done()
			data, err := s.fetchProject(ctx, p, currency)
			res := result{project: p, data: data, err: err}
			s.record(res, currency)
			results <- res
		}(p)
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			summary.Failed[res.project.ID] = res.err.Error()
		} else {
			summary.Succeeded = append(summary.Succeeded, res.project.ID)
		}
	}
	s.prune(projects)

	finished := s.now()
	summary.Took = finished.Sub(start)
	s.mu.Lock()
	s.lastRefresh = finished
	s.mu.Unlock()

	s.observeRefresh(summary.Outcome(), summary.Took)
	s.log(fmt.Sprintf("refresh finished: %d ok, %d failed in %s",
		len(summary.Succeeded), len(summary.Failed), summary.Took.Round(time.Millisecond)), logger.INFO, category)
	return summary, nil
}

// RefreshProject refreshes a single project, for example right after its
// credentials were saved. While another refresh is running the project is
// queued and ErrRefreshInProgress is returned; the queued fetch runs once
// the running refresh finishes, so its result is never overwritten by the
// older one. Repeated requests for a queued project collapse to one fetch.
// Only the in-process guard is taken, not the distributed lock.
func (s *Scheduler) RefreshProject(ctx context.Context, p domain.Project) error {
	if !s.begin() {
		s.queue(p)
		return ErrRefreshInProgress
	}
	defer s.runPending(ctx)
	defer s.end()

	currency := s.currency()
	data, err := s.fetchProject(ctx, p, currency)
	s.record(result{project: p, data: data, err: err}, currency)
	return err
}

func (s *Scheduler) queue(p domain.Project) {
	s.mu.Lock()
	s.pending[p.ID] = p
	s.mu.Unlock()
	s.log(fmt.Sprintf("project %s queued behind running refresh", p.Name), logger.DEBUG, category)
}

// runPending drains projects queued while a refresh was running.
func (s *Scheduler) runPending(ctx context.Context) {
	for {
		queued, ok := s.beginPending()
		if !ok {
			return
		}
		s.refreshQueued(ctx, queued)
		s.end()
	}
}

// beginPending takes the queue and enters the refreshing state in one step.
func (s *Scheduler) beginPending() ([]domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRefreshing || len(s.pending) == 0 {
		return nil, false
	}
	s.state = StateRefreshing
	queued := make([]domain.Project, 0, len(s.pending))
	for _, p := range s.pending {
		queued = append(queued, p)
	}
	s.pending = make(map[string]domain.Project)
	return queued, true
}

// refreshQueued fetches queued projects that are still registered.
func (s *Scheduler) refreshQueued(ctx context.Context, queued []domain.Project) {
	if projects, err := s.projects.List(ctx); err != nil {
		s.log(fmt.Sprintf("listing projects for queued refresh: %v", err), logger.WARN, category)
	} else {
		current := make(map[string]domain.Project, len(projects))
		for _, p := range projects {
			current[p.ID] = p
		}
		kept := queued[:0]
		for _, p := range queued {
			if cur, ok := current[p.ID]; ok {
				kept = append(kept, cur)
			}
		}
		queued = kept
	}

	currency := s.currency()
	var wg sync.WaitGroup
	for _, p := range queued {
		wg.Add(1)
		go func(p domain.Project) {
			defer wg.Done()
			data, err := s.fetchProject(ctx, p, currency)
			s.record(result{project: p, data: data, err: err}, currency)
		}(p)
	}
	wg.Wait()
}

func (s *Scheduler) fetchProject(ctx context.Context, p domain.Project, currency string) (domain.DashboardData, error) {
	key, err := credentials.Lookup(ctx, s.creds, credentials.Subscription, p.ID)
	if err != nil {
		return domain.DashboardData{}, fmt.Errorf("reading credentials: %w", err)
	}
	return s.fetcher.FetchDashboardData(ctx, revenuecat.Credentials{
		APIKey:    key,
		ProjectID: p.SubscriptionProjectID,
	}, currency)
}

// record publishes one project's outcome. A failure keeps the last good
// snapshot and notifies when the project was healthy before.
func (s *Scheduler) record(res result, currency string) {
	id := res.project.ID

	s.mu.Lock()
	_, hadError := s.errors[id]
	_, hadData := s.snapshots[id]
	if res.err == nil {
		s.snapshots[id] = res.data
		delete(s.errors, id)
	} else {
		s.errors[id] = res.err.Error()
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveProject(id, res.err == nil, res.data.MRR, currency)
	}
	if res.err == nil {
		return
	}

	s.log(fmt.Sprintf("project %s refresh failed: %v", res.project.Name, res.err), logger.WARN, category)
	if hadData && !hadError {
		s.notifier.Notify(res.project.Name, res.err.Error())
	}
}

// prune drops state for projects that are no longer listed.
func (s *Scheduler) prune(projects []domain.Project) {
	keep := make(map[string]bool, len(projects))
	for _, p := range projects {
		keep[p.ID] = true
	}

	var removed []string
	s.mu.Lock()
	for id := range s.snapshots {
		if !keep[id] {
			delete(s.snapshots, id)
			removed = append(removed, id)
		}
	}
	for id := range s.errors {
		if !keep[id] {
			delete(s.errors, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	if s.observer != nil {
		for _, id := range removed {
			s.observer.ForgetProject(id)
		}
	}
}

// Forget drops a deleted project's snapshot, error and queued refresh
// immediately.
func (s *Scheduler) Forget(projectID string) {
	s.mu.Lock()
	delete(s.snapshots, projectID)
	delete(s.errors, projectID)
	delete(s.pending, projectID)
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ForgetProject(projectID)
	}
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRefreshing {
		return false
	}
	s.state = StateRefreshing
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Scheduler) observeRefresh(outcome string, took time.Duration) {
	if s.observer != nil {
		s.observer.ObserveRefresh(outcome, took, s.now())
	}
}

// State returns whether a refresh is running.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastRefresh returns when the last refresh finished, or the zero time.
func (s *Scheduler) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Snapshot returns the latest data for a project.
func (s *Scheduler) Snapshot(projectID string) (domain.DashboardData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.snapshots[projectID]
	return d, ok
}

// Errors returns a copy of the per-project error messages.
func (s *Scheduler) Errors() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Snapshots pairs each project with its latest data and error, in the
// given order.
func (s *Scheduler) Snapshots(projects []domain.Project) []domain.ProjectSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProjectSnapshot, 0, len(projects))
	for _, p := range projects {
		ps := domain.ProjectSnapshot{Project: p, Error: s.errors[p.ID]}
		if d, ok := s.snapshots[p.ID]; ok {
			ps.Data = &d
		}
		out = append(out, ps)
	}
	return out
}

// Total aggregates the snapshots of projects. It is nil until at least one
// of them has data.
func (s *Scheduler) Total(projects []domain.Project) *domain.DashboardData {
	s.mu.RLock()
	var data []domain.DashboardData
	for _, p := range projects {
		if d, ok := s.snapshots[p.ID]; ok {
			data = append(data, d)
		}
	}
	s.mu.RUnlock()
	return aggregate.Total(data)
}
