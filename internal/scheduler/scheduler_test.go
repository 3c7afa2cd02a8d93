package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/revenuecat"
)

// fakeFetcher returns canned data per subscription project id.
type fakeFetcher struct {
	mu      sync.Mutex
	data    map[string]domain.DashboardData
	errs    map[string]error
	keyErrs map[string]error
	keys    map[string]string
	calls   int32
	release chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:    map[string]domain.DashboardData{},
		errs:    map[string]error{},
		keyErrs: map[string]error{},
		keys:    map[string]string{},
	}
}

func (f *fakeFetcher) FetchDashboardData(ctx context.Context, creds revenuecat.Credentials, currency string) (domain.DashboardData, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.DashboardData{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[creds.ProjectID] = creds.APIKey
	if err := f.errs[creds.ProjectID]; err != nil {
		return domain.DashboardData{}, err
	}
	if err := f.keyErrs[creds.APIKey]; err != nil {
		return domain.DashboardData{}, err
	}
	d := f.data[creds.ProjectID]
	d.Currency = currency
	return d, nil
}

func (f *fakeFetcher) setErr(projectID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[projectID] = err
}

type staticProjects struct {
	mu       sync.Mutex
	projects []domain.Project
	err      error
}

func (s *staticProjects) List(context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Project(nil), s.projects...), s.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, title)
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	projects  map[string]int
	forgotten []string
}

func (o *recordingObserver) ObserveRefresh(outcome string, _ time.Duration, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveProject(project string, _ bool, _ float64, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.projects == nil {
		o.projects = map[string]int{}
	}
	o.projects[project]++
}

func (o *recordingObserver) ForgetProject(project string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forgotten = append(o.forgotten, project)
}

var threeProjects = []domain.Project{
	{ID: "a", Name: "Alpha", SubscriptionProjectID: "pa"},
	{ID: "b", Name: "Beta", SubscriptionProjectID: "pb"},
	{ID: "c", Name: "Gamma", SubscriptionProjectID: "pc"},
}

type fixture struct {
	sched    *Scheduler
	fetcher  *fakeFetcher
	projects *staticProjects
	store    *credentials.MemoryStore
	notifier *recordingNotifier
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:  newFakeFetcher(),
		projects: &staticProjects{projects: threeProjects},
		store:    credentials.NewMemoryStore("pulse"),
		notifier: &recordingNotifier{},
		observer: &recordingObserver{},
	}
	f.fetcher.data["pa"] = domain.DashboardData{MRR: 100, LastUpdated: time.Unix(100, 0)}
	f.fetcher.data["pb"] = domain.DashboardData{MRR: 50}
	f.fetcher.data["pc"] = domain.DashboardData{MRR: 250, LastUpdated: time.Unix(200, 0)}
	require.NoError(t, f.store.Save(context.Background(), credentials.Global(credentials.Subscription), "global-key"))

	f.sched = New(Options{
		Fetcher:     f.fetcher,
		Projects:    f.projects,
		Credentials: f.store,
		Currency:    func() string { return "EUR" },
		Observer:    f.observer,
		Notifier:    f.notifier,
	}, nil)
	return f
}

func TestRefreshAllIsolatesProjectFailures(t *testing.T) {
	f := newFixture(t)
	f.fetcher.setErr("pb", &apierr.Error{Service: "revenuecat", Kind: apierr.ErrUnauthorized})

	summary, err := f.sched.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Projects)
	assert.ElementsMatch(t, []string{"a", "c"}, summary.Succeeded)
	assert.Len(t, summary.Failed, 1)
	assert.Equal(t, "partial", summary.Outcome())

	_, ok := f.sched.Snapshot("a")
	assert.True(t, ok)
	_, ok = f.sched.Snapshot("b")
	assert.False(t, ok)
	_, ok = f.sched.Snapshot("c")
	assert.True(t, ok)

	errs := f.sched.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs["b"], "check your credentials")

	assert.Equal(t, StateIdle, f.sched.State())
	assert.False(t, f.sched.LastRefresh().IsZero())
	assert.Equal(t, []string{"partial"}, f.observer.outcomes)
	assert.Equal(t, 1, f.observer.projects["b"])
}

func TestRefreshAllUsesCurrencyAndCredentials(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(context.Background(), credentials.ForProject(credentials.Subscription, "a"), "own-key"))

	_, err := f.sched.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "own-key", f.fetcher.keys["pa"])
	assert.Equal(t, "global-key", f.fetcher.keys["pb"])
	d, _ := f.sched.Snapshot("a")
	assert.Equal(t, "EUR", d.Currency)
}

func TestRefreshAllNoProjects(t *testing.T) {
	f := newFixture(t)
	f.projects.projects = nil

	_, err := f.sched.RefreshAll(context.Background())
	assert.True(t, errors.Is(err, ErrNoProjects))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.fetcher.calls))
	assert.Equal(t, StateIdle, f.sched.State())
}

func TestRefreshAllRegistryError(t *testing.T) {
	f := newFixture(t)
	f.projects.err = errors.New("db down")

	_, err := f.sched.RefreshAll(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, StateIdle, f.sched.State())
}

func TestOverlappingRefreshIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.projects.projects = threeProjects[:1]
	f.fetcher.release = make(chan struct{})
	f.fetcher.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.sched.RefreshAll(context.Background())
		done <- err
	}()
	<-f.fetcher.started
	assert.Equal(t, StateRefreshing, f.sched.State())

	_, err := f.sched.RefreshAll(context.Background())
	assert.True(t, errors.Is(err, ErrRefreshInProgress))

	close(f.fetcher.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.fetcher.calls))
	assert.Contains(t, f.observer.outcomes, "skipped")
}

type heldLock struct{}

func (heldLock) Acquire(context.Context) (bool, error) { return false, nil }
func (heldLock) Release(context.Context) error         { return nil }

func TestRefreshSkippedWhenLockHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	f.sched.lock = heldLock{}

	_, err := f.sched.RefreshAll(context.Background())
	assert.True(t, errors.Is(err, ErrRefreshInProgress))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.fetcher.calls))
	assert.Equal(t, StateIdle, f.sched.State())
}

func TestFailureKeepsLastGoodSnapshotAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.RefreshAll(ctx)
	require.NoError(t, err)

	f.fetcher.setErr("pa", &apierr.Error{Service: "revenuecat", Kind: apierr.ErrRateLimited})
	_, err = f.sched.RefreshAll(ctx)
	require.NoError(t, err)
	_, err = f.sched.RefreshAll(ctx)
	require.NoError(t, err)

	d, ok := f.sched.Snapshot("a")
	require.True(t, ok)
	assert.Equal(t, 100.0, d.MRR)
	assert.Contains(t, f.sched.Errors()["a"], "try again shortly")
	assert.Equal(t, []string{"Alpha"}, f.notifier.messages)

	f.fetcher.setErr("pa", nil)
	_, err = f.sched.RefreshAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, f.sched.Errors(), "a")
}

func TestRemovedProjectsArePruned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.RefreshAll(ctx)
	require.NoError(t, err)

	f.projects.projects = threeProjects[:2]
	_, err = f.sched.RefreshAll(ctx)
	require.NoError(t, err)

	_, ok := f.sched.Snapshot("c")
	assert.False(t, ok)
	assert.Contains(t, f.observer.forgotten, "c")
}

func TestSnapshotsAndTotal(t *testing.T) {
	f := newFixture(t)
	f.fetcher.setErr("pb", errors.New("boom"))

	assert.Nil(t, f.sched.Total(threeProjects), "no data yet")

	_, err := f.sched.RefreshAll(context.Background())
	require.NoError(t, err)

	snaps := f.sched.Snapshots(threeProjects)
	require.Len(t, snaps, 3)
	assert.Equal(t, "a", snaps[0].Project.ID)
	require.NotNil(t, snaps[0].Data)
	assert.Nil(t, snaps[1].Data)
	assert.Equal(t, "boom", snaps[1].Error)

	total := f.sched.Total(threeProjects)
	require.NotNil(t, total)
	assert.Equal(t, 350.0, total.MRR)
	assert.Equal(t, time.Unix(200, 0), total.LastUpdated)
}

func TestRefreshProject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.RefreshProject(context.Background(), threeProjects[2]))

	d, ok := f.sched.Snapshot("c")
	require.True(t, ok)
	assert.Equal(t, 250.0, d.MRR)

	f.sched.Forget("c")
	_, ok = f.sched.Snapshot("c")
	assert.False(t, ok)
}

func TestRefreshProjectQueuesBehindRunningRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.projects.projects = threeProjects[:1]
	f.fetcher.keyErrs["old-key"] = &apierr.Error{Service: "revenuecat", Kind: apierr.ErrUnauthorized}
	require.NoError(t, f.store.Save(ctx, credentials.ForProject(credentials.Subscription, "a"), "old-key"))
	f.fetcher.release = make(chan struct{})
	f.fetcher.started = make(chan struct{}, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.sched.RefreshAll(ctx)
		done <- err
	}()
	<-f.fetcher.started

	require.NoError(t, f.store.Save(ctx, credentials.ForProject(credentials.Subscription, "a"), "new-key"))
	assert.ErrorIs(t, f.sched.RefreshProject(ctx, threeProjects[0]), ErrRefreshInProgress)
	assert.ErrorIs(t, f.sched.RefreshProject(ctx, threeProjects[0]), ErrRefreshInProgress)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.fetcher.calls), "no overlapping fetch")

	close(f.fetcher.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(2), atomic.LoadInt32(&f.fetcher.calls), "queued requests collapse to one fetch")
	assert.Equal(t, "new-key", f.fetcher.keys["pa"])
	assert.Empty(t, f.sched.Errors())
	_, ok := f.sched.Snapshot("a")
	assert.True(t, ok)
	assert.Equal(t, StateIdle, f.sched.State())
}

func TestQueuedRefreshSkipsDeletedProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.projects.projects = threeProjects[:1]
	f.fetcher.release = make(chan struct{})
	f.fetcher.started = make(chan struct{}, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.sched.RefreshAll(ctx)
		done <- err
	}()
	<-f.fetcher.started

	assert.ErrorIs(t, f.sched.RefreshProject(ctx, threeProjects[1]), ErrRefreshInProgress)
	assert.ErrorIs(t, f.sched.RefreshProject(ctx, threeProjects[2]), ErrRefreshInProgress)
	f.sched.Forget("c")

	close(f.fetcher.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.fetcher.calls), "b is not registered and c was forgotten")
	_, ok := f.sched.Snapshot("b")
	assert.False(t, ok)
}

func TestTimerRefreshesPeriodically(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.SetInterval(20*time.Millisecond))

	require.NoError(t, f.sched.Start(context.Background()))
	assert.True(t, f.sched.Running())
	assert.ErrorIs(t, f.sched.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.fetcher.calls) >= 6
	}, 2*time.Second, 5*time.Millisecond, "at least two cycles over three projects")

	f.sched.Stop()
	assert.False(t, f.sched.Running())
	calls := atomic.LoadInt32(&f.fetcher.calls)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&f.fetcher.calls))

	f.sched.Stop()
}

func TestSetIntervalValidatesAndRestarts(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.sched.SetInterval(0))
	assert.Equal(t, 15*time.Minute, f.sched.Interval())

	require.NoError(t, f.sched.SetInterval(time.Hour))
	assert.Equal(t, time.Hour, f.sched.Interval())
	assert.NotPanics(t, f.sched.Restart)
}
