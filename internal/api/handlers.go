// Package api serves the dashboard, project, settings and report
// endpoints used by the embedding UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/pulse/internal/appsflyer"
	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/llm"
	"github.com/ignite/pulse/internal/pkg/httputil"
	"github.com/ignite/pulse/internal/pkg/logger"
	"github.com/ignite/pulse/internal/registry"
	"github.com/ignite/pulse/internal/report"
	"github.com/ignite/pulse/internal/revenuecat"
	"github.com/ignite/pulse/internal/scheduler"
	"github.com/ignite/pulse/internal/settings"
)

const category = "api"

// Refresher is the scheduler surface used by the handlers.
type Refresher interface {
	RefreshAll(ctx context.Context) (scheduler.Summary, error)
	RefreshProject(ctx context.Context, p domain.Project) error
	Forget(projectID string)
	Snapshots(projects []domain.Project) []domain.ProjectSnapshot
	Total(projects []domain.Project) *domain.DashboardData
	State() scheduler.State
	LastRefresh() time.Time
	SetInterval(d time.Duration) error
	Restart()
}

// SettingsStore reads and patches the user settings.
type SettingsStore interface {
	Get() settings.Settings
	Apply(p settings.Patch) (settings.Settings, bool, error)
}

// ReportGenerator writes a report.
type ReportGenerator interface {
	Generate(ctx context.Context, req report.Request) (report.Report, error)
}

// SubscriptionTester verifies subscription API credentials.
type SubscriptionTester interface {
	TestConnection(ctx context.Context, creds revenuecat.Credentials) error
}

// AttributionTester verifies an attribution token against one app id.
type AttributionTester interface {
	TestConnection(ctx context.Context, appID, token string) appsflyer.ConnectionResult
}

// Deps are the collaborators behind the handlers. Health and Metrics are
// optional.
type Deps struct {
	Scheduler    Refresher
	Registry     registry.Registry
	Credentials  credentials.Store
	Settings     SettingsStore
	Reports      ReportGenerator
	Subscription SubscriptionTester
	Attribution  AttributionTester
	Health       *HealthChecker
	Metrics      http.Handler
	Log          logger.Func
}

// Handlers contains all HTTP handlers
type Handlers struct {
	scheduler    Refresher
	registry     registry.Registry
	creds        credentials.Store
	settings     SettingsStore
	reports      ReportGenerator
	subscription SubscriptionTester
	attribution  AttributionTester
	health       *HealthChecker
	metrics      http.Handler
	log          logger.Func
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	log := deps.Log
	if log == nil {
		log = logger.Nop
	}
	return &Handlers{
		scheduler:    deps.Scheduler,
		registry:     deps.Registry,
		creds:        deps.Credentials,
		settings:     deps.Settings,
		reports:      deps.Reports,
		subscription: deps.Subscription,
		attribution:  deps.Attribution,
		health:       deps.Health,
		metrics:      deps.Metrics,
		log:          log,
	}
}

// DashboardResponse is the full dashboard view.
type DashboardResponse struct {
	State       scheduler.State          `json:"state"`
	LastRefresh *time.Time               `json:"last_refresh"`
	Settings    settings.Settings        `json:"settings"`
	Projects    []domain.ProjectSnapshot `json:"projects"`
	Total       *domain.DashboardData    `json:"total"`
}

// GetDashboard returns every project's latest snapshot and the total.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	projects, err := h.registry.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := DashboardResponse{
		State:    h.scheduler.State(),
		Settings: h.settings.Get(),
		Projects: h.scheduler.Snapshots(projects),
		Total:    h.scheduler.Total(projects),
	}
	if last := h.scheduler.LastRefresh(); !last.IsZero() {
		resp.LastRefresh = &last
	}
	httputil.OK(w, resp)
}

// TriggerRefresh runs one refresh cycle and returns its summary. The cycle
// finishes even if the caller goes away.
func (h *Handlers) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RefreshAll(context.WithoutCancel(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"outcome":   summary.Outcome(),
		"projects":  summary.Projects,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"took_ms":   summary.Took.Milliseconds(),
	})
}

// ProjectRequest creates or updates a project. The secrets are optional;
// an empty string removes a stored secret.
type ProjectRequest struct {
	Name                  string   `json:"name"`
	SubscriptionProjectID string   `json:"subscription_project_id"`
	Color                 string   `json:"color"`
	AttributionAppIDs     []string `json:"attribution_app_ids"`
	SubscriptionAPIKey    *string  `json:"subscription_api_key,omitempty"`
	AttributionToken      *string  `json:"attribution_token,omitempty"`
}

// ListProjects returns the projects in display order.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.registry.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	httputil.OK(w, projects)
}

// SaveProject creates a project, stores its secrets and fetches its first
// snapshot.
func (h *Handlers) SaveProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	p, err := h.registry.Save(r.Context(), domain.Project{
		Name:                  req.Name,
		SubscriptionProjectID: req.SubscriptionProjectID,
		Color:                 req.Color,
		AttributionAppIDs:     req.AttributionAppIDs,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.saveSecrets(r.Context(), p.ID, req.SubscriptionAPIKey, req.AttributionToken); err != nil {
		h.respondError(w, err)
		return
	}
	h.log(fmt.Sprintf("project %s (%s) created", p.Name, p.ID), logger.INFO, category)

	httputil.JSON(w, http.StatusCreated, h.refreshOne(r.Context(), p))
}

// UpdateProject replaces a project's fields. Secrets in the body are
// stored as with SaveProjectCredentials.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProject(w, r)
	if !ok {
		return
	}
	var req ProjectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	p.Name = req.Name
	p.SubscriptionProjectID = req.SubscriptionProjectID
	p.Color = req.Color
	p.AttributionAppIDs = req.AttributionAppIDs
	p, err := h.registry.Save(r.Context(), p)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.saveSecrets(r.Context(), p.ID, req.SubscriptionAPIKey, req.AttributionToken); err != nil {
		h.respondError(w, err)
		return
	}
	h.scheduler.Restart()
	httputil.OK(w, h.refreshOne(r.Context(), p))
}

// DeleteProject removes a project, its secrets and its snapshot.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.registry.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	for _, purpose := range []credentials.Purpose{credentials.Subscription, credentials.Attribution} {
		if err := h.creds.Delete(r.Context(), credentials.ForProject(purpose, id)); err != nil {
			h.log(fmt.Sprintf("deleting %s secret of project %s: %v", purpose, id, err), logger.WARN, category)
		}
	}
	h.scheduler.Forget(id)
	h.log(fmt.Sprintf("project %s deleted", id), logger.INFO, category)
	httputil.NoContent(w)
}

// CredentialsRequest carries per-project secrets. Nil leaves a secret
// unchanged; an empty string removes it.
type CredentialsRequest struct {
	SubscriptionAPIKey *string `json:"subscription_api_key,omitempty"`
	AttributionToken   *string `json:"attribution_token,omitempty"`
}

// SaveProjectCredentials stores a project's secrets, restarts the refresh
// timer and refreshes the project so the new key takes effect at once.
func (h *Handlers) SaveProjectCredentials(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProject(w, r)
	if !ok {
		return
	}
	var req CredentialsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := h.saveSecrets(r.Context(), p.ID, req.SubscriptionAPIKey, req.AttributionToken); err != nil {
		h.respondError(w, err)
		return
	}
	h.scheduler.Restart()
	httputil.OK(w, h.refreshOne(r.Context(), p))
}

// GlobalCredentialsRequest carries the shared secrets.
type GlobalCredentialsRequest struct {
	SubscriptionAPIKey *string `json:"subscription_api_key,omitempty"`
	TextGenAPIKey      *string `json:"textgen_api_key,omitempty"`
}

// SaveGlobalCredentials stores the global subscription key and the
// text-generation key.
func (h *Handlers) SaveGlobalCredentials(w http.ResponseWriter, r *http.Request) {
	var req GlobalCredentialsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if req.SubscriptionAPIKey != nil {
		if err := h.creds.Save(r.Context(), credentials.Global(credentials.Subscription), *req.SubscriptionAPIKey); err != nil {
			h.respondError(w, err)
			return
		}
		h.scheduler.Restart()
	}
	if req.TextGenAPIKey != nil {
		if err := h.creds.Save(r.Context(), credentials.Global(credentials.TextGen), *req.TextGenAPIKey); err != nil {
			h.respondError(w, err)
			return
		}
	}
	httputil.NoContent(w)
}

// ConnectionCheck is the outcome of one connection test.
type ConnectionCheck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// AttributionCheck is the outcome of testing one attribution app id.
type AttributionCheck struct {
	AppID string `json:"app_id"`
	ConnectionCheck
	Result *appsflyer.ConnectionResult `json:"result,omitempty"`
}

// ConnectionResponse reports every connection test of a project.
type ConnectionResponse struct {
	Subscription ConnectionCheck    `json:"subscription"`
	Attribution  []AttributionCheck `json:"attribution"`
}

// TestProjectConnection checks the project's stored secrets, or the
// unsaved ones in the body, against both upstream APIs.
func (h *Handlers) TestProjectConnection(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProject(w, r)
	if !ok {
		return
	}
	var req CredentialsRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	ctx := r.Context()

	key := ""
	if req.SubscriptionAPIKey != nil {
		key = *req.SubscriptionAPIKey
	} else {
		var err error
		if key, err = credentials.Lookup(ctx, h.creds, credentials.Subscription, p.ID); err != nil {
			h.respondError(w, err)
			return
		}
	}

	resp := ConnectionResponse{Attribution: []AttributionCheck{}}
	err := h.subscription.TestConnection(ctx, revenuecat.Credentials{APIKey: key, ProjectID: p.SubscriptionProjectID})
	resp.Subscription = connectionCheck(err)

	if p.HasAttribution() {
		token := ""
		if req.AttributionToken != nil {
			token = *req.AttributionToken
		} else if token, err = h.creds.Get(ctx, credentials.ForProject(credentials.Attribution, p.ID)); err != nil {
			h.respondError(w, err)
			return
		}
		token = appsflyer.NormalizeToken(token)

		for _, appID := range p.AttributionAppIDs {
			check := AttributionCheck{AppID: appID}
			if token == "" {
				check.Message = "Attribution token is not configured"
				check.Code = "not configured"
			} else {
				res := h.attribution.TestConnection(ctx, appID, token)
				check.OK = res.OK()
				check.Message = res.Message()
				check.Result = &res
			}
			resp.Attribution = append(resp.Attribution, check)
		}
	}
	httputil.OK(w, resp)
}

func connectionCheck(err error) ConnectionCheck {
	if err == nil {
		return ConnectionCheck{OK: true, Message: "Connected"}
	}
	check := ConnectionCheck{Message: err.Error()}
	if kind := apierrKind(err); kind != "" {
		check.Code = kind
	}
	return check
}

// GetSettings returns the current settings.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.settings.Get())
}

// UpdateSettings applies a partial settings update. A changed refresh
// interval restarts the timer with the new period.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if !httputil.Decode(w, r, &patch) {
		return
	}
	next, intervalChanged, err := h.settings.Apply(patch)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if intervalChanged {
		if err := h.scheduler.SetInterval(next.RefreshInterval()); err != nil {
			h.respondError(w, err)
			return
		}
		h.log(fmt.Sprintf("refresh interval set to %s", next.RefreshInterval()), logger.INFO, category)
	}
	httputil.OK(w, next)
}

// GenerateReport writes a report for the requested projects.
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if !decodeOptional(w, r, &req) {
		return
	}
	rep, err := h.reports.Generate(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.OK(w, rep)
}

func (h *Handlers) lookupProject(w http.ResponseWriter, r *http.Request) (domain.Project, bool) {
	p, err := h.registry.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return domain.Project{}, false
	}
	return p, true
}

// saveSecrets stores the non-nil secrets of one project. Attribution
// tokens are stored without a "Bearer " prefix.
func (h *Handlers) saveSecrets(ctx context.Context, projectID string, subscriptionKey, attributionToken *string) error {
	if subscriptionKey != nil {
		if err := h.creds.Save(ctx, credentials.ForProject(credentials.Subscription, projectID), *subscriptionKey); err != nil {
			return err
		}
	}
	if attributionToken != nil {
		token := appsflyer.NormalizeToken(*attributionToken)
		if err := h.creds.Save(ctx, credentials.ForProject(credentials.Attribution, projectID), token); err != nil {
			return err
		}
	}
	return nil
}

// refreshOne refreshes p and returns its snapshot. A failed fetch is
// reported in the snapshot, not as a request error. While another refresh
// is running the fetch is queued and the current snapshot is returned.
func (h *Handlers) refreshOne(ctx context.Context, p domain.Project) domain.ProjectSnapshot {
	switch err := h.scheduler.RefreshProject(context.WithoutCancel(ctx), p); {
	case err == nil:
	case errors.Is(err, scheduler.ErrRefreshInProgress):
		h.log(fmt.Sprintf("refresh of %s queued behind running refresh", p.Name), logger.INFO, category)
	default:
		h.log(fmt.Sprintf("refreshing %s: %v", p.Name, err), logger.WARN, category)
	}
	return h.scheduler.Snapshots([]domain.Project{p})[0]
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, registry.ErrInvalid):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, scheduler.ErrRefreshInProgress):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrNoProjects), errors.Is(err, report.ErrNoProjects):
		httputil.Error(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, llm.ErrNoAPIKey):
		httputil.Error(w, http.StatusPreconditionFailed, err.Error())
	default:
		httputil.Upstream(w, err)
	}
}

// decodeOptional is httputil.Decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
