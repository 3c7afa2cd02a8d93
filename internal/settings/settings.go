// Package settings holds the user-editable display and refresh settings.
package settings

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ignite/pulse/internal/config"
)

// Settings are read by the core at the start of every operation.
type Settings struct {
	Currency       string `json:"currency"`
	RefreshMinutes int    `json:"refresh_minutes"`
	SelectedTab    string `json:"selected_tab"`
	ReportDays     int    `json:"report_days"`
}

// RefreshInterval returns the polling interval as a duration
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshMinutes) * time.Minute
}

// Validate normalizes and checks s.
func (s *Settings) Validate() error {
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if len(s.Currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	for _, r := range s.Currency {
		if r < 'A' || r > 'Z' {
			return errors.New("currency must be a 3-letter code")
		}
	}
	if s.RefreshMinutes < 1 {
		return errors.New("refresh interval must be at least 1 minute")
	}
	if s.ReportDays < 1 {
		return errors.New("report window must be at least 1 day")
	}
	s.SelectedTab = strings.TrimSpace(s.SelectedTab)
	return nil
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Currency       *string `json:"currency"`
	RefreshMinutes *int    `json:"refresh_minutes"`
	SelectedTab    *string `json:"selected_tab"`
	ReportDays     *int    `json:"report_days"`
}

// Store is a concurrency-safe settings holder.
type Store struct {
	mu      sync.RWMutex
	current Settings
}

// NewStore seeds a store from config.
func NewStore(cfg *config.Config) *Store {
	return &Store{current: Settings{
		Currency:       cfg.Settings.Currency,
		RefreshMinutes: cfg.Polling.IntervalMinutes,
		SelectedTab:    cfg.Settings.SelectedTab,
		ReportDays:     cfg.Settings.ReportDays,
	}}
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply validates p against the current settings and stores the result.
// It returns the new settings and whether the refresh interval changed.
func (s *Store) Apply(p Patch) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if p.Currency != nil {
		next.Currency = *p.Currency
	}
	if p.RefreshMinutes != nil {
		next.RefreshMinutes = *p.RefreshMinutes
	}
	if p.SelectedTab != nil {
		next.SelectedTab = *p.SelectedTab
	}
	if p.ReportDays != nil {
		next.ReportDays = *p.ReportDays
	}
	if err := next.Validate(); err != nil {
		return s.current, false, err
	}

	changed := next.RefreshMinutes != s.current.RefreshMinutes
	s.current = next
	return next, changed, nil
}
