package domain

import (
	"errors"
	"strings"
)

// Project is one app whose subscription and attribution metrics are tracked.
type Project struct {
	ID                    string   `json:"id" db:"id"`
	Name                  string   `json:"name" db:"name"`
	SubscriptionProjectID string   `json:"subscription_project_id" db:"subscription_project_id"`
	Color                 string   `json:"color" db:"color"`
	AttributionAppIDs     []string `json:"attribution_app_ids" db:"attribution_app_ids"`
}

// Validate checks the fields a project needs before it can be refreshed.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	if strings.TrimSpace(p.SubscriptionProjectID) == "" {
		return errors.New("subscription project id is required")
	}
	return nil
}

// HasAttribution reports whether any attribution app id is configured.
func (p Project) HasAttribution() bool {
	for _, id := range p.AttributionAppIDs {
		if strings.TrimSpace(id) != "" {
			return true
		}
	}
	return false
}
