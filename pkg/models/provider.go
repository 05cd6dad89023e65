package models

import (
	"time"
)

// Provider is a registered ORD provider system. Its crawl state lives with
// the registration and is dropped when the provider is deregistered.
type Provider struct {
	ID            string     `json:"id" db:"id"`
	TenantID      string     `json:"tenant_id" db:"tenant_id"`
	Name          string     `json:"name" db:"name"`
	BaseURL       string     `json:"base_url" db:"base_url"`
	WellKnownPath string     `json:"well_known_path" db:"well_known_path"`
	Enabled       bool       `json:"enabled" db:"enabled"`
	Stale         bool       `json:"stale" db:"stale"`
	FailureCount  int        `json:"failure_count" db:"failure_count"`
	LastCrawlAt   *time.Time `json:"last_crawl_at,omitempty" db:"last_crawl_at"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty" db:"last_success_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// WellKnownURL is the discovery endpoint for the provider.
func (p *Provider) WellKnownURL() string {
	path := p.WellKnownPath
	if path == "" {
		path = "/.well-known/open-resource-discovery"
	}
	return p.BaseURL + path
}

// CrawlDocument is the per-document conditional fetch state for a provider:
// the ETag and lastUpdate observed on the last successful crawl. Unchanged
// values let the crawler skip refetching resource definitions.
type CrawlDocument struct {
	ID            string     `json:"id" db:"id"`
	ProviderID    string     `json:"provider_id" db:"provider_id"`
	URL           string     `json:"url" db:"url"`
	ETag          string     `json:"etag" db:"etag"`
	LastUpdate    *time.Time `json:"last_update,omitempty" db:"last_update"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty" db:"last_fetched_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// RegisterProviderRequest is the request body for registering a provider.
type RegisterProviderRequest struct {
	Name          string `json:"name" validate:"required"`
	BaseURL       string `json:"base_url" validate:"required,url"`
	WellKnownPath string `json:"well_known_path,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

// UpdateProviderRequest is the request body for updating a provider.
type UpdateProviderRequest struct {
	Name          *string `json:"name,omitempty"`
	BaseURL       *string `json:"base_url,omitempty" validate:"omitempty,url"`
	WellKnownPath *string `json:"well_known_path,omitempty"`
	Enabled       *bool   `json:"enabled,omitempty"`
}

// ProviderListResponse is the provider admin list shape.
type ProviderListResponse struct {
	Items      []Provider `json:"items"`
	TotalCount int        `json:"total_count"`
}
