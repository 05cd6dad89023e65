package models

import (
	"encoding/json"
	"time"
)

// GraphEntity is one logical ORD entity in the merged graph. Each ORD ID
// resolves to exactly one row per tenant; redescriptions from multiple
// documents and providers are reconciled into it by the merge engine.
type GraphEntity struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	OrdID         string          `json:"ord_id" db:"ord_id"`
	Kind          string          `json:"kind" db:"kind"`
	PackageOrdID  *string         `json:"package_ord_id,omitempty" db:"package_ord_id"`
	Version       string          `json:"version" db:"version"`
	ReleaseStatus string          `json:"release_status" db:"release_status"`
	Data          json.RawMessage `json:"data" db:"data"`                       // merged canonical entity document
	Effective     json.RawMessage `json:"effective" db:"effective"`             // post-inheritance view
	Providers     json.RawMessage `json:"providers" db:"providers"`             // provider ids that described this entity
	Unresolved    json.RawMessage `json:"unresolved,omitempty" db:"unresolved"` // dangling references pending a later crawl
	LastUpdate    *time.Time      `json:"last_update,omitempty" db:"last_update"`
	Conflicted    bool            `json:"conflicted" db:"conflicted"`
	Stale         bool            `json:"stale" db:"stale"`
	SuppressedAt  *time.Time      `json:"suppressed_at,omitempty" db:"suppressed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsSuppressed reports whether a tombstone currently hides the entity from
// default query results.
func (e *GraphEntity) IsSuppressed() bool {
	return e.SuppressedAt != nil
}

// ProviderIDs decodes the contributing provider id list.
func (e *GraphEntity) ProviderIDs() []string {
	if len(e.Providers) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(e.Providers, &ids); err != nil {
		return nil
	}
	return ids
}

// DanglingReference is one unresolved reference retained on an entity until a
// later crawl supplies the target.
type DanglingReference struct {
	Field     string `json:"field"`
	Target    string `json:"target"`
	Mandatory bool   `json:"mandatory"`
}

// TombstoneRecord is a persisted removal marker. It is retained for the grace
// window past its removal date before becoming purge eligible, and cancelled
// when a later document redescribes the ORD ID.
type TombstoneRecord struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	OrdID       string     `json:"ord_id" db:"ord_id"`
	ProviderID  string     `json:"provider_id" db:"provider_id"`
	RemovalDate time.Time  `json:"removal_date" db:"removal_date"`
	PurgeAfter  time.Time  `json:"purge_after" db:"purge_after"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// TombstoneGraceWindow is how long tombstones are retained past their removal
// date before they may be physically purged.
const TombstoneGraceWindow = 31 * 24 * time.Hour

// ConflictRecord is one recorded merge or consistency conflict, kept for
// operator review.
type ConflictRecord struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	OrdID      string          `json:"ord_id" db:"ord_id"`
	Field      string          `json:"field" db:"field"`
	Values     json.RawMessage `json:"values" db:"values"`
	Providers  json.RawMessage `json:"providers" db:"providers"`
	Resolution string          `json:"resolution" db:"resolution"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// MergeConflict is an in-flight conflict detected by the field merger.
type MergeConflict struct {
	OrdID      string   `json:"ord_id"`
	Field      string   `json:"field"`
	Values     []any    `json:"values"`
	Providers  []string `json:"providers"`
	Resolution string   `json:"resolution"`
	Fatal      bool     `json:"fatal"`
}

// EntityListResponse is the paginated query facade list shape.
type EntityListResponse struct {
	Items      []GraphEntity `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
