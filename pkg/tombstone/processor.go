// Package tombstone applies removal markers to the graph. A tombstone
// suppresses its target from default query results as of the removal date;
// the entity and the marker are retained through a grace window before
// becoming purge eligible. A later document that redescribes a tombstoned
// ordId cancels the tombstone: republish wins.
package tombstone

import (
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Plan is the set of tombstone actions one crawl batch produces.
type Plan struct {
	// Suppress holds the tombstones the batch publishes. Targets the graph
	// has never seen are stored anyway so the marker applies when the
	// entity arrives out of order.
	Suppress []models.Tombstone
	// Reinstate holds ordIds with an active stored tombstone that this
	// batch redescribes without re-tombstoning.
	Reinstate []string
}

// Processor computes tombstone plans and purge eligibility.
type Processor struct {
	logger ectologger.Logger
}

// NewProcessor creates a new Processor.
func NewProcessor(logger ectologger.Logger) *Processor {
	return &Processor{logger: logger}
}

// Plan computes the actions for a batch. `activeTombstones` holds the
// ordIds with uncancelled stored tombstones. A tombstone published in this
// batch wins over a description in the same batch; only later batches
// reinstate.
func (p *Processor) Plan(docs []*models.Document, activeTombstones map[string]bool) *Plan {
	plan := &Plan{}

	tombstoned := make(map[string]bool)
	for _, doc := range docs {
		for _, ts := range doc.Tombstones {
			if ts.OrdID == "" {
				continue
			}
			tombstoned[ts.OrdID] = true
			plan.Suppress = append(plan.Suppress, ts)
		}
	}

	seen := make(map[string]bool)
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			ordID := entity.GetOrdID()
			if ordID == "" || seen[ordID] {
				continue
			}
			seen[ordID] = true

			if activeTombstones[ordID] && !tombstoned[ordID] {
				plan.Reinstate = append(plan.Reinstate, ordID)
			}
		}
	}

	return plan
}

// PurgeAfter returns when a tombstone's target becomes purge eligible.
func PurgeAfter(removalDate time.Time) time.Time {
	return removalDate.Add(models.TombstoneGraceWindow)
}

// PurgeEligible reports whether a stored tombstone has aged past its grace
// window. Cancelled tombstones are never purged through this path; the
// reinstated entity simply lives on.
func PurgeEligible(record *models.TombstoneRecord, now time.Time) bool {
	if record.CancelledAt != nil {
		return false
	}
	return now.After(record.PurgeAfter)
}
