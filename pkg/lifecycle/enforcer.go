// Package lifecycle enforces the entity lifecycle state machine:
// active, deprecated, then removed via tombstone. Deviations are reported as
// warnings so providers can correct their catalogs without losing data.
package lifecycle

import (
	"github.com/Gobusters/ectologger"
	"github.com/Masterminds/semver/v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Enforcer checks lifecycle invariants on parsed entities and version
// transitions between crawls.
type Enforcer struct {
	logger ectologger.Logger
}

// NewEnforcer creates a new Enforcer.
func NewEnforcer(logger ectologger.Logger) *Enforcer {
	return &Enforcer{logger: logger}
}

// CheckDocument checks every entity in a parsed document.
func (e *Enforcer) CheckDocument(doc *models.Document) models.Issues {
	var issues models.Issues
	for _, entity := range doc.Entities() {
		issues = append(issues, e.CheckEntity(entity)...)
	}
	return issues
}

// CheckEntity checks one entity's lifecycle fields. A deprecated entity must
// carry a sunsetDate and should carry a deprecationDate; successors are only
// required when the provider has published one, so their absence alone is
// not flagged.
func (e *Enforcer) CheckEntity(entity models.Entity) models.Issues {
	base := entity.Base()
	if base.ReleaseStatus != string(models.ReleaseStatusDeprecated) {
		return nil
	}

	var issues models.Issues
	if base.SunsetDate == nil {
		issues = append(issues, models.LifecycleWarning(base.OrdID,
			"deprecated entity has no sunsetDate"))
	}
	if base.DeprecationDate == nil {
		issues = append(issues, models.LifecycleWarning(base.OrdID,
			"deprecated entity has no deprecationDate"))
	}
	return issues
}

// CheckVersionTransition compares the stored version with a newly observed
// one for the same ordId. Versions should be non-decreasing under semantic
// version order; a decrease is a warning, since republishing a history
// correction is permitted. Unparseable versions are skipped: the structural
// validator already reported them when they violate the format.
func (e *Enforcer) CheckVersionTransition(ordID, previous, observed string) models.Issues {
	if previous == "" || observed == "" || previous == observed {
		return nil
	}

	prev, err := semver.NewVersion(previous)
	if err != nil {
		return nil
	}
	next, err := semver.NewVersion(observed)
	if err != nil {
		return nil
	}

	if next.LessThan(prev) {
		return models.Issues{models.LifecycleWarning(ordID,
			"version decreased from %s to %s", previous, observed)}
	}
	return nil
}

// RemovedWithoutTombstone flags an entity that transitioned to removed state
// without a tombstone referencing it.
func (e *Enforcer) RemovedWithoutTombstone(ordID string) models.ValidationIssue {
	return models.ConsistencyIssue(ordID, "entity removed without a prior tombstone")
}
