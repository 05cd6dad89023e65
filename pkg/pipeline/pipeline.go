// Package pipeline runs one provider's crawl batch through the aggregation
// stages: parse, inheritance, reference resolution, lifecycle checks,
// tombstone planning, and the per-entity merge. All writes for a batch happen
// in one transaction; a failed batch leaves the previous graph state intact.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/document"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/inherit"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ordid"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tombstone"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Batch is one provider crawl's worth of fetched documents.
type Batch struct {
	TenantID   string
	ProviderID string
	CrawlID    string
	// Documents holds the raw JSON of every fetched (or cached) document.
	Documents [][]byte
	CrawledAt time.Time
}

// Result summarizes one processed batch.
type Result struct {
	Documents  int
	Entities   int
	Created    int
	Merged     int
	Suppressed int
	Reinstated int
	Conflicts  int
	Issues     models.Issues
}

// EntityStore is the graph persistence surface the pipeline writes through.
// *graphentity.Repository implements it.
type EntityStore interface {
	LockEntity(ctx context.Context, tenantID, ordID string) error
	GetByOrdID(ctx context.Context, tenantID, ordID string) (*models.GraphEntity, error)
	KnownOrdIDs(ctx context.Context, tenantID string, ordIDs []string) (map[string]bool, error)
	ListOrdIDsByProvider(ctx context.Context, tenantID, providerID string) ([]string, error)
	ListOrdIDsByPrefix(ctx context.Context, tenantID, prefix string) ([]string, error)
	Upsert(ctx context.Context, entity *models.GraphEntity) (*graphentity.UpsertResult, error)
	Suppress(ctx context.Context, tenantID, ordID string, at time.Time) error
	Reinstate(ctx context.Context, tenantID, ordID string) error
	FindByUnresolvedTarget(ctx context.Context, tenantID string, targets []string) ([]models.GraphEntity, error)
	UpdateUnresolved(ctx context.Context, tenantID, ordID string, refs []models.DanglingReference) error
	Purge(ctx context.Context, tenantID, ordID string) error
}

// TombstoneStore persists removal markers. The tombstone repository
// implements it.
type TombstoneStore interface {
	Upsert(ctx context.Context, record *models.TombstoneRecord) (*models.TombstoneRecord, error)
	ActiveOrdIDs(ctx context.Context, tenantID string) (map[string]bool, error)
	Cancel(ctx context.Context, tenantID, ordID string) error
	ListPurgeEligible(ctx context.Context, now time.Time, limit int) ([]models.TombstoneRecord, error)
	Delete(ctx context.Context, tenantID, ordID string) error
}

// ConflictStore records merge disagreements. The conflict repository
// implements it.
type ConflictStore interface {
	Record(ctx context.Context, tenantID string, conflicts []models.MergeConflict) error
	ClearForOrdID(ctx context.Context, tenantID, ordID string) error
}

// Processor wires the aggregation stages together.
type Processor struct {
	db         database.DB
	logger     ectologger.Logger
	parser     *document.Parser
	propagator *inherit.Propagator
	resolver   *resolver.Resolver
	enforcer   *lifecycle.Enforcer
	planner    *tombstone.Processor
	merger     *merging.Engine
	entities   EntityStore
	tombstones TombstoneStore
	conflicts  ConflictStore
	emitter    *events.Emitter
}

func NewProcessor(
	db database.DB,
	logger ectologger.Logger,
	entities EntityStore,
	tombstones TombstoneStore,
	conflicts ConflictStore,
	emitter *events.Emitter,
) *Processor {
	return &Processor{
		db:         db,
		logger:     logger,
		parser:     document.NewParser(),
		propagator: inherit.NewPropagator(),
		resolver:   resolver.NewResolver(logger),
		enforcer:   lifecycle.NewEnforcer(logger),
		planner:    tombstone.NewProcessor(logger),
		merger:     merging.NewEngine(logger),
		entities:   entities,
		tombstones: tombstones,
		conflicts:  conflicts,
		emitter:    emitter,
	}
}

// contribution pairs a parsed entity with its declared (pre-inheritance) and
// effective (post-inheritance) views.
type contribution struct {
	entity    models.Entity
	declared  map[string]any
	effective json.RawMessage
}

// Process runs one batch. Entities with structural errors keep their previous
// graph state; everything else is merged, tombstoned, or reinstated inside a
// single transaction. Events are emitted only after the commit.
func (p *Processor) Process(ctx context.Context, batch *Batch) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Processor.Process")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   batch.TenantID,
		"provider_id": batch.ProviderID,
		"crawl_id":    batch.CrawlID,
	})

	result := &Result{}

	docs, contributions := p.parseBatch(ctx, batch, result)
	result.Documents = len(docs)

	// Reference resolution runs against the batch plus the merged graph.
	known, err := p.entities.KnownOrdIDs(ctx, batch.TenantID, resolver.ReferenceTargets(docs))
	if err != nil {
		return nil, err
	}
	resolution := p.resolver.Resolve(ctx, docs, known)
	result.Issues = append(result.Issues, resolution.Issues...)

	for _, doc := range docs {
		result.Issues = append(result.Issues, p.enforcer.CheckDocument(doc)...)
	}

	activeTombstones, err := p.tombstones.ActiveOrdIDs(ctx, batch.TenantID)
	if err != nil {
		return nil, err
	}
	plan := p.planner.Plan(docs, activeTombstones)

	tombstonedInBatch := make(map[string]bool, len(plan.Suppress))
	for _, ts := range plan.Suppress {
		tombstonedInBatch[ts.OrdID] = true
	}

	previousOrdIDs, err := p.entities.ListOrdIDsByProvider(ctx, batch.TenantID, batch.ProviderID)
	if err != nil {
		return nil, err
	}

	vendorBlocked, err := p.checkVendorUniqueness(ctx, batch.TenantID, contributions, result)
	if err != nil {
		return nil, err
	}

	ctxTx, tx, err := p.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var created, merged, suppressed, reinstated []*models.GraphEntity

	for _, c := range contributions {
		ordID := c.entity.GetOrdID()
		if ordID == "" || hasStructuralError(result.Issues, ordID) {
			continue
		}
		if tombstonedInBatch[ordID] {
			// A tombstone published alongside a description wins.
			continue
		}
		if vendorBlocked[ordID] {
			continue
		}

		entity, outcome, err := p.mergeOne(ctxTx, batch, c, resolution.Dangling[ordID], result)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			continue
		}
		result.Entities++
		if outcome.IsNew {
			created = append(created, entity)
		} else if outcome.Changed || outcome.Fatal {
			merged = append(merged, entity)
		}
	}

	suppressed, err = p.applyTombstones(ctxTx, batch, plan, result)
	if err != nil {
		return nil, err
	}

	reinstated, err = p.applyReinstatements(ctxTx, batch, plan, result)
	if err != nil {
		return nil, err
	}

	if err := p.reresolveDangling(ctxTx, batch.TenantID, docs); err != nil {
		return nil, err
	}

	// Entities this provider described before but neither redescribes nor
	// tombstones now are flagged, not removed.
	batchIDs := make(map[string]bool, len(contributions))
	for _, c := range contributions {
		batchIDs[c.entity.GetOrdID()] = true
	}
	for _, ordID := range previousOrdIDs {
		if !batchIDs[ordID] && !tombstonedInBatch[ordID] {
			result.Issues = append(result.Issues, p.enforcer.RemovedWithoutTombstone(ordID))
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	p.emitter.EmitEntityChanges(ctx, created, merged)
	for _, entity := range suppressed {
		p.emitter.EmitEntitySuppressed(ctx, entity)
	}
	for _, entity := range reinstated {
		p.emitter.EmitEntityReinstated(ctx, entity)
	}

	p.recordMetrics(batch, result, resolution)

	log.WithFields(map[string]any{
		"documents":  result.Documents,
		"entities":   result.Entities,
		"created":    len(created),
		"merged":     len(merged),
		"suppressed": result.Suppressed,
		"reinstated": result.Reinstated,
		"issues":     len(result.Issues),
	}).Info("Processed crawl batch")

	result.Created = len(created)
	result.Merged = len(merged)
	return result, nil
}

// parseBatch parses and validates every document, applies package
// inheritance, and captures declared and effective entity views.
func (p *Processor) parseBatch(ctx context.Context, batch *Batch, result *Result) ([]*models.Document, []contribution) {
	var docs []*models.Document
	for _, raw := range batch.Documents {
		doc, issues := p.parser.Parse(ctx, raw)
		result.Issues = append(result.Issues, issues...)
		if doc != nil {
			docs = append(docs, doc)
		}
	}

	// Declared views are captured before inheritance mutates the entities;
	// merging always works on what the provider actually published.
	var contributions []contribution
	index := make(map[models.Entity]int)
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			declared, err := entityToMap(entity)
			if err != nil {
				result.Issues = append(result.Issues, models.StructuralError("", "failed to encode entity %q: %v", entity.GetOrdID(), err))
				continue
			}
			index[entity] = len(contributions)
			contributions = append(contributions, contribution{entity: entity, declared: declared})
		}
	}

	packages := inherit.PackageIndex(docs)
	for _, doc := range docs {
		p.propagator.ApplyDocument(doc, packages)
	}
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			i, ok := index[entity]
			if !ok {
				continue
			}
			effective, err := json.Marshal(entity)
			if err != nil {
				continue
			}
			contributions[i].effective = effective
		}
	}

	return docs, contributions
}

// checkVendorUniqueness enforces one vendor entity per namespace across the
// tenant's graph. A second vendor ID in the same namespace is a consistency
// error; the first registration stands.
func (p *Processor) checkVendorUniqueness(ctx context.Context, tenantID string, contributions []contribution, result *Result) (map[string]bool, error) {
	blocked := make(map[string]bool)
	claimed := make(map[string]string)

	for _, c := range contributions {
		if c.entity.GetKind() != models.KindVendor {
			continue
		}
		id, err := ordid.Parse(c.entity.GetOrdID())
		if err != nil {
			continue
		}

		holder, ok := claimed[id.Namespace]
		if !ok {
			existing, err := p.entities.ListOrdIDsByPrefix(ctx, tenantID, id.Namespace+":vendor:")
			if err != nil {
				return nil, err
			}
			for _, existingID := range existing {
				holder = existingID
				break
			}
			if holder == "" {
				claimed[id.Namespace] = id.String()
				continue
			}
			claimed[id.Namespace] = holder
		}

		if holder != id.String() {
			blocked[id.String()] = true
			result.Issues = append(result.Issues, models.ConsistencyIssue(id.String(),
				"namespace %s already has vendor %s", id.Namespace, holder))
		}
	}

	return blocked, nil
}

// mergeOne merges a single contribution into the graph. A fatal identity
// conflict retains the stored state and flags the row.
func (p *Processor) mergeOne(ctx context.Context, batch *Batch, c contribution, dangling []models.DanglingReference, result *Result) (*models.GraphEntity, *merging.Outcome, error) {
	ordID := c.entity.GetOrdID()

	// One writer at a time per entity key. Without the lock two concurrent
	// provider batches read the same snapshot and the later commit drops the
	// earlier provider's set and label contributions.
	if err := p.entities.LockEntity(ctx, batch.TenantID, ordID); err != nil {
		return nil, nil, err
	}

	existing, err := p.entities.GetByOrdID(ctx, batch.TenantID, ordID)
	if err != nil {
		return nil, nil, err
	}

	if existing != nil {
		result.Issues = append(result.Issues,
			p.enforcer.CheckVersionTransition(ordID, existing.Version, c.entity.GetVersion())...)
	}

	lastUpdate := batch.CrawledAt
	if ts := c.entity.GetLastUpdate(); ts != nil {
		lastUpdate = *ts
	}

	incoming := &merging.Contribution{
		ProviderID:   batch.ProviderID,
		OrdID:        ordID,
		Kind:         string(c.entity.GetKind()),
		Version:      c.entity.GetVersion(),
		PackageOrdID: packageOrdID(c.declared),
		LastUpdate:   lastUpdate,
		Data:         c.declared,
		Unresolved:   dangling,
	}

	outcome, err := p.merger.Merge(ctx, existing, incoming)
	if err != nil {
		return nil, nil, err
	}

	if len(outcome.Conflicts) > 0 {
		result.Conflicts += len(outcome.Conflicts)
		if err := p.conflicts.Record(ctx, batch.TenantID, outcome.Conflicts); err != nil {
			return nil, nil, err
		}
		for _, conflict := range outcome.Conflicts {
			metrics.RecordMergeConflict(batch.TenantID, conflict.Resolution)
		}
	} else if existing != nil && existing.Conflicted && !outcome.Fatal {
		if err := p.conflicts.ClearForOrdID(ctx, batch.TenantID, ordID); err != nil {
			return nil, nil, err
		}
	}

	if !outcome.Changed && !outcome.Fatal && existing != nil && !existing.Conflicted {
		// Unchanged re-merge; only the dangling reference list may move.
		if danglingChanged(existing.Unresolved, dangling) {
			if err := p.entities.UpdateUnresolved(ctx, batch.TenantID, ordID, dangling); err != nil {
				return nil, nil, err
			}
		}
		return existing, outcome, nil
	}

	entity, err := p.buildRecord(batch, c, existing, incoming, outcome, dangling)
	if err != nil {
		return nil, nil, err
	}

	upserted, err := p.entities.Upsert(ctx, entity)
	if err != nil {
		return nil, nil, err
	}

	metrics.EntitiesMerged.WithLabelValues(batch.TenantID, entity.Kind).Inc()
	return &upserted.GraphEntity, outcome, nil
}

// buildRecord assembles the row to store from the merge outcome.
func (p *Processor) buildRecord(batch *Batch, c contribution, existing *models.GraphEntity, incoming *merging.Contribution, outcome *merging.Outcome, dangling []models.DanglingReference) (*models.GraphEntity, error) {
	data, err := json.Marshal(outcome.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged data for %s: %w", incoming.OrdID, err)
	}

	providerIDs := []string{incoming.ProviderID}
	lastUpdate := incoming.LastUpdate
	if existing != nil {
		providerIDs = merging.MergeProviders(existing.ProviderIDs(), incoming.ProviderID)
		if existing.LastUpdate != nil && existing.LastUpdate.After(lastUpdate) {
			lastUpdate = *existing.LastUpdate
		}
	}
	providers, err := json.Marshal(providerIDs)
	if err != nil {
		return nil, err
	}

	var unresolved json.RawMessage
	if len(dangling) > 0 {
		unresolved, err = json.Marshal(dangling)
		if err != nil {
			return nil, err
		}
	}

	entity := &models.GraphEntity{
		TenantID:      batch.TenantID,
		OrdID:         incoming.OrdID,
		Kind:          incoming.Kind,
		PackageOrdID:  incoming.PackageOrdID,
		Version:       stringField(outcome.Data, "version", incoming.Version),
		ReleaseStatus: stringField(outcome.Data, "releaseStatus", ""),
		Data:          data,
		Effective:     c.effective,
		Providers:     providers,
		Unresolved:    unresolved,
		LastUpdate:    &lastUpdate,
		Conflicted:    outcome.Fatal,
	}

	// A fatal conflict keeps the stored description and effective view.
	if outcome.Fatal && existing != nil {
		entity.Kind = existing.Kind
		entity.PackageOrdID = existing.PackageOrdID
		entity.Version = existing.Version
		entity.ReleaseStatus = existing.ReleaseStatus
		entity.Data = existing.Data
		entity.Effective = existing.Effective
		entity.Unresolved = existing.Unresolved
		entity.LastUpdate = existing.LastUpdate
	}

	return entity, nil
}

// applyTombstones stores the batch's removal markers and suppresses their
// targets. Markers for entities the graph has never seen are stored anyway.
func (p *Processor) applyTombstones(ctx context.Context, batch *Batch, plan *tombstone.Plan, result *Result) ([]*models.GraphEntity, error) {
	var suppressed []*models.GraphEntity

	for _, ts := range plan.Suppress {
		record := &models.TombstoneRecord{
			TenantID:    batch.TenantID,
			OrdID:       ts.OrdID,
			ProviderID:  batch.ProviderID,
			RemovalDate: ts.RemovalDate,
			PurgeAfter:  tombstone.PurgeAfter(ts.RemovalDate),
		}
		if _, err := p.tombstones.Upsert(ctx, record); err != nil {
			return nil, err
		}

		entity, err := p.entities.GetByOrdID(ctx, batch.TenantID, ts.OrdID)
		if err != nil {
			return nil, err
		}
		if entity != nil && !entity.IsSuppressed() {
			if err := p.entities.Suppress(ctx, batch.TenantID, ts.OrdID, ts.RemovalDate); err != nil {
				return nil, err
			}
			now := ts.RemovalDate
			entity.SuppressedAt = &now
			suppressed = append(suppressed, entity)
		}

		result.Suppressed++
		metrics.TombstonesProcessed.WithLabelValues(batch.TenantID, "suppress").Inc()
	}

	return suppressed, nil
}

// applyReinstatements cancels tombstones for ordIds this batch redescribes:
// republish wins.
func (p *Processor) applyReinstatements(ctx context.Context, batch *Batch, plan *tombstone.Plan, result *Result) ([]*models.GraphEntity, error) {
	var reinstated []*models.GraphEntity

	for _, ordID := range plan.Reinstate {
		if err := p.tombstones.Cancel(ctx, batch.TenantID, ordID); err != nil {
			return nil, err
		}
		if err := p.entities.Reinstate(ctx, batch.TenantID, ordID); err != nil {
			return nil, err
		}

		entity, err := p.entities.GetByOrdID(ctx, batch.TenantID, ordID)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			reinstated = append(reinstated, entity)
		}

		result.Reinstated++
		metrics.TombstonesProcessed.WithLabelValues(batch.TenantID, "reinstate").Inc()
	}

	return reinstated, nil
}

// reresolveDangling clears dangling references on previously stored entities
// that this batch's ordIds now satisfy.
func (p *Processor) reresolveDangling(ctx context.Context, tenantID string, docs []*models.Document) error {
	targets := resolver.ResolvableTargets(docs)
	if len(targets) == 0 {
		return nil
	}
	supplied := make(map[string]bool, len(targets))
	for _, t := range targets {
		supplied[t] = true
	}

	pending, err := p.entities.FindByUnresolvedTarget(ctx, tenantID, targets)
	if err != nil {
		return err
	}

	for i := range pending {
		entity := &pending[i]
		var dangling []models.DanglingReference
		if err := json.Unmarshal(entity.Unresolved, &dangling); err != nil {
			continue
		}
		remaining, resolved := resolver.Reresolve(dangling, supplied)
		if !resolved {
			continue
		}
		if err := p.entities.UpdateUnresolved(ctx, tenantID, entity.OrdID, remaining); err != nil {
			return err
		}
	}

	return nil
}

// Validate parses and checks documents without writing anything. The
// reference check still consults the tenant's merged graph.
func (p *Processor) Validate(ctx context.Context, tenantID string, documents [][]byte) (models.Issues, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Processor.Validate")
	defer span.End()

	var issues models.Issues
	var docs []*models.Document
	for _, raw := range documents {
		doc, parseIssues := p.parser.Parse(ctx, raw)
		issues = append(issues, parseIssues...)
		if doc != nil {
			docs = append(docs, doc)
		}
	}

	known, err := p.entities.KnownOrdIDs(ctx, tenantID, resolver.ReferenceTargets(docs))
	if err != nil {
		return nil, err
	}
	resolution := p.resolver.Resolve(ctx, docs, known)
	issues = append(issues, resolution.Issues...)

	for _, doc := range docs {
		issues = append(issues, p.enforcer.CheckDocument(doc)...)
	}

	return issues, nil
}

// PurgeExpired physically removes suppressed entities whose tombstone grace
// window has elapsed. Each purge runs in its own transaction.
func (p *Processor) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Processor.PurgeExpired")
	defer span.End()

	eligible, err := p.tombstones.ListPurgeEligible(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	purged := 0
	for i := range eligible {
		record := &eligible[i]
		if !tombstone.PurgeEligible(record, now) {
			continue
		}

		entity, err := p.entities.GetByOrdID(ctx, record.TenantID, record.OrdID)
		if err != nil {
			return purged, err
		}

		ctxTx, tx, err := p.db.GetTx(ctx, &sql.TxOptions{})
		if err != nil {
			return purged, err
		}

		if err := p.purgeOne(ctxTx, record); err != nil {
			tx.Rollback(ctx)
			return purged, err
		}
		if err := tx.Commit(ctxTx); err != nil {
			return purged, err
		}

		kind := ""
		if entity != nil {
			kind = entity.Kind
		}
		p.emitter.EmitEntityPurged(ctx, record.TenantID, record.OrdID, kind)
		metrics.TombstonesProcessed.WithLabelValues(record.TenantID, "purge").Inc()
		purged++
	}

	return purged, nil
}

func (p *Processor) purgeOne(ctx context.Context, record *models.TombstoneRecord) error {
	if err := p.entities.Purge(ctx, record.TenantID, record.OrdID); err != nil {
		return err
	}
	return p.tombstones.Delete(ctx, record.TenantID, record.OrdID)
}

func (p *Processor) recordMetrics(batch *Batch, result *Result, resolution *resolver.Result) {
	for _, issue := range result.Issues {
		metrics.RecordValidationIssue(batch.ProviderID, string(issue.Kind), string(issue.Severity))
	}
	open := 0
	for _, refs := range resolution.Dangling {
		open += len(refs)
	}
	metrics.DanglingReferences.WithLabelValues(batch.ProviderID).Set(float64(open))
}

func entityToMap(entity models.Entity) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func packageOrdID(declared map[string]any) *string {
	if v, ok := declared["partOfPackage"].(string); ok && v != "" {
		return &v
	}
	return nil
}

func stringField(data map[string]any, field, fallback string) string {
	if v, ok := data[field].(string); ok && v != "" {
		return v
	}
	return fallback
}

// hasStructuralError reports whether the entity failed schema validation.
// Such entities are skipped for the batch; their previous graph state stays.
func hasStructuralError(issues models.Issues, ordID string) bool {
	for _, issue := range issues {
		if issue.OrdID == ordID && issue.Kind == models.IssueStructural && issue.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

func danglingChanged(stored json.RawMessage, current []models.DanglingReference) bool {
	var prior []models.DanglingReference
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &prior); err != nil {
			return true
		}
	}
	if len(prior) != len(current) {
		return true
	}
	for i := range prior {
		if prior[i] != current[i] {
			return true
		}
	}
	return false
}
