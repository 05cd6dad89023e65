// Package events handles event emission for graph lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Event types carried in the event_type header.
const (
	EventEntityCreated    = "entity.created"
	EventEntityMerged     = "entity.merged"
	EventEntitySuppressed = "entity.suppressed"
	EventEntityReinstated = "entity.reinstated"
	EventEntityPurged     = "entity.purged"
	EventProviderCrawled  = "provider.crawled"
	EventProviderStale    = "provider.stale"
)

// Emitter publishes graph change events after batch commits. A nil producer
// disables emission, which tests and single-node deployments use.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityChanges publishes one event per entity written in a batch.
// Failures are logged and swallowed: the batch is already committed and the
// next crawl republishes current state.
func (e *Emitter) EmitEntityChanges(ctx context.Context, created, merged []*models.GraphEntity) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityChanges")
	defer span.End()

	if e.producer == nil {
		return
	}

	events := make([]*kafka.GraphEvent, 0, len(created)+len(merged))
	for _, entity := range created {
		events = append(events, graphEvent(EventEntityCreated, entity))
	}
	for _, entity := range merged {
		events = append(events, graphEvent(EventEntityMerged, entity))
	}

	if err := e.producer.PublishGraphEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity change events")
	}
}

// EmitEntitySuppressed publishes a tombstone suppression event.
func (e *Emitter) EmitEntitySuppressed(ctx context.Context, entity *models.GraphEntity) {
	e.emitOne(ctx, EventEntitySuppressed, entity)
}

// EmitEntityReinstated publishes the reappearance of a suppressed entity.
func (e *Emitter) EmitEntityReinstated(ctx context.Context, entity *models.GraphEntity) {
	e.emitOne(ctx, EventEntityReinstated, entity)
}

// EmitEntityPurged publishes the removal of an entity after the grace window.
func (e *Emitter) EmitEntityPurged(ctx context.Context, tenantID, ordID, kind string) {
	if e.producer == nil {
		return
	}

	event := &kafka.GraphEvent{
		EventType: EventEntityPurged,
		TenantID:  tenantID,
		OrdID:     ordID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}

	if err := e.producer.PublishGraphEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.purged event")
	}
}

// EmitCrawlFinished publishes a provider.crawled event with batch counts.
func (e *Emitter) EmitCrawlFinished(ctx context.Context, tenantID, providerID, crawlID string, documents, entities, errCount int) {
	if e.producer == nil {
		return
	}

	event := &kafka.CrawlEvent{
		EventType:  EventProviderCrawled,
		TenantID:   tenantID,
		ProviderID: providerID,
		CrawlID:    crawlID,
		Documents:  documents,
		Entities:   entities,
		Errors:     errCount,
	}

	if err := e.producer.PublishCrawlEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit provider.crawled event")
	}
}

// EmitProviderStale publishes that a provider's entities were marked stale
// after repeated fetch failures.
func (e *Emitter) EmitProviderStale(ctx context.Context, tenantID, providerID string) {
	if e.producer == nil {
		return
	}

	event := &kafka.CrawlEvent{
		EventType:  EventProviderStale,
		TenantID:   tenantID,
		ProviderID: providerID,
	}

	if err := e.producer.PublishCrawlEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit provider.stale event")
	}
}

func (e *Emitter) emitOne(ctx context.Context, eventType string, entity *models.GraphEntity) {
	if e.producer == nil {
		return
	}

	if err := e.producer.PublishGraphEvent(ctx, graphEvent(eventType, entity)); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
	}
}

func graphEvent(eventType string, entity *models.GraphEntity) *kafka.GraphEvent {
	var data json.RawMessage
	if eventType == EventEntityCreated || eventType == EventEntityMerged {
		data = entity.Effective
	}

	return &kafka.GraphEvent{
		EventType: eventType,
		TenantID:  entity.TenantID,
		OrdID:     entity.OrdID,
		Kind:      entity.Kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
