// Package merging reconciles entity descriptions from multiple documents and
// providers into the single authoritative graph record per ORD ID.
package merging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Contribution is one validated, inheritance-computed entity fragment about
// to be merged. Data is the effective entity document as generic JSON.
type Contribution struct {
	ProviderID   string
	OrdID        string
	Kind         string
	Version      string
	PackageOrdID *string
	// LastUpdate is the entity's declared lastUpdate, falling back to the
	// crawl timestamp when the document omits it.
	LastUpdate time.Time
	Data       map[string]any
	Unresolved []models.DanglingReference
}

// Outcome is the result of merging one contribution into the graph record.
type Outcome struct {
	Data      map[string]any
	Conflicts []models.MergeConflict
	// Fatal is set on an identity conflict. The prior state is retained and
	// the entity is flagged for operator review.
	Fatal bool
	// Changed reports whether the merged data differs from the stored data,
	// so unchanged re-merges skip the write.
	Changed bool
	IsNew   bool
}

// Engine handles entity merging.
type Engine struct {
	logger      ectologger.Logger
	fieldMerger *FieldMerger
}

// NewEngine creates a new merge engine
func NewEngine(logger ectologger.Logger) *Engine {
	return &Engine{
		logger:      logger,
		fieldMerger: NewFieldMerger(),
	}
}

// Merge reconciles an incoming contribution with the stored graph entity.
// A nil existing entity makes the contribution the initial record. Merging
// the same contribution twice yields the same outcome.
func (e *Engine) Merge(ctx context.Context, existing *models.GraphEntity, incoming *Contribution) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"ord_id":      incoming.OrdID,
		"kind":        incoming.Kind,
		"provider_id": incoming.ProviderID,
	})

	if existing == nil {
		log.Debug("Creating new graph entity")
		return &Outcome{
			Data:    incoming.Data,
			Changed: true,
			IsNew:   true,
		}, nil
	}

	// Two variants claiming the same ORD ID cannot be reconciled. Prior
	// state is retained and the entity is flagged.
	if existing.Kind != incoming.Kind {
		log.WithField("existing_kind", existing.Kind).Warn("Entity kind conflict")

		existingData, err := decodeData(existing.Data)
		if err != nil {
			return nil, err
		}

		return &Outcome{
			Data: existingData,
			Conflicts: []models.MergeConflict{{
				OrdID:      incoming.OrdID,
				Field:      "kind",
				Values:     []any{existing.Kind, incoming.Kind},
				Providers:  append(existing.ProviderIDs(), incoming.ProviderID),
				Resolution: "retained_existing",
				Fatal:      true,
			}},
			Fatal: true,
		}, nil
	}

	existingData, err := decodeData(existing.Data)
	if err != nil {
		return nil, err
	}

	merged, conflicts := e.mergeFields(incoming.OrdID, existingData, existing, incoming)

	outcome := &Outcome{
		Data:      merged,
		Conflicts: conflicts,
		Changed:   !jsonEqual(merged, existingData),
	}
	for _, conflict := range conflicts {
		if conflict.Fatal {
			outcome.Fatal = true
		}
	}

	if len(conflicts) > 0 {
		log.WithFields(map[string]any{
			"conflicts": len(conflicts),
			"fatal":     outcome.Fatal,
		}).Debug("Merged entity with conflicts")
	}

	return outcome, nil
}

// mergeFields reconciles the union of field names from both descriptions.
func (e *Engine) mergeFields(ordID string, existingData map[string]any, existing *models.GraphEntity, incoming *Contribution) (map[string]any, []models.MergeConflict) {
	existingUpdate := time.Time{}
	if existing.LastUpdate != nil {
		existingUpdate = *existing.LastUpdate
	}
	existingProvider := ""
	if ids := existing.ProviderIDs(); len(ids) > 0 {
		existingProvider = ids[len(ids)-1]
	}

	merged := make(map[string]any, len(existingData))
	var conflicts []models.MergeConflict

	for _, field := range fieldNames(existingData, incoming.Data) {
		value, conflict := e.fieldMerger.MergeField(ordID, field,
			fieldValue{Value: existingData[field], LastUpdate: existingUpdate, ProviderID: existingProvider},
			fieldValue{Value: incoming.Data[field], LastUpdate: incoming.LastUpdate, ProviderID: incoming.ProviderID},
		)
		if value != nil {
			merged[field] = value
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	return merged, conflicts
}

// MergeProviders returns the provider id list with the contributor added,
// preserving order and uniqueness.
func MergeProviders(existing []string, providerID string) []string {
	for _, id := range existing {
		if id == providerID {
			return existing
		}
	}
	return append(existing, providerID)
}

func decodeData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode stored entity data: %w", err)
	}
	return data, nil
}

// fieldNames returns the union of keys from both maps in a stable order.
func fieldNames(a, b map[string]any) []string {
	names := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for key := range a {
		names = append(names, key)
		seen[key] = true
	}
	for key := range b {
		if !seen[key] {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}
