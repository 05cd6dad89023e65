package merging

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// FieldClass determines how one field is reconciled when several sources
// describe the same entity.
type FieldClass int

const (
	// ClassScalar resolves by last writer wins on lastUpdate.
	ClassScalar FieldClass = iota
	// ClassIdentity must match exactly across sources; a mismatch is fatal.
	ClassIdentity
	// ClassSetUnion unions list values, deduplicated.
	ClassSetUnion
	// ClassLabelUnion unions label maps key-wise.
	ClassLabelUnion
)

// fieldClasses maps entity fields to their merge class. Reference edge lists
// share ClassSetUnion: an edge is never dropped by a later document, only a
// tombstone removes it. Fields not listed are scalars.
var fieldClasses = map[string]FieldClass{
	"ordId":       ClassIdentity,
	"apiProtocol": ClassIdentity,

	"tags":                           ClassSetUnion,
	"countries":                      ClassSetUnion,
	"lineOfBusiness":                 ClassSetUnion,
	"industry":                       ClassSetUnion,
	"partOfProducts":                 ClassSetUnion,
	"successors":                     ClassSetUnion,
	"entryPoints":                    ClassSetUnion,
	"changelogEntries":               ClassSetUnion,
	"partOfConsumptionBundles":       ClassSetUnion,
	"entityTypeMappings":             ClassSetUnion,
	"supportedUseCases":              ClassSetUnion,
	"relatedIntegrationDependencies": ClassSetUnion,

	"labels":              ClassLabelUnion,
	"documentationLabels": ClassLabelUnion,
}

func classOf(field string) FieldClass {
	if class, ok := fieldClasses[field]; ok {
		return class
	}
	return ClassScalar
}

// fieldValue is one source's value for a field together with the recency and
// provenance used to resolve scalar conflicts.
type fieldValue struct {
	Value      any
	LastUpdate time.Time
	ProviderID string
}

// FieldMerger reconciles individual fields by class.
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeField reconciles the existing and incoming values for one field.
// Both operations are idempotent: merging the same value again returns the
// stored value and no conflict.
func (m *FieldMerger) MergeField(ordID, field string, existing, incoming fieldValue) (any, *models.MergeConflict) {
	if existing.Value == nil {
		return incoming.Value, nil
	}
	if incoming.Value == nil {
		return existing.Value, nil
	}
	if jsonEqual(existing.Value, incoming.Value) {
		return existing.Value, nil
	}

	switch classOf(field) {
	case ClassIdentity:
		// Retain the prior state; the caller flags the entity.
		return existing.Value, &models.MergeConflict{
			OrdID:      ordID,
			Field:      field,
			Values:     []any{existing.Value, incoming.Value},
			Providers:  []string{existing.ProviderID, incoming.ProviderID},
			Resolution: "retained_existing",
			Fatal:      true,
		}

	case ClassSetUnion:
		return m.unionLists(existing.Value, incoming.Value), nil

	case ClassLabelUnion:
		return m.unionLabels(existing.Value, incoming.Value), nil

	default:
		winner := existing
		if incoming.LastUpdate.After(existing.LastUpdate) {
			winner = incoming
		}
		return winner.Value, &models.MergeConflict{
			OrdID:      ordID,
			Field:      field,
			Values:     []any{existing.Value, incoming.Value},
			Providers:  []string{existing.ProviderID, incoming.ProviderID},
			Resolution: "last_write_wins",
		}
	}
}

// unionLists unions two JSON lists preserving first-seen order and dropping
// duplicates by canonical JSON encoding.
func (m *FieldMerger) unionLists(a, b any) []any {
	result := make([]any, 0)
	seen := make(map[string]bool)

	for _, list := range []any{a, b} {
		items, ok := list.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			key := canonical(item)
			if !seen[key] {
				seen[key] = true
				result = append(result, item)
			}
		}
	}

	return result
}

// unionLabels unions two label maps key-wise, deduplicating each key's value
// list. String values are sorted so the result is deterministic regardless of
// merge order.
func (m *FieldMerger) unionLabels(a, b any) map[string]any {
	result := make(map[string]any)

	for _, labels := range []any{a, b} {
		entries, ok := labels.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range entries {
			existing, _ := result[key]
			merged := m.unionLists(existing, value)

			sort.Slice(merged, func(i, j int) bool {
				si, iok := merged[i].(string)
				sj, jok := merged[j].(string)
				if iok && jok {
					return si < sj
				}
				return canonical(merged[i]) < canonical(merged[j])
			})
			result[key] = merged
		}
	}

	return result
}

func jsonEqual(a, b any) bool {
	return canonical(a) == canonical(b)
}

// canonical returns a comparable encoding. json.Marshal writes map keys in
// sorted order, so structurally equal values encode identically.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
