// Package resolver checks every cross-entity reference in a crawl batch
// against the batch's own entities plus the already-merged graph. Resolution
// is two-pass: all ordIds in the batch are registered first, then references
// are checked, so forward references within one batch never fail.
package resolver

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ordid"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Result is the outcome of resolving one batch. Unresolved references are
// retained per entity so a later batch that supplies the target resolves
// them without the entity being redescribed.
type Result struct {
	Issues models.Issues
	// Dangling maps an entity's ordId to its unresolved references.
	Dangling map[string][]models.DanglingReference
}

// Resolver resolves references for crawl batches.
type Resolver struct {
	logger ectologger.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(logger ectologger.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// reference is one outgoing reference of an entity.
type reference struct {
	field     string
	target    string
	mandatory bool
}

// Resolve checks all references in the batch. `known` holds the ordIds
// already present in the merged graph.
func (r *Resolver) Resolve(ctx context.Context, docs []*models.Document, known map[string]bool) *Result {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	// Pass 1: register every ordId the batch itself supplies.
	local := make(map[string]bool)
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			if entity.GetOrdID() != "" {
				local[entity.GetOrdID()] = true
			}
		}
	}

	result := &Result{Dangling: make(map[string][]models.DanglingReference)}

	// Pass 2: resolve.
	resolves := func(target string) bool {
		return local[target] || known[target]
	}

	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			for _, ref := range entityReferences(entity) {
				if ref.target == "" || resolves(ref.target) {
					continue
				}

				ordID := entity.GetOrdID()
				result.Dangling[ordID] = append(result.Dangling[ordID], models.DanglingReference{
					Field:     ref.field,
					Target:    ref.target,
					Mandatory: ref.mandatory,
				})

				result.Issues = append(result.Issues, models.ReferenceIssue(ordID, ref.field, ref.mandatory,
					"reference %q cannot be resolved", ref.target))
			}
		}
	}

	if len(result.Dangling) > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"entities_with_dangling": len(result.Dangling),
		}).Info("Batch has unresolved references")
	}

	return result
}

// ResolvableTargets returns the ordIds a batch supplies, used to requery
// previously dangling entities that these targets may now resolve.
func ResolvableTargets(docs []*models.Document) []string {
	targets := make([]string, 0)
	seen := make(map[string]bool)
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			id := entity.GetOrdID()
			if id != "" && !seen[id] {
				seen[id] = true
				targets = append(targets, id)
			}
		}
	}
	return targets
}

// ReferenceTargets returns every outgoing reference target in the batch,
// deduplicated, so callers can bound the graph lookup backing Resolve.
func ReferenceTargets(docs []*models.Document) []string {
	targets := make([]string, 0)
	seen := make(map[string]bool)
	for _, doc := range docs {
		for _, entity := range doc.Entities() {
			for _, ref := range entityReferences(entity) {
				if ref.target != "" && !seen[ref.target] {
					seen[ref.target] = true
					targets = append(targets, ref.target)
				}
			}
		}
	}
	return targets
}

// Reresolve drops the dangling references a new batch now satisfies.
// It returns the remaining references and whether any were resolved.
func Reresolve(dangling []models.DanglingReference, supplied map[string]bool) ([]models.DanglingReference, bool) {
	remaining := make([]models.DanglingReference, 0, len(dangling))
	resolved := false
	for _, ref := range dangling {
		if supplied[ref.Target] {
			resolved = true
			continue
		}
		remaining = append(remaining, ref)
	}
	return remaining, resolved
}

// entityReferences enumerates an entity's outgoing references. Vendor
// namespace references inside ordIds themselves are not edges and are not
// checked here.
func entityReferences(entity models.Entity) []reference {
	var refs []reference

	add := func(field, target string, mandatory bool) {
		if target == "" {
			return
		}
		// Malformed targets were already reported by the parser; skip them
		// so one bad reference is not reported twice.
		if !ordid.Valid(target) {
			return
		}
		refs = append(refs, reference{field: field, target: target, mandatory: mandatory})
	}
	addAll := func(field string, targets []string, mandatory bool) {
		for i, target := range targets {
			add(fmt.Sprintf("%s[%d]", field, i), target, mandatory)
		}
	}

	switch e := entity.(type) {
	case *models.Package:
		add("vendor", e.Vendor, false)
		addAll("partOfProducts", e.PartOfProducts, false)
		addAll("successors", e.Successors, false)
	case *models.Product:
		add("vendor", e.Vendor, true)
		addAll("successors", e.Successors, false)
	case *models.Vendor:
		addAll("successors", e.Successors, false)
	case *models.ConsumptionBundle:
		addAll("successors", e.Successors, false)
	case *models.APIResource:
		refs = append(refs, resourceReferences(&e.ResourceEntity)...)
		for i, mapping := range e.EntityTypeMappings {
			for j, target := range mapping.EntityTypeTargets {
				add(fmt.Sprintf("entityTypeMappings[%d].entityTypeTargets[%d]", i, j), target.OrdID, false)
			}
		}
	case *models.EventResource:
		refs = append(refs, resourceReferences(&e.ResourceEntity)...)
		for i, mapping := range e.EntityTypeMappings {
			for j, target := range mapping.EntityTypeTargets {
				add(fmt.Sprintf("entityTypeMappings[%d].entityTypeTargets[%d]", i, j), target.OrdID, false)
			}
		}
	case *models.EntityType:
		refs = append(refs, resourceReferences(&e.ResourceEntity)...)
		addAll("relatedEntityTypes", e.RelatedEntityTypes, false)
	case *models.Capability:
		refs = append(refs, resourceReferences(&e.ResourceEntity)...)
		addAll("relatedEntityTypes", e.RelatedEntityTypes, false)
	case *models.IntegrationDependency:
		refs = append(refs, resourceReferences(&e.ResourceEntity)...)
		addAll("relatedIntegrationDependencies", e.RelatedIntegrationDependencies, false)
		for i, aspect := range e.Aspects {
			for j, target := range aspect.EntityTypeTargets {
				add(fmt.Sprintf("aspects[%d].entityTypeTargets[%d]", i, j), target.OrdID, false)
			}
			addAll(fmt.Sprintf("aspects[%d].apiResources", i), aspect.APIResources, false)
			addAll(fmt.Sprintf("aspects[%d].eventResources", i), aspect.EventResources, false)
		}
	}

	return refs
}

// resourceReferences enumerates the references shared by all
// package-contained resources. partOfPackage is the only mandatory edge.
func resourceReferences(res *models.ResourceEntity) []reference {
	var refs []reference

	if res.PartOfPackage != "" && ordid.Valid(res.PartOfPackage) {
		refs = append(refs, reference{field: "partOfPackage", target: res.PartOfPackage, mandatory: true})
	}
	for i, target := range res.PartOfProducts {
		if ordid.Valid(target) {
			refs = append(refs, reference{field: fmt.Sprintf("partOfProducts[%d]", i), target: target})
		}
	}
	for i, bundle := range res.PartOfConsumptionBundles {
		if ordid.Valid(bundle.OrdID) {
			refs = append(refs, reference{field: fmt.Sprintf("partOfConsumptionBundles[%d].ordId", i), target: bundle.OrdID})
		}
	}
	for i, target := range res.Successors {
		if ordid.Valid(target) {
			refs = append(refs, reference{field: fmt.Sprintf("successors[%d]", i), target: target})
		}
	}

	return refs
}
