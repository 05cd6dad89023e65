// Package inherit computes the effective view of package-contained resources:
// taxonomy and label attributes declared on the owning Package are pushed down
// onto each contained resource.
package inherit

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Propagator applies package-to-resource attribute inheritance. The
// computation is pure: it is re-run from the declared values whenever the
// owning package or the resource changes, never from a previous result.
type Propagator struct{}

// NewPropagator creates a new Propagator.
func NewPropagator() *Propagator {
	return &Propagator{}
}

// Apply computes a resource's effective fields from its owning package.
// List-valued fields (tags, countries, lineOfBusiness, industry,
// partOfProducts) union the package and resource declarations. Label maps
// union key-wise. Scalar-like fields (policyLevel) follow the override rule:
// a resource-level value replaces the package value entirely.
func (p *Propagator) Apply(res *models.ResourceEntity, pkg *models.Package) {
	if pkg == nil {
		return
	}

	res.Tags = models.UnionStrings(pkg.Tags, res.Tags)
	res.Countries = models.UnionStrings(pkg.Countries, res.Countries)
	res.LineOfBusiness = models.UnionStrings(pkg.LineOfBusiness, res.LineOfBusiness)
	res.Industry = models.UnionStrings(pkg.Industry, res.Industry)
	res.PartOfProducts = models.UnionStrings(pkg.PartOfProducts, res.PartOfProducts)

	res.Labels = pkg.Labels.Union(res.Labels)
	res.DocumentationLabels = pkg.DocumentationLabels.Union(res.DocumentationLabels)

	if res.PolicyLevel == "" {
		res.PolicyLevel = pkg.PolicyLevel
		res.CustomPolicyLevel = pkg.CustomPolicyLevel
	}
}

// ApplyDocument propagates package attributes to every resource in the
// document. Packages are looked up in the batch-wide index so a resource may
// inherit from a package published in a sibling document.
func (p *Propagator) ApplyDocument(doc *models.Document, packages map[string]*models.Package) {
	for i := range doc.APIResources {
		p.Apply(&doc.APIResources[i].ResourceEntity, packages[doc.APIResources[i].PartOfPackage])
	}
	for i := range doc.EventResources {
		p.Apply(&doc.EventResources[i].ResourceEntity, packages[doc.EventResources[i].PartOfPackage])
	}
	for i := range doc.EntityTypes {
		p.Apply(&doc.EntityTypes[i].ResourceEntity, packages[doc.EntityTypes[i].PartOfPackage])
	}
	for i := range doc.Capabilities {
		p.Apply(&doc.Capabilities[i].ResourceEntity, packages[doc.Capabilities[i].PartOfPackage])
	}
	for i := range doc.IntegrationDependencies {
		p.Apply(&doc.IntegrationDependencies[i].ResourceEntity, packages[doc.IntegrationDependencies[i].PartOfPackage])
	}
}

// PackageIndex builds the ORD ID to package index for a batch of documents.
func PackageIndex(docs []*models.Document) map[string]*models.Package {
	index := make(map[string]*models.Package)
	for _, doc := range docs {
		for i := range doc.Packages {
			index[doc.Packages[i].OrdID] = &doc.Packages[i]
		}
	}
	return index
}
