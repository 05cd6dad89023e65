package inherit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestApply_ListUnion(t *testing.T) {
	pkg := &models.Package{
		Tags:           []string{"a"},
		Countries:      []string{"de"},
		PartOfProducts: []string{"acme:product:shop:v1"},
	}
	res := &models.ResourceEntity{
		Tags:      []string{"b"},
		Countries: []string{"de", "fr"},
	}

	NewPropagator().Apply(res, pkg)

	assert.ElementsMatch(t, []string{"a", "b"}, res.Tags)
	assert.ElementsMatch(t, []string{"de", "fr"}, res.Countries)
	assert.Equal(t, []string{"acme:product:shop:v1"}, res.PartOfProducts)
}

func TestApply_LabelKeyWiseUnion(t *testing.T) {
	pkg := &models.Package{}
	pkg.Labels = models.Labels{"k": {"x"}, "only-pkg": {"p"}}
	res := &models.ResourceEntity{}
	res.Labels = models.Labels{"k": {"y", "x"}}

	NewPropagator().Apply(res, pkg)

	assert.ElementsMatch(t, []string{"x", "y"}, res.Labels["k"])
	assert.Equal(t, []string{"p"}, res.Labels["only-pkg"])
}

func TestApply_PolicyLevelOverrideReplaces(t *testing.T) {
	pkg := &models.Package{}
	pkg.PolicyLevel = "sap:core:v1"

	explicit := &models.ResourceEntity{PolicyLevel: "custom", CustomPolicyLevel: "acme:policy:v1"}
	NewPropagator().Apply(explicit, pkg)
	assert.Equal(t, "custom", explicit.PolicyLevel)
	assert.Equal(t, "acme:policy:v1", explicit.CustomPolicyLevel)

	inherited := &models.ResourceEntity{}
	NewPropagator().Apply(inherited, pkg)
	assert.Equal(t, "sap:core:v1", inherited.PolicyLevel)
}

func TestApply_NilPackageIsNoop(t *testing.T) {
	res := &models.ResourceEntity{Tags: []string{"a"}}
	NewPropagator().Apply(res, nil)
	assert.Equal(t, []string{"a"}, res.Tags)
}

func TestApply_Idempotent(t *testing.T) {
	pkg := &models.Package{Tags: []string{"a"}}
	pkg.Labels = models.Labels{"k": {"x"}}
	res := &models.ResourceEntity{Tags: []string{"b"}}
	res.Labels = models.Labels{"k": {"y"}}

	p := NewPropagator()
	p.Apply(res, pkg)
	first := *res
	p.Apply(res, pkg)

	assert.Equal(t, first.Tags, res.Tags)
	assert.Equal(t, first.Labels, res.Labels)
}

func TestApplyDocument_CrossDocumentPackage(t *testing.T) {
	pkgDoc := &models.Document{
		Packages: []models.Package{{
			BaseEntity: models.BaseEntity{OrdID: "acme.shop:package:orders:v1"},
			Tags:       []string{"commerce"},
		}},
	}
	resDoc := &models.Document{
		APIResources: []models.APIResource{{
			ResourceEntity: models.ResourceEntity{
				BaseEntity:    models.BaseEntity{OrdID: "acme.shop:apiResource:Orders:v1"},
				PartOfPackage: "acme.shop:package:orders:v1",
				Tags:          []string{"orders"},
			},
		}},
	}

	index := PackageIndex([]*models.Document{pkgDoc, resDoc})
	NewPropagator().ApplyDocument(resDoc, index)

	assert.ElementsMatch(t, []string{"commerce", "orders"}, resDoc.APIResources[0].Tags)
}
