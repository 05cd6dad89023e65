package resolver

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func apiResource(ordID, pkg string) models.APIResource {
	return models.APIResource{
		ResourceEntity: models.ResourceEntity{
			BaseEntity:    models.BaseEntity{OrdID: ordID},
			PartOfPackage: pkg,
		},
	}
}

func TestResolve_ForwardReferenceWithinBatch(t *testing.T) {
	r := NewResolver(noopLogger())

	// Resource appears before the package it references, in a sibling doc.
	resDoc := &models.Document{
		APIResources: []models.APIResource{apiResource("acme.shop:apiResource:Orders:v1", "acme.shop:package:orders:v1")},
	}
	pkgDoc := &models.Document{
		Packages: []models.Package{{BaseEntity: models.BaseEntity{OrdID: "acme.shop:package:orders:v1"}}},
	}

	result := r.Resolve(context.Background(), []*models.Document{resDoc, pkgDoc}, nil)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Dangling)
}

func TestResolve_KnownGraphEntitySatisfiesReference(t *testing.T) {
	r := NewResolver(noopLogger())

	doc := &models.Document{
		APIResources: []models.APIResource{apiResource("acme.shop:apiResource:Orders:v1", "acme.shop:package:orders:v1")},
	}
	known := map[string]bool{"acme.shop:package:orders:v1": true}

	result := r.Resolve(context.Background(), []*models.Document{doc}, known)
	assert.Empty(t, result.Issues)
}

func TestResolve_MandatoryDanglingIsError(t *testing.T) {
	r := NewResolver(noopLogger())

	doc := &models.Document{
		APIResources: []models.APIResource{apiResource("acme.shop:apiResource:Orders:v1", "acme.shop:package:missing:v1")},
	}

	result := r.Resolve(context.Background(), []*models.Document{doc}, nil)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.IssueReference, result.Issues[0].Kind)
	assert.Equal(t, models.SeverityError, result.Issues[0].Severity)

	dangling := result.Dangling["acme.shop:apiResource:Orders:v1"]
	require.Len(t, dangling, 1)
	assert.True(t, dangling[0].Mandatory)
	assert.Equal(t, "acme.shop:package:missing:v1", dangling[0].Target)
}

func TestResolve_OptionalDanglingIsWarning(t *testing.T) {
	r := NewResolver(noopLogger())

	res := apiResource("acme.shop:apiResource:Orders:v1", "acme.shop:package:orders:v1")
	res.Successors = []string{"acme.shop:apiResource:Orders:v2"}
	doc := &models.Document{
		Packages:     []models.Package{{BaseEntity: models.BaseEntity{OrdID: "acme.shop:package:orders:v1"}}},
		APIResources: []models.APIResource{res},
	}

	result := r.Resolve(context.Background(), []*models.Document{doc}, nil)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.SeverityWarning, result.Issues[0].Severity)
	assert.False(t, result.Dangling["acme.shop:apiResource:Orders:v1"][0].Mandatory)
}

func TestReresolve(t *testing.T) {
	dangling := []models.DanglingReference{
		{Field: "partOfPackage", Target: "acme.shop:package:orders:v1", Mandatory: true},
		{Field: "successors[0]", Target: "acme.shop:apiResource:Orders:v2"},
	}

	remaining, resolved := Reresolve(dangling, map[string]bool{"acme.shop:package:orders:v1": true})
	assert.True(t, resolved)
	require.Len(t, remaining, 1)
	assert.Equal(t, "successors[0]", remaining[0].Field)

	remaining, resolved = Reresolve(remaining, map[string]bool{"unrelated:package:x:v1": true})
	assert.False(t, resolved)
	assert.Len(t, remaining, 1)
}

func TestResolvableTargets(t *testing.T) {
	doc := &models.Document{
		Packages:     []models.Package{{BaseEntity: models.BaseEntity{OrdID: "acme.shop:package:orders:v1"}}},
		APIResources: []models.APIResource{apiResource("acme.shop:apiResource:Orders:v1", "acme.shop:package:orders:v1")},
	}

	targets := ResolvableTargets([]*models.Document{doc})
	assert.ElementsMatch(t, []string{"acme.shop:package:orders:v1", "acme.shop:apiResource:Orders:v1"}, targets)
}
