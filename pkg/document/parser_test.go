package document

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func validDocJSON() string {
	return `{
		"openResourceDiscovery": "1.9",
		"packages": [{
			"ordId": "acme.shop:package:orders:v1",
			"title": "Orders",
			"version": "1.2.0",
			"vendor": "acme:vendor:Acme:v1",
			"tags": ["commerce"]
		}],
		"apiResources": [{
			"ordId": "acme.shop:apiResource:OrderService:v1",
			"title": "Order Service",
			"version": "1.0.3",
			"releaseStatus": "active",
			"visibility": "public",
			"partOfPackage": "acme.shop:package:orders:v1",
			"apiProtocol": "rest",
			"entryPoints": ["/orders/v1"],
			"resourceDefinitions": [{
				"type": "openapi-v3",
				"mediaType": "application/json",
				"url": "/orders/v1/openapi.json",
				"accessStrategies": [{"type": "open"}]
			}]
		}]
	}`
}

func TestParse_ValidDocument(t *testing.T) {
	p := NewParser()

	doc, issues := p.Parse(context.Background(), []byte(validDocJSON()))
	require.NotNil(t, doc)
	assert.False(t, issues.HasErrors(), "unexpected issues: %v", issues)
	assert.Equal(t, "1.9", doc.OpenResourceDiscovery)
	assert.Len(t, doc.Entities(), 2)
}

func TestParse_UnsupportedSpecVersion(t *testing.T) {
	p := NewParser()

	doc, issues := p.Parse(context.Background(), []byte(`{"openResourceDiscovery": "2.0"}`))
	assert.Nil(t, doc)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueStructural, issues[0].Kind)
	assert.Contains(t, issues[0].Message, "unsupported spec version")
}

func TestParse_CollectsAllIssues(t *testing.T) {
	p := NewParser()

	// Three independent problems: missing title, missing partOfPackage,
	// missing access strategies.
	raw := `{
		"openResourceDiscovery": "1.9",
		"apiResources": [{
			"ordId": "acme.shop:apiResource:Bad:v1",
			"version": "1.0.0",
			"apiProtocol": "rest",
			"resourceDefinitions": [{
				"type": "openapi-v3",
				"mediaType": "application/json",
				"url": "/openapi.json",
				"accessStrategies": []
			}]
		}]
	}`

	doc, issues := p.Parse(context.Background(), []byte(raw))
	require.NotNil(t, doc)
	assert.True(t, issues.HasErrors())
	assert.GreaterOrEqual(t, len(issues), 3)
}

func TestParse_CustomTypeCompanionRule(t *testing.T) {
	tests := []struct {
		name        string
		apiProtocol string
		customProto string
		wantError   bool
	}{
		{name: "custom with companion", apiProtocol: "custom", customProto: "acme:protocol:v1", wantError: false},
		{name: "custom without companion", apiProtocol: "custom", customProto: "", wantError: true},
		{name: "non-custom with companion", apiProtocol: "rest", customProto: "acme:protocol:v1", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			raw := `{
				"openResourceDiscovery": "1.9",
				"apiResources": [{
					"ordId": "acme.shop:apiResource:OrderService:v1",
					"title": "Order Service",
					"version": "1.0.0",
					"partOfPackage": "acme.shop:package:orders:v1",
					"apiProtocol": "` + tt.apiProtocol + `",
					"customApiProtocol": "` + tt.customProto + `"
				}]
			}`
			_, issues := p.Parse(context.Background(), []byte(raw))
			assert.Equal(t, tt.wantError, issues.HasErrors(), "issues: %v", issues)
		})
	}
}

func TestParse_MajorVersionFragmentMismatch(t *testing.T) {
	p := NewParser()
	raw := `{
		"openResourceDiscovery": "1.9",
		"packages": [{
			"ordId": "acme.shop:package:orders:v1",
			"title": "Orders",
			"version": "2.0.0"
		}]
	}`

	_, issues := p.Parse(context.Background(), []byte(raw))
	require.True(t, issues.HasErrors())
	assert.Contains(t, issues[0].Message, "does not match version")
}

func TestParse_ProtocolGatedBySpecVersion(t *testing.T) {
	p := NewParser()
	raw := `{
		"openResourceDiscovery": "1.4",
		"apiResources": [{
			"ordId": "acme.shop:apiResource:Share:v1",
			"title": "Share",
			"version": "1.0.0",
			"partOfPackage": "acme.shop:package:orders:v1",
			"apiProtocol": "delta-sharing"
		}]
	}`

	_, issues := p.Parse(context.Background(), []byte(raw))
	assert.True(t, issues.HasErrors())
}

func TestParse_DefaultEntryPointMustBeOwnEntryPoint(t *testing.T) {
	p := NewParser()
	raw := `{
		"openResourceDiscovery": "1.9",
		"apiResources": [{
			"ordId": "acme.shop:apiResource:OrderService:v1",
			"title": "Order Service",
			"version": "1.0.0",
			"partOfPackage": "acme.shop:package:orders:v1",
			"apiProtocol": "rest",
			"entryPoints": ["/orders/v1"],
			"partOfConsumptionBundles": [{
				"ordId": "acme.shop:consumptionBundle:main:v1",
				"defaultEntryPoint": "/other/v9"
			}]
		}]
	}`

	_, issues := p.Parse(context.Background(), []byte(raw))
	require.True(t, issues.HasErrors())
	assert.Contains(t, issues[len(issues)-1].Message, "entryPoints")
}

func TestParse_TagCharacterClass(t *testing.T) {
	p := NewParser()
	raw := `{
		"openResourceDiscovery": "1.9",
		"packages": [{
			"ordId": "acme.shop:package:orders:v1",
			"title": "Orders",
			"version": "1.0.0",
			"tags": ["ok-tag_1.0/x", "bad!tag"]
		}]
	}`

	_, issues := p.Parse(context.Background(), []byte(raw))
	require.True(t, issues.HasErrors())
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Path, "tags[1]")
}

func TestParse_TitleLengthInCharacters(t *testing.T) {
	p := NewParser()
	doc := func(title string) string {
		return fmt.Sprintf(`{
			"openResourceDiscovery": "1.9",
			"packages": [{
				"ordId": "acme.shop:package:orders:v1",
				"title": %q,
				"version": "1.0.0"
			}]
		}`, title)
	}

	// 200 multibyte characters stay under the 255-character ceiling even
	// though they exceed 255 bytes.
	_, issues := p.Parse(context.Background(), []byte(doc(strings.Repeat("ü", 200))))
	assert.False(t, issues.HasErrors(), "unexpected issues: %v", issues)

	_, issues = p.Parse(context.Background(), []byte(doc(strings.Repeat("ü", 256))))
	require.True(t, issues.HasErrors())
	assert.Contains(t, issues[0].Message, "exceeds 255 characters")
}
