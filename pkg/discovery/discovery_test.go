package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestService() *Service {
	return NewService(httpclient.NewClient(httpclient.DefaultConfig(), noopLogger()), noopLogger())
}

func TestDocumentDescriptor_Open(t *testing.T) {
	tests := []struct {
		name       string
		descriptor DocumentDescriptor
		want       bool
	}{
		{
			name:       "no strategies defaults to open",
			descriptor: DocumentDescriptor{URL: "/ord/documents/1"},
			want:       true,
		},
		{
			name: "open strategy",
			descriptor: DocumentDescriptor{
				URL:              "/ord/documents/1",
				AccessStrategies: []AccessStrategy{{Type: AccessStrategyOpen}},
			},
			want: true,
		},
		{
			name: "open among custom strategies",
			descriptor: DocumentDescriptor{
				URL: "/ord/documents/1",
				AccessStrategies: []AccessStrategy{
					{Type: "custom", CustomType: "acme:oauth:v1"},
					{Type: AccessStrategyOpen},
				},
			},
			want: true,
		},
		{
			name: "custom only",
			descriptor: DocumentDescriptor{
				URL:              "/ord/documents/1",
				AccessStrategies: []AccessStrategy{{Type: "custom", CustomType: "acme:oauth:v1"}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.descriptor.Open())
		})
	}
}

func TestFetchConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/open-resource-discovery", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"openResourceDiscoveryV1": {
				"documents": [
					{"url": "/ord/documents/1"},
					{"url": "/ord/documents/2", "accessStrategies": [{"type": "open"}]}
				]
			}
		}`))
	}))
	defer server.Close()

	svc := newTestService()
	provider := &models.Provider{ID: "prov-1", BaseURL: server.URL}

	cfg, err := svc.FetchConfiguration(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, cfg.OpenResourceDiscoveryV1.Documents, 2)
	assert.Equal(t, "/ord/documents/1", cfg.OpenResourceDiscoveryV1.Documents[0].URL)
}

func TestFetchConfiguration_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := newTestService()
	provider := &models.Provider{ID: "prov-1", BaseURL: server.URL}

	_, err := svc.FetchConfiguration(context.Background(), provider)
	assert.Error(t, err)
}

func TestDocumentURLs(t *testing.T) {
	svc := newTestService()
	provider := &models.Provider{ID: "prov-1", BaseURL: "https://acme.example.com"}

	cfg := &WellKnownConfig{}
	cfg.OpenResourceDiscoveryV1.Documents = []DocumentDescriptor{
		{URL: "/ord/documents/1"},
		{URL: "https://cdn.example.com/ord/documents/2"},
		{URL: "/ord/documents/1"},
		{URL: "/ord/secret", AccessStrategies: []AccessStrategy{{Type: "custom"}}},
		{URL: ""},
	}

	urls := svc.DocumentURLs(context.Background(), provider, cfg)
	assert.Equal(t, []string{
		"https://acme.example.com/ord/documents/1",
		"https://cdn.example.com/ord/documents/2",
	}, urls)
}

func TestDocumentURLs_ConfigBaseURLWins(t *testing.T) {
	svc := newTestService()
	provider := &models.Provider{ID: "prov-1", BaseURL: "https://acme.example.com"}

	cfg := &WellKnownConfig{BaseURL: "https://api.acme.example.com"}
	cfg.OpenResourceDiscoveryV1.Documents = []DocumentDescriptor{{URL: "/ord/documents/1"}}

	urls := svc.DocumentURLs(context.Background(), provider, cfg)
	assert.Equal(t, []string{"https://api.acme.example.com/ord/documents/1"}, urls)
}

func TestFetchDocument_Conditional(t *testing.T) {
	lastUpdate := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v42"` {
			assert.Equal(t, lastUpdate.Format(http.TimeFormat), r.Header.Get("If-Modified-Since"))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v42"`)
		w.Write([]byte(`{"openResourceDiscovery": "1.9"}`))
	}))
	defer server.Close()

	svc := newTestService()

	resp, err := svc.FetchDocument(context.Background(), server.URL+"/ord/documents/1", nil)
	require.NoError(t, err)
	assert.False(t, resp.NotModified())
	assert.Equal(t, `"v42"`, resp.ETag)
	assert.NotEmpty(t, resp.Body)

	cached := &models.CrawlDocument{ETag: `"v42"`, LastUpdate: &lastUpdate}
	resp, err = svc.FetchDocument(context.Background(), server.URL+"/ord/documents/1", cached)
	require.NoError(t, err)
	assert.True(t, resp.NotModified())
	assert.Empty(t, resp.Body)
}

func TestFetchDocument_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestService()

	_, err := svc.FetchDocument(context.Background(), server.URL+"/ord/documents/1", nil)
	assert.Error(t, err)
}
