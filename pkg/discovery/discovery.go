// Package discovery fetches a provider's well-known configuration and
// enumerates the document URLs it advertises.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AccessStrategyOpen is the only supported document access strategy.
// Documents exposed solely through custom or authenticated strategies are
// skipped with a warning.
const AccessStrategyOpen = "open"

// WellKnownConfig mirrors the provider's discovery endpoint payload.
type WellKnownConfig struct {
	BaseURL                 string `json:"baseUrl,omitempty"`
	OpenResourceDiscoveryV1 struct {
		Documents []DocumentDescriptor `json:"documents"`
	} `json:"openResourceDiscoveryV1"`
}

// DocumentDescriptor is one advertised document.
type DocumentDescriptor struct {
	URL                 string           `json:"url"`
	SystemInstanceAware bool             `json:"systemInstanceAware,omitempty"`
	AccessStrategies    []AccessStrategy `json:"accessStrategies,omitempty"`
}

// AccessStrategy declares how a document may be fetched.
type AccessStrategy struct {
	Type       string `json:"type"`
	CustomType string `json:"customType,omitempty"`
}

// Open reports whether the descriptor allows unauthenticated access. A
// descriptor with no strategies at all defaults to open.
func (d *DocumentDescriptor) Open() bool {
	if len(d.AccessStrategies) == 0 {
		return true
	}
	for _, s := range d.AccessStrategies {
		if s.Type == AccessStrategyOpen {
			return true
		}
	}
	return false
}

// Service discovers and fetches provider documents.
type Service struct {
	client *httpclient.Client
	logger ectologger.Logger
}

func NewService(client *httpclient.Client, logger ectologger.Logger) *Service {
	return &Service{
		client: client,
		logger: logger,
	}
}

// FetchConfiguration retrieves and decodes the provider's well-known
// configuration document.
func (s *Service) FetchConfiguration(ctx context.Context, provider *models.Provider) (*WellKnownConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "discovery.Service.FetchConfiguration")
	defer span.End()

	resp, err := s.client.Get(ctx, provider.WellKnownURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch well-known configuration: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httperror.NewHTTPErrorf(http.StatusBadGateway,
			"well-known endpoint returned %d for provider %s", resp.StatusCode, provider.ID)
	}

	var cfg WellKnownConfig
	if err := json.Unmarshal(resp.Body, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode well-known configuration: %w", err)
	}

	return &cfg, nil
}

// DocumentURLs resolves the advertised document URLs against the provider's
// base URL. Documents without an open access strategy are skipped.
func (s *Service) DocumentURLs(ctx context.Context, provider *models.Provider, cfg *WellKnownConfig) []string {
	base := cfg.BaseURL
	if base == "" {
		base = provider.BaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("provider_id", provider.ID).Warn("Invalid provider base url")
		baseURL = nil
	}

	urls := make([]string, 0, len(cfg.OpenResourceDiscoveryV1.Documents))
	seen := make(map[string]bool)
	for _, doc := range cfg.OpenResourceDiscoveryV1.Documents {
		if doc.URL == "" {
			continue
		}
		if !doc.Open() {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"provider_id": provider.ID,
				"url":         doc.URL,
			}).Warn("Skipping document without open access strategy")
			continue
		}

		resolved := doc.URL
		if baseURL != nil {
			if ref, err := url.Parse(doc.URL); err == nil {
				resolved = baseURL.ResolveReference(ref).String()
			}
		}
		if !seen[resolved] {
			seen[resolved] = true
			urls = append(urls, resolved)
		}
	}

	return urls
}

// FetchDocument fetches one document, conditionally when cached fetch state
// exists. A 304 answer returns a response with NotModified set and no body.
func (s *Service) FetchDocument(ctx context.Context, docURL string, cached *models.CrawlDocument) (*httpclient.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "discovery.Service.FetchDocument")
	defer span.End()

	etag := ""
	lastModified := ""
	if cached != nil {
		etag = cached.ETag
		if cached.LastUpdate != nil {
			lastModified = cached.LastUpdate.UTC().Format(http.TimeFormat)
		}
	}

	resp, err := s.client.GetConditional(ctx, docURL, etag, lastModified, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", docURL, err)
	}
	if resp.StatusCode != http.StatusOK && !resp.NotModified() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadGateway, "document %s returned %d", docURL, resp.StatusCode)
	}

	return resp, nil
}
