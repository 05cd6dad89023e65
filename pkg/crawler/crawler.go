// Package crawler schedules and runs provider crawls. Each crawl fetches the
// provider's advertised documents (conditionally where fetch state exists)
// and hands the batch to the aggregation pipeline. A distributed lock keeps
// concurrent aggregator instances from crawling the same provider twice.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	providerrepo "github.com/Ramsey-B/fern/internal/repositories/provider"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/discovery"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config controls crawl scheduling and retry behavior.
type Config struct {
	IntervalSeconds    int `env:"CRAWL_INTERVAL_SECONDS" default:"300"`
	Concurrency        int `env:"CRAWL_CONCURRENCY" default:"4"`
	FetchRetries       int `env:"CRAWL_FETCH_RETRIES" default:"3"`
	StaleThreshold     int `env:"CRAWL_STALE_THRESHOLD" default:"3"`
	LockTTLSeconds     int `env:"CRAWL_LOCK_TTL_SECONDS" default:"600"`
	PurgeBatchSize     int `env:"TOMBSTONE_PURGE_BATCH_SIZE" default:"100"`
	MinIntervalSeconds int `env:"CRAWL_MIN_INTERVAL_SECONDS" default:"60"`
}

// Crawler runs the crawl loop.
type Crawler struct {
	cfg       Config
	logger    ectologger.Logger
	providers *providerrepo.Repository
	entities  *graphentity.Repository
	discovery *discovery.Service
	processor *pipeline.Processor
	locker    *redis.Locker
	emitter   *events.Emitter

	cancel context.CancelFunc
	done   chan struct{}
}

func NewCrawler(
	cfg Config,
	logger ectologger.Logger,
	providers *providerrepo.Repository,
	entities *graphentity.Repository,
	discoverySvc *discovery.Service,
	processor *pipeline.Processor,
	locker *redis.Locker,
	emitter *events.Emitter,
) *Crawler {
	return &Crawler{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
		entities:  entities,
		discovery: discoverySvc,
		processor: processor,
		locker:    locker,
		emitter:   emitter,
	}
}

// GetName implements startup.StartupDependency.
func (c *Crawler) GetName() string { return "crawler" }

// DependsOn implements startup.StartupDependency.
func (c *Crawler) DependsOn() []string { return []string{"database", "redis"} }

// Start launches the poll loop.
func (c *Crawler) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(loopCtx)
	return nil
}

// Stop halts the poll loop and waits for in-flight crawls to finish.
func (c *Crawler) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Crawler) run(ctx context.Context) {
	defer close(c.done)

	interval := time.Duration(c.cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// An immediate first tick so a fresh deployment does not idle a full
	// interval before its first crawl.
	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick crawls every due provider once and purges expired tombstones.
func (c *Crawler) Tick(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "crawler.Crawler.Tick")
	defer span.End()

	providers, err := c.providers.ListEnabled(ctx)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("failed to list providers for crawl tick")
		return
	}

	minInterval := time.Duration(c.cfg.MinIntervalSeconds) * time.Second
	now := time.Now().UTC()

	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := range providers {
		p := providers[i]
		if p.LastCrawlAt != nil && now.Sub(*p.LastCrawlAt) < minInterval {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.CrawlProvider(ctx, &p)
		}()
	}
	wg.Wait()

	if purged, err := c.processor.PurgeExpired(ctx, now, c.cfg.PurgeBatchSize); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("tombstone purge failed")
	} else if purged > 0 {
		c.logger.WithContext(ctx).WithField("purged", purged).Info("Purged expired tombstones")
	}
}

// CrawlProvider crawls one provider under its distributed lock. A held lock
// means another instance is already crawling it; that is not an error.
func (c *Crawler) CrawlProvider(ctx context.Context, p *models.Provider) {
	ctx, span := tracing.StartSpan(ctx, "crawler.Crawler.CrawlProvider")
	defer span.End()

	ttl := time.Duration(c.cfg.LockTTLSeconds) * time.Second
	err := c.locker.WithLock(ctx, "crawl:"+p.ID, ttl, func() error {
		return c.crawl(ctx, p)
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		c.logger.WithContext(ctx).WithField("provider_id", p.ID).Debug("Provider crawl already in progress elsewhere")
		return
	}
	if err != nil {
		c.handleFailure(ctx, p, err)
	}
}

func (c *Crawler) crawl(ctx context.Context, p *models.Provider) error {
	crawlID := uuid.NewString()
	ctx = appctx.SetProviderID(ctx, p.ID)
	ctx = appctx.SetCrawlID(ctx, crawlID)

	started := time.Now()
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   p.TenantID,
		"provider_id": p.ID,
		"crawl_id":    crawlID,
	})

	metrics.CrawlsInFlight.Inc()
	defer metrics.CrawlsInFlight.Dec()

	cfg, err := c.discovery.FetchConfiguration(ctx, p)
	if err != nil {
		return err
	}
	urls := c.discovery.DocumentURLs(ctx, p, cfg)

	cached, err := c.providers.GetCrawlDocuments(ctx, p.ID)
	if err != nil {
		return err
	}

	fetched, anyChanged, err := c.fetchDocuments(ctx, p, urls, cached)
	if err != nil {
		return err
	}

	if !anyChanged && len(fetched) > 0 {
		log.Info("All documents unchanged, skipping batch")
		if _, err := c.providers.RecordCrawl(ctx, p.ID, time.Now().UTC(), true); err != nil {
			return err
		}
		metrics.RecordCrawl(p.TenantID, p.ID, "unchanged", time.Since(started).Seconds())
		return nil
	}

	batch := &pipeline.Batch{
		TenantID:   p.TenantID,
		ProviderID: p.ID,
		CrawlID:    crawlID,
		CrawledAt:  time.Now().UTC(),
	}
	for _, doc := range fetched {
		batch.Documents = append(batch.Documents, doc.body)
	}

	result, err := c.processor.Process(ctx, batch)
	if err != nil {
		return err
	}

	for _, doc := range fetched {
		now := time.Now().UTC()
		state := &models.CrawlDocument{
			ProviderID:    p.ID,
			URL:           doc.url,
			ETag:          doc.etag,
			LastUpdate:    doc.lastModified,
			LastFetchedAt: &now,
		}
		if err := c.providers.UpsertCrawlDocument(ctx, state); err != nil {
			return err
		}
	}
	if err := c.providers.PruneCrawlDocuments(ctx, p.ID, urls); err != nil {
		return err
	}

	if _, err := c.providers.RecordCrawl(ctx, p.ID, time.Now().UTC(), true); err != nil {
		return err
	}
	if p.Stale {
		if _, err := c.entities.SetStaleByProvider(ctx, p.TenantID, p.ID, false); err != nil {
			return err
		}
	}

	errCount := 0
	for _, issue := range result.Issues {
		if issue.Severity == models.SeverityError {
			errCount++
		}
	}
	c.emitter.EmitCrawlFinished(ctx, p.TenantID, p.ID, crawlID, result.Documents, result.Entities, errCount)
	metrics.RecordCrawl(p.TenantID, p.ID, "success", time.Since(started).Seconds())

	log.WithFields(map[string]any{
		"documents": result.Documents,
		"entities":  result.Entities,
		"issues":    len(result.Issues),
	}).Info("Crawl finished")
	return nil
}

type fetchedDocument struct {
	url          string
	etag         string
	lastModified *time.Time
	body         []byte
}

// fetchDocuments retrieves every advertised document. The first pass is
// conditional; when anything changed, documents answered with 304 are
// refetched in full because the pipeline needs the complete batch.
func (c *Crawler) fetchDocuments(ctx context.Context, p *models.Provider, urls []string, cached map[string]models.CrawlDocument) ([]fetchedDocument, bool, error) {
	var fetched []fetchedDocument
	anyChanged := false

	for _, docURL := range urls {
		var state *models.CrawlDocument
		if prior, ok := cached[docURL]; ok {
			state = &prior
		}

		resp, err := c.fetchWithRetry(ctx, docURL, state)
		if err != nil {
			metrics.RecordDocumentFetch(p.ID, "error")
			return nil, false, err
		}

		if resp.NotModified() {
			metrics.RecordDocumentFetch(p.ID, "not_modified")
			fetched = append(fetched, fetchedDocument{url: docURL, etag: state.ETag, lastModified: state.LastUpdate})
			continue
		}

		metrics.RecordDocumentFetch(p.ID, "fetched")
		anyChanged = true
		fetched = append(fetched, fetchedDocument{url: docURL, etag: resp.ETag, lastModified: parseLastModified(resp.LastModified), body: resp.Body})
	}

	if !anyChanged {
		return fetched, false, nil
	}

	// Refill the bodies of unchanged documents.
	for i := range fetched {
		if fetched[i].body != nil {
			continue
		}
		resp, err := c.fetchWithRetry(ctx, fetched[i].url, nil)
		if err != nil {
			return nil, false, err
		}
		fetched[i].etag = resp.ETag
		fetched[i].lastModified = parseLastModified(resp.LastModified)
		fetched[i].body = resp.Body
	}

	return fetched, true, nil
}

// fetchWithRetry fetches one document with exponential backoff on transient
// failures.
func (c *Crawler) fetchWithRetry(ctx context.Context, docURL string, cached *models.CrawlDocument) (*httpclient.Response, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.FetchRetries)), ctx)

	var resp *httpclient.Response
	operation := func() error {
		r, err := c.discovery.FetchDocument(ctx, docURL, cached)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("document fetch exhausted retries: %w", err)
	}
	return resp, nil
}

// handleFailure records a failed crawl and marks the provider and its
// contributions stale once the failure threshold is crossed.
func (c *Crawler) handleFailure(ctx context.Context, p *models.Provider, crawlErr error) {
	log := c.logger.WithContext(ctx).WithError(crawlErr).WithFields(map[string]any{
		"tenant_id":   p.TenantID,
		"provider_id": p.ID,
	})
	log.Error("Provider crawl failed")
	metrics.RecordCrawl(p.TenantID, p.ID, "failure", 0)

	updated, err := c.providers.RecordCrawl(ctx, p.ID, time.Now().UTC(), false)
	if err != nil {
		log.WithError(err).Error("failed to record crawl failure")
		return
	}

	if updated.FailureCount < c.cfg.StaleThreshold || updated.Stale {
		return
	}

	if err := c.providers.MarkStale(ctx, p.ID); err != nil {
		log.WithError(err).Error("failed to mark provider stale")
		return
	}
	if _, err := c.entities.SetStaleByProvider(ctx, p.TenantID, p.ID, true); err != nil {
		log.WithError(err).Error("failed to mark provider entities stale")
		return
	}
	c.emitter.EmitProviderStale(ctx, p.TenantID, p.ID)
	log.WithField("failure_count", updated.FailureCount).Warn("Provider marked stale")
}

func parseLastModified(value string) *time.Time {
	if value == "" {
		return nil
	}
	ts, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
