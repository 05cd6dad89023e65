package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestHasStructuralError(t *testing.T) {
	issues := models.Issues{
		models.ValidationIssue{
			Kind:     models.IssueStructural,
			Severity: models.SeverityError,
			OrdID:    "acme.shop:apiResource:Orders:v1",
			Message:  "missing title",
		},
		models.ValidationIssue{
			Kind:     models.IssueReference,
			Severity: models.SeverityError,
			OrdID:    "acme.shop:apiResource:Returns:v1",
			Message:  "dangling mandatory reference",
		},
		models.ValidationIssue{
			Kind:     models.IssueLifecycle,
			Severity: models.SeverityWarning,
			OrdID:    "acme.shop:apiResource:Refunds:v1",
			Message:  "deprecated without successor",
		},
	}

	assert.True(t, hasStructuralError(issues, "acme.shop:apiResource:Orders:v1"))
	// Reference errors do not block the merge; the entity is stored with its
	// dangling list instead.
	assert.False(t, hasStructuralError(issues, "acme.shop:apiResource:Returns:v1"))
	assert.False(t, hasStructuralError(issues, "acme.shop:apiResource:Refunds:v1"))
	assert.False(t, hasStructuralError(issues, "acme.shop:apiResource:Unknown:v1"))
}

func TestDanglingChanged(t *testing.T) {
	ref := models.DanglingReference{
		Field:     "partOfPackage",
		Target:    "acme.shop:package:core:v1",
		Mandatory: true,
	}
	stored, err := json.Marshal([]models.DanglingReference{ref})
	require.NoError(t, err)

	assert.False(t, danglingChanged(stored, []models.DanglingReference{ref}))
	assert.True(t, danglingChanged(stored, nil))
	assert.True(t, danglingChanged(nil, []models.DanglingReference{ref}))
	assert.False(t, danglingChanged(nil, nil))

	other := ref
	other.Target = "acme.shop:package:extras:v1"
	assert.True(t, danglingChanged(stored, []models.DanglingReference{other}))

	assert.True(t, danglingChanged(json.RawMessage(`not json`), nil))
}

func TestPackageOrdID(t *testing.T) {
	got := packageOrdID(map[string]any{"partOfPackage": "acme.shop:package:core:v1"})
	require.NotNil(t, got)
	assert.Equal(t, "acme.shop:package:core:v1", *got)

	assert.Nil(t, packageOrdID(map[string]any{"partOfPackage": ""}))
	assert.Nil(t, packageOrdID(map[string]any{}))
	assert.Nil(t, packageOrdID(map[string]any{"partOfPackage": 42}))
}

func TestStringField(t *testing.T) {
	data := map[string]any{
		"version":       "2.1.0",
		"releaseStatus": "",
	}

	assert.Equal(t, "2.1.0", stringField(data, "version", "1.0.0"))
	assert.Equal(t, "active", stringField(data, "releaseStatus", "active"))
	assert.Equal(t, "fallback", stringField(data, "missing", "fallback"))
}

func TestEntityToMap_CapturesDeclaredFields(t *testing.T) {
	entity := &models.APIResource{
		ResourceEntity: models.ResourceEntity{
			BaseEntity: models.BaseEntity{
				OrdID: "acme.shop:apiResource:Orders:v1",
				Title: "Orders API",
			},
			PartOfPackage: "acme.shop:package:core:v1",
		},
	}

	declared, err := entityToMap(entity)
	require.NoError(t, err)
	assert.Equal(t, "acme.shop:apiResource:Orders:v1", declared["ordId"])
	assert.Equal(t, "Orders API", declared["title"])
	assert.Equal(t, "acme.shop:package:core:v1", declared["partOfPackage"])
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	database.DB
	txs []*fakeTx
}

func (d *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return ctx, tx, nil
}

// fakeEntityStore is an in-memory EntityStore for one tenant. It records the
// order of lock, read, and write calls.
type fakeEntityStore struct {
	entities  map[string]*models.GraphEntity
	calls     []string
	upsertErr map[string]error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		entities:  map[string]*models.GraphEntity{},
		upsertErr: map[string]error{},
	}
}

func (s *fakeEntityStore) LockEntity(_ context.Context, _, ordID string) error {
	s.calls = append(s.calls, "lock:"+ordID)
	return nil
}

func (s *fakeEntityStore) GetByOrdID(_ context.Context, _, ordID string) (*models.GraphEntity, error) {
	s.calls = append(s.calls, "get:"+ordID)
	entity, ok := s.entities[ordID]
	if !ok {
		return nil, nil
	}
	copied := *entity
	return &copied, nil
}

func (s *fakeEntityStore) KnownOrdIDs(_ context.Context, _ string, ordIDs []string) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, id := range ordIDs {
		if _, ok := s.entities[id]; ok {
			known[id] = true
		}
	}
	return known, nil
}

func (s *fakeEntityStore) ListOrdIDsByProvider(_ context.Context, _, providerID string) ([]string, error) {
	var ids []string
	for id, entity := range s.entities {
		for _, p := range entity.ProviderIDs() {
			if p == providerID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (s *fakeEntityStore) ListOrdIDsByPrefix(_ context.Context, _, prefix string) ([]string, error) {
	var ids []string
	for id := range s.entities {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeEntityStore) Upsert(_ context.Context, entity *models.GraphEntity) (*graphentity.UpsertResult, error) {
	s.calls = append(s.calls, "upsert:"+entity.OrdID)
	if err := s.upsertErr[entity.OrdID]; err != nil {
		return nil, err
	}
	_, existed := s.entities[entity.OrdID]
	copied := *entity
	s.entities[entity.OrdID] = &copied
	return &graphentity.UpsertResult{GraphEntity: copied, Inserted: !existed}, nil
}

func (s *fakeEntityStore) Suppress(_ context.Context, _, ordID string, at time.Time) error {
	if entity, ok := s.entities[ordID]; ok {
		entity.SuppressedAt = &at
	}
	return nil
}

func (s *fakeEntityStore) Reinstate(_ context.Context, _, ordID string) error {
	if entity, ok := s.entities[ordID]; ok {
		entity.SuppressedAt = nil
	}
	return nil
}

func (s *fakeEntityStore) FindByUnresolvedTarget(_ context.Context, _ string, targets []string) ([]models.GraphEntity, error) {
	var found []models.GraphEntity
	for _, entity := range s.entities {
		if len(entity.Unresolved) == 0 {
			continue
		}
		var refs []models.DanglingReference
		if err := json.Unmarshal(entity.Unresolved, &refs); err != nil {
			continue
		}
		matched := false
		for _, ref := range refs {
			for _, target := range targets {
				if ref.Target == target {
					matched = true
				}
			}
		}
		if matched {
			found = append(found, *entity)
		}
	}
	return found, nil
}

func (s *fakeEntityStore) UpdateUnresolved(_ context.Context, _, ordID string, refs []models.DanglingReference) error {
	entity, ok := s.entities[ordID]
	if !ok {
		return nil
	}
	if len(refs) == 0 {
		entity.Unresolved = nil
		return nil
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	entity.Unresolved = raw
	return nil
}

func (s *fakeEntityStore) Purge(_ context.Context, _, ordID string) error {
	delete(s.entities, ordID)
	return nil
}

type fakeTombstoneStore struct {
	active map[string]bool
}

func (s *fakeTombstoneStore) Upsert(_ context.Context, record *models.TombstoneRecord) (*models.TombstoneRecord, error) {
	if s.active == nil {
		s.active = map[string]bool{}
	}
	s.active[record.OrdID] = true
	return record, nil
}

func (s *fakeTombstoneStore) ActiveOrdIDs(context.Context, string) (map[string]bool, error) {
	return s.active, nil
}

func (s *fakeTombstoneStore) Cancel(_ context.Context, _, ordID string) error {
	delete(s.active, ordID)
	return nil
}

func (s *fakeTombstoneStore) ListPurgeEligible(context.Context, time.Time, int) ([]models.TombstoneRecord, error) {
	return nil, nil
}

func (s *fakeTombstoneStore) Delete(context.Context, string, string) error { return nil }

type fakeConflictStore struct {
	recorded []models.MergeConflict
}

func (s *fakeConflictStore) Record(_ context.Context, _ string, conflicts []models.MergeConflict) error {
	s.recorded = append(s.recorded, conflicts...)
	return nil
}

func (s *fakeConflictStore) ClearForOrdID(context.Context, string, string) error { return nil }

func newTestProcessor(store *fakeEntityStore) (*Processor, *fakeDB) {
	logger := noopLogger()
	db := &fakeDB{}
	processor := NewProcessor(db, logger, store, &fakeTombstoneStore{}, &fakeConflictStore{}, events.NewEmitter(nil, logger))
	return processor, db
}

func packageDoc(t *testing.T, ordID string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"openResourceDiscovery": "1.9",
		"packages": []map[string]any{{
			"ordId":   ordID,
			"title":   "Core",
			"version": "1.0.0",
		}},
	})
	require.NoError(t, err)
	return raw
}

func apiResourceDoc(t *testing.T, ordID, packageOrdID string, tags ...string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"openResourceDiscovery": "1.9",
		"apiResources": []map[string]any{{
			"ordId":         ordID,
			"title":         "Orders",
			"version":       "1.0.0",
			"apiProtocol":   "rest",
			"partOfPackage": packageOrdID,
			"tags":          tags,
		}},
	})
	require.NoError(t, err)
	return raw
}

func callIndex(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

const (
	testPackageID = "acme.shop:package:core:v1"
	testOrdersID  = "acme.shop:apiResource:Orders:v1"
	testReturnsID = "acme.shop:apiResource:Returns:v1"
)

func TestProcess_LocksEntityBeforeRead(t *testing.T) {
	store := newFakeEntityStore()
	processor, _ := newTestProcessor(store)

	batch := &Batch{
		TenantID:   "tenant-1",
		ProviderID: "provider-a",
		CrawlID:    "crawl-1",
		Documents: [][]byte{
			packageDoc(t, testPackageID),
			apiResourceDoc(t, testOrdersID, testPackageID, "orders"),
		},
		CrawledAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	result, err := processor.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Entities)

	for _, ordID := range []string{testPackageID, testOrdersID} {
		lock := callIndex(store.calls, "lock:"+ordID)
		read := callIndex(store.calls, "get:"+ordID)
		require.GreaterOrEqual(t, lock, 0, "no lock taken for %s", ordID)
		require.GreaterOrEqual(t, read, 0, "no read for %s", ordID)
		assert.Less(t, lock, read, "lock for %s must precede the snapshot read", ordID)
	}
}

func TestProcess_UnionsSetContributionsAcrossProviders(t *testing.T) {
	store := newFakeEntityStore()
	processor, _ := newTestProcessor(store)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	providers := []struct {
		id  string
		tag string
	}{
		{"provider-a", "a"},
		{"provider-b", "b"},
		{"provider-c", "c"},
	}
	for i, p := range providers {
		batch := &Batch{
			TenantID:   "tenant-1",
			ProviderID: p.id,
			CrawlID:    p.id + "-crawl",
			Documents: [][]byte{
				packageDoc(t, testPackageID),
				apiResourceDoc(t, testOrdersID, testPackageID, p.tag),
			},
			CrawledAt: base.Add(time.Duration(i) * time.Hour),
		}
		_, err := processor.Process(context.Background(), batch)
		require.NoError(t, err)
	}

	entity := store.entities[testOrdersID]
	require.NotNil(t, entity)

	var data map[string]any
	require.NoError(t, json.Unmarshal(entity.Data, &data))
	assert.ElementsMatch(t, []any{"a", "b", "c"}, data["tags"],
		"a later provider's merge must not drop an earlier provider's tag")
	assert.ElementsMatch(t, []string{"provider-a", "provider-b", "provider-c"}, entity.ProviderIDs())
}

func TestProcess_FailedBatchLeavesPriorStateIntact(t *testing.T) {
	store := newFakeEntityStore()
	processor, db := newTestProcessor(store)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := &Batch{
		TenantID:   "tenant-1",
		ProviderID: "provider-a",
		CrawlID:    "crawl-1",
		Documents: [][]byte{
			packageDoc(t, testPackageID),
			apiResourceDoc(t, testOrdersID, testPackageID, "orders"),
		},
		CrawledAt: base,
	}
	_, err := processor.Process(context.Background(), first)
	require.NoError(t, err)

	snapshot := string(store.entities[testOrdersID].Data)
	store.upsertErr[testReturnsID] = errors.New("connection reset by peer")

	second := &Batch{
		TenantID:   "tenant-1",
		ProviderID: "provider-b",
		CrawlID:    "crawl-2",
		Documents: [][]byte{
			apiResourceDoc(t, testReturnsID, testPackageID, "returns"),
		},
		CrawledAt: base.Add(time.Hour),
	}
	_, err = processor.Process(context.Background(), second)
	require.Error(t, err)

	require.Len(t, db.txs, 2)
	assert.True(t, db.txs[0].committed)
	assert.True(t, db.txs[1].rolledBack)
	assert.False(t, db.txs[1].committed)

	assert.Nil(t, store.entities[testReturnsID])
	require.NotNil(t, store.entities[testOrdersID])
	assert.Equal(t, snapshot, string(store.entities[testOrdersID].Data))
}

func TestProcess_DanglingReferenceResolvedByLaterBatch(t *testing.T) {
	store := newFakeEntityStore()
	processor, _ := newTestProcessor(store)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := &Batch{
		TenantID:   "tenant-1",
		ProviderID: "provider-a",
		CrawlID:    "crawl-1",
		Documents: [][]byte{
			apiResourceDoc(t, testOrdersID, testPackageID, "orders"),
		},
		CrawledAt: base,
	}
	result, err := processor.Process(context.Background(), first)
	require.NoError(t, err)

	referenceIssues := 0
	for _, issue := range result.Issues {
		if issue.Kind == models.IssueReference {
			referenceIssues++
		}
	}
	assert.Equal(t, 1, referenceIssues)

	entity := store.entities[testOrdersID]
	require.NotNil(t, entity, "a dangling mandatory reference must not block persistence")
	var refs []models.DanglingReference
	require.NoError(t, json.Unmarshal(entity.Unresolved, &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, testPackageID, refs[0].Target)
	assert.True(t, refs[0].Mandatory)

	second := &Batch{
		TenantID:   "tenant-1",
		ProviderID: "provider-b",
		CrawlID:    "crawl-2",
		Documents: [][]byte{
			packageDoc(t, testPackageID),
		},
		CrawledAt: base.Add(time.Hour),
	}
	_, err = processor.Process(context.Background(), second)
	require.NoError(t, err)

	require.NotNil(t, store.entities[testPackageID])
	assert.Empty(t, store.entities[testOrdersID].Unresolved,
		"supplying the target must clear the stored dangling reference")
}
