package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

const (
	primaryReviewer = ratings.ReviewerID("admin-a")
	otherPrimary    = ratings.ReviewerID("admin-b")
	generalReviewer = ratings.ReviewerID("editor-a")
	otherGeneral    = ratings.ReviewerID("editor-b")
	thirdGeneral    = ratings.ReviewerID("editor-c")
)

func testClassifier() classification.Classifier {
	return classification.NewClassifier(ratings.NewRoster(
		[]string{"admin-a", "admin-b", "editor-a", "editor-b", "editor-c"},
		[]string{"admin-a", "admin-b"},
	))
}

type fakeCatalog struct {
	rows       []catalog.Submission
	err        error
	listCalls  atomic.Int32
	release    chan struct{}
	lastFilter catalog.Filter
	mu         sync.Mutex
}

func (f *fakeCatalog) All(context.Context) ([]catalog.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) == 0 {
		return nil, catalog.ErrCatalogEmpty
	}
	return f.rows, nil
}

func (f *fakeCatalog) List(_ context.Context, filter catalog.Filter) (catalog.ListResult, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	f.lastFilter = filter
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return catalog.ListResult{}, f.err
	}
	return catalog.ListResult{Rows: f.rows, Total: int64(len(f.rows))}, nil
}

func (f *fakeCatalog) Genres(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	present := make([]string, 0, len(f.rows))
	for _, row := range f.rows {
		present = append(present, row.Genre)
	}
	return catalog.OrderGenres(present), nil
}

var errStoreDown = errors.New("store down")

type memoryStore struct {
	mu         sync.Mutex
	records    []ratings.Record
	failUpsert bool
	failReads  bool
}

func (m *memoryStore) ListAll(context.Context) ([]ratings.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	out := make([]ratings.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memoryStore) ListBySubmission(_ context.Context, submissionID ratings.SubmissionID) ([]ratings.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	var out []ratings.Record
	for _, record := range m.records {
		if record.SubmissionID == submissionID.String() {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memoryStore) Upsert(_ context.Context, record ratings.Record) (ratings.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return ratings.Record{}, errStoreDown
	}
	for index, existing := range m.records {
		if existing.SubmissionID == record.SubmissionID && existing.ReviewerID == record.ReviewerID {
			m.records[index] = record
			return record, nil
		}
	}
	m.records = append(m.records, record)
	return record, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(duration)
}

func sampleCatalog() []catalog.Submission {
	return []catalog.Submission{
		{SubmissionID: "X", Title: "Crystal Gate", Author: "Aoi", Genre: catalog.GenreLabel["201"], KeywordText: "ネトコン14", DailyScore: 30, GlobalScore: 900},
		{SubmissionID: "Y", Title: "Harbor Lights", Author: "Ren", Genre: catalog.GenreLabel["101"], KeywordText: "ネトコン14", DailyScore: 20, GlobalScore: 500},
		{SubmissionID: "Z", Title: "Quiet Fields", Author: "Sora", Genre: catalog.GenreLabel["302"], KeywordText: "ネトコン14", DailyScore: 10, GlobalScore: 100},
	}
}

type fixture struct {
	catalog *fakeCatalog
	store   *memoryStore
	clock   *testClock
	cache   *AggregateCache
	service *Service
}

func newFixture(t *testing.T, records ...ratings.Record) *fixture {
	t.Helper()
	fakeSource := &fakeCatalog{rows: sampleCatalog()}
	store := &memoryStore{records: records}
	clock := newTestClock()
	classifier := testClassifier()

	cache, err := NewAggregateCache(AggregateCacheConfig{
		Catalog:    fakeSource,
		Ratings:    store,
		Classifier: classifier,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Snapshots:  cache,
		Catalog:    fakeSource,
		Store:      store,
		Classifier: classifier,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return &fixture{catalog: fakeSource, store: store, clock: clock, cache: cache, service: service}
}

func (f *fixture) session(reviewerID ratings.ReviewerID) *Session {
	role, _ := testClassifier().Roster().RoleOf(reviewerID)
	return NewSession("session-"+reviewerID.String(), reviewerID, role)
}

func rated(submission string, reviewer ratings.ReviewerID, value ratings.RatingValue) ratings.Record {
	return ratings.Record{SubmissionID: submission, ReviewerID: reviewer.String(), Rating: value}
}

func rowByID(t *testing.T, rows []EnrichedSubmission, submissionID string) EnrichedSubmission {
	t.Helper()
	for _, row := range rows {
		if row.SubmissionID == submissionID {
			return row
		}
	}
	t.Fatalf("row %s not found", submissionID)
	return EnrichedSubmission{}
}

func mustSnapshot(t *testing.T, cache *AggregateCache, reviewerID ratings.ReviewerID) Snapshot {
	t.Helper()
	snapshot, err := cache.Get(context.Background(), reviewerID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	return snapshot
}
