package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

func TestBuildSnapshotJoinsEveryCatalogRow(t *testing.T) {
	records := []ratings.Record{
		rated("X", generalReviewer, ratings.RatingPositive),
		{SubmissionID: "X", ReviewerID: primaryReviewer.String(), Rating: ratings.RatingNegative, Comment: "not for us"},
		rated("X", otherGeneral, ratings.RatingNone),
		rated("Y", "guest", "○"),
		rated("missing", generalReviewer, ratings.RatingBlocking),
	}
	snapshot := BuildSnapshot(sampleCatalog(), records, primaryReviewer, testClassifier())

	if len(snapshot.Rows) != 3 {
		t.Fatalf("expected one row per catalog submission, got %d", len(snapshot.Rows))
	}

	x := rowByID(t, snapshot.Rows, "X")
	if x.Status != classification.StatusPrimaryRejected || x.StatusLabel != "Admin×" {
		t.Fatalf("unexpected status for X: %s", x.Status)
	}
	if !x.Flags.IsGeneralApproved {
		t.Fatalf("expected general approval flag to remain visible")
	}
	if x.MyRating != ratings.RatingNegative || x.MyComment != "not for us" {
		t.Fatalf("unexpected own annotation: %q %q", x.MyRating, x.MyComment)
	}
	if x.OtherRatings != "editor-a:〇" {
		t.Fatalf("unexpected other ratings summary %q", x.OtherRatings)
	}

	y := rowByID(t, snapshot.Rows, "Y")
	if y.Status != classification.StatusUnclassified {
		t.Fatalf("expected rating outside roster to leave Y unclassified, got %s", y.Status)
	}
	if y.OtherRatings != "guest:〇" {
		t.Fatalf("unexpected summary %q", y.OtherRatings)
	}

	z := rowByID(t, snapshot.Rows, "Z")
	if !z.Flags.IsUnclassified || z.Status != classification.StatusUnclassified {
		t.Fatalf("expected unrated row to be unclassified")
	}
	if _, ok := snapshot.Row("missing"); ok {
		t.Fatalf("ratings for unknown submissions must not add rows")
	}
}

func TestAggregateCacheMemoizesPerEpoch(t *testing.T) {
	f := newFixture(t, rated("X", generalReviewer, ratings.RatingNegative))
	ctx := context.Background()

	first := mustSnapshot(t, f.cache, primaryReviewer)
	second := mustSnapshot(t, f.cache, primaryReviewer)
	if f.catalog.listCalls.Load() != 1 {
		t.Fatalf("expected a single build, got %d", f.catalog.listCalls.Load())
	}
	if first.Epoch != second.Epoch {
		t.Fatalf("expected the same epoch")
	}

	if _, err := f.store.Upsert(ctx, rated("X", primaryReviewer, ratings.RatingPositive)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	stale := mustSnapshot(t, f.cache, primaryReviewer)
	if rowByID(t, stale.Rows, "X").Status != classification.StatusGeneralRejected {
		t.Fatalf("writes must not invalidate the cached epoch")
	}

	f.clock.Advance(DefaultCacheTTL)
	fresh := mustSnapshot(t, f.cache, primaryReviewer)
	if fresh.Epoch != stale.Epoch+1 {
		t.Fatalf("expected next epoch, got %d after %d", fresh.Epoch, stale.Epoch)
	}
	if rowByID(t, fresh.Rows, "X").Status != classification.StatusPrimaryApproved {
		t.Fatalf("expected rebuilt epoch to see the write")
	}
	if f.cache.Len() != 1 {
		t.Fatalf("expected older epochs to be evicted, have %d entries", f.cache.Len())
	}
}

func TestAggregateCacheKeysByReviewer(t *testing.T) {
	f := newFixture(t, rated("X", generalReviewer, ratings.RatingHold))

	mine := mustSnapshot(t, f.cache, generalReviewer)
	theirs := mustSnapshot(t, f.cache, primaryReviewer)
	if rowByID(t, mine.Rows, "X").MyRating != ratings.RatingHold {
		t.Fatalf("expected own rating in own snapshot")
	}
	if rowByID(t, theirs.Rows, "X").MyRating != ratings.RatingNone {
		t.Fatalf("expected no own rating in another reviewer's snapshot")
	}
	if f.cache.Len() != 2 {
		t.Fatalf("expected two entries, got %d", f.cache.Len())
	}
}

func TestAggregateCacheSharesConcurrentBuilds(t *testing.T) {
	f := newFixture(t)
	f.catalog.release = make(chan struct{})

	var wait sync.WaitGroup
	errs := make(chan error, 8)
	for worker := 0; worker < 8; worker++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			_, err := f.cache.Get(context.Background(), generalReviewer)
			errs <- err
		}()
	}

	deadline := time.After(2 * time.Second)
	for f.catalog.listCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("build never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(f.catalog.release)
	wait.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.catalog.listCalls.Load() != 1 {
		t.Fatalf("expected one shared build, got %d", f.catalog.listCalls.Load())
	}
}

func TestAggregateCacheReportsEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	f.catalog.rows = nil

	_, err := f.cache.Get(context.Background(), generalReviewer)
	if !errors.Is(err, catalog.ErrCatalogEmpty) {
		t.Fatalf("expected ErrCatalogEmpty, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "dashboard.cache.build.catalog_empty" {
		t.Fatalf("unexpected error %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("failed builds must not be cached")
	}
}

func TestAggregateCachePropagatesStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failReads = true

	_, err := f.cache.Get(context.Background(), generalReviewer)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestAggregateCachePushesScopeToCatalog(t *testing.T) {
	fakeSource := &fakeCatalog{rows: sampleCatalog()}
	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	cache, err := NewAggregateCache(AggregateCacheConfig{
		Catalog:    fakeSource,
		Ratings:    &memoryStore{},
		Classifier: testClassifier(),
		Scope:      Scope{RequiredKeywords: []string{"ネトコン14", "ネトコン１４"}, MinFirstPublished: &cutoff},
	})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	mustSnapshot(t, cache, generalReviewer)

	fakeSource.mu.Lock()
	defer fakeSource.mu.Unlock()
	if len(fakeSource.lastFilter.RequiredKeywords) != 2 {
		t.Fatalf("expected required keywords to be pushed down, got %#v", fakeSource.lastFilter)
	}
	if fakeSource.lastFilter.FirstPublishedFrom == nil || !fakeSource.lastFilter.FirstPublishedFrom.Equal(cutoff) {
		t.Fatalf("expected first published cutoff to be pushed down")
	}
}
