package entity

import (
	"context"
	"testing"

	"github.com/quarry-search/quarry/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestUpsertNewAndRepeat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Upsert(ctx, "EBITDA", "metric", []string{"earnings before interest"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if first.ID != "ebitda" {
		t.Errorf("ID = %q, want lowercased canonical", first.ID)
	}
	if first.Frequency != 1 {
		t.Errorf("Frequency = %d, want 1", first.Frequency)
	}

	second, err := store.Upsert(ctx, "EBITDA", "metric", []string{"operating earnings"})
	if err != nil {
		t.Fatalf("Upsert repeat: %v", err)
	}
	if second.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", second.Frequency)
	}
	if len(second.Variants) != 2 {
		t.Errorf("Variants = %v, want both spellings merged", second.Variants)
	}
}

func TestUpsertCaseInsensitiveID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "Acme Corp", "organization", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	merged, err := store.Upsert(ctx, "ACME CORP", "organization", nil)
	if err != nil {
		t.Fatalf("Upsert different case: %v", err)
	}
	if merged.Frequency != 2 {
		t.Errorf("Frequency = %d, want case variants merged into one row", merged.Frequency)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestUpsertRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Upsert(context.Background(), "  ", "term", nil); err == nil {
		t.Fatal("Upsert = nil error, want rejection")
	}
}

func TestListByFrequencyOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "rare", "term", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(ctx, "common", "term", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	entities, err := store.ListByFrequency(ctx, 0)
	if err != nil {
		t.Fatalf("ListByFrequency: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}
	if entities[0].ID != "common" {
		t.Errorf("first = %s, want most frequent", entities[0].ID)
	}
}

func TestUpsertEdgeAccumulatesWeight(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "revenue", "metric", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, "Q1", "period", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := store.UpsertEdge(ctx, "revenue", "q1", "related", 1); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := store.UpsertEdge(ctx, "revenue", "q1", "related", 1); err != nil {
		t.Fatalf("UpsertEdge repeat: %v", err)
	}

	edges, err := store.Related(ctx, "revenue", 10)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(edges))
	}
	if edges[0].Weight != 2 {
		t.Errorf("Weight = %v, want 2", edges[0].Weight)
	}
}

func TestDeleteCascadesEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "alpha", "term", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, "beta", "term", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.UpsertEdge(ctx, "alpha", "beta", "related", 1); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	if err := store.Delete(ctx, []string{"alpha"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	edges, err := store.Related(ctx, "beta", 10)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("got %d edges after entity deletion, want 0", len(edges))
	}
}

func TestDeleteOrphans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "alpha", "term", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Upsert(ctx, "beta", "term", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if _, err := store.Upsert(ctx, "gamma", "term", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.UpsertEdge(ctx, "gamma", "beta", "related", 1); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	removed, err := store.DeleteOrphans(ctx)
	if err != nil {
		t.Fatalf("DeleteOrphans: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want only the unconnected frequency-1 entity", removed)
	}
	if alpha, _ := store.GetByID(ctx, "alpha"); alpha != nil {
		t.Errorf("alpha still present: %+v", alpha)
	}
	for _, id := range []string{"beta", "gamma"} {
		if ent, _ := store.GetByID(ctx, id); ent == nil {
			t.Errorf("%s deleted, want kept", id)
		}
	}
}

func TestDetectCapsAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Four entities all present in the query; only the three most
	// frequent may expand it.
	terms := []struct {
		canonical string
		sightings int
	}{
		{"alpha metric", 4},
		{"beta metric", 3},
		{"gamma metric", 2},
		{"delta metric", 1},
	}
	for _, term := range terms {
		for i := 0; i < term.sightings; i++ {
			if _, err := store.Upsert(ctx, term.canonical, "metric", nil); err != nil {
				t.Fatalf("Upsert %s: %v", term.canonical, err)
			}
		}
	}

	x := NewExpander(store)
	matches, err := x.Detect(ctx, "compare alpha metric, beta metric, gamma metric and delta metric")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].Entity.ID != "alpha metric" {
		t.Errorf("first match = %s, want most frequent", matches[0].Entity.ID)
	}
	for _, m := range matches {
		if m.Entity.ID == "delta metric" {
			t.Error("least frequent entity should have been dropped by the cap")
		}
	}
}

func TestDetectMatchesVariants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "annual recurring revenue", "metric", []string{"ARR"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	x := NewExpander(store)
	matches, err := x.Detect(ctx, "what was our arr last year")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}

	expanded := Apply("what was our arr last year", matches)
	if expanded != "what was our annual recurring revenue last year" {
		t.Errorf("expanded = %q", expanded)
	}
}

func TestApplyLeavesCanonicalAlone(t *testing.T) {
	matches := []Match{{
		Entity: Entity{Canonical: "gross margin"},
		Term:   "gross margin",
	}}
	query := "trend of Gross Margin"
	if got := Apply(query, matches); got != query {
		t.Errorf("Apply = %q, want unchanged", got)
	}
}

func TestExpanderCacheInvalidate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	x := NewExpander(store)

	// Warm the cache while the table is empty.
	matches, err := x.Detect(ctx, "mentions churn rate")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}

	if _, err := store.Upsert(ctx, "churn rate", "metric", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Still cached: the new entity is not visible yet.
	matches, err = x.Detect(ctx, "mentions churn rate")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches from stale cache, want 0", len(matches))
	}

	x.Invalidate()
	matches, err = x.Detect(ctx, "mentions churn rate")
	if err != nil {
		t.Fatalf("Detect after invalidate: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d matches after invalidate, want 1", len(matches))
	}
}

func TestReplaceInsensitive(t *testing.T) {
	got := replaceInsensitive("ARR and arr growth", "arr", "annual recurring revenue")
	want := "annual recurring revenue and annual recurring revenue growth"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
