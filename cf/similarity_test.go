package cf

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/spotlightx/feedkit/core"
)

func TestCalculateUserSimilarity(t *testing.T) {
	ctx := context.Background()
	// u1 and u2 share three items with near-identical taste;
	// both clear MinInteractions=5 via extra non-shared items
	inter := &fakeInteractions{recs: []core.Interaction{
		rated("u1", "i1", 0.7), rated("u1", "i2", 0.8), rated("u1", "i3", 0.7),
		rated("u1", "x1", 0.5), rated("u1", "x2", 0.5),
		rated("u2", "i1", 0.7), rated("u2", "i2", 0.7), rated("u2", "i3", 0.8),
		rated("u2", "x3", 0.5), rated("u2", "x4", 0.5),
	}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	sim, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil {
		t.Fatalf("CalculateUserSimilarity() error = %v", err)
	}
	if sim == nil {
		t.Fatal("expected similarity, got nil")
	}
	if sim.SharedItems != 3 {
		t.Errorf("shared items = %d, want 3", sim.SharedItems)
	}
	// cosine of (0.7,0.8,0.7) vs (0.7,0.7,0.8) = 1.61/1.62
	want := 1.61 / 1.62
	if math.Abs(sim.Similarity-want) > 1e-9 {
		t.Errorf("similarity = %v, want %v", sim.Similarity, want)
	}
	if math.Abs(sim.Confidence-0.15) > 1e-9 {
		t.Errorf("confidence = %v, want 0.15 (3/20)", sim.Confidence)
	}
	if sim.UserA >= sim.UserB {
		t.Errorf("pair not canonical: %s >= %s", sim.UserA, sim.UserB)
	}
}

func TestCalculateUserSimilaritySymmetric(t *testing.T) {
	ctx := context.Background()
	inter := &fakeInteractions{recs: []core.Interaction{
		rated("u1", "i1", 0.9), rated("u1", "i2", 0.3), rated("u1", "i3", 0.7),
		rated("u1", "x1", 0.5), rated("u1", "x2", 0.5),
		rated("u2", "i1", 0.8), rated("u2", "i2", 0.4), rated("u2", "i3", 0.6),
		rated("u2", "x3", 0.5), rated("u2", "x4", 0.5),
	}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	ab, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil || ab == nil {
		t.Fatalf("sim(u1,u2) = %v, %v", ab, err)
	}
	ba, err := engine.CalculateUserSimilarity(ctx, "u2", "u1", false)
	if err != nil || ba == nil {
		t.Fatalf("sim(u2,u1) = %v, %v", ba, err)
	}
	if ab.Similarity != ba.Similarity || ab.SharedItems != ba.SharedItems {
		t.Errorf("similarity not symmetric: %+v vs %+v", ab, ba)
	}
}

func TestCalculateUserSimilarityInsufficientData(t *testing.T) {
	ctx := context.Background()
	// both users clear MinInteractions but share only two items,
	// below MinSharedItems=3
	inter := &fakeInteractions{recs: []core.Interaction{
		rated("u1", "i1", 0.7), rated("u1", "i2", 0.8), rated("u1", "i9", 0.8),
		rated("u1", "x1", 0.5), rated("u1", "x2", 0.5),
		rated("u2", "i1", 0.7), rated("u2", "i2", 0.7), rated("u2", "i8", 0.7),
		rated("u2", "x3", 0.5), rated("u2", "x4", 0.5),
	}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	sim, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil {
		t.Fatalf("CalculateUserSimilarity() error = %v", err)
	}
	if sim != nil {
		t.Errorf("expected nil for insufficient shared items, got %+v", sim)
	}
}

func TestCalculateUserSimilaritySelf(t *testing.T) {
	engine, mem := newTestEngine(&fakeInteractions{}, &fakePosts{})
	defer mem.Close()

	sim, err := engine.CalculateUserSimilarity(context.Background(), "u1", "u1", false)
	if err != nil || sim != nil {
		t.Errorf("self similarity = %v, %v; want nil, nil", sim, err)
	}
}

func TestFindSimilarUsersOrderingDeterministic(t *testing.T) {
	ctx := context.Background()
	recs := []core.Interaction{}
	// u1 rated 5 items so it clears MinInteractions
	for _, item := range []string{"i1", "i2", "i3", "i4", "i5"} {
		recs = append(recs, rated("u1", item, 0.8))
	}
	// u2 and u3 both share the same three items with identical ratings:
	// ties must break by user id. Extra non-shared items clear the
	// per-user interaction minimum.
	for _, u := range []string{"u2", "u3"} {
		for _, item := range []string{"i1", "i2", "i3"} {
			recs = append(recs, rated(u, item, 0.8))
		}
		recs = append(recs, rated(u, "x-"+u+"-1", 0.5), rated(u, "x-"+u+"-2", 0.5))
	}
	inter := &fakeInteractions{recs: recs}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	first, err := engine.FindSimilarUsers(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("FindSimilarUsers() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d similar users, want 2", len(first))
	}
	if other := otherUser(first[0], "u1"); other != "u2" {
		t.Errorf("first similar user = %s, want u2 (id tie-break)", other)
	}

	for i := 0; i < 5; i++ {
		again, err := engine.FindSimilarUsers(ctx, "u1", 10)
		if err != nil {
			t.Fatalf("FindSimilarUsers() error = %v", err)
		}
		for j := range first {
			if otherUser(again[j], "u1") != otherUser(first[j], "u1") {
				t.Fatalf("run %d: ordering not stable", i)
			}
		}
	}
}

func TestCalculateUserSimilarityColdUserGate(t *testing.T) {
	ctx := context.Background()
	// three shared items clear MinSharedItems, but each user has only
	// three interactions total, below MinInteractions=5: similarity
	// must stay unknown instead of leaking a real score
	inter := &fakeInteractions{recs: []core.Interaction{
		rated("u1", "i1", 0.7), rated("u1", "i2", 0.8), rated("u1", "i3", 0.7),
		rated("u2", "i1", 0.7), rated("u2", "i2", 0.7), rated("u2", "i3", 0.8),
	}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	sim, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil {
		t.Fatalf("CalculateUserSimilarity() error = %v", err)
	}
	if sim != nil {
		t.Errorf("expected nil for users below the interaction minimum, got %+v", sim)
	}

	// one warm side is not enough either
	for _, item := range []string{"x1", "x2", "x3"} {
		inter.recs = append(inter.recs, rated("u1", item, 0.5))
	}
	engine.invalidateUser(ctx, "u1")
	sim, err = engine.CalculateUserSimilarity(ctx, "u1", "u2", true)
	if err != nil {
		t.Fatalf("CalculateUserSimilarity() error = %v", err)
	}
	if sim != nil {
		t.Errorf("expected nil while the other user is still cold, got %+v", sim)
	}
}

func TestCalculateUserSimilarityForceRecalculate(t *testing.T) {
	ctx := context.Background()
	inter := &fakeInteractions{recs: []core.Interaction{
		rated("u1", "i1", 0.7), rated("u1", "i2", 0.8), rated("u1", "i3", 0.7),
		rated("u1", "x1", 0.5), rated("u1", "x2", 0.5),
		rated("u2", "i1", 0.7), rated("u2", "i2", 0.7), rated("u2", "i3", 0.8),
		rated("u2", "x3", 0.5), rated("u2", "x4", 0.5),
	}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	// plant a stale cached entry for the canonical pair
	stale := core.UserSimilarity{UserA: "u1", UserB: "u2", Similarity: 0.001, SharedItems: 3, Confidence: 0.15}
	data, _ := json.Marshal(stale)
	if err := mem.Set(ctx, "cf:sim:user:u1:u2", data); err != nil {
		t.Fatal(err)
	}

	cached, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil || cached == nil {
		t.Fatalf("cached read = %v, %v", cached, err)
	}
	if cached.Similarity != 0.001 {
		t.Fatalf("similarity = %v, want the cached 0.001", cached.Similarity)
	}

	fresh, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", true)
	if err != nil || fresh == nil {
		t.Fatalf("forced recalculation = %v, %v", fresh, err)
	}
	if math.Abs(fresh.Similarity-1.61/1.62) > 1e-9 {
		t.Errorf("forced similarity = %v, want %v", fresh.Similarity, 1.61/1.62)
	}

	// forced result replaces the stale cache entry
	after, err := engine.CalculateUserSimilarity(ctx, "u1", "u2", false)
	if err != nil || after == nil {
		t.Fatalf("read after force = %v, %v", after, err)
	}
	if after.Similarity != fresh.Similarity {
		t.Errorf("cache not refreshed: %v vs %v", after.Similarity, fresh.Similarity)
	}
}

func TestFindSimilarUsersCachesResult(t *testing.T) {
	ctx := context.Background()
	recs := []core.Interaction{}
	for _, item := range []string{"i1", "i2", "i3", "i4", "i5"} {
		recs = append(recs, rated("u1", item, 0.8))
	}
	for _, item := range []string{"i1", "i2", "i3", "x1", "x2"} {
		recs = append(recs, rated("u2", item, 0.8))
	}
	inter := &fakeInteractions{recs: recs}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	first, err := engine.FindSimilarUsers(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("FindSimilarUsers() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d similar users, want 1", len(first))
	}
	if _, err := mem.Get(ctx, "cf:simusers:u1:10"); err != nil {
		t.Fatalf("sorted result not cached: %v", err)
	}

	// backing store breaks; the cached result still serves
	inter.err = errors.New("db down")
	again, err := engine.FindSimilarUsers(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("FindSimilarUsers() after outage = %v", err)
	}
	if len(again) != 1 || again[0].Similarity != first[0].Similarity {
		t.Errorf("cached result differs: %+v vs %+v", again, first)
	}
}

func TestFindSimilarUsersColdUser(t *testing.T) {
	ctx := context.Background()
	inter := &fakeInteractions{recs: []core.Interaction{rated("u1", "i1", 0.7)}}
	engine, mem := newTestEngine(inter, &fakePosts{})
	defer mem.Close()

	got, err := engine.FindSimilarUsers(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("FindSimilarUsers() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for cold user, got %v", got)
	}
}

func TestSparsePearson(t *testing.T) {
	shared := []string{"a", "b", "c"}
	tests := []struct {
		name string
		x, y map[string]float64
		want float64
	}{
		{
			name: "perfect positive correlation",
			x:    map[string]float64{"a": 0.1, "b": 0.5, "c": 0.9},
			y:    map[string]float64{"a": 0.2, "b": 0.6, "c": 1.0},
			want: 1,
		},
		{
			name: "perfect negative correlation",
			x:    map[string]float64{"a": 0.1, "b": 0.5, "c": 0.9},
			y:    map[string]float64{"a": 0.9, "b": 0.5, "c": 0.1},
			want: -1,
		},
		{
			name: "zero variance",
			x:    map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5},
			y:    map[string]float64{"a": 0.2, "b": 0.6, "c": 1.0},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sparsePearson(tt.x, tt.y, shared)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("sparsePearson() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		shared int
		want   float64
	}{
		{shared: 0, want: 0},
		{shared: 3, want: 0.15},
		{shared: 20, want: 1},
		{shared: 100, want: 1},
	}
	for _, tt := range tests {
		if got := confidence(tt.shared); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("confidence(%d) = %v, want %v", tt.shared, got, tt.want)
		}
	}
}
