package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/store"
)

// ===== in-memory collaborators =====

type fakePosts struct {
	posts []*core.Candidate
	err   error
}

func (f *fakePosts) FindPosts(_ context.Context, flt core.PostFilter) ([]*core.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]struct{}, len(flt.IDs))
	for _, id := range flt.IDs {
		want[id] = struct{}{}
	}
	authors := make(map[string]struct{}, len(flt.AuthorIDs))
	for _, id := range flt.AuthorIDs {
		authors[id] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(flt.ExcludeAuthorIDs))
	for _, id := range flt.ExcludeAuthorIDs {
		excluded[id] = struct{}{}
	}
	var out []*core.Candidate
	for _, p := range f.posts {
		if len(want) > 0 {
			if _, ok := want[p.ID]; !ok {
				continue
			}
		}
		if len(authors) > 0 {
			if _, ok := authors[p.AuthorID]; !ok {
				continue
			}
		}
		if _, ok := excluded[p.AuthorID]; ok {
			continue
		}
		if !flt.Since.IsZero() && p.CreatedAt.Before(flt.Since) {
			continue
		}
		out = append(out, p)
		if flt.Limit > 0 && len(out) >= flt.Limit {
			break
		}
	}
	return out, nil
}

type fakeGraph struct {
	following map[string][]string
	err       error
}

func (g *fakeGraph) GetFollowing(_ context.Context, userID string) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.following[userID], nil
}

type fakeInteractions struct {
	recs []core.Interaction
	err  error
}

func (f *fakeInteractions) FindInteractions(_ context.Context, flt core.InteractionFilter) ([]core.Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Interaction
	for _, r := range f.recs {
		if flt.UserID != "" && r.UserID != flt.UserID {
			continue
		}
		if !flt.Since.IsZero() && r.CreatedAt.Before(flt.Since) {
			continue
		}
		out = append(out, r)
		if flt.Limit > 0 && len(out) >= flt.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeInteractions) CreateInteraction(_ context.Context, rec core.Interaction) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeInteractions) CountInteractions(ctx context.Context, flt core.InteractionFilter) (int64, error) {
	recs, err := f.FindInteractions(ctx, flt)
	return int64(len(recs)), err
}

type fakeTrends []core.TrendingTopic

func (t fakeTrends) GetTrendingTopics(_ context.Context, limit int, _ time.Duration) ([]core.TrendingTopic, error) {
	if limit > 0 && len(t) > limit {
		return t[:limit], nil
	}
	return t, nil
}

func testPost(id, author string, age time.Duration, topics ...string) *core.Candidate {
	c := core.NewCandidate(id)
	c.AuthorID = author
	c.CreatedAt = time.Now().Add(-age)
	c.Topics = topics
	c.Content = "post " + id
	c.Likes = 10
	c.Views = 100
	return c
}

func testRanker(t *testing.T, posts *fakePosts, graph *fakeGraph, inter *fakeInteractions, cfg core.FeedConfig) (*Ranker, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	r := NewRanker(posts, graph, inter, cfg,
		WithCache(mem),
		WithQueue(store.NewListQueue(mem, "")),
		WithTrendingSource(fakeTrends{{Topic: "golang", Velocity: 10}}),
	)
	return r, mem
}

// ===== tests =====

func TestGenerateFeedRanksAndExplains(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour, "golang"),
		testPost("p2", "bob", 2*time.Hour, "ai"),
		testPost("p3", "carol", 30*time.Minute, "golang"),
		testPost("p4", "user-1", time.Hour, "golang"), // own post, must be filtered
	}}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice"}}}
	ranker, _ := testRanker(t, posts, graph, &fakeInteractions{}, core.DefaultFeedConfig())

	feed, err := ranker.GenerateFeed(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("GenerateFeed() error = %v", err)
	}
	if len(feed) == 0 {
		t.Fatal("empty feed")
	}

	for i, rc := range feed {
		if rc.Rank != i+1 {
			t.Errorf("rank at %d = %d, want %d", i, rc.Rank, i+1)
		}
		if rc.Candidate.AuthorID == "user-1" {
			t.Error("own post leaked into feed")
		}
		if i > 0 && feed[i-1].FinalScore < rc.FinalScore {
			t.Errorf("feed not sorted: %v before %v", feed[i-1].FinalScore, rc.FinalScore)
		}
	}
}

func TestGenerateFeedDeterministic(t *testing.T) {
	now := time.Now()
	postAt := func(id, author string, age time.Duration, topic string) *core.Candidate {
		c := core.NewCandidate(id)
		c.AuthorID = author
		c.CreatedAt = now.Add(-age)
		c.Topics = []string{topic}
		c.Content = "post " + id
		c.Likes = 10
		c.Views = 100
		return c
	}
	build := func() *fakePosts {
		return &fakePosts{posts: []*core.Candidate{
			postAt("p1", "alice", time.Hour, "golang"),
			postAt("p2", "bob", 2*time.Hour, "ai"),
			postAt("p3", "carol", 3*time.Hour, "music"),
		}}
	}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice", "bob"}}}
	cfg := core.DefaultFeedConfig()
	cfg.CacheTTL = 0 // bypass cache effects via fresh ranker per run

	var first []core.RankedContent
	for run := 0; run < 5; run++ {
		ranker := NewRanker(build(), graph, &fakeInteractions{}, cfg,
			WithTrendingSource(fakeTrends{{Topic: "golang", Velocity: 10}}),
			WithClock(func() time.Time { return now }),
		)
		feed, err := ranker.GenerateFeed(context.Background(), "user-1", nil)
		if err != nil {
			t.Fatalf("run %d: error = %v", run, err)
		}
		if first == nil {
			first = feed
			continue
		}
		if len(feed) != len(first) {
			t.Fatalf("run %d: %d items vs %d", run, len(feed), len(first))
		}
		for i := range feed {
			if feed[i].Candidate.ID != first[i].Candidate.ID || feed[i].FinalScore != first[i].FinalScore {
				t.Fatalf("run %d: order differs at %d", run, i)
			}
		}
	}
}

func TestGenerateFeedFallsBackChronological(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour),
		testPost("p2", "bob", 30*time.Minute),
		testPost("p3", "carol", 2*time.Hour),
	}}
	graph := &fakeGraph{err: errors.New("graph down")}
	ranker, _ := testRanker(t, posts, graph, &fakeInteractions{}, core.DefaultFeedConfig())

	feed, err := ranker.GenerateFeed(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("GenerateFeed() error = %v, want chronological fallback", err)
	}
	if len(feed) != 3 {
		t.Fatalf("fallback feed has %d items, want 3", len(feed))
	}
	// newest first
	wantOrder := []string{"p2", "p1", "p3"}
	for i, id := range wantOrder {
		if feed[i].Candidate.ID != id {
			t.Errorf("position %d: got %s, want %s", i, feed[i].Candidate.ID, id)
		}
	}
}

func TestGenerateFeedInvalidConfigFastFails(t *testing.T) {
	ranker, _ := testRanker(t, &fakePosts{}, &fakeGraph{}, &fakeInteractions{}, core.DefaultFeedConfig())

	bad := core.DefaultFeedConfig()
	bad.Weights.Social = -1

	_, err := ranker.GenerateFeed(context.Background(), "user-1", &bad)
	if !core.IsInvalidConfig(err) {
		t.Errorf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestGenerateFeedCaches(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour, "golang"),
		testPost("p2", "bob", 2*time.Hour, "ai"),
	}}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice"}}}
	ranker, mem := testRanker(t, posts, graph, &fakeInteractions{}, core.DefaultFeedConfig())

	ctx := context.Background()
	first, err := ranker.GenerateFeed(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("GenerateFeed() error = %v", err)
	}

	keys, err := mem.ListKeys(ctx, "feed:user-1:*")
	if err != nil || len(keys) != 1 {
		t.Fatalf("cached feed keys = %v, %v; want exactly one", keys, err)
	}

	// mutate the backing store; cached result must still be served
	posts.err = errors.New("content store down")
	second, err := ranker.GenerateFeed(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("GenerateFeed() from cache error = %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached feed has %d items, want %d", len(second), len(first))
	}
	for i := range first {
		if second[i].Candidate.ID != first[i].Candidate.ID {
			t.Errorf("cached order differs at %d", i)
		}
	}
}

func TestGenerateFeedChronologicalAlgorithm(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", 3*time.Hour),
		testPost("p2", "bob", time.Hour),
	}}
	cfg := core.DefaultFeedConfig()
	cfg.Algorithm = core.AlgorithmChronological
	ranker, _ := testRanker(t, posts, &fakeGraph{}, &fakeInteractions{}, cfg)

	feed, err := ranker.GenerateFeed(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("GenerateFeed() error = %v", err)
	}
	if len(feed) != 2 || feed[0].Candidate.ID != "p2" {
		t.Errorf("chronological order wrong: %+v", feed)
	}
}

func TestBuildUserContext(t *testing.T) {
	now := time.Now()
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour, "golang", "ai"),
	}}
	inter := &fakeInteractions{recs: []core.Interaction{
		{UserID: "user-1", TargetID: "p1", Type: core.InteractionLike, CreatedAt: now.Add(-time.Hour)},
		{UserID: "user-1", TargetID: "p1", Type: core.InteractionView, CreatedAt: now.Add(-2 * time.Hour)},
	}}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice", "bob"}}}
	ranker, _ := testRanker(t, posts, graph, inter, core.DefaultFeedConfig())

	uctx, err := ranker.BuildUserContext(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("BuildUserContext() error = %v", err)
	}
	if !uctx.Follows("alice") || !uctx.Follows("bob") {
		t.Error("following set incomplete")
	}
	if len(uctx.Engagements) != 2 {
		t.Fatalf("engagements = %d, want 2", len(uctx.Engagements))
	}
	if uctx.Engagements[0].AuthorID != "alice" {
		t.Error("engagement author not resolved from content store")
	}
	// both interactions on p1 count its topics twice
	if uctx.TopicHistogram["golang"] != 2 || uctx.TopicHistogram["ai"] != 2 {
		t.Errorf("topic histogram = %v", uctx.TopicHistogram)
	}
	if uctx.PositiveAuthorCount("alice") != 1 {
		t.Errorf("positive author count = %d, want 1", uctx.PositiveAuthorCount("alice"))
	}
}

func TestBuildUserContextUsesPrefEvents(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour, "golang"),
	}}
	inter := &fakeInteractions{}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice"}}}
	ranker, _ := testRanker(t, posts, graph, inter, core.DefaultFeedConfig())
	ctx := context.Background()

	fb := Feedback{UserID: "user-1", TargetID: "p1", Type: core.InteractionLike, DwellMs: 5000}
	if err := ranker.RecordFeedback(ctx, fb); err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}

	// interaction store breaks; the pref event list still feeds the context
	inter.err = errors.New("db down")

	uctx, err := ranker.BuildUserContext(ctx, "user-1")
	if err != nil {
		t.Fatalf("BuildUserContext() error = %v", err)
	}
	if len(uctx.Engagements) != 1 {
		t.Fatalf("engagements = %d, want 1 from the pref list", len(uctx.Engagements))
	}
	e := uctx.Engagements[0]
	if e.TargetID != "p1" || e.Type != core.InteractionLike {
		t.Errorf("engagement = %+v", e)
	}
	if e.DwellMs != 5000 {
		t.Errorf("dwell = %d, want 5000", e.DwellMs)
	}
	if e.AuthorID != "alice" {
		t.Error("engagement author not resolved from content store")
	}
	if uctx.TopicHistogram["golang"] != 1 {
		t.Errorf("topic histogram = %v", uctx.TopicHistogram)
	}
	if uctx.PositiveAuthorCount("alice") != 1 {
		t.Errorf("positive author count = %d, want 1", uctx.PositiveAuthorCount("alice"))
	}
}

func TestExplainSignals(t *testing.T) {
	tests := []struct {
		name    string
		signals core.RankingSignals
		want    []string
	}{
		{
			name:    "weak signals produce no reasons",
			signals: core.RankingSignals{Relevance: 0.5, Social: 0.5, Freshness: 0.5},
			want:    nil,
		},
		{
			name:    "strong relevance",
			signals: core.RankingSignals{Relevance: 0.9},
			want:    []string{"Matches your interests"},
		},
		{
			name:    "strong social and freshness",
			signals: core.RankingSignals{Social: 0.8, Freshness: 0.9},
			want:    []string{"High engagement expected", "Recent content"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExplainSignals(tt.signals)
			if len(got) != len(tt.want) {
				t.Fatalf("ExplainSignals() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("reason %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
