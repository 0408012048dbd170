package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spotlightx/feedkit/core"
)

func twoVariantExperiment() *Experiment {
	control := core.DefaultFeedConfig()
	treatment := core.DefaultFeedConfig()
	treatment.Weights.Trending = 0.3
	return &Experiment{
		Name: "trending-boost-v1",
		Variants: []Variant{
			{Name: "control", Config: control},
			{Name: "treatment", Config: treatment},
		},
	}
}

func TestAssignVariantStable(t *testing.T) {
	exp := twoVariantExperiment()

	for _, userID := range []string{"u1", "u2", "another-user", ""} {
		first := exp.AssignVariant(userID)
		for i := 0; i < 50; i++ {
			if got := exp.AssignVariant(userID); got.Name != first.Name {
				t.Fatalf("user %q: assignment flipped from %s to %s", userID, first.Name, got.Name)
			}
		}
	}
}

func TestAssignVariantDistributes(t *testing.T) {
	exp := twoVariantExperiment()

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		v := exp.AssignVariant(fmt.Sprintf("user-%d", i))
		counts[v.Name]++
	}
	// hash bucketing should land well away from 100/0
	for name, n := range counts {
		if n < 300 || n > 700 {
			t.Errorf("variant %s got %d of 1000 users, want roughly balanced", name, n)
		}
	}
}

func TestAssignVariantDependsOnExperimentName(t *testing.T) {
	a := twoVariantExperiment()
	b := twoVariantExperiment()
	b.Name = "trending-boost-v2"

	moved := 0
	for i := 0; i < 200; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if a.AssignVariant(userID).Name != b.AssignVariant(userID).Name {
			moved++
		}
	}
	if moved == 0 {
		t.Error("renaming the experiment should reshuffle at least some users")
	}
}

func TestRunExperimentTagsResults(t *testing.T) {
	posts := &fakePosts{posts: []*core.Candidate{
		testPost("p1", "alice", time.Hour, "golang"),
		testPost("p2", "bob", 2*time.Hour, "ai"),
	}}
	graph := &fakeGraph{following: map[string][]string{"user-1": {"alice"}}}
	ranker, _ := testRanker(t, posts, graph, &fakeInteractions{}, core.DefaultFeedConfig())

	exp := twoVariantExperiment()
	feed, err := ranker.RunExperiment(context.Background(), "user-1", exp)
	if err != nil {
		t.Fatalf("RunExperiment() error = %v", err)
	}
	if len(feed) == 0 {
		t.Fatal("empty experiment feed")
	}

	variant := exp.AssignVariant("user-1")
	wantTag := exp.Name + ":" + variant.Name
	for _, rc := range feed {
		if rc.Experiment != wantTag {
			t.Errorf("experiment tag = %q, want %q", rc.Experiment, wantTag)
		}
	}
}

func TestRunExperimentNoVariants(t *testing.T) {
	ranker, _ := testRanker(t, &fakePosts{}, &fakeGraph{}, &fakeInteractions{}, core.DefaultFeedConfig())

	_, err := ranker.RunExperiment(context.Background(), "user-1", &Experiment{Name: "empty"})
	if !core.IsInvalidConfig(err) {
		t.Errorf("error = %v, want INVALID_CONFIG", err)
	}
}
