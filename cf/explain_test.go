package cf

import (
	"context"
	"strings"
	"testing"

	"github.com/spotlightx/feedkit/core"
)

func TestExplainRecommendation(t *testing.T) {
	engine, mem := newTestEngine(&fakeInteractions{}, &fakePosts{})
	defer mem.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		rec  core.RecommendationResult
		want []string // substrings, one per expected reason
	}{
		{
			name: "user based with payload",
			rec: core.RecommendationResult{
				Method:       core.MethodUserBased,
				Confidence:   0.5,
				SimilarUsers: []string{"u2", "u3"},
			},
			want: []string{"2 users with similar taste"},
		},
		{
			name: "item based without payload",
			rec:  core.RecommendationResult{Method: core.MethodItemBased, Confidence: 0.5},
			want: []string{"similar to content you engaged with"},
		},
		{
			name: "hybrid agreement across both paths",
			rec: core.RecommendationResult{
				Method:       core.MethodHybrid,
				Confidence:   0.9,
				SimilarUsers: []string{"u2"},
				SimilarItems: []string{"p1", "p2"},
			},
			want: []string{"1 users with similar taste", "similar to 2 items", "high confidence"},
		},
		{
			name: "cold start is exploratory",
			rec:  core.RecommendationResult{Method: core.MethodColdStart, Confidence: 0.3},
			want: []string{"learn your preferences", "exploratory"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.ExplainRecommendation(ctx, "u1", tt.rec)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d reasons %v, want %d", len(got), got, len(tt.want))
			}
			for i, sub := range tt.want {
				if !strings.Contains(got[i], sub) {
					t.Errorf("reason %d = %q, want substring %q", i, got[i], sub)
				}
			}
		})
	}
}
