package rerank

import (
	"context"
	"fmt"
	"testing"

	"github.com/spotlightx/feedkit/core"
)

func byAuthor(authors ...string) []*core.Candidate {
	items := make([]*core.Candidate, 0, len(authors))
	for i, a := range authors {
		c := core.NewCandidate(fmt.Sprintf("p%d", i))
		c.AuthorID = a
		items = append(items, c)
	}
	return items
}

func TestAuthorDiversity(t *testing.T) {
	tests := []struct {
		name    string
		node    AuthorDiversity
		authors []string
		wantIDs []string
	}{
		{
			name:    "under cap passes through",
			node:    AuthorDiversity{Cap: 3, Exempt: 0},
			authors: []string{"a", "b", "a", "c"},
			wantIDs: []string{"p0", "p1", "p2", "p3"},
		},
		{
			name:    "cap drops fourth item from same author",
			node:    AuthorDiversity{Cap: 3, Exempt: 0},
			authors: []string{"a", "a", "a", "a", "b"},
			wantIDs: []string{"p0", "p1", "p2", "p4"},
		},
		{
			name: "top positions exempt from counting",
			node: AuthorDiversity{Cap: 1, Exempt: 3},
			// first three accepted unconditionally, then "a" still has a fresh quota of 1
			authors: []string{"a", "a", "a", "a", "a", "b"},
			wantIDs: []string{"p0", "p1", "p2", "p3", "p5"},
		},
		{
			name:    "max size stops early",
			node:    AuthorDiversity{Cap: 3, Exempt: 0, MaxSize: 2},
			authors: []string{"a", "b", "c", "d"},
			wantIDs: []string{"p0", "p1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.node.Process(context.Background(), nil, byAuthor(tt.authors...))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(out) != len(tt.wantIDs) {
				t.Fatalf("got %d items, want %d", len(out), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if out[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, out[i].ID, id)
				}
			}
		})
	}
}

func TestAuthorDiversityPreservesOrder(t *testing.T) {
	node := AuthorDiversity{Cap: 2, Exempt: 0}
	items := byAuthor("a", "b", "a", "b", "a", "c")
	out, err := node.Process(context.Background(), nil, items)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	// surviving items must keep their relative order
	prev := -1
	for _, it := range out {
		var idx int
		fmt.Sscanf(it.ID, "p%d", &idx)
		if idx <= prev {
			t.Fatalf("order broken: %s after p%d", it.ID, prev)
		}
		prev = idx
	}
}

func TestTopNNode(t *testing.T) {
	items := byAuthor("a", "b", "c")

	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "truncates", n: 2, want: 2},
		{name: "zero keeps all", n: 0, want: 3},
		{name: "larger than input keeps all", n: 10, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &TopNNode{N: tt.n}
			out, err := node.Process(context.Background(), nil, items)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(out) != tt.want {
				t.Errorf("got %d items, want %d", len(out), tt.want)
			}
		})
	}
}
