package recall

import (
	"context"
	"time"

	"github.com/spotlightx/feedkit/core"
)

// Following 是社交图召回源：返回已关注作者在新鲜度窗口内的最近内容。
type Following struct {
	Posts core.ContentStore

	// Limit 候选上限，默认 200
	Limit int

	// Window 新鲜度窗口，默认 48h
	Window time.Duration
}

func (r *Following) Name() string { return "recall.following" }

func (r *Following) Recall(
	ctx context.Context,
	uctx *core.UserContext,
) ([]*core.Candidate, error) {
	if r.Posts == nil || uctx == nil || uctx.UserID == "" || len(uctx.Following) == 0 {
		return nil, nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 200
	}
	window := r.Window
	if window <= 0 {
		window = 48 * time.Hour
	}

	authorIDs := make([]string, 0, len(uctx.Following))
	for id := range uctx.Following {
		authorIDs = append(authorIDs, id)
	}

	return r.Posts.FindPosts(ctx, core.PostFilter{
		AuthorIDs: authorIDs,
		Since:     time.Now().Add(-window),
		Limit:     limit,
	})
}
