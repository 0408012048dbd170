package recall

import (
	"context"
	"time"

	"github.com/spotlightx/feedkit/core"
)

// Discovery 是探索召回源：返回用户未关注、也不是自己的作者在窗口内的内容。
// 纯探索，不做个性化过滤。
type Discovery struct {
	Posts core.ContentStore

	// Limit 候选上限，默认 50
	Limit int

	// Window 新鲜度窗口，默认 48h
	Window time.Duration
}

func (r *Discovery) Name() string { return "recall.discovery" }

func (r *Discovery) Recall(
	ctx context.Context,
	uctx *core.UserContext,
) ([]*core.Candidate, error) {
	if r.Posts == nil || uctx == nil || uctx.UserID == "" {
		return nil, nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 50
	}
	window := r.Window
	if window <= 0 {
		window = 48 * time.Hour
	}

	exclude := make([]string, 0, len(uctx.Following)+1)
	exclude = append(exclude, uctx.UserID)
	for id := range uctx.Following {
		exclude = append(exclude, id)
	}

	return r.Posts.FindPosts(ctx, core.PostFilter{
		ExcludeAuthorIDs: exclude,
		Since:            time.Now().Add(-window),
		Limit:            limit,
	})
}
