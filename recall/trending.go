package recall

import (
	"context"
	"time"

	"github.com/spotlightx/feedkit/core"
)

// Trending 是趋势召回源：拉取趋势窗口内的近期内容，
// 只保留文本命中当前趋势话题的候选，按话题速度排序输入顺序不变（稳定截断）。
type Trending struct {
	Posts  core.ContentStore
	Trends core.TrendingSource

	// Limit 候选上限，默认 100
	Limit int

	// Window 趋势窗口，默认 6h
	Window time.Duration

	// TopicLimit 参考的趋势话题数，默认 20
	TopicLimit int
}

func (r *Trending) Name() string { return "recall.trending" }

func (r *Trending) Recall(
	ctx context.Context,
	uctx *core.UserContext,
) ([]*core.Candidate, error) {
	if r.Posts == nil || r.Trends == nil {
		return nil, nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 100
	}
	window := r.Window
	if window <= 0 {
		window = 6 * time.Hour
	}
	topicLimit := r.TopicLimit
	if topicLimit <= 0 {
		topicLimit = 20
	}

	topics, err := r.Trends.GetTrendingTopics(ctx, topicLimit, window)
	if err != nil || len(topics) == 0 {
		return nil, err
	}

	pool, err := r.Posts.FindPosts(ctx, core.PostFilter{
		Since: time.Now().Add(-window),
		Limit: limit * 3,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*core.Candidate, 0, limit)
	for _, it := range pool {
		if it == nil {
			continue
		}
		if core.MatchTrendingTopic(it, topics) == nil {
			continue
		}
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
