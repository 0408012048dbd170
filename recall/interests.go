package recall

import (
	"context"
	"sort"
	"time"

	"github.com/spotlightx/feedkit/core"
)

// Interests 是兴趣相似召回源：拉取一个较宽的近期内容池，
// 按候选嵌入与用户兴趣向量的余弦相似度排序后截断。
// 用户无兴趣向量时（冷用户）退化为按时间序的近期池。
type Interests struct {
	Posts core.ContentStore

	// Limit 候选上限，默认 150
	Limit int

	// Window 新鲜度窗口，默认 48h
	Window time.Duration

	// PoolMultiplier 决定拉取池相对 Limit 的放大倍数，默认 3
	PoolMultiplier int

	// MinSimilarity 低于该相似度的候选直接丢弃，默认 0.5（中性分）
	MinSimilarity float64
}

func (r *Interests) Name() string { return "recall.interests" }

func (r *Interests) Recall(
	ctx context.Context,
	uctx *core.UserContext,
) ([]*core.Candidate, error) {
	if r.Posts == nil || uctx == nil || uctx.UserID == "" {
		return nil, nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 150
	}
	window := r.Window
	if window <= 0 {
		window = 48 * time.Hour
	}
	mult := r.PoolMultiplier
	if mult <= 0 {
		mult = 3
	}

	pool, err := r.Posts.FindPosts(ctx, core.PostFilter{
		Since: time.Now().Add(-window),
		Limit: limit * mult,
	})
	if err != nil {
		return nil, err
	}

	// 冷用户没有兴趣向量：返回未过滤的近期池
	if len(uctx.InterestVector) == 0 {
		if len(pool) > limit {
			pool = pool[:limit]
		}
		return pool, nil
	}

	minSim := r.MinSimilarity
	if minSim <= 0 {
		minSim = 0.5
	}

	type scored struct {
		item *core.Candidate
		sim  float64
	}
	matched := make([]scored, 0, len(pool))
	for _, it := range pool {
		if it == nil || len(it.Embedding) == 0 {
			continue
		}
		sim := core.CosineUnit(it.Embedding, uctx.InterestVector)
		if sim < minSim {
			continue
		}
		matched = append(matched, scored{item: it, sim: sim})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].sim > matched[j].sim
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*core.Candidate, 0, len(matched))
	for _, s := range matched {
		s.item.Score = s.sim
		out = append(out, s.item)
	}
	return out, nil
}
