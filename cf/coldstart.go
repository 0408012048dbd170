package cf

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/metrics"
)

const popularZSetKey = "cf:popular"

// HandleColdStart 为交互历史不足的用户兜底。
// 产出固定低置信（0.3）高新颖（0.8），下游把它们当探索项。
// 兜底路径自身也不失败：热门榜不可用时退化为最近内容。
func (e *Engine) HandleColdStart(
	ctx context.Context,
	userID string,
	cfg core.RecConfig,
	excludeItems []string,
) []core.RecommendationResult {
	metrics.ColdStarts.Inc()

	var results []core.RecommendationResult
	switch cfg.ColdStartStrategy {
	case core.ColdStartRandom:
		results = e.coldStartRandom(ctx, userID, cfg)
	case core.ColdStartPopular, core.ColdStartContentBased:
		// content_based 退化为 popular
		results = e.coldStartPopular(ctx, cfg)
	default:
		results = e.coldStartPopular(ctx, cfg)
	}
	return e.finalize(ctx, results, excludeItems, cfg)
}

// coldStartPopular 读取热门榜 zset，过期或缺失时从最近 7 天交互重建。
func (e *Engine) coldStartPopular(ctx context.Context, cfg core.RecConfig) []core.RecommendationResult {
	var itemIDs []string
	if e.cache != nil {
		if members, err := e.cache.ZRange(ctx, popularZSetKey, 0, int64(cfg.MaxRecommendations*2-1)); err == nil && len(members) > 0 {
			itemIDs = members
		}
	}
	if len(itemIDs) == 0 {
		itemIDs = e.rebuildPopular(ctx, cfg.MaxRecommendations*2)
	}

	results := make([]core.RecommendationResult, 0, len(itemIDs))
	for i, id := range itemIDs {
		// 榜单名次线性衰减，保持原有顺序
		score := 1.0 - float64(i)/float64(len(itemIDs)+1)
		results = append(results, coldStartResult(id, score, "Popular with the community right now"))
	}
	return results
}

// rebuildPopular 从最近 7 天的交互统计重建热门榜并回写 zset。
func (e *Engine) rebuildPopular(ctx context.Context, limit int) []string {
	recs, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
		Since: e.now().Add(-7 * 24 * time.Hour),
		Limit: 2000,
	})
	if err != nil {
		e.log.WithError(err).Warn("cf: popular rebuild failed")
		return e.recentItemIDs(ctx, limit)
	}

	counts := make(map[string]int, 256)
	for _, r := range recs {
		counts[r.TargetID]++
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	if e.cache != nil {
		for _, id := range ids {
			if err := e.cache.ZAdd(ctx, popularZSetKey, float64(counts[id]), id); err != nil {
				e.log.WithError(err).Debug("cf: popular zset write failed")
				break
			}
		}
		if err := e.cache.Expire(ctx, popularZSetKey, time.Hour); err != nil {
			e.log.WithError(err).Debug("cf: popular zset expire failed")
		}
	}
	return ids
}

// coldStartRandom 在最近内容池里做确定性洗牌，种子取自用户 ID 的 FNV 哈希。
// 同一用户同一内容池产出稳定，不同用户看到不同顺序。
func (e *Engine) coldStartRandom(ctx context.Context, userID string, cfg core.RecConfig) []core.RecommendationResult {
	ids := e.recentItemIDs(ctx, cfg.MaxRecommendations*3)
	if len(ids) == 0 {
		return nil
	}

	h := fnv.New32a()
	h.Write([]byte(userID))
	rng := rand.New(rand.NewSource(int64(h.Sum32())))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	if len(ids) > cfg.MaxRecommendations*2 {
		ids = ids[:cfg.MaxRecommendations*2]
	}
	results := make([]core.RecommendationResult, 0, len(ids))
	for i, id := range ids {
		score := 1.0 - float64(i)/float64(len(ids)+1)
		results = append(results, coldStartResult(id, score, "Something new to explore"))
	}
	return results
}

// recentItemIDs 返回最近 48h 的内容 ID（按时间降序），最后的兜底数据源。
func (e *Engine) recentItemIDs(ctx context.Context, limit int) []string {
	if e.posts == nil {
		return nil
	}
	posts, err := e.posts.FindPosts(ctx, core.PostFilter{
		Since: e.now().Add(-48 * time.Hour),
		Limit: limit,
	})
	if err != nil {
		e.log.WithError(err).Warn("cf: recent posts fetch failed")
		return nil
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i] == nil {
			return false
		}
		if posts[j] == nil {
			return true
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if p != nil {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func coldStartResult(itemID string, score float64, reason string) core.RecommendationResult {
	return core.RecommendationResult{
		ItemID:     itemID,
		Score:      core.Clamp01(score),
		Method:     core.MethodColdStart,
		Reasons:    []string{reason},
		Confidence: 0.3,
		Novelty:    0.8,
	}
}
