package cf

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/spotlightx/feedkit/core"
)

// CalculateUserSimilarity 计算一对用户的相似度。
// 任一用户交互数低于 MinInteractions，或共同评分物品数低于 MinSharedItems
// 时返回 (nil, nil)：数据不足是"未知"，不是零相似，调用方必须显式处理 nil 分支。
// 结果按规范化对 (a<b) 缓存 24h，并发计算经 single-flight 去重；
// force 跳过缓存读，强制现算（仍会回写缓存）。
func (e *Engine) CalculateUserSimilarity(ctx context.Context, userA, userB string, force bool) (*core.UserSimilarity, error) {
	if userA == "" || userB == "" {
		return nil, core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidInput, "cf: empty user id")
	}
	if userA == userB {
		return nil, nil
	}
	a, b := core.CanonicalPair(userA, userB)
	key := userSimKey(a, b)

	if e.cache != nil && !force {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var sim core.UserSimilarity
			if json.Unmarshal(data, &sim) == nil {
				return &sim, nil
			}
		}
	}

	v, err, _ := e.sf.Do(key, func() (any, error) {
		return e.computeUserSimilarity(ctx, a, b)
	})
	if err != nil {
		return nil, err
	}
	sim, _ := v.(*core.UserSimilarity)

	if sim != nil && e.cache != nil {
		if data, err := json.Marshal(sim); err == nil {
			if err := e.cache.Set(ctx, key, data, simTTL); err != nil {
				e.log.WithError(err).Debug("cf: similarity cache write failed")
			}
		}
	}
	return sim, nil
}

func (e *Engine) computeUserSimilarity(ctx context.Context, a, b string) (*core.UserSimilarity, error) {
	pa, err := e.UserProfile(ctx, a)
	if err != nil {
		return nil, err
	}
	pb, err := e.UserProfile(ctx, b)
	if err != nil {
		return nil, err
	}
	// 任一侧交互数不足阈值即视为冷用户，相似度未知
	if pa.InteractionCount < e.config.MinInteractions || pb.InteractionCount < e.config.MinInteractions {
		return nil, nil
	}

	shared := sharedKeys(pa.Ratings, pb.Ratings)
	if len(shared) < e.config.MinSharedItems {
		return nil, nil
	}

	sim := e.sparseSimilarity(pa.Ratings, pb.Ratings, shared)
	return &core.UserSimilarity{
		UserA:       a,
		UserB:       b,
		Similarity:  sim,
		SharedItems: len(shared),
		Confidence:  confidence(len(shared)),
		UpdatedAt:   e.now(),
	}, nil
}

// CalculateItemSimilarity 计算一对物品的相似度。
// 行为评分相似度与内容特征相似度按 70/30 混合；内容特征缺失时
// 只用行为侧。共同用户数不足返回 nil。force 跳过缓存读，强制现算。
func (e *Engine) CalculateItemSimilarity(ctx context.Context, itemA, itemB string, force bool) (*core.ItemSimilarity, error) {
	if itemA == "" || itemB == "" {
		return nil, core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidInput, "cf: empty item id")
	}
	if itemA == itemB {
		return nil, nil
	}
	a, b := core.CanonicalPair(itemA, itemB)
	key := itemSimKey(a, b)

	if e.cache != nil && !force {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var sim core.ItemSimilarity
			if json.Unmarshal(data, &sim) == nil {
				return &sim, nil
			}
		}
	}

	v, err, _ := e.sf.Do(key, func() (any, error) {
		return e.computeItemSimilarity(ctx, a, b)
	})
	if err != nil {
		return nil, err
	}
	sim, _ := v.(*core.ItemSimilarity)

	if sim != nil && e.cache != nil {
		if data, err := json.Marshal(sim); err == nil {
			if err := e.cache.Set(ctx, key, data, simTTL); err != nil {
				e.log.WithError(err).Debug("cf: similarity cache write failed")
			}
		}
	}
	return sim, nil
}

func (e *Engine) computeItemSimilarity(ctx context.Context, a, b string) (*core.ItemSimilarity, error) {
	pa, err := e.ItemProfile(ctx, a)
	if err != nil {
		return nil, err
	}
	pb, err := e.ItemProfile(ctx, b)
	if err != nil {
		return nil, err
	}

	shared := sharedKeys(pa.Ratings, pb.Ratings)
	if len(shared) < e.config.MinSharedUsers {
		return nil, nil
	}

	behavioral := e.sparseSimilarity(pa.Ratings, pb.Ratings, shared)
	sim := behavioral
	if len(pa.Features) > 0 && len(pb.Features) > 0 {
		sim = 0.7*behavioral + 0.3*core.Cosine(pa.Features, pb.Features)
	}

	return &core.ItemSimilarity{
		ItemA:       a,
		ItemB:       b,
		Similarity:  sim,
		SharedUsers: len(shared),
		Confidence:  confidence(len(shared)),
		UpdatedAt:   e.now(),
	}, nil
}

// FindSimilarUsers 返回与目标用户最相似的 limit 个用户。
// 候选来自共同交互物品上的其他用户（上限 200），排序键：
// 相似度降序 → 共同物品数降序 → 用户 ID 升序，保证结果可复现。
// 排好序的结果按 (user, limit) 缓存 6h，写路径负责失效。
func (e *Engine) FindSimilarUsers(ctx context.Context, userID string, limit int) ([]core.UserSimilarity, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidInput, "cf: empty user id")
	}
	if limit <= 0 {
		limit = 10
	}

	key := simUsersKey(userID, limit)
	if e.cache != nil {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var out []core.UserSimilarity
			if json.Unmarshal(data, &out) == nil {
				return out, nil
			}
		}
	}

	profile, err := e.UserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.InteractionCount < e.config.MinInteractions {
		return nil, nil
	}

	candidates, err := e.coInteractors(ctx, userID, profile)
	if err != nil {
		return nil, err
	}

	out := make([]core.UserSimilarity, 0, limit)
	for _, other := range candidates {
		sim, err := e.CalculateUserSimilarity(ctx, userID, other, false)
		if err != nil {
			// 单个候选失败不拖垮整次查找
			e.log.WithError(err).WithField("user_id", other).Debug("cf: similarity calc failed")
			continue
		}
		if sim == nil || sim.Similarity < e.config.MinSimilarity {
			continue
		}
		out = append(out, *sim)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].SharedItems != out[j].SharedItems {
			return out[i].SharedItems > out[j].SharedItems
		}
		return otherUser(out[i], userID) < otherUser(out[j], userID)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	if e.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := e.cache.Set(ctx, key, data, simUsersTTL); err != nil {
				e.log.WithError(err).Debug("cf: similar users cache write failed")
			}
		}
	}
	return out, nil
}

// coInteractors 收集与目标用户交互过同一批物品的其他用户，去重排序，上限 200。
func (e *Engine) coInteractors(ctx context.Context, userID string, profile *core.UserProfile) ([]string, error) {
	const maxCandidates = 200

	// 先看评分最高的物品，那里的同道中人信号最强
	items := make([]string, 0, len(profile.Ratings))
	for id := range profile.Ratings {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool {
		if profile.Ratings[items[i]] != profile.Ratings[items[j]] {
			return profile.Ratings[items[i]] > profile.Ratings[items[j]]
		}
		return items[i] < items[j]
	})

	seen := make(map[string]struct{}, maxCandidates)
	out := make([]string, 0, maxCandidates)
	for _, itemID := range items {
		if len(out) >= maxCandidates {
			break
		}
		recs, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
			TargetID: itemID,
			Limit:    100,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.UserID == userID {
				continue
			}
			if _, ok := seen[r.UserID]; ok {
				continue
			}
			seen[r.UserID] = struct{}{}
			out = append(out, r.UserID)
			if len(out) >= maxCandidates {
				break
			}
		}
	}
	return out, nil
}

func otherUser(s core.UserSimilarity, self string) string {
	if s.UserA == self {
		return s.UserB
	}
	return s.UserA
}

// sparseSimilarity 在共同 key 上计算稀疏向量相似度。
// cosine 在隐式全正评分下总为正；pearson 对评分尺度差异更鲁棒但可能为负，
// 负相关在推荐里按不相似处理（截到 0）。
func (e *Engine) sparseSimilarity(a, b map[string]float64, shared []string) float64 {
	if e.config.SimilarityMetric == "pearson" {
		return math.Max(0, sparsePearson(a, b, shared))
	}
	return sparseCosine(a, b, shared)
}

func sparseCosine(a, b map[string]float64, shared []string) float64 {
	var dot, na, nb float64
	for _, k := range shared {
		dot += a[k] * b[k]
		na += a[k] * a[k]
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sparsePearson(a, b map[string]float64, shared []string) float64 {
	n := float64(len(shared))
	if n == 0 {
		return 0
	}
	var meanA, meanB float64
	for _, k := range shared {
		meanA += a[k]
		meanB += b[k]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for _, k := range shared {
		da, db := a[k]-meanA, b[k]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / (math.Sqrt(varA) * math.Sqrt(varB))
}

func sharedKeys(a, b map[string]float64) []string {
	// 遍历小的一侧
	if len(b) < len(a) {
		a, b = b, a
	}
	shared := make([]string, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			shared = append(shared, k)
		}
	}
	sort.Strings(shared)
	return shared
}

// confidence 随共同实体数线性增长，20 个及以上为满置信。
func confidence(shared int) float64 {
	c := float64(shared) / 20.0
	if c > 1 {
		c = 1
	}
	return c
}
