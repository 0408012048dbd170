package cf

import (
	"context"
	"fmt"
	"sort"

	"github.com/spotlightx/feedkit/core"
)

// userBased：找相似用户，把他们评过分而本人没见过的物品按
// 相似度加权评分聚合。
func (e *Engine) userBased(ctx context.Context, profile *core.UserProfile, cfg core.RecConfig) ([]core.RecommendationResult, error) {
	similar, err := e.FindSimilarUsers(ctx, profile.UserID, 50)
	if err != nil {
		return nil, err
	}
	if len(similar) == 0 {
		return nil, nil
	}

	type contribution struct {
		weighted   float64
		weightSum  float64
		confidence float64
		users      []string
	}
	byItem := make(map[string]*contribution, 128)

	for _, sim := range similar {
		other := otherUser(sim, profile.UserID)
		op, err := e.UserProfile(ctx, other)
		if err != nil {
			continue
		}
		w := sim.Similarity * sim.Confidence
		for itemID, rating := range op.Ratings {
			if _, seen := profile.Ratings[itemID]; seen {
				continue
			}
			c := byItem[itemID]
			if c == nil {
				c = &contribution{}
				byItem[itemID] = c
			}
			c.weighted += w * rating
			c.weightSum += w
			if sim.Confidence > c.confidence {
				c.confidence = sim.Confidence
			}
			if len(c.users) < 3 {
				c.users = append(c.users, other)
			}
		}
	}

	results := make([]core.RecommendationResult, 0, len(byItem))
	for itemID, c := range byItem {
		if c.weightSum == 0 {
			continue
		}
		results = append(results, core.RecommendationResult{
			ItemID:       itemID,
			Score:        core.Clamp01(c.weighted / c.weightSum),
			Method:       core.MethodUserBased,
			SimilarUsers: c.users,
			Reasons:      []string{fmt.Sprintf("Liked by %d users with similar taste", len(c.users))},
			Confidence:   c.confidence,
		})
	}
	sortResults(results)
	return results, nil
}

// itemBased：对用户高分历史物品，找行为+内容相似的物品加权聚合。
func (e *Engine) itemBased(ctx context.Context, profile *core.UserProfile, cfg core.RecConfig) ([]core.RecommendationResult, error) {
	seeds := topRatedItems(profile, 10)
	if len(seeds) == 0 {
		return nil, nil
	}

	candidates, err := e.coRatedItems(ctx, profile, seeds)
	if err != nil {
		return nil, err
	}

	type contribution struct {
		weighted   float64
		weightSum  float64
		confidence float64
		items      []string
	}
	byItem := make(map[string]*contribution, len(candidates))

	for _, seed := range seeds {
		for _, candidate := range candidates {
			if candidate == seed {
				continue
			}
			if _, seen := profile.Ratings[candidate]; seen {
				continue
			}
			sim, err := e.CalculateItemSimilarity(ctx, seed, candidate, false)
			if err != nil {
				e.log.WithError(err).WithField("item_id", candidate).Debug("cf: item similarity failed")
				continue
			}
			if sim == nil || sim.Similarity < cfg.MinSimilarity {
				continue
			}
			w := sim.Similarity * sim.Confidence
			c := byItem[candidate]
			if c == nil {
				c = &contribution{}
				byItem[candidate] = c
			}
			c.weighted += w * profile.Ratings[seed]
			c.weightSum += w
			if sim.Confidence > c.confidence {
				c.confidence = sim.Confidence
			}
			if len(c.items) < 3 {
				c.items = append(c.items, seed)
			}
		}
	}

	results := make([]core.RecommendationResult, 0, len(byItem))
	for itemID, c := range byItem {
		if c.weightSum == 0 {
			continue
		}
		results = append(results, core.RecommendationResult{
			ItemID:       itemID,
			Score:        core.Clamp01(c.weighted / c.weightSum),
			Method:       core.MethodItemBased,
			SimilarItems: c.items,
			Reasons:      []string{fmt.Sprintf("Similar to %d items you engaged with", len(c.items))},
			Confidence:   c.confidence,
		})
	}
	sortResults(results)
	return results, nil
}

// blended：user/item 两路各自打分后 50/50 线性混合。
// 只出现在一路的物品保留该路得分的一半，混合比例不是学来的。
func (e *Engine) blended(ctx context.Context, profile *core.UserProfile, cfg core.RecConfig) ([]core.RecommendationResult, error) {
	ub, errU := e.userBased(ctx, profile, cfg)
	ib, errI := e.itemBased(ctx, profile, cfg)
	if errU != nil && errI != nil {
		return nil, errU
	}

	merged := make(map[string]*core.RecommendationResult, len(ub)+len(ib))
	for i := range ub {
		r := ub[i]
		r.Score *= 0.5
		r.Method = core.MethodBlended
		merged[r.ItemID] = &r
	}
	for i := range ib {
		r := ib[i]
		if prev, ok := merged[r.ItemID]; ok {
			prev.Score += 0.5 * r.Score
			prev.SimilarItems = r.SimilarItems
			prev.Reasons = append(prev.Reasons, r.Reasons...)
			if r.Confidence > prev.Confidence {
				prev.Confidence = r.Confidence
			}
			continue
		}
		r.Score *= 0.5
		r.Method = core.MethodBlended
		merged[r.ItemID] = &r
	}

	results := make([]core.RecommendationResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}
	sortResults(results)
	return results, nil
}

// hybrid：按各路置信度加权合并，双路命中有 10% 一致性加成。
// 一路失败时另一路的结果照常返回。
func (e *Engine) hybrid(ctx context.Context, profile *core.UserProfile, cfg core.RecConfig) ([]core.RecommendationResult, error) {
	ub, errU := e.userBased(ctx, profile, cfg)
	ib, errI := e.itemBased(ctx, profile, cfg)
	if errU != nil && errI != nil {
		return nil, errU
	}

	type tally struct {
		weighted  float64
		weightSum float64
		result    core.RecommendationResult
		hits      int
	}
	merged := make(map[string]*tally, len(ub)+len(ib))

	accumulate := func(results []core.RecommendationResult) {
		for _, r := range results {
			w := r.Confidence
			if w <= 0 {
				w = 0.05
			}
			t := merged[r.ItemID]
			if t == nil {
				t = &tally{result: r}
				merged[r.ItemID] = t
			} else {
				t.result.Reasons = append(t.result.Reasons, r.Reasons...)
				if len(r.SimilarUsers) > 0 {
					t.result.SimilarUsers = r.SimilarUsers
				}
				if len(r.SimilarItems) > 0 {
					t.result.SimilarItems = r.SimilarItems
				}
				if r.Confidence > t.result.Confidence {
					t.result.Confidence = r.Confidence
				}
			}
			t.weighted += w * r.Score
			t.weightSum += w
			t.hits++
		}
	}
	accumulate(ub)
	accumulate(ib)

	results := make([]core.RecommendationResult, 0, len(merged))
	for _, t := range merged {
		r := t.result
		r.Method = core.MethodHybrid
		score := t.weighted / t.weightSum
		if t.hits > 1 {
			score *= 1.1
		}
		r.Score = core.Clamp01(score)
		results = append(results, r)
	}
	sortResults(results)
	return results, nil
}

// coRatedItems 收集与种子物品被同一批用户评过分的其他物品，上限 300。
func (e *Engine) coRatedItems(ctx context.Context, profile *core.UserProfile, seeds []string) ([]string, error) {
	const maxCandidates = 300

	seen := make(map[string]struct{}, maxCandidates)
	out := make([]string, 0, maxCandidates)
	for _, seed := range seeds {
		if len(out) >= maxCandidates {
			break
		}
		recs, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
			TargetID: seed,
			Limit:    50,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.UserID == profile.UserID {
				continue
			}
			others, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
				UserID: r.UserID,
				Limit:  50,
			})
			if err != nil {
				continue
			}
			for _, o := range others {
				if _, ok := seen[o.TargetID]; ok {
					continue
				}
				seen[o.TargetID] = struct{}{}
				out = append(out, o.TargetID)
				if len(out) >= maxCandidates {
					break
				}
			}
			if len(out) >= maxCandidates {
				break
			}
		}
	}
	return out, nil
}

func topRatedItems(profile *core.UserProfile, limit int) []string {
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
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// sortResults 按得分降序、物品 ID 升序排序，保证结果可复现。
func sortResults(results []core.RecommendationResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
}
