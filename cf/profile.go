package cf

import (
	"context"
	"encoding/json"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/metrics"
)

// UserProfile 返回用户画像：itemID → 隐式评分。
// 画像按需从交互存储重建并缓存 1h，不做增量维护，
// 写路径的失效保证下一次读到新画像。
func (e *Engine) UserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	key := userProfileKey(userID)
	if e.cache != nil {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var p core.UserProfile
			if json.Unmarshal(data, &p) == nil {
				metrics.CacheHits.WithLabelValues("cf_profile").Inc()
				return &p, nil
			}
		} else {
			metrics.CacheMisses.WithLabelValues("cf_profile").Inc()
		}
	}

	p, err := e.buildUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := e.cache.Set(ctx, key, data, profileTTL); err != nil {
				e.log.WithError(err).Debug("cf: profile cache write failed")
			}
		}
	}
	return p, nil
}

func (e *Engine) buildUserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	recs, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
		UserID: userID,
		Types: []core.InteractionType{
			core.InteractionView, core.InteractionClick,
			core.InteractionLike, core.InteractionRepost, core.InteractionReply,
		},
		Limit: 500,
	})
	if err != nil {
		return nil, err
	}

	ratings := make(map[string]float64, len(recs))
	for _, r := range recs {
		rating := ratingOf(r)
		// 同一物品多次交互取最强信号
		if rating > ratings[r.TargetID] {
			ratings[r.TargetID] = rating
		}
	}

	p := &core.UserProfile{
		UserID:           userID,
		Ratings:          ratings,
		InteractionCount: len(recs),
		UpdatedAt:        e.now(),
	}
	p.Preference = e.preferenceVector(ctx, ratings)
	return p, nil
}

// preferenceVector 是用户互动过内容嵌入的均值，嵌入缺失时为空。
func (e *Engine) preferenceVector(ctx context.Context, ratings map[string]float64) []float64 {
	if e.posts == nil || len(ratings) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ratings))
	for id := range ratings {
		ids = append(ids, id)
	}
	posts, err := e.posts.FindPosts(ctx, core.PostFilter{IDs: ids})
	if err != nil {
		return nil
	}

	var sum []float64
	var n int
	for _, post := range posts {
		if post == nil || len(post.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(post.Embedding))
		}
		if len(post.Embedding) != len(sum) {
			continue
		}
		for i, v := range post.Embedding {
			sum[i] += v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}

// ItemProfile 返回物品画像：userID → 隐式评分，附带内容特征与质量统计。
func (e *Engine) ItemProfile(ctx context.Context, itemID string) (*core.ItemProfile, error) {
	key := itemProfileKey(itemID)
	if e.cache != nil {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var p core.ItemProfile
			if json.Unmarshal(data, &p) == nil {
				metrics.CacheHits.WithLabelValues("cf_profile").Inc()
				return &p, nil
			}
		} else {
			metrics.CacheMisses.WithLabelValues("cf_profile").Inc()
		}
	}

	recs, err := e.interactions.FindInteractions(ctx, core.InteractionFilter{
		TargetID: itemID,
		Types: []core.InteractionType{
			core.InteractionView, core.InteractionClick,
			core.InteractionLike, core.InteractionRepost, core.InteractionReply,
		},
		Limit: 1000,
	})
	if err != nil {
		return nil, err
	}

	ratings := make(map[string]float64, len(recs))
	var sum float64
	for _, r := range recs {
		rating := ratingOf(r)
		if rating > ratings[r.UserID] {
			ratings[r.UserID] = rating
		}
	}
	for _, v := range ratings {
		sum += v
	}

	p := &core.ItemProfile{
		ItemID:     itemID,
		Ratings:    ratings,
		Popularity: len(ratings),
		UpdatedAt:  e.now(),
	}
	if len(ratings) > 0 {
		p.Quality = sum / float64(len(ratings))
	}
	if e.posts != nil {
		if posts, err := e.posts.FindPosts(ctx, core.PostFilter{IDs: []string{itemID}}); err == nil {
			for _, post := range posts {
				if post != nil && post.ID == itemID {
					p.Features = post.Embedding
					break
				}
			}
		}
	}

	if e.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := e.cache.Set(ctx, key, data, profileTTL); err != nil {
				e.log.WithError(err).Debug("cf: profile cache write failed")
			}
		}
	}
	return p, nil
}

// ratingOf 优先读写入时固化在 metadata 里的评分，缺省时重算。
func ratingOf(r core.Interaction) float64 {
	if r.Metadata != nil {
		if v, ok := r.Metadata["rating"].(float64); ok && v > 0 {
			return core.Clamp01(v)
		}
	}
	var dwellMs int64
	if r.Metadata != nil {
		if v, ok := r.Metadata["dwell_ms"].(float64); ok {
			dwellMs = int64(v)
		}
	}
	return core.ImplicitRating(r.Type, 1, dwellMs)
}
