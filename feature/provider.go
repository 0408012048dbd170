// Package feature 提供用户兴趣向量的来源抽象：
// 可以来自在线特征库（Feast），也可以从近期互动内容的嵌入即时派生。
package feature

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotlightx/feedkit/core"
)

// Provider 提供用户兴趣向量。返回空向量表示"冷用户"，不是错误。
type Provider interface {
	UserEmbedding(ctx context.Context, userID string) ([]float64, error)
}

// EngagementProvider 从用户近期正向互动内容的嵌入派生兴趣向量（均值）。
// 结果缓存 1h；没有足够互动时返回空向量。
type EngagementProvider struct {
	Interactions core.InteractionStore
	Posts        core.ContentStore
	Cache        core.Store // 可为空
	Log          *logrus.Logger

	// Window 参与派生的互动时间窗，默认 7 天
	Window time.Duration
	// MaxEvents 参与派生的互动上限，默认 100
	MaxEvents int

	Now func() time.Time
}

func (p *EngagementProvider) UserEmbedding(ctx context.Context, userID string) ([]float64, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, "feature: empty user id")
	}
	key := "feature:interest:" + userID
	if p.Cache != nil {
		if data, err := p.Cache.Get(ctx, key); err == nil {
			var vec []float64
			if json.Unmarshal(data, &vec) == nil {
				return vec, nil
			}
		}
	}

	vec, err := p.derive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.Cache != nil && len(vec) > 0 {
		if data, err := json.Marshal(vec); err == nil {
			if err := p.Cache.Set(ctx, key, data, 3600); err != nil && p.Log != nil {
				p.Log.WithError(err).Debug("feature: interest cache write failed")
			}
		}
	}
	return vec, nil
}

func (p *EngagementProvider) derive(ctx context.Context, userID string) ([]float64, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	window := p.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	maxEvents := p.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 100
	}

	recs, err := p.Interactions.FindInteractions(ctx, core.InteractionFilter{
		UserID: userID,
		Types: []core.InteractionType{
			core.InteractionClick, core.InteractionLike,
			core.InteractionRepost, core.InteractionReply,
		},
		Since: now.Add(-window),
		Limit: maxEvents,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 || p.Posts == nil {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.TargetID]; ok {
			continue
		}
		seen[r.TargetID] = struct{}{}
		ids = append(ids, r.TargetID)
	}
	sort.Strings(ids)

	posts, err := p.Posts.FindPosts(ctx, core.PostFilter{IDs: ids})
	if err != nil {
		return nil, err
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
		return nil, nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum, nil
}

var _ Provider = (*EngagementProvider)(nil)
