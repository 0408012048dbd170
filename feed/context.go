package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spotlightx/feedkit/core"
)

// BuildUserContext 组装一次排序请求的用户视图：
// 关注集合、近期互动日志（最多 100 条 / 7 天）、主题直方图、
// 兴趣向量与会话信号。
//
// 降级规则：社交图失败返回错误（Feed 没有关注集合无从谈起，
// 上层会转入时间序兜底）；互动日志与兴趣向量失败只降级对应信号。
func (r *Ranker) BuildUserContext(ctx context.Context, userID string) (*core.UserContext, error) {
	uctx := core.NewUserContext(userID)
	now := r.now()

	following, err := r.graph.GetFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range following {
		uctx.Following[id] = struct{}{}
	}

	r.attachEngagements(ctx, uctx, now)

	if r.features != nil {
		vec, err := r.features.UserEmbedding(ctx, userID)
		if err != nil {
			r.log.WithError(err).WithField("user_id", userID).Debug("feed: interest vector unavailable")
		} else {
			uctx.InterestVector = vec
		}
	}

	uctx.Session = core.SessionSignals{
		HourOfDay: now.Hour(),
		Weekend:   now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
	}
	return uctx, nil
}

// attachEngagements 拉取近期互动，回填作者/主题信息并累计主题直方图。
// 优先读有界偏好事件列表（RecordFeedback 写入的近期信号，省一次
// 交互存储查询），列表为空或不可用时回退到交互存储。
func (r *Ranker) attachEngagements(ctx context.Context, uctx *core.UserContext, now time.Time) {
	recs := r.loadPrefEvents(ctx, uctx.UserID, now)
	if len(recs) == 0 {
		var err error
		recs, err = r.inter.FindInteractions(ctx, core.InteractionFilter{
			UserID: uctx.UserID,
			Since:  now.Add(-7 * 24 * time.Hour),
			Limit:  100,
		})
		if err != nil {
			r.log.WithError(err).WithField("user_id", uctx.UserID).Debug("feed: engagement log unavailable")
			return
		}
	}
	if len(recs) == 0 {
		return
	}

	ids := make([]string, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, ok := seen[rec.TargetID]; ok {
			continue
		}
		seen[rec.TargetID] = struct{}{}
		ids = append(ids, rec.TargetID)
	}

	meta := make(map[string]*core.Candidate, len(ids))
	if posts, err := r.posts.FindPosts(ctx, core.PostFilter{IDs: ids}); err == nil {
		for _, p := range posts {
			if p != nil {
				meta[p.ID] = p
			}
		}
	}

	for _, rec := range recs {
		e := core.Engagement{
			Type:      rec.Type,
			TargetID:  rec.TargetID,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Metadata != nil {
			if v, ok := rec.Metadata["dwell_ms"].(float64); ok {
				e.DwellMs = int64(v)
			}
		}
		if post, ok := meta[rec.TargetID]; ok {
			e.AuthorID = post.AuthorID
			e.Topics = post.Topics
			for _, topic := range post.Topics {
				uctx.TopicHistogram[topic]++
			}
		}
		uctx.Engagements = append(uctx.Engagements, e)
	}
}

// loadPrefEvents 从偏好列表读取紧凑事件并还原为交互记录。
// 缓存不可用、列表为空或事件超出 7 天窗口的都跳过。
func (r *Ranker) loadPrefEvents(ctx context.Context, userID string, now time.Time) []core.Interaction {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.LRange(ctx, prefsKeyPrefix+userID, 0, prefsMaxEvents-1)
	if err != nil || len(raw) == 0 {
		return nil
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	out := make([]core.Interaction, 0, len(raw))
	for _, data := range raw {
		var ev struct {
			TargetID  string               `json:"target_id"`
			Type      core.InteractionType `json:"type"`
			DwellMs   int64                `json:"dwell_ms"`
			CreatedAt int64                `json:"created_at"`
		}
		if json.Unmarshal(data, &ev) != nil || ev.TargetID == "" {
			continue
		}
		at := time.Unix(ev.CreatedAt, 0)
		if at.Before(cutoff) {
			continue
		}
		rec := core.Interaction{
			UserID:    userID,
			TargetID:  ev.TargetID,
			Type:      ev.Type,
			CreatedAt: at,
		}
		if ev.DwellMs > 0 {
			rec.Metadata = map[string]any{"dwell_ms": float64(ev.DwellMs)}
		}
		out = append(out, rec)
	}
	return out
}
