package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spotlightx/feedkit/core"
)

// 每用户偏好事件列表：最新 100 条，24h 过期。
const (
	prefsKeyPrefix = "prefs:"
	prefsMaxEvents = 100
	prefsTTL       = 24 * time.Hour
)

// Feedback 是一条用户反馈事件。
type Feedback struct {
	UserID   string               `json:"user_id"`
	TargetID string               `json:"target_id"`
	Type     core.InteractionType `json:"type"`
	DwellMs  int64                `json:"dwell_ms,omitempty"`

	// Position 是内容在 Feed 中的名次（1-based，可选），供离线归因
	Position int `json:"position,omitempty"`
}

// RecordFeedback 记录一条反馈：持久化交互、追加有界偏好事件列表、
// 交互量到阈值时发出重训练信号。
//
// 偏好列表与重训练信号都是尽力而为，失败只记日志；
// 交互持久化失败才向调用方返回错误。
func (r *Ranker) RecordFeedback(ctx context.Context, fb Feedback) error {
	if fb.UserID == "" || fb.TargetID == "" {
		return core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feed: empty user or target id")
	}
	if fb.Type == "" {
		return core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feed: empty feedback type")
	}

	now := r.now()
	metadata := map[string]any{
		"rating": core.ImplicitRating(fb.Type, 1, fb.DwellMs),
	}
	if fb.DwellMs > 0 {
		metadata["dwell_ms"] = float64(fb.DwellMs)
	}
	if fb.Position > 0 {
		metadata["position"] = float64(fb.Position)
	}

	rec := core.Interaction{
		ID:         uuid.NewString(),
		UserID:     fb.UserID,
		TargetID:   fb.TargetID,
		TargetType: "post",
		Type:       fb.Type,
		Metadata:   metadata,
		CreatedAt:  now,
	}
	if err := r.inter.CreateInteraction(ctx, rec); err != nil {
		return err
	}

	r.appendPrefEvent(ctx, fb, now)
	r.InvalidateFeed(ctx, fb.UserID)
	r.maybeSignalRetraining(ctx, fb.UserID)
	return nil
}

// appendPrefEvent 把紧凑事件推入用户的偏好列表并截断到上限。
func (r *Ranker) appendPrefEvent(ctx context.Context, fb Feedback, now time.Time) {
	if r.cache == nil {
		return
	}
	event, _ := json.Marshal(map[string]any{
		"target_id":  fb.TargetID,
		"type":       fb.Type,
		"dwell_ms":   fb.DwellMs,
		"created_at": now.Unix(),
	})

	key := prefsKeyPrefix + fb.UserID
	if err := r.cache.LPush(ctx, key, event); err != nil {
		r.log.WithError(err).Debug("feed: pref event push failed")
		return
	}
	if err := r.cache.LTrim(ctx, key, 0, prefsMaxEvents-1); err != nil {
		r.log.WithError(err).Debug("feed: pref list trim failed")
	}
	if err := r.cache.Expire(ctx, key, prefsTTL); err != nil {
		r.log.WithError(err).Debug("feed: pref list expire failed")
	}
}

// maybeSignalRetraining 在用户交互量跨过 100 后每 50 条发一次重训练信号。
func (r *Ranker) maybeSignalRetraining(ctx context.Context, userID string) {
	if r.queue == nil {
		return
	}
	count, err := r.inter.CountInteractions(ctx, core.InteractionFilter{UserID: userID})
	if err != nil {
		r.log.WithError(err).Debug("feed: interaction count failed")
		return
	}
	if count <= 100 || count%50 != 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"user_id":           userID,
		"interaction_count": count,
	})
	if err := r.queue.Enqueue(ctx, QueueTrainingSignals, payload); err != nil {
		r.log.WithError(err).Debug("feed: training signal enqueue failed")
	}
}
