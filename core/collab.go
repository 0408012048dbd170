package core

import (
	"context"
	"time"
)

// InteractionType 是交互事件类型。
// 前五种参与隐式评分；skip/report/share 只出现在反馈记录里。
type InteractionType string

const (
	InteractionView   InteractionType = "view"
	InteractionClick  InteractionType = "click"
	InteractionLike   InteractionType = "like"
	InteractionRepost InteractionType = "repost"
	InteractionReply  InteractionType = "reply"

	InteractionSkip   InteractionType = "skip"
	InteractionReport InteractionType = "report"
	InteractionShare  InteractionType = "share"
)

// ImplicitRating 把交互类型转换为 [0,1] 的隐式评分。
// 固定映射：view=0.1 click=0.3 like=0.7 repost=0.8 reply=0.9，
// 乘以 weight，再按停留时长加成（最多 +0.3）。
// 不变量：评分随交互强度单调不减（view < click < like < repost < reply）。
func ImplicitRating(typ InteractionType, weight float64, dwellMs int64) float64 {
	var base float64
	switch typ {
	case InteractionView:
		base = 0.1
	case InteractionClick:
		base = 0.3
	case InteractionLike:
		base = 0.7
	case InteractionRepost:
		base = 0.8
	case InteractionReply:
		base = 0.9
	default:
		return 0
	}
	if weight <= 0 {
		weight = 1
	}
	rating := base * weight
	if dwellMs > 0 {
		// 停留 30s 及以上给满 0.3 加成
		boost := float64(dwellMs) / 30000.0
		if boost > 1 {
			boost = 1
		}
		rating += 0.3 * boost
	}
	return Clamp01(rating)
}

// Interaction 是一条原始交互事件。
type Interaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	TargetID   string          `json:"target_id"`
	TargetType string          `json:"target_type"` // post / user
	Type       InteractionType `json:"type"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// InteractionFilter 是交互查询条件，零值字段不参与过滤。
type InteractionFilter struct {
	UserID   string
	TargetID string
	Types    []InteractionType
	Since    time.Time
	Limit    int
}

// InteractionStore 是交互存储的领域接口（外部协作方）。
type InteractionStore interface {
	FindInteractions(ctx context.Context, f InteractionFilter) ([]Interaction, error)
	CreateInteraction(ctx context.Context, rec Interaction) error
	CountInteractions(ctx context.Context, f InteractionFilter) (int64, error)
}

// PostFilter 是内容查询条件，零值字段不参与过滤。
type PostFilter struct {
	IDs              []string
	AuthorIDs        []string
	ExcludeAuthorIDs []string
	Since            time.Time
	Limit            int
}

// ContentStore 是内容存储的领域接口（外部协作方），返回的候选在本次排序中只读。
type ContentStore interface {
	FindPosts(ctx context.Context, f PostFilter) ([]*Candidate, error)
}

// SocialGraph 提供用户的关注列表（外部协作方）。
type SocialGraph interface {
	GetFollowing(ctx context.Context, userID string) ([]string, error)
}

// TrendingTopic 是一个趋势话题及其速度（单位时间内的讨论增量）。
type TrendingTopic struct {
	Topic    string  `json:"topic"`
	Velocity float64 `json:"velocity"`
}

// TrendingSource 提供当前趋势话题，trending 信号与趋势召回只读消费。
type TrendingSource interface {
	GetTrendingTopics(ctx context.Context, limit int, window time.Duration) ([]TrendingTopic, error)
}

// Queue 是后台任务队列（相似度重算、训练信号）。
// fire-and-forget：入队不得阻塞响应路径，至多一次投递可接受，
// 丢失的重算会在下一次缓存未命中时按需自愈。
type Queue interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}
