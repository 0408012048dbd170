package core

import (
	"time"

	"github.com/spotlightx/feedkit/pkg/utils"
)

// Engagement 是用户近期互动日志中的一条事件（构建 UserContext 时拉取）。
type Engagement struct {
	Type      InteractionType `json:"type"`
	TargetID  string          `json:"target_id"`
	AuthorID  string          `json:"author_id,omitempty"` // 目标内容的作者，用于亲和度统计
	Topics    []string        `json:"topics,omitempty"`
	DwellMs   int64           `json:"dwell_ms,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Positive 返回该事件是否为正向互动（点赞/转发/回复）。
func (e Engagement) Positive() bool {
	switch e.Type {
	case InteractionLike, InteractionRepost, InteractionReply:
		return true
	}
	return false
}

// SessionSignals 是会话级信号：设备、时段、是否周末。
type SessionSignals struct {
	DeviceClass string `json:"device_class,omitempty"` // mobile / desktop / tablet
	HourOfDay   int    `json:"hour_of_day"`
	Weekend     bool   `json:"weekend"`
}

// UserContext 是请求级的用户视图，每次排序请求新建，贯穿整个 Pipeline 透传。
// 不整体持久化；其中派生出的兴趣向量可以单独缓存。
type UserContext struct {
	UserID string

	// InterestVector 是从近期互动派生的兴趣向量（懒计算，可为空）
	InterestVector []float64

	// Following 是已关注作者集合
	Following map[string]struct{}

	// Engagements 是有界的近期互动日志（最多 100 条，最近 7 天）
	Engagements []Engagement

	// TopicHistogram 是近期互动主题的权重分布，驱动 diversity 信号
	TopicHistogram map[string]float64

	Session SessionSignals

	// Labels 是用户级标签（实验桶、人群标记等），可驱动 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

func NewUserContext(userID string) *UserContext {
	return &UserContext{
		UserID:         userID,
		Following:      make(map[string]struct{}),
		TopicHistogram: make(map[string]float64),
		Labels:         make(map[string]utils.Label),
		Params:         make(map[string]any),
	}
}

// Follows 返回用户是否关注了 authorID。
func (u *UserContext) Follows(authorID string) bool {
	if u == nil || u.Following == nil {
		return false
	}
	_, ok := u.Following[authorID]
	return ok
}

// PositiveAuthorCount 返回近期互动日志中对该作者的正向互动次数。
func (u *UserContext) PositiveAuthorCount(authorID string) int {
	if u == nil {
		return 0
	}
	n := 0
	for _, e := range u.Engagements {
		if e.AuthorID == authorID && e.Positive() {
			n++
		}
	}
	return n
}

// PutLabel 写入用户级 Label。
func (u *UserContext) PutLabel(key string, lbl utils.Label) {
	if u.Labels == nil {
		u.Labels = make(map[string]utils.Label)
	}
	if old, ok := u.Labels[key]; ok {
		u.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	u.Labels[key] = lbl
}
