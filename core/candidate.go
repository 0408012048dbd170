package core

import (
	"time"

	"github.com/spotlightx/feedkit/pkg/utils"
)

// AuthorType 区分内容作者是真实用户还是合成 persona。
type AuthorType string

const (
	AuthorUser    AuthorType = "user"
	AuthorPersona AuthorType = "persona"
)

// Candidate 是推荐链路中的统一承载结构：一条可进入排序的内容。
// 每次排序请求从内容存储新鲜拉取，链路内只读（Score/Signals/Labels 除外）。
type Candidate struct {
	ID         string
	AuthorID   string
	AuthorType AuthorType
	Content    string
	Embedding  []float64 // 语义向量，可为空
	CreatedAt  time.Time
	Topics     []string
	ThreadID   string
	ParentID   string

	// 互动计数（拉取时的快照）
	Likes   int64
	Reposts int64
	Replies int64
	Views   int64

	// Score 是链路当前分数：召回权重 → 六信号加权终分
	Score float64

	// Signals 在 rank 阶段填充
	Signals *RankingSignals

	// Labels 记录链路轨迹（召回源、过滤原因、实验桶等），用于 explain 与观测
	Labels map[string]utils.Label

	Meta map[string]any
}

func NewCandidate(id string) *Candidate {
	return &Candidate{
		ID:     id,
		Labels: make(map[string]utils.Label),
		Meta:   make(map[string]any),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// EngagementTotal 返回点赞+转发+回复之和。
func (c *Candidate) EngagementTotal() int64 {
	return c.Likes + c.Reposts + c.Replies
}

// AgeAt 返回内容在 now 时刻的年龄；未来时间戳按 0 处理。
func (c *Candidate) AgeAt(now time.Time) time.Duration {
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// RankingSignals 是单条候选的六个信号分 + 两个辅助分，全部限制在 [0,1]。
// 每次排序重新计算，不持久化。PersonalBoost/NetworkProximity 只作为 social
// 信号的输入，不参与加权。
type RankingSignals struct {
	Relevance float64 `json:"relevance"`
	Social    float64 `json:"social"`
	Freshness float64 `json:"freshness"`
	Quality   float64 `json:"quality"`
	Diversity float64 `json:"diversity"`
	Trending  float64 `json:"trending"`

	PersonalBoost    float64 `json:"personal_boost"`
	NetworkProximity float64 `json:"network_proximity"`
}

// WeightedSum 按权重求终分。权重是相对值，不要求归一化。
func (s *RankingSignals) WeightedSum(w ScoringWeights) float64 {
	return s.Relevance*w.Relevance +
		s.Social*w.Social +
		s.Freshness*w.Freshness +
		s.Quality*w.Quality +
		s.Diversity*w.Diversity +
		s.Trending*w.Trending
}

// Clamp01 把 v 收敛到 [0,1]，所有信号写入前都必须经过它。
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RankedContent 是排序产出：候选 + 终分 + 信号 + 名次 + 解释。
// 生命周期：排序结束时创建，短 TTL 序列化进缓存，过期或显式失效后丢弃。
type RankedContent struct {
	Candidate  *Candidate     `json:"candidate"`
	FinalScore float64        `json:"final_score"`
	Signals    RankingSignals `json:"signals"`
	Rank       int            `json:"rank"` // 1-based
	Reasons    []string       `json:"reasons,omitempty"`
	Experiment string         `json:"experiment,omitempty"` // "{实验名}:{变体}"
}
