package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pipeline"
	"github.com/spotlightx/feedkit/pkg/utils"
)

// AffinityProvider 提供用户对作者的亲和度（[0,1]，未知为 0）。
// 由协同过滤引擎实现；排序侧只读消费，协同过滤永远不反向依赖排序态，
// 避免两个组件之间出现环。
type AffinityProvider interface {
	UserAffinity(ctx context.Context, userID, authorID string) float64
}

// SignalsNode 是六信号排序 Node：对每条候选计算
// relevance / social / freshness / quality / diversity / trending，
// 按权重求终分并降序稳定排序（同分保持候选池原始顺序，保证确定性）。
//
// 信号之间相互独立（都是同一输入的纯函数），计算顺序无关紧要。
type SignalsNode struct {
	Weights core.ScoringWeights

	FreshnessWindow time.Duration // 默认 48h
	TrendingWindow  time.Duration // 默认 6h
	TrendingTopics  int           // 默认 20

	// Trends 可为空：没有趋势来源时 trending 信号为 0
	Trends core.TrendingSource

	// Affinity 可为空：social 信号少一个亲和度加成而已
	Affinity AffinityProvider

	// Now 便于测试注入时间，为空时取 time.Now
	Now func() time.Time
}

func (n *SignalsNode) Name() string        { return "rank.signals" }
func (n *SignalsNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *SignalsNode) Process(
	ctx context.Context,
	uctx *core.UserContext,
	items []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(items) == 0 {
		return items, nil
	}

	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}
	window := n.FreshnessWindow
	if window <= 0 {
		window = 48 * time.Hour
	}

	topics := n.fetchTrends(ctx)

	for _, it := range items {
		if it == nil {
			continue
		}
		sig := n.computeSignals(ctx, uctx, it, topics, now, window)
		it.Signals = sig
		it.Score = sig.WeightedSum(n.Weights)
		it.PutLabel("ranker", utils.Label{Value: "six_signal", Source: "rank"})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		return items[i].Score > items[j].Score
	})
	return items, nil
}

func (n *SignalsNode) fetchTrends(ctx context.Context) []core.TrendingTopic {
	if n.Trends == nil {
		return nil
	}
	limit := n.TrendingTopics
	if limit <= 0 {
		limit = 20
	}
	window := n.TrendingWindow
	if window <= 0 {
		window = 6 * time.Hour
	}
	topics, err := n.Trends.GetTrendingTopics(ctx, limit, window)
	if err != nil {
		// 趋势来源不可用 → trending 信号整体为 0，不影响请求
		return nil
	}
	return topics
}

func (n *SignalsNode) computeSignals(
	ctx context.Context,
	uctx *core.UserContext,
	it *core.Candidate,
	topics []core.TrendingTopic,
	now time.Time,
	window time.Duration,
) *core.RankingSignals {
	sig := &core.RankingSignals{}

	sig.Relevance = RelevanceScore(it, uctx)
	sig.Freshness = FreshnessScore(it.AgeAt(now), window)
	sig.Quality = QualityScore(it)
	sig.Diversity = DiversityScore(it, uctx)
	sig.Trending = TrendingScore(it, topics)

	// social：互动率 + 关注加成 + 亲和度加成
	engagementRate := float64(it.EngagementTotal()) / math.Max(float64(it.Views), 1)
	social := core.Clamp01(engagementRate)

	followed := uctx != nil && uctx.Follows(it.AuthorID)
	if followed {
		social += 0.3
	}

	var affinity float64
	if n.Affinity != nil && uctx != nil {
		affinity = core.Clamp01(n.Affinity.UserAffinity(ctx, uctx.UserID, it.AuthorID))
	}
	boost := 0.0
	if uctx != nil {
		boost = math.Min(0.2, 0.05*float64(uctx.PositiveAuthorCount(it.AuthorID)))
	}
	boost += 0.1 * affinity

	sig.PersonalBoost = core.Clamp01(boost)
	if followed {
		sig.NetworkProximity = 1
	} else {
		sig.NetworkProximity = affinity
	}
	sig.Social = core.Clamp01(social + boost)

	return sig
}

// RelevanceScore 是候选嵌入与用户兴趣向量的余弦相似度（重映射到 [0,1]）。
// 任一向量缺失时返回中性分 0.5。
func RelevanceScore(it *core.Candidate, uctx *core.UserContext) float64 {
	if it == nil || len(it.Embedding) == 0 || uctx == nil || len(uctx.InterestVector) == 0 {
		return 0.5
	}
	return core.CosineUnit(it.Embedding, uctx.InterestVector)
}

// FreshnessScore 计算新鲜度：age 0 时为 1.0，窗口边界及之外为 0.1，
// 其间按 exp(-ageHours / (windowHours/3)) 指数衰减（下限 0.1 保持单调）。
func FreshnessScore(age, window time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	if age >= window {
		return 0.1
	}
	ageHours := age.Hours()
	tau := window.Hours() / 3
	s := math.Exp(-ageHours / tau)
	return math.Max(0.1, core.Clamp01(s))
}

// QualityScore 是启发式质量分：基准 0.7，长内容最多 +0.2，
// 回复相对点赞越多越像真实讨论，最多 +0.1。
func QualityScore(it *core.Candidate) float64 {
	if it == nil {
		return 0
	}
	q := 0.7
	q += 0.2 * math.Min(float64(len(it.Content))/400.0, 1)
	q += 0.1 * math.Min(float64(it.Replies)/float64(it.Likes+1), 1)
	return core.Clamp01(q)
}

// DiversityScore 是候选主题与用户近期主题分布的 Jaccard 距离：
// 与用户最近在看的东西越不同，分越高。任一侧为空时返回中性分 0.5。
// 不引入随机数，相同输入必须得到相同排序。
func DiversityScore(it *core.Candidate, uctx *core.UserContext) float64 {
	if it == nil || len(it.Topics) == 0 || uctx == nil || len(uctx.TopicHistogram) == 0 {
		return 0.5
	}
	union := make(map[string]struct{}, len(it.Topics)+len(uctx.TopicHistogram))
	inter := 0
	for _, t := range it.Topics {
		union[t] = struct{}{}
		if _, ok := uctx.TopicHistogram[t]; ok {
			inter++
		}
	}
	for t := range uctx.TopicHistogram {
		union[t] = struct{}{}
	}
	jaccard := float64(inter) / float64(len(union))
	return core.Clamp01(1 - jaccard)
}

// TrendingScore 返回候选命中趋势话题时的归一化速度分，未命中为 0。
func TrendingScore(it *core.Candidate, topics []core.TrendingTopic) float64 {
	if it == nil || len(topics) == 0 {
		return 0
	}
	matched := core.MatchTrendingTopic(it, topics)
	if matched == nil {
		return 0
	}
	var maxVelocity float64
	for _, t := range topics {
		if t.Velocity > maxVelocity {
			maxVelocity = t.Velocity
		}
	}
	if maxVelocity <= 0 {
		return 0
	}
	return core.Clamp01(matched.Velocity / maxVelocity)
}
