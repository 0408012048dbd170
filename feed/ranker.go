// Package feed 把召回、过滤、排序、重排各阶段编排成完整的 Feed 生成器，
// 并承载反馈记录与 A/B 实验。
package feed

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/filter"
	"github.com/spotlightx/feedkit/metrics"
	"github.com/spotlightx/feedkit/pipeline"
	"github.com/spotlightx/feedkit/rank"
	"github.com/spotlightx/feedkit/recall"
	"github.com/spotlightx/feedkit/rerank"
)

// 队列名
const (
	QueueTrainingSignals = "training:signals"
	QueueFeedEvents      = "feed:events"
)

// Ranker 是混合 Feed 生成器。
//
// 失败语义：配置错误在候选生成前快速失败；其后的任何失败
// （召回全挂、排序 panic 之外的错误、缓存不可用）都退化为
// 时间序兜底 Feed，生成请求永远不硬失败。
type Ranker struct {
	posts  core.ContentStore
	graph  core.SocialGraph
	inter  core.InteractionStore
	trends core.TrendingSource
	cache  core.KeyValueStore
	queue  core.Queue
	config core.FeedConfig
	log    *logrus.Logger

	// features 提供用户兴趣向量，可为空（interests 召回退化为时间序池）
	features Provider

	// affinity 由协同过滤引擎提供，可为空
	affinity rank.AffinityProvider

	now func() time.Time
}

// Provider 是用户兴趣向量来源（与 feature.Provider 同构，本地声明避免依赖环）。
type Provider interface {
	UserEmbedding(ctx context.Context, userID string) ([]float64, error)
}

// RankerOption 配置 Ranker 的可选依赖。
type RankerOption func(*Ranker)

func WithCache(cache core.KeyValueStore) RankerOption {
	return func(r *Ranker) { r.cache = cache }
}

func WithQueue(queue core.Queue) RankerOption {
	return func(r *Ranker) { r.queue = queue }
}

func WithTrendingSource(trends core.TrendingSource) RankerOption {
	return func(r *Ranker) { r.trends = trends }
}

func WithFeatureProvider(p Provider) RankerOption {
	return func(r *Ranker) { r.features = p }
}

func WithAffinityProvider(a rank.AffinityProvider) RankerOption {
	return func(r *Ranker) { r.affinity = a }
}

func WithLogger(log *logrus.Logger) RankerOption {
	return func(r *Ranker) { r.log = log }
}

func WithClock(now func() time.Time) RankerOption {
	return func(r *Ranker) { r.now = now }
}

// NewRanker 创建 Feed 生成器。posts/graph/inter 是必备依赖，其余经 Option 注入。
func NewRanker(
	posts core.ContentStore,
	graph core.SocialGraph,
	inter core.InteractionStore,
	cfg core.FeedConfig,
	opts ...RankerOption,
) *Ranker {
	r := &Ranker{
		posts:  posts,
		graph:  graph,
		inter:  inter,
		config: cfg,
		log:    logrus.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config 返回当前配置（副本）。
func (r *Ranker) Config() core.FeedConfig { return r.config }

// GenerateFeed 为用户生成个性化 Feed。
// override 非空时覆盖默认配置（实验变体用），配置校验失败快速返回。
func (r *Ranker) GenerateFeed(ctx context.Context, userID string, override *core.FeedConfig) ([]core.RankedContent, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feed: empty user id")
	}

	cfg := r.config
	if override != nil {
		cfg = *override
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Algorithm == core.AlgorithmChronological {
		return r.chronological(ctx, userID, cfg), nil
	}

	cacheKey := "feed:" + userID + ":" + cfg.CacheKey()
	if cached, ok := r.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	feed, err := r.generate(ctx, userID, cfg)
	if err != nil || len(feed) == 0 {
		if err != nil {
			r.log.WithError(err).WithField("user_id", userID).Warn("feed: generation failed, chronological fallback")
		}
		return r.chronological(ctx, userID, cfg), nil
	}

	r.cacheSet(ctx, cacheKey, feed, cfg.CacheTTL)
	r.emitGenerationEvent(ctx, userID, cfg, len(feed))
	metrics.FeedsGenerated.Inc()
	return feed, nil
}

// generate 跑完整 Pipeline：召回扇出 → 过滤 → 六信号排序 → 多样性重排 → 截断。
func (r *Ranker) generate(ctx context.Context, userID string, cfg core.FeedConfig) ([]core.RankedContent, error) {
	uctx, err := r.BuildUserContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	p, err := r.buildPipeline(uctx, cfg)
	if err != nil {
		return nil, err
	}

	items, err := p.Run(ctx, uctx, nil)
	if err != nil {
		return nil, err
	}

	feed := make([]core.RankedContent, 0, len(items))
	for i, it := range items {
		if it == nil || it.Signals == nil {
			continue
		}
		feed = append(feed, core.RankedContent{
			Candidate:  it,
			FinalScore: it.Score,
			Signals:    *it.Signals,
			Rank:       i + 1,
			Reasons:    ExplainSignals(*it.Signals),
		})
	}
	return feed, nil
}

func (r *Ranker) buildPipeline(uctx *core.UserContext, cfg core.FeedConfig) (*pipeline.Pipeline, error) {
	fanout := &recall.Fanout{
		Sources: []recall.Source{
			&recall.Following{Posts: r.posts, Limit: cfg.FollowingLimit, Window: cfg.FreshnessWindow},
			&recall.Interests{Posts: r.posts, Limit: cfg.InterestsLimit, Window: cfg.FreshnessWindow},
			&recall.Trending{Posts: r.posts, Trends: r.trends, Limit: cfg.TrendingLimit, Window: cfg.TrendingWindow},
			&recall.Discovery{Posts: r.posts, Limit: cfg.DiscoveryLimit, Window: cfg.FreshnessWindow},
		},
		Timeout:  cfg.GeneratorTimeout,
		PoolSize: cfg.CandidatePoolSize,
	}

	nodes := []pipeline.Node{fanout}

	filters := []filter.Filter{newSelfAuthorFilter(uctx.UserID)}
	if len(cfg.ExcludeRules) > 0 {
		rf, err := filter.NewRuleFilter(cfg.ExcludeRules)
		if err != nil {
			return nil, err
		}
		filters = append(filters, rf)
	}
	nodes = append(nodes, &filter.FilterNode{Filters: filters})

	nodes = append(nodes,
		&rank.SignalsNode{
			Weights:         cfg.Weights,
			FreshnessWindow: cfg.FreshnessWindow,
			TrendingWindow:  cfg.TrendingWindow,
			Trends:          r.trends,
			Affinity:        r.affinity,
			Now:             r.now,
		},
		&rerank.AuthorDiversity{Cap: cfg.AuthorCap, Exempt: cfg.AuthorCapExempt},
		&rerank.TopNNode{N: cfg.FinalFeedSize},
	)

	return &pipeline.Pipeline{Nodes: nodes}, nil
}

// chronological 是兜底 Feed：窗口内最近内容按时间降序，
// 终分取名次线性衰减，信号全零。兜底自身失败时返回空 Feed，仍不报错。
func (r *Ranker) chronological(ctx context.Context, userID string, cfg core.FeedConfig) []core.RankedContent {
	metrics.FallbackFeeds.Inc()

	posts, err := r.posts.FindPosts(ctx, core.PostFilter{
		Since:            r.now().Add(-cfg.FreshnessWindow),
		ExcludeAuthorIDs: []string{userID},
		Limit:            cfg.FinalFeedSize * 2,
	})
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("feed: chronological fallback failed")
		return []core.RankedContent{}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i] == nil || posts[j] == nil {
			return posts[j] == nil
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if len(posts) > cfg.FinalFeedSize {
		posts = posts[:cfg.FinalFeedSize]
	}

	feed := make([]core.RankedContent, 0, len(posts))
	for i, p := range posts {
		if p == nil {
			continue
		}
		feed = append(feed, core.RankedContent{
			Candidate:  p,
			FinalScore: 1.0 - float64(i)/float64(len(posts)+1),
			Rank:       i + 1,
			Reasons:    []string{"Recent content"},
		})
	}
	return feed
}

// emitGenerationEvent 异步记录一次生成事件（日志 + 队列），失败只记日志。
func (r *Ranker) emitGenerationEvent(ctx context.Context, userID string, cfg core.FeedConfig, size int) {
	r.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"algorithm": cfg.Algorithm,
		"feed_size": size,
	}).Info("feed: generated")

	if r.queue == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"user_id":    userID,
		"algorithm":  cfg.Algorithm,
		"feed_size":  size,
		"created_at": r.now().Format(time.RFC3339),
	})
	if err := r.queue.Enqueue(ctx, QueueFeedEvents, payload); err != nil {
		r.log.WithError(err).Debug("feed: event enqueue failed")
	}
}

// ===== Feed 缓存 =====

func (r *Ranker) cacheGet(ctx context.Context, key string) ([]core.RankedContent, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("feed").Inc()
		return nil, false
	}
	var feed []core.RankedContent
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("feed").Inc()
	return feed, true
}

func (r *Ranker) cacheSet(ctx context.Context, key string, feed []core.RankedContent, ttl time.Duration) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(feed)
	if err != nil {
		return
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		seconds = 300
	}
	if err := r.cache.Set(ctx, key, data, seconds); err != nil {
		r.log.WithError(err).Debug("feed: cache write failed")
	}
}

// InvalidateFeed 删除用户的全部 Feed 缓存（交互写入后调用）。
func (r *Ranker) InvalidateFeed(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	keys, err := r.cache.ListKeys(ctx, "feed:"+userID+":*")
	if err != nil || len(keys) == 0 {
		return
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.log.WithError(err).Debug("feed: cache invalidation failed")
	}
}

// selfAuthorFilter 过滤用户自己的内容。
type selfAuthorFilter struct {
	userID string
}

func newSelfAuthorFilter(userID string) *selfAuthorFilter {
	return &selfAuthorFilter{userID: userID}
}

func (f *selfAuthorFilter) Name() string { return "filter.self_author" }

func (f *selfAuthorFilter) ShouldFilter(_ context.Context, _ *core.UserContext, item *core.Candidate) (bool, error) {
	return item != nil && item.AuthorID == f.userID, nil
}
