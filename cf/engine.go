package cf

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/metrics"
)

// 缓存 TTL（秒）。相似度数据接受最终一致：读到旧值没关系，
// 写路径负责尽力失效。
const (
	profileTTL  = 3600
	simTTL      = 24 * 3600
	simUsersTTL = 6 * 3600
	recTTL      = 30 * 60
)

// 队列名
const (
	QueueSimilarityRecompute = "similarity:recompute"
)

// Engine 是协同过滤引擎：从稀疏交互历史计算用户-用户/物品-物品相似度，
// 产出带解释的推荐列表，历史不足时走冷启动兜底。
//
// 显式构造、依赖注入，无进程级单例，同一进程可以并存多份不同配置的引擎。
// 失败语义：打分路径的任何内部错误都退化为冷启动，推荐请求永远不硬失败；
// 缓存读写失败按未命中处理。
type Engine struct {
	interactions core.InteractionStore
	posts        core.ContentStore
	cache        core.KeyValueStore
	queue        core.Queue
	config       core.RecConfig
	log          *logrus.Logger

	// sf 对相似度对的并发重算做 single-flight 去重；
	// 并发重算同一对本身是安全的（缓存 last-write-wins），去重只是省算力
	sf singleflight.Group

	now func() time.Time
}

// NewEngine 创建协同过滤引擎。cache/queue/posts/log 都可为空：
// 没有缓存就每次现算，没有队列就不做实时重算信号。
func NewEngine(
	interactions core.InteractionStore,
	posts core.ContentStore,
	cache core.KeyValueStore,
	queue core.Queue,
	cfg core.RecConfig,
	log *logrus.Logger,
) *Engine {
	cfg.Normalize()
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		interactions: interactions,
		posts:        posts,
		cache:        cache,
		queue:        queue,
		config:       cfg,
		log:          log,
		now:          time.Now,
	}
}

// Config 返回引擎当前配置（副本）。
func (e *Engine) Config() core.RecConfig { return e.config }

// GenerateRecommendations 为用户生成推荐。
//
// 流程：缓存命中直接返回 → 加载用户画像 → 交互数低于阈值走冷启动
// → 按配置方法分发 → 排除/多样性过滤/截断 → 写缓存。
// 任何内部错误都退化为冷启动，而不是把错误抛给调用方。
func (e *Engine) GenerateRecommendations(
	ctx context.Context,
	userID string,
	excludeItems []string,
	override *core.RecConfig,
) ([]core.RecommendationResult, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidInput, "cf: empty user id")
	}

	cfg := e.config
	if override != nil {
		cfg = *override
		cfg.Normalize()
	}

	cacheKey := "cf:rec:" + userID + ":" + cfg.CacheKey()
	if cached, ok := e.cacheGetRecs(ctx, cacheKey); ok {
		results := e.finalize(ctx, cached, excludeItems, cfg)
		if len(results) > 0 {
			return results, nil
		}
	}

	profile, err := e.UserProfile(ctx, userID)
	if err != nil || profile.InteractionCount < cfg.MinInteractions {
		if err != nil {
			e.log.WithError(err).WithField("user_id", userID).Warn("cf: profile load failed, cold start")
		}
		return e.HandleColdStart(ctx, userID, cfg, excludeItems), nil
	}

	var results []core.RecommendationResult
	switch cfg.Method {
	case core.MethodUserBased:
		results, err = e.userBased(ctx, profile, cfg)
	case core.MethodItemBased:
		results, err = e.itemBased(ctx, profile, cfg)
	case core.MethodBlended:
		results, err = e.blended(ctx, profile, cfg)
	case core.MethodHybrid:
		results, err = e.hybrid(ctx, profile, cfg)
	default:
		return nil, core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidConfig,
			"cf: unsupported method "+string(cfg.Method))
	}
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"method":  cfg.Method,
		}).Warn("cf: scoring failed, cold start")
		return e.HandleColdStart(ctx, userID, cfg, excludeItems), nil
	}
	if len(results) == 0 {
		return e.HandleColdStart(ctx, userID, cfg, excludeItems), nil
	}

	// 缓存截断前的结果供后续调用换用不同排除列表，但上限 3 倍截断量
	cached := results
	if max := cfg.MaxRecommendations * 3; max > 0 && len(cached) > max {
		cached = cached[:max]
	}
	e.cacheSetRecs(ctx, cacheKey, cached)
	return e.finalize(ctx, results, excludeItems, cfg), nil
}

// finalize 应用排除列表、粗分类多样性约束与截断。
// 多样性约束在结果不足 10 条时不生效（先保量再保多样）。
func (e *Engine) finalize(
	ctx context.Context,
	results []core.RecommendationResult,
	excludeItems []string,
	cfg core.RecConfig,
) []core.RecommendationResult {
	exclude := make(map[string]struct{}, len(excludeItems))
	for _, id := range excludeItems {
		exclude[id] = struct{}{}
	}

	filtered := make([]core.RecommendationResult, 0, len(results))
	for _, r := range results {
		if _, ok := exclude[r.ItemID]; ok {
			continue
		}
		filtered = append(filtered, r)
	}

	if len(filtered) >= 10 {
		filtered = e.capCategories(ctx, filtered, cfg.CategoryCap)
	}

	if len(filtered) > cfg.MaxRecommendations {
		filtered = filtered[:cfg.MaxRecommendations]
	}
	return filtered
}

// capCategories 限制同一粗分类的推荐条数。分类取内容的第一个主题，
// 没有主题就退化为作者维度。
func (e *Engine) capCategories(ctx context.Context, results []core.RecommendationResult, cap int) []core.RecommendationResult {
	if cap <= 0 || e.posts == nil {
		return results
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ItemID)
	}
	posts, err := e.posts.FindPosts(ctx, core.PostFilter{IDs: ids})
	if err != nil {
		return results
	}
	category := make(map[string]string, len(posts))
	for _, p := range posts {
		if p == nil {
			continue
		}
		if len(p.Topics) > 0 {
			category[p.ID] = "topic:" + p.Topics[0]
		} else {
			category[p.ID] = "author:" + p.AuthorID
		}
	}

	counts := make(map[string]int, 16)
	out := make([]core.RecommendationResult, 0, len(results))
	for _, r := range results {
		cat, ok := category[r.ItemID]
		if !ok {
			out = append(out, r)
			continue
		}
		if counts[cat] >= cap {
			continue
		}
		counts[cat]++
		out = append(out, r)
	}
	return out
}

// UpdateUserInteraction 记录一次交互：换算隐式评分、落交互存储、
// 尽力失效相关缓存，并（开启实时更新时）把该 (user, item) 对入队异步重算。
// 本调用绝不在相似度全量重算上阻塞调用方。
func (e *Engine) UpdateUserInteraction(
	ctx context.Context,
	userID, itemID string,
	typ core.InteractionType,
	weight float64,
	metadata map[string]any,
) error {
	if userID == "" || itemID == "" {
		return core.NewDomainError(core.ModuleCF, core.ErrorCodeInvalidInput, "cf: empty user or item id")
	}

	var dwellMs int64
	if metadata != nil {
		if v, ok := metadata["dwell_ms"].(int64); ok {
			dwellMs = v
		} else if v, ok := metadata["dwell_ms"].(float64); ok {
			dwellMs = int64(v)
		}
	}
	rating := core.ImplicitRating(typ, weight, dwellMs)

	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata["rating"] = rating

	rec := core.Interaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		TargetID:   itemID,
		TargetType: "post",
		Type:       typ,
		Metadata:   metadata,
		CreatedAt:  e.now(),
	}
	if err := e.interactions.CreateInteraction(ctx, rec); err != nil {
		return err
	}

	e.invalidateUser(ctx, userID)
	e.invalidateItem(ctx, itemID)

	if e.config.RealtimeUpdates && e.queue != nil {
		payload, _ := json.Marshal(map[string]string{"user_id": userID, "item_id": itemID})
		if err := e.queue.Enqueue(ctx, QueueSimilarityRecompute, payload); err != nil {
			// 至多一次投递：丢失的重算在下次缓存未命中时自愈
			e.log.WithError(err).Debug("cf: recompute enqueue failed")
		}
	}
	return nil
}

// UserAffinity 返回用户对作者的亲和度（[0,1]，未知为 0）。
// 排序路径上的热调用，因此只读相似度缓存，不触发计算。
// 实现 rank.AffinityProvider。
func (e *Engine) UserAffinity(ctx context.Context, userID, authorID string) float64 {
	if e.cache == nil || userID == "" || authorID == "" || userID == authorID {
		return 0
	}
	a, b := core.CanonicalPair(userID, authorID)
	data, err := e.cache.Get(ctx, userSimKey(a, b))
	if err != nil {
		return 0
	}
	var sim core.UserSimilarity
	if json.Unmarshal(data, &sim) != nil {
		return 0
	}
	return core.Clamp01(sim.Similarity * sim.Confidence)
}

// ===== 缓存失效 =====

// invalidateUser 尽力删除用户维度的派生缓存（画像、相似度、推荐、相似用户列表）。
func (e *Engine) invalidateUser(ctx context.Context, userID string) {
	if e.cache == nil {
		return
	}
	keys := []string{userProfileKey(userID)}
	for _, pattern := range []string{
		"cf:sim:user:" + userID + ":*",
		"cf:sim:user:*:" + userID,
		"cf:simusers:" + userID + ":*",
		"cf:rec:" + userID + ":*",
	} {
		if matched, err := e.cache.ListKeys(ctx, pattern); err == nil {
			keys = append(keys, matched...)
		}
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.log.WithError(err).Debug("cf: user cache invalidation failed")
	}
}

func (e *Engine) invalidateItem(ctx context.Context, itemID string) {
	if e.cache == nil {
		return
	}
	keys := []string{itemProfileKey(itemID)}
	for _, pattern := range []string{
		"cf:sim:item:" + itemID + ":*",
		"cf:sim:item:*:" + itemID,
	} {
		if matched, err := e.cache.ListKeys(ctx, pattern); err == nil {
			keys = append(keys, matched...)
		}
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.log.WithError(err).Debug("cf: item cache invalidation failed")
	}
}

// ===== 推荐结果缓存 =====

func (e *Engine) cacheGetRecs(ctx context.Context, key string) ([]core.RecommendationResult, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("cf_rec").Inc()
		return nil, false
	}
	var results []core.RecommendationResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("cf_rec").Inc()
	return results, true
}

func (e *Engine) cacheSetRecs(ctx context.Context, key string, results []core.RecommendationResult) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, recTTL); err != nil {
		e.log.WithError(err).Debug("cf: rec cache write failed")
	}
}

// ===== 缓存 key =====

func userProfileKey(userID string) string { return "cf:profile:user:" + userID }
func itemProfileKey(itemID string) string { return "cf:profile:item:" + itemID }

func userSimKey(a, b string) string { return "cf:sim:user:" + a + ":" + b }
func itemSimKey(a, b string) string { return "cf:sim:item:" + a + ":" + b }

func simUsersKey(userID string, limit int) string {
	return "cf:simusers:" + userID + ":" + strconv.Itoa(limit)
}
