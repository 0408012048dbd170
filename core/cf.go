package core

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Method 是协同过滤的推荐方法。
type Method string

const (
	MethodUserBased Method = "user_based"
	MethodItemBased Method = "item_based"

	// MethodBlended 是 user/item 两种经典方法的线性混合。
	// 历史上这条路径被称作 "ncf"，但它不是训练出来的神经模型，
	// 只是一个显式声明的 50/50 混合，配置里写 "ncf" 会映射到这里。
	MethodBlended Method = "blended"

	// MethodHybrid 按置信度加权合并 user/item 两路结果，双路命中有一致性加成
	MethodHybrid Method = "hybrid"

	// MethodColdStart 标记冷启动产出
	MethodColdStart Method = "cold_start"
)

// ColdStartStrategy 是冷启动策略。
type ColdStartStrategy string

const (
	ColdStartPopular ColdStartStrategy = "popular"
	ColdStartRandom  ColdStartStrategy = "random"
	// ColdStartContentBased 目前退化为 popular（内容侧冷启动未实现）
	ColdStartContentBased ColdStartStrategy = "content_based"
)

// RecConfig 是协同过滤引擎的行为参数。
type RecConfig struct {
	Method             Method            `yaml:"method" json:"method"`
	MaxRecommendations int               `yaml:"max_recommendations" json:"max_recommendations"`
	ColdStartStrategy  ColdStartStrategy `yaml:"cold_start_strategy" json:"cold_start_strategy"`

	// MinInteractions 以下的用户直接走冷启动
	MinInteractions int `yaml:"min_interactions" json:"min_interactions"`
	// MinSharedItems / MinSharedUsers 以下的实体对视为"信号不足"，不是零相似
	MinSharedItems int `yaml:"min_shared_items" json:"min_shared_items"`
	MinSharedUsers int `yaml:"min_shared_users" json:"min_shared_users"`

	MinSimilarity    float64 `yaml:"min_similarity" json:"min_similarity"`
	SimilarityMetric string  `yaml:"similarity_metric" json:"similarity_metric"` // cosine / pearson

	// CategoryCap 是同一粗分类的条数上限；结果不足 10 条时不生效
	CategoryCap int `yaml:"category_cap" json:"category_cap"`

	// RealtimeUpdates 开启后，交互写入会异步入队相似度重算
	RealtimeUpdates bool `yaml:"realtime_updates" json:"realtime_updates"`
}

// DefaultRecConfig 返回默认配置。
func DefaultRecConfig() RecConfig {
	return RecConfig{
		Method:             MethodHybrid,
		MaxRecommendations: 20,
		ColdStartStrategy:  ColdStartPopular,
		MinInteractions:    5,
		MinSharedItems:     3,
		MinSharedUsers:     3,
		MinSimilarity:      0.1,
		SimilarityMetric:   "cosine",
		CategoryCap:        3,
		RealtimeUpdates:    true,
	}
}

// Normalize 把别名方法映射到内部方法（"ncf" → blended），空字段补默认值。
func (c *RecConfig) Normalize() {
	if c.Method == "ncf" {
		c.Method = MethodBlended
	}
	if c.Method == "" {
		c.Method = MethodHybrid
	}
	if c.MaxRecommendations <= 0 {
		c.MaxRecommendations = 20
	}
	if c.ColdStartStrategy == "" {
		c.ColdStartStrategy = ColdStartPopular
	}
	if c.MinInteractions <= 0 {
		c.MinInteractions = 5
	}
	if c.MinSharedItems <= 0 {
		c.MinSharedItems = 3
	}
	if c.MinSharedUsers <= 0 {
		c.MinSharedUsers = 3
	}
	if c.SimilarityMetric == "" {
		c.SimilarityMetric = "cosine"
	}
	if c.CategoryCap <= 0 {
		c.CategoryCap = 3
	}
}

// CacheKey 返回配置的稳定摘要，用于推荐结果缓存 key。
func (c *RecConfig) CacheKey() string {
	data, _ := json.Marshal(c)
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:8])
}

// UserProfile 是按需从交互存储重建的用户侧画像（带 TTL 缓存，不做增量维护）。
// 不变量：Ratings 的值都在 [0,1]，且随交互强度单调不减。
type UserProfile struct {
	UserID string `json:"user_id"`

	// Ratings 是 itemID → 隐式评分
	Ratings map[string]float64 `json:"ratings"`

	// Preference 是偏好向量（互动内容嵌入的均值，可为空）
	Preference []float64 `json:"preference,omitempty"`

	// Clusters 预留：离线聚类标签
	Clusters []string `json:"clusters,omitempty"`

	// SimilarUsers 是最近一次 FindSimilarUsers 的结果（可为空）
	SimilarUsers []string `json:"similar_users,omitempty"`

	InteractionCount int       `json:"interaction_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ItemProfile 是按需重建的物品侧画像。
type ItemProfile struct {
	ItemID string `json:"item_id"`

	// Ratings 是 userID → 隐式评分
	Ratings map[string]float64 `json:"ratings"`

	// Features 是内容特征向量（语义嵌入，可为空）
	Features []float64 `json:"features,omitempty"`

	Popularity int       `json:"popularity"`
	Quality    float64   `json:"quality"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserSimilarity 是一对用户的对称相似度记录。
// 不变量：只有共同物品数 ≥ MinSharedItems 才会计算并缓存；
// 低于阈值的对返回 nil（"未知"），而不是零相似。
type UserSimilarity struct {
	UserA       string    `json:"user_a"` // 规范化：UserA < UserB（字典序）
	UserB       string    `json:"user_b"`
	Similarity  float64   `json:"similarity"`
	SharedItems int       `json:"shared_items"`
	Confidence  float64   `json:"confidence"` // min(shared/20, 1)
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemSimilarity 是一对物品的对称相似度记录，语义与 UserSimilarity 相同。
type ItemSimilarity struct {
	ItemA       string    `json:"item_a"`
	ItemB       string    `json:"item_b"`
	Similarity  float64   `json:"similarity"`
	SharedUsers int       `json:"shared_users"`
	Confidence  float64   `json:"confidence"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CanonicalPair 返回字典序排列的 (a, b)，保证相似度 key 与记录顺序无关。
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// RecommendationResult 是一条推荐产出。
type RecommendationResult struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
	Method Method  `json:"method"`

	// 解释载荷：哪些相似用户/物品贡献了这条推荐
	SimilarUsers []string `json:"similar_users,omitempty"`
	SimilarItems []string `json:"similar_items,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`

	// 多样性元数据，供下游重排使用。冷启动产出固定低置信（0.3）高新颖（0.8），
	// 下游把它们当探索项而非权威推荐。
	Confidence  float64 `json:"confidence"`
	Novelty     float64 `json:"novelty"`
	Serendipity float64 `json:"serendipity"`
	Coverage    float64 `json:"coverage"`
}
