package core

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScoringWeights 是六信号的相对权重。权重不要求归一化：
// 它们表达信号间的相对重要性，不是概率。
type ScoringWeights struct {
	Relevance float64 `yaml:"relevance" json:"relevance"`
	Social    float64 `yaml:"social" json:"social"`
	Freshness float64 `yaml:"freshness" json:"freshness"`
	Quality   float64 `yaml:"quality" json:"quality"`
	Diversity float64 `yaml:"diversity" json:"diversity"`
	Trending  float64 `yaml:"trending" json:"trending"`
}

// DefaultWeights 返回默认权重。
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Relevance: 0.40,
		Social:    0.30,
		Freshness: 0.20,
		Quality:   0.10,
		Diversity: 0.05,
		Trending:  0.05,
	}
}

// FeedAlgorithm 是 Feed 排序算法模式。
type FeedAlgorithm string

const (
	// AlgorithmHybrid 是六信号混合排序（默认）
	AlgorithmHybrid FeedAlgorithm = "hybrid"
	// AlgorithmChronological 是纯时间序（也是所有失败场景的兜底）
	AlgorithmChronological FeedAlgorithm = "chronological"
)

// FeedConfig 是 Feed 排序的行为参数，按请求可覆盖（实验场景）。
// 语义上是配置不是状态：实例之间互不共享。
type FeedConfig struct {
	Algorithm FeedAlgorithm  `yaml:"algorithm" json:"algorithm"`
	Weights   ScoringWeights `yaml:"weights" json:"weights"`

	CandidatePoolSize int `yaml:"candidate_pool_size" json:"candidate_pool_size"`
	FinalFeedSize     int `yaml:"final_feed_size" json:"final_feed_size"`

	// 每路召回的候选上限
	FollowingLimit int `yaml:"following_limit" json:"following_limit"`
	InterestsLimit int `yaml:"interests_limit" json:"interests_limit"`
	TrendingLimit  int `yaml:"trending_limit" json:"trending_limit"`
	DiscoveryLimit int `yaml:"discovery_limit" json:"discovery_limit"`

	FreshnessWindow time.Duration `yaml:"freshness_window" json:"freshness_window"`
	TrendingWindow  time.Duration `yaml:"trending_window" json:"trending_window"`

	// 多样性约束：前 AuthorCapExempt 个位置豁免，其后每作者最多 AuthorCap 条
	AuthorCap       int `yaml:"author_cap" json:"author_cap"`
	AuthorCapExempt int `yaml:"author_cap_exempt" json:"author_cap_exempt"`

	GeneratorTimeout time.Duration `yaml:"generator_timeout" json:"generator_timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// ExcludeRules 是 CEL 表达式列表，命中即过滤（作用于候选的 labels/分数）
	ExcludeRules []string `yaml:"exclude_rules,omitempty" json:"exclude_rules,omitempty"`
}

// DefaultFeedConfig 返回默认配置。
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Algorithm:         AlgorithmHybrid,
		Weights:           DefaultWeights(),
		CandidatePoolSize: 500,
		FinalFeedSize:     50,
		FollowingLimit:    200,
		InterestsLimit:    150,
		TrendingLimit:     100,
		DiscoveryLimit:    50,
		FreshnessWindow:   48 * time.Hour,
		TrendingWindow:    6 * time.Hour,
		AuthorCap:         3,
		AuthorCapExempt:   10,
		GeneratorTimeout:  300 * time.Millisecond,
		CacheTTL:          5 * time.Minute,
	}
}

// Validate 在任何候选生成之前快速失败：权重为负、尺寸非法、算法未知都算配置错误。
func (c *FeedConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmHybrid, AlgorithmChronological:
	default:
		return NewDomainError(ModuleFeed, ErrorCodeInvalidConfig,
			fmt.Sprintf("feed: unsupported algorithm %q", c.Algorithm))
	}
	for name, w := range map[string]float64{
		"relevance": c.Weights.Relevance,
		"social":    c.Weights.Social,
		"freshness": c.Weights.Freshness,
		"quality":   c.Weights.Quality,
		"diversity": c.Weights.Diversity,
		"trending":  c.Weights.Trending,
	} {
		if w < 0 {
			return NewDomainError(ModuleFeed, ErrorCodeInvalidConfig,
				fmt.Sprintf("feed: negative weight for %s", name))
		}
	}
	if c.FinalFeedSize <= 0 {
		return NewDomainError(ModuleFeed, ErrorCodeInvalidConfig, "feed: final_feed_size must be positive")
	}
	if c.CandidatePoolSize < c.FinalFeedSize {
		return NewDomainError(ModuleFeed, ErrorCodeInvalidConfig, "feed: candidate_pool_size below final_feed_size")
	}
	if c.FreshnessWindow <= 0 {
		return NewDomainError(ModuleFeed, ErrorCodeInvalidConfig, "feed: freshness_window must be positive")
	}
	return nil
}

// CacheKey 返回配置的稳定摘要，用于 Feed 缓存 key 的一部分。
// 同一配置必须产生同一 key（缓存命中与确定性依赖它）。
func (c *FeedConfig) CacheKey() string {
	data, _ := json.Marshal(c)
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:8])
}

// LoadFeedConfig 从 YAML 文件加载 FeedConfig，未出现的字段取默认值。
func LoadFeedConfig(path string) (FeedConfig, error) {
	cfg := DefaultFeedConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
