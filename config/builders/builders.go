// Package builders 注册内置的无状态 Node 构建器。
// 需要外部依赖的 Node（召回源、带亲和度的排序）不走配置驱动，
// 由调用方显式构造注入。
package builders

import (
	"time"

	"github.com/spotlightx/feedkit/config"
	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/filter"
	"github.com/spotlightx/feedkit/pipeline"
	"github.com/spotlightx/feedkit/pkg/conv"
	"github.com/spotlightx/feedkit/rank"
	"github.com/spotlightx/feedkit/rerank"
)

func init() {
	config.Register("rank.signals", buildSignalsNode)
	config.Register("rerank.diversity", buildDiversityNode)
	config.Register("rerank.topn", buildTopNNode)
	config.Register("filter.rule", buildRuleFilterNode)
	config.Register("filter.exclude", buildExcludeFilterNode)
}

func buildSignalsNode(cfg map[string]any) (pipeline.Node, error) {
	weights := core.DefaultWeights()
	if wm, ok := cfg["weights"].(map[string]any); ok {
		weights.Relevance = conv.ConfigGetFloat(wm, "relevance", weights.Relevance)
		weights.Social = conv.ConfigGetFloat(wm, "social", weights.Social)
		weights.Freshness = conv.ConfigGetFloat(wm, "freshness", weights.Freshness)
		weights.Quality = conv.ConfigGetFloat(wm, "quality", weights.Quality)
		weights.Diversity = conv.ConfigGetFloat(wm, "diversity", weights.Diversity)
		weights.Trending = conv.ConfigGetFloat(wm, "trending", weights.Trending)
	}

	node := &rank.SignalsNode{Weights: weights}
	if h := conv.ConfigGetInt(cfg, "freshness_window_hours", 0); h > 0 {
		node.FreshnessWindow = time.Duration(h) * time.Hour
	}
	if h := conv.ConfigGetInt(cfg, "trending_window_hours", 0); h > 0 {
		node.TrendingWindow = time.Duration(h) * time.Hour
	}
	return node, nil
}

func buildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.AuthorDiversity{
		Cap:     conv.ConfigGetInt(cfg, "author_cap", 3),
		Exempt:  conv.ConfigGetInt(cfg, "exempt", 10),
		MaxSize: conv.ConfigGetInt(cfg, "max_size", 0),
	}, nil
}

func buildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: conv.ConfigGetInt(cfg, "n", 0)}, nil
}

func buildRuleFilterNode(cfg map[string]any) (pipeline.Node, error) {
	exprs := conv.SliceAnyToString(cfg["rules"])
	rf, err := filter.NewRuleFilter(exprs)
	if err != nil {
		return nil, err
	}
	return &filter.FilterNode{Filters: []filter.Filter{rf}}, nil
}

func buildExcludeFilterNode(cfg map[string]any) (pipeline.Node, error) {
	ids := conv.SliceAnyToString(cfg["item_ids"])
	return &filter.FilterNode{
		Filters: []filter.Filter{filter.NewExcludeFilter(ids)},
	}, nil
}
