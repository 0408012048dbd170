// Package feedkit 是一个个性化 Feed 排序与推荐工具包。
//
// 设计要点：
// - Pipeline-first: 一次 Feed 生成通过 Node 串联（Recall → Filter → Rank → ReRank）
// - 信号混排: relevance/social/freshness/quality/diversity/trending 六信号加权
// - 协同过滤: user/item/blended/hybrid 四种方法 + 冷启动兜底
// - 永不硬失败: 配置错误快速失败，其后任何失败都退化为时间序 Feed
package feedkit

import "github.com/spotlightx/feedkit/pipeline"

// 轻量 facade：便于用户直接 import "feedkit" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
