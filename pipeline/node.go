package pipeline

import (
	"context"

	"github.com/spotlightx/feedkit/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall      Kind = "recall"      // 召回阶段：生成候选集
	KindFilter      Kind = "filter"      // 过滤阶段：剔除不符合约束的候选
	KindRank        Kind = "rank"        // 排序阶段：计算六信号并按终分排序
	KindReRank      Kind = "rerank"      // 重排阶段：多样性约束/截断
	KindPostProcess Kind = "postprocess" // 后处理阶段：解释串、最终修饰
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用"输入 candidates -> 输出 candidates"的形态，
// 召回生成、过滤截断、重排约束都用同一个签名表达。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		uctx *core.UserContext,
		items []*core.Candidate,
	) ([]*core.Candidate, error)
}
