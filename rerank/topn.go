package rerank

import (
	"context"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，用于在排序后截取前 N 条候选。
// 通常排在多样性重排之后，作为 finalFeedSize 的最终截断。
type TopNNode struct {
	// N 要保留的候选数量
	// 如果 N <= 0 或 N > len(items)，则返回所有候选（不截断）
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.UserContext,
	items []*core.Candidate,
) ([]*core.Candidate, error) {
	if n.N <= 0 || len(items) <= n.N {
		return items, nil
	}
	return items[:n.N], nil
}
