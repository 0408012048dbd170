package pipeline

import (
	"context"

	"github.com/spotlightx/feedkit/core"
)

// Pipeline 是 feedkit 的核心抽象：把一次 Feed 排序拆成可组合的 Node 链
// （召回 → 过滤 → 排序 → 重排 → 后处理）。
// Pipeline 自身无状态，可在并发请求间共享；请求态全部走 UserContext。
type Pipeline struct {
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	uctx *core.UserContext,
	items []*core.Candidate,
) ([]*core.Candidate, error) {
	cur := items
	for _, node := range p.Nodes {
		next, err := node.Process(ctx, uctx, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
