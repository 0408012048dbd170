package rerank

import (
	"context"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pipeline"
	"github.com/spotlightx/feedkit/pkg/utils"
)

// AuthorDiversity 是多样性重排 Node：在按分排序的列表上贪心选取，
// 单作者最多 Cap 条，但前 Exempt 个已接受的位置豁免计数，
// 保证头部结果永远不会被多样性约束挤掉。
// 达到 MaxSize 即停止（0 表示不限制）。
type AuthorDiversity struct {
	Cap     int // 默认 3
	Exempt  int // 默认 10
	MaxSize int
}

func (n *AuthorDiversity) Name() string {
	return "rerank.diversity"
}

func (n *AuthorDiversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *AuthorDiversity) Process(
	_ context.Context,
	_ *core.UserContext,
	items []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(items) == 0 {
		return items, nil
	}

	cap := n.Cap
	if cap <= 0 {
		cap = 3
	}
	exempt := n.Exempt
	if exempt < 0 {
		exempt = 10
	}

	perAuthor := make(map[string]int, 32)
	out := make([]*core.Candidate, 0, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}

		// 豁免窗口内照单全收，也不计入作者配额
		if len(out) < exempt {
			out = append(out, it)
			if n.MaxSize > 0 && len(out) >= n.MaxSize {
				return out, nil
			}
			continue
		}

		if perAuthor[it.AuthorID] >= cap {
			it.PutLabel("filtered", utils.Label{Value: "author_cap", Source: "rerank"})
			continue
		}
		perAuthor[it.AuthorID]++
		out = append(out, it)
		if n.MaxSize > 0 && len(out) >= n.MaxSize {
			return out, nil
		}
	}

	return out, nil
}
