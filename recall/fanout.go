package recall

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pipeline"
	"github.com/spotlightx/feedkit/pkg/utils"
)

// Fanout 是一个 Recall Node：并发执行多个候选生成器，并合并结果。
//
// 语义要点：
//   - 每个生成器独立超时；超时或出错的生成器按"贡献了零候选"处理
//   - 按内容 ID 去重，先到先得（first-seen wins），后到者只合并 Labels
//   - 结果顺序稳定：按 Sources 顺序拼接各生成器的产出，保证相同输入
//     下 Pipeline 下游拿到相同顺序（排序确定性依赖它）
//   - PoolSize 限制合并后的候选池总量
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个生成器的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	PoolSize      int           // 候选池上限（0 表示无限制）
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	uctx *core.UserContext,
	_ []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results = make([][]*core.Candidate, len(n.Sources))
		eg, _   = errgroup.WithContext(ctx)
	)

	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		idx, s := i, src

		eg.Go(func() error {
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := s.Recall(recallCtx, uctx)
			if err != nil {
				// 超时或错误时返回空结果，不中断其他生成器
				return nil
			}

			// 记录召回来源 label，方便 explain / 观测
			for _, it := range items {
				if it == nil {
					continue
				}
				it.PutLabel("recall_source", utils.Label{Value: s.Name(), Source: "recall"})
			}

			mu.Lock()
			results[idx] = items
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return n.merge(results), nil
}

// merge 按 Sources 顺序拼接并按 ID 去重（first-seen wins），重复候选只合并 Labels。
func (n *Fanout) merge(results [][]*core.Candidate) []*core.Candidate {
	seen := make(map[string]*core.Candidate, 64)
	var out []*core.Candidate
	for _, items := range results {
		for _, it := range items {
			if it == nil {
				continue
			}
			if old, ok := seen[it.ID]; ok {
				for k, v := range it.Labels {
					old.PutLabel(k, v)
				}
				continue
			}
			seen[it.ID] = it
			out = append(out, it)
			if n.PoolSize > 0 && len(out) >= n.PoolSize {
				return out
			}
		}
	}
	return out
}
