package recall

import (
	"context"

	"github.com/spotlightx/feedkit/core"
)

// Source 表示一个可复用的候选生成器（关注/兴趣/趋势/发现/...）。
// 你可以把它理解为"可并发 fan-out 的策略单元"：单个 Source 失败
// 只意味着它贡献零候选，绝不拖垮整个请求。
type Source interface {
	Name() string
	Recall(ctx context.Context, uctx *core.UserContext) ([]*core.Candidate, error)
}
