package filter

import (
	"context"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pkg/dsl"
)

// RuleFilter 是配置驱动的规则过滤器：任意一条 CEL 规则命中即过滤。
// 规则在构造时编译一次，线上逐候选求值。
//
// 示例规则：
//   - `item.author_type == "persona" && item.score < 0.1`
//   - `label.recall_source.contains("discovery") && label.filtered != null`
type RuleFilter struct {
	rules []*dsl.Rule
}

// NewRuleFilter 编译规则表达式。任何一条编译失败都返回错误：
// 规则错误属于配置错误，必须在候选生成前快速失败。
func NewRuleFilter(exprs []string) (*RuleFilter, error) {
	rules := make([]*dsl.Rule, 0, len(exprs))
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		r, err := dsl.Compile(expr)
		if err != nil {
			return nil, core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidConfig,
				"feed: bad exclude rule "+expr+": "+err.Error())
		}
		rules = append(rules, r)
	}
	return &RuleFilter{rules: rules}, nil
}

func (f *RuleFilter) Name() string {
	return "filter.rule"
}

func (f *RuleFilter) ShouldFilter(
	_ context.Context,
	uctx *core.UserContext,
	item *core.Candidate,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	for _, r := range f.rules {
		hit, err := r.Eval(item, uctx)
		if err != nil {
			// 求值错误按未命中处理（例如表达式访问了不存在的 label）
			continue
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}
