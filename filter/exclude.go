package filter

import (
	"context"

	"github.com/spotlightx/feedkit/core"
)

// ExcludeFilter 过滤显式排除的内容 ID（调用方传入的 excludeItems、已看过的内容）。
type ExcludeFilter struct {
	ids map[string]struct{}
}

// NewExcludeFilter 创建一个排除过滤器。
func NewExcludeFilter(itemIDs []string) *ExcludeFilter {
	ids := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	return &ExcludeFilter{ids: ids}
}

func (f *ExcludeFilter) Name() string {
	return "filter.exclude"
}

func (f *ExcludeFilter) ShouldFilter(
	_ context.Context,
	_ *core.UserContext,
	item *core.Candidate,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	_, ok := f.ids[item.ID]
	return ok, nil
}
