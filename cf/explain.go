package cf

import (
	"context"
	"fmt"

	"github.com/spotlightx/feedkit/core"
)

// ExplainRecommendation 为一条推荐产出人类可读的解释列表。
// 解释只基于结果自带的载荷，不回查存储。
func (e *Engine) ExplainRecommendation(ctx context.Context, userID string, rec core.RecommendationResult) []string {
	var reasons []string

	switch rec.Method {
	case core.MethodUserBased:
		if n := len(rec.SimilarUsers); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d users with similar taste engaged with this", n))
		} else {
			reasons = append(reasons, "users with similar taste engaged with this")
		}
	case core.MethodItemBased:
		if n := len(rec.SimilarItems); n > 0 {
			reasons = append(reasons, fmt.Sprintf("similar to %d items you engaged with", n))
		} else {
			reasons = append(reasons, "similar to content you engaged with")
		}
	case core.MethodBlended, core.MethodHybrid:
		if len(rec.SimilarUsers) > 0 {
			reasons = append(reasons, fmt.Sprintf("%d users with similar taste engaged with this", len(rec.SimilarUsers)))
		}
		if len(rec.SimilarItems) > 0 {
			reasons = append(reasons, fmt.Sprintf("similar to %d items you engaged with", len(rec.SimilarItems)))
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "matches your activity patterns")
		}
	case core.MethodColdStart:
		reasons = append(reasons, "recommended while we learn your preferences")
	default:
		reasons = append(reasons, "recommended for you")
	}

	if rec.Confidence >= 0.8 {
		reasons = append(reasons, "high confidence")
	} else if rec.Confidence <= 0.3 {
		reasons = append(reasons, "exploratory")
	}

	return reasons
}
