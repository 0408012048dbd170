package feed

import "github.com/spotlightx/feedkit/core"

// ExplainSignals 把强信号翻译成面向用户的解释。
// 阈值刻意偏高：宁可少给解释，也不编造弱信号的理由。
func ExplainSignals(s core.RankingSignals) []string {
	var reasons []string
	if s.Relevance > 0.7 {
		reasons = append(reasons, "Matches your interests")
	}
	if s.Social > 0.7 {
		reasons = append(reasons, "High engagement expected")
	}
	if s.Freshness > 0.8 {
		reasons = append(reasons, "Recent content")
	}
	if s.Trending > 0.5 {
		reasons = append(reasons, "Trending topic")
	}
	if s.Diversity > 0.8 {
		reasons = append(reasons, "Something different from your usual feed")
	}
	return reasons
}
