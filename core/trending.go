package core

import "strings"

// MatchTrendingTopic 返回候选命中的第一个趋势话题（topics 按速度降序传入），
// 未命中返回 nil。匹配同时看 Topics 标签与正文文本（大小写不敏感）。
func MatchTrendingTopic(c *Candidate, topics []TrendingTopic) *TrendingTopic {
	if c == nil {
		return nil
	}
	text := strings.ToLower(c.Content)
	for i := range topics {
		topic := strings.ToLower(topics[i].Topic)
		if topic == "" {
			continue
		}
		for _, t := range c.Topics {
			if strings.EqualFold(t, topics[i].Topic) {
				return &topics[i]
			}
		}
		if strings.Contains(text, topic) {
			return &topics[i]
		}
	}
	return nil
}
