package core

import "math"

// Cosine 计算两个稠密向量的余弦相似度，返回 [-1,1]。
// 长度不一致或任一向量为零向量时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineUnit 把余弦相似度从 [-1,1] 重映射到 [0,1]（0.5 为中性）。
func CosineUnit(a, b []float64) float64 {
	return Clamp01((Cosine(a, b) + 1) / 2)
}
