package core

import (
	"testing"
	"time"
)

func TestFeedConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FeedConfig)
		wantErr bool
	}{
		{name: "default config is valid", mutate: func(*FeedConfig) {}},
		{name: "unknown algorithm", mutate: func(c *FeedConfig) { c.Algorithm = "ml_magic" }, wantErr: true},
		{name: "negative weight", mutate: func(c *FeedConfig) { c.Weights.Social = -0.1 }, wantErr: true},
		{name: "zero feed size", mutate: func(c *FeedConfig) { c.FinalFeedSize = 0 }, wantErr: true},
		{name: "pool smaller than feed", mutate: func(c *FeedConfig) { c.CandidatePoolSize = 10 }, wantErr: true},
		{name: "zero freshness window", mutate: func(c *FeedConfig) { c.FreshnessWindow = 0 }, wantErr: true},
		{name: "chronological is valid", mutate: func(c *FeedConfig) { c.Algorithm = AlgorithmChronological }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFeedConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsInvalidConfig(err) {
				t.Errorf("error = %v, want INVALID_CONFIG domain error", err)
			}
		})
	}
}

func TestFeedConfigCacheKeyStable(t *testing.T) {
	a := DefaultFeedConfig()
	b := DefaultFeedConfig()
	if a.CacheKey() != b.CacheKey() {
		t.Error("identical configs must share a cache key")
	}

	b.Weights.Trending = 0.3
	if a.CacheKey() == b.CacheKey() {
		t.Error("different configs must not collide on cache key")
	}
}

func TestRecConfigNormalize(t *testing.T) {
	cfg := RecConfig{Method: "ncf"}
	cfg.Normalize()
	if cfg.Method != MethodBlended {
		t.Errorf("ncf alias maps to %s, want blended", cfg.Method)
	}
	if cfg.MaxRecommendations != 20 || cfg.MinInteractions != 5 {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	empty := RecConfig{}
	empty.Normalize()
	if empty.Method != MethodHybrid {
		t.Errorf("empty method = %s, want hybrid", empty.Method)
	}
}

func TestDefaultFeedConfigWindows(t *testing.T) {
	cfg := DefaultFeedConfig()
	if cfg.FreshnessWindow != 48*time.Hour {
		t.Errorf("freshness window = %v", cfg.FreshnessWindow)
	}
	if cfg.TrendingWindow != 6*time.Hour {
		t.Errorf("trending window = %v", cfg.TrendingWindow)
	}
}
