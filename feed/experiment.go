package feed

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotlightx/feedkit/core"
	"github.com/spotlightx/feedkit/pkg/utils"
)

// Variant 是一个实验变体：命名的配置覆盖。
type Variant struct {
	Name   string          `yaml:"name" json:"name"`
	Config core.FeedConfig `yaml:"config" json:"config"`
}

// Experiment 是一个 A/B 实验：用户按确定性哈希分桶到变体。
// 同一用户在实验生命周期内的分桶稳定，不依赖任何存储状态。
type Experiment struct {
	Name     string    `yaml:"name" json:"name"`
	Variants []Variant `yaml:"variants" json:"variants"`
}

// AssignVariant 返回用户所属的变体。
// 分桶键是 FNV-32a(userID ":" 实验名) 对变体数取模：
// 换实验名就重新洗牌，同实验内分桶永远稳定。
func (e *Experiment) AssignVariant(userID string) *Variant {
	if len(e.Variants) == 0 {
		return nil
	}
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(":"))
	h.Write([]byte(e.Name))
	idx := int(h.Sum32() % uint32(len(e.Variants)))
	return &e.Variants[idx]
}

// RunExperiment 在实验变体配置下为用户生成 Feed，
// 产出打上 "{实验名}:{变体名}" 标记，并记录一次分桶事件。
func (r *Ranker) RunExperiment(ctx context.Context, userID string, exp *Experiment) ([]core.RankedContent, error) {
	if exp == nil || len(exp.Variants) == 0 {
		return nil, core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidConfig, "feed: experiment has no variants")
	}

	variant := exp.AssignVariant(userID)
	tag := exp.Name + ":" + variant.Name

	feed, err := r.GenerateFeed(ctx, userID, &variant.Config)
	if err != nil {
		return nil, err
	}

	for i := range feed {
		feed[i].Experiment = tag
		if feed[i].Candidate != nil {
			feed[i].Candidate.PutLabel("experiment", utils.Label{Value: tag, Source: "feed"})
		}
	}

	r.recordAssignment(ctx, userID, exp.Name, variant.Name)
	return feed, nil
}

// recordAssignment 记录分桶事件（日志 + 队列），尽力而为。
func (r *Ranker) recordAssignment(ctx context.Context, userID, experiment, variant string) {
	r.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"experiment": experiment,
		"variant":    variant,
	}).Info("feed: experiment assignment")

	if r.queue == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"user_id":     userID,
		"experiment":  experiment,
		"variant":     variant,
		"assigned_at": r.now().Format(time.RFC3339),
	})
	if err := r.queue.Enqueue(ctx, QueueFeedEvents, payload); err != nil {
		r.log.WithError(err).Debug("feed: assignment enqueue failed")
	}
}
