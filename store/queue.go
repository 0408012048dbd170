package store

import (
	"context"

	"github.com/spotlightx/feedkit/core"
)

// ListQueue 把 KeyValueStore 的列表操作适配成 core.Queue：
// 每个队列是一个 list key（{KeyPrefix}:{队列名}），入队即 LPush。
// 至多一次投递：丢失的消息由下一次按需计算自愈，消费端从尾部取。
type ListQueue struct {
	store core.KeyValueStore

	// KeyPrefix 默认 "queue"
	KeyPrefix string
}

func NewListQueue(s core.KeyValueStore, keyPrefix string) *ListQueue {
	if keyPrefix == "" {
		keyPrefix = "queue"
	}
	return &ListQueue{store: s, KeyPrefix: keyPrefix}
}

func (q *ListQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	return q.store.LPush(ctx, q.KeyPrefix+":"+queue, payload)
}

var _ core.Queue = (*ListQueue)(nil)
