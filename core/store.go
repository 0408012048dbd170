package core

import (
	"context"
	"time"
)

// Store 是缓存/存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//
// 使用场景：
//   - 相似度缓存：用户-用户、物品-物品相似度（24h TTL）
//   - 推荐结果缓存：每用户推荐列表
//   - Feed 缓存：排序后的 Feed（分钟级 TTL）
//
// 缓存语义：无事务、允许读到旧值（最终一致）；读写失败按缓存未命中处理，不上抛。
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 为过期秒数（可选，0 表示不过期）
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除一个或多个 key
	Delete(ctx context.Context, keys ...string) error

	// ListKeys 按模式列出 key（'*' 通配），用于按用户/物品维度批量失效
	ListKeys(ctx context.Context, pattern string) ([]string, error)

	// BatchGet 批量读取（推荐系统常用，减少网络往返）
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	// Close 关闭连接/释放资源
	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持更丰富的 KV 操作。
//
// 扩展功能：
//   - 有序集合（SortedSet）：热门物品榜、趋势榜
//   - 列表（List）：每用户偏好事件队列（有界、带 TTL）
//
// 如果后端不支持某些操作，可返回 ErrStoreNotSupported。
type KeyValueStore interface {
	Store

	// ZAdd 向有序集合添加成员（用于热门排序）
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange 按分数降序获取有序集合成员（用于 TopN）
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZScore 获取成员的分数
	ZScore(ctx context.Context, key string, member string) (float64, error)

	// LPush 向列表头部插入元素（用于偏好事件、队列）
	LPush(ctx context.Context, key string, values ...[]byte) error

	// LRange 读取列表片段（0, -1 表示全部）
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// LTrim 截断列表，只保留 [start, stop] 区间（用于有界偏好列表）
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Expire 更新 key 的过期时间
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleStore && domainErr.Code == ErrorCodeNotFound
}
