package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/constants"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound key不存在。包装redis.Nil，上层不感知go-redis。
var ErrNotFound = redis.Nil

// Redis 键值存储，承担岗位要求缓存和解析单飞锁两个职责。
// 两个职责都是优化性质的：Redis不可用时调用方必须能正常降级。
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	// 挂载OpenTelemetry追踪钩子
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("注册Redis追踪钩子失败: %w", err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.Client.Close()
}

// GetCachedJobRequirements 读取岗位要求关键词缓存。
// 未命中返回 (nil, ErrNotFound)。
func (r *Redis) GetCachedJobRequirements(ctx context.Context, jobID string) ([]string, error) {
	key := fmt.Sprintf(constants.KeyJobRequirements, jobID)
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var reqs []string
	if err := json.Unmarshal(data, &reqs); err != nil {
		// 脏缓存当作未命中，顺手删掉
		r.Client.Del(ctx, key)
		return nil, ErrNotFound
	}
	return reqs, nil
}

// CacheJobRequirements 写入岗位要求关键词缓存
func (r *Redis) CacheJobRequirements(ctx context.Context, jobID string, reqs []string) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("序列化岗位要求失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeyJobRequirements, jobID)
	return r.Client.Set(ctx, key, data, constants.JobRequirementsCacheTTL).Err()
}

// InvalidateJobRequirements 岗位更新后失效缓存
func (r *Redis) InvalidateJobRequirements(ctx context.Context, jobID string) error {
	key := fmt.Sprintf(constants.KeyJobRequirements, jobID)
	return r.Client.Del(ctx, key).Err()
}

// AcquireParseLock 尝试获取某个申请的解析单飞锁 (SET NX + TTL)。
// 返回 (是否拿到, 错误)。TTL略长于外部服务超时，持有者崩溃也能自愈。
func (r *Redis) AcquireParseLock(ctx context.Context, applicationID string) (bool, error) {
	key := fmt.Sprintf(constants.KeyParseLock, applicationID)
	return r.Client.SetNX(ctx, key, "1", constants.ParseLockTTL).Result()
}

// ReleaseParseLock 解析结束后释放单飞锁
func (r *Redis) ReleaseParseLock(ctx context.Context, applicationID string) error {
	key := fmt.Sprintf(constants.KeyParseLock, applicationID)
	return r.Client.Del(ctx, key).Err()
}
