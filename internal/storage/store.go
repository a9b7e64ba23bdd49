// Package storage 提供持久化键值存储，用于跨访问保存当前客服会话 id。
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/risklock/livesync/internal/config"
)

var ErrNotFound = errors.New("key not found")

// Store 持久化字符串键值存储。使用同一后端的客户端进程共享键，
// 类似浏览器标签页共享 local storage。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open 按配置创建存储后端
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return NewMemory(), nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedis(client, DefaultRedisPrefix), nil
	case config.StorageSQLite:
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Memory 进程内存储，随进程退出而丢失
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
