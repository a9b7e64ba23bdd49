package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/storage"
)

var (
	ErrNoSession      = errors.New("no active support session")
	ErrUserIDRequired = errors.New("user id is required for authenticated contexts")
	ErrNotPersisted   = errors.New("session id could not be persisted")
)

// Initiator 创建会话的接口（POST /support/chats/init）
type Initiator interface {
	InitChat(ctx context.Context, req support.InitRequest) (support.ID, error)
}

// Manager 持有持久化存储以及进程内所有 Store 共享的 singleflight 组
type Manager struct {
	storage storage.Store
	api     Initiator
	bus     *events.Bus
	group   singleflight.Group
}

// NewManager 创建会话管理器
func NewManager(store storage.Store, api Initiator, bus *events.Bus) *Manager {
	return &Manager{storage: store, api: api, bus: bus}
}

// For 返回指定身份上下文的会话存储
func (m *Manager) For(owner support.OwnerContext, userID support.ID) (*Store, error) {
	key, err := StorageKey(owner, userID)
	if err != nil {
		return nil, err
	}
	return &Store{manager: m, owner: owner, key: key}, nil
}

// StorageKey 返回保存当前会话 id 的持久化键
func StorageKey(owner support.OwnerContext, userID support.ID) (string, error) {
	switch owner {
	case support.OwnerGuest:
		return "active_support_chat_id", nil
	case support.OwnerUser:
		if userID == "" {
			return "", ErrUserIDRequired
		}
		return "live_support_chat_" + string(userID), nil
	case support.OwnerStaff:
		if userID == "" {
			return "", ErrUserIDRequired
		}
		return "support_console_chat_" + string(userID), nil
	default:
		return "", fmt.Errorf("unknown owner context %q", owner)
	}
}

// Store 负责解析与创建某个身份上下文的当前会话
type Store struct {
	manager *Manager
	owner   support.OwnerContext
	key     string

	mu          sync.Mutex
	unpersisted support.ID
}

// Owner 返回所属身份上下文
func (s *Store) Owner() support.OwnerContext { return s.owner }

// Key 返回持久化键
func (s *Store) Key() string { return s.key }

// Resolve 返回已保存的会话 id，没有时返回 ErrNoSession。
// 本进程内创建但持久化失败的会话仍会返回。
func (s *Store) Resolve(ctx context.Context) (support.ID, error) {
	value, err := s.manager.storage.Get(ctx, s.key)
	switch {
	case err == nil && value != "":
		return support.ID(value), nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		log.Printf("[session] read %s failed: %v", s.key, err)
		s.manager.bus.Transient("session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unpersisted != "" {
		return s.unpersisted, nil
	}
	return "", ErrNoSession
}

// Create 在没有会话时创建新会话，同一身份的并发调用只发起一次请求。
// 新 id 持久化失败只发布临时错误，不影响调用结果。
func (s *Store) Create(ctx context.Context, req support.InitRequest) (support.ID, error) {
	val, err, shared := s.manager.group.Do(s.key, func() (any, error) {
		if id, err := s.Resolve(ctx); err == nil {
			return id, nil
		}

		id, err := s.manager.api.InitChat(ctx, req)
		if err != nil {
			return support.ID(""), fmt.Errorf("init chat: %w", err)
		}

		s.remember(ctx, id)
		log.Printf("[session] created chat %s for %s", id, s.owner)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Printf("[session] joined in-flight creation for %s", s.key)
	}
	return val.(support.ID), nil
}

// Ensure 返回当前会话，不存在时创建
func (s *Store) Ensure(ctx context.Context, req support.InitRequest) (support.ID, error) {
	if id, err := s.Resolve(ctx); err == nil {
		return id, nil
	}
	return s.Create(ctx, req)
}

// Select 切换到已有会话（客服控制台）
func (s *Store) Select(ctx context.Context, id support.ID) error {
	if id == "" {
		return ErrNoSession
	}
	s.remember(ctx, id)
	return nil
}

// remember 持久化 id，失败时仅在本进程内存中保留并上报临时错误
func (s *Store) remember(ctx context.Context, id support.ID) {
	err := s.manager.storage.Set(ctx, s.key, string(id))

	s.mu.Lock()
	if err != nil {
		s.unpersisted = id
	} else {
		s.unpersisted = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[session] persist %s=%s failed: %v", s.key, id, err)
		s.manager.bus.Transient("session", fmt.Errorf("%w: %v", ErrNotPersisted, err))
	}
}

// Forget 删除已保存的 id，例如后端已不认识该会话时
func (s *Store) Forget(ctx context.Context) error {
	s.mu.Lock()
	s.unpersisted = ""
	s.mu.Unlock()
	if err := s.manager.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("forget %s: %w", s.key, err)
	}
	return nil
}
