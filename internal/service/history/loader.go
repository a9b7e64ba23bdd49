package history

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/model/support"
)

var (
	ErrNoSession     = errors.New("history requested without a session id")
	ErrAlreadyLoaded = errors.New("history already loaded for this session")
)

// Fetcher 历史记录接口（GET /support/history/{id}）
type Fetcher interface {
	History(ctx context.Context, chatID support.ID) ([]support.Message, error)
}

// Loader 每个会话 id 至多拉取一次历史，每个挂载的视图各自创建一个 Loader
type Loader struct {
	api Fetcher
	bus *events.Bus

	mu        sync.Mutex
	loaded    map[support.ID]struct{}
	onFailure func(support.ID, error)
}

// NewLoader 创建历史加载器
func NewLoader(api Fetcher, bus *events.Bus) *Loader {
	return &Loader{api: api, bus: bus, loaded: make(map[support.ID]struct{})}
}

// OnFailure 注册拉取失败回调，例如丢弃后端已不认识的会话 id
func (l *Loader) OnFailure(fn func(chatID support.ID, err error)) {
	l.mu.Lock()
	l.onFailure = fn
	l.mu.Unlock()
}

// Forget 清除 chatID 的已加载标记，视图重新挂到该会话时会再次拉取历史
func (l *Loader) Forget(chatID support.ID) {
	l.mu.Lock()
	delete(l.loaded, chatID)
	l.mu.Unlock()
}

// Load 返回 chatID 的历史记录。拉取失败时记录日志并发布临时错误，
// 返回空记录以保证会话可用；校验失败的条目直接跳过。
func (l *Loader) Load(ctx context.Context, chatID support.ID) ([]support.Message, error) {
	if chatID == "" {
		return nil, ErrNoSession
	}

	l.mu.Lock()
	if _, done := l.loaded[chatID]; done {
		l.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	l.loaded[chatID] = struct{}{}
	onFailure := l.onFailure
	l.mu.Unlock()

	messages, err := l.api.History(ctx, chatID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[history] load chat %s failed: %v", chatID, err)
			l.bus.Transient("history", err)
			if onFailure != nil {
				onFailure(chatID, err)
			}
		}
		return []support.Message{}, nil
	}

	valid := make([]support.Message, 0, len(messages))
	for _, msg := range messages {
		if err := msg.Validate(); err != nil {
			log.Printf("[history] dropping entry of chat %s: %v", chatID, err)
			continue
		}
		valid = append(valid, msg)
	}
	return valid, nil
}
