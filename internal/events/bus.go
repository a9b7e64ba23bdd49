// Package events 进程内事件总线，用于跨组件传递登录失效与临时错误。
package events

import (
	"slices"
	"sync"
	"time"
)

// Kind 事件类型
type Kind string

const (
	// AuthExpired 后端返回 401 时发布，每个 token 只发布一次
	AuthExpired Kind = "auth_expired"
	// TransientError 可恢复的失败（历史拉取、轮询、持久化）
	TransientError Kind = "transient_error"
)

// Event 按发布顺序同步投递给订阅者
type Event struct {
	Kind   Kind
	Source string
	Err    error
	At     time.Time
}

type subscriber struct {
	fn    func(Event)
	kinds map[Kind]struct{}
}

func (s subscriber) wants(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Bus 事件总线，nil *Bus 丢弃所有事件
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscriber
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]subscriber)}
}

// Subscribe 订阅指定类型的事件，不指定时订阅全部。
// 返回的取消函数可重复调用。
func (b *Bus) Subscribe(fn func(Event), kinds ...Kind) func() {
	if b == nil || fn == nil {
		return func() {}
	}

	sub := subscriber{fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish 将事件投递给匹配的订阅者。回调在锁外执行，
// 可在回调中取消订阅或继续发布。
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		b.mu.RLock()
		sub, ok := b.subs[id]
		b.mu.RUnlock()
		if !ok || !sub.wants(evt.Kind) {
			continue
		}
		sub.fn(evt)
	}
}

// Transient 发布来自 source 的 TransientError
func (b *Bus) Transient(source string, err error) {
	if err == nil {
		return
	}
	b.Publish(Event{Kind: TransientError, Source: source, Err: err})
}
