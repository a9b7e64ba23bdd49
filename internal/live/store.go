// Package live 维护远端资源的最新值并分发给订阅者。
// 取值方式由 Strategy 决定：REST 资源定时轮询，聊天消息走 socket 推送。
package live

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	ErrRunning = errors.New("live store already started")
	ErrStopped = errors.New("live store stopped")
)

// Strategy 在 ctx 取消前持续产出数据，Run 返回后不得再调用 publish
type Strategy[T any] interface {
	Run(ctx context.Context, publish func(T)) error
}

// StrategyFunc 将函数适配为 Strategy
type StrategyFunc[T any] func(ctx context.Context, publish func(T)) error

func (f StrategyFunc[T]) Run(ctx context.Context, publish func(T)) error { return f(ctx, publish) }

// Store 保存策略产出的最新值。只能运行一次，Stop 后不可重启
type Store[T any] struct {
	name string

	mu      sync.Mutex
	latest  T
	has     bool
	err     error
	subs    map[uint64]func(T)
	next    uint64
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once

	// deliver 保证回调与 Stop 互斥
	deliver sync.Mutex
}

// NewStore 创建空闲的 Store，name 用于日志标记
func NewStore[T any](name string) *Store[T] {
	return &Store[T]{name: name, subs: make(map[uint64]func(T)), done: make(chan struct{})}
}

// Start 在后台运行策略，直到 Stop 或 ctx 取消
func (s *Store[T]) Start(ctx context.Context, strategy Strategy[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrRunning
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer s.closeOnce.Do(func() { close(s.done) })
		err := strategy.Run(runCtx, s.publish)
		if err != nil && runCtx.Err() == nil {
			log.Printf("[live] %s stopped: %v", s.name, err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop 取消策略并等待其返回。Stop 返回后不再调用任何订阅者，
// 订阅者内部不得调用 Stop。
func (s *Store[T]) Stop() {
	s.deliver.Lock()
	s.mu.Lock()
	s.stopped = true
	cancel, started := s.cancel, s.started
	s.mu.Unlock()
	s.deliver.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// Done 在策略返回后关闭
func (s *Store[T]) Done() <-chan struct{} { return s.done }

// Latest 返回最新值以及是否已收到过数据
func (s *Store[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Err 返回策略退出时的错误
func (s *Store[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe 注册新值回调，返回取消订阅函数
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store[T]) publish(v T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.latest, s.has = v, true
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}
