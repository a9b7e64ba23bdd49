package live

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Interval 立即执行一次 Fetch，之后每隔 Every 执行一次。
// 上一次请求未完成时到达的 tick 直接跳过，请求不会重叠；出错只上报，轮询继续。
type Interval[T any] struct {
	Name    string
	Every   time.Duration
	Fetch   func(ctx context.Context) (T, error)
	OnError func(error)

	skipped atomic.Int64
	fetches atomic.Int64
}

// Skipped 返回因请求进行中而跳过的 tick 数
func (p *Interval[T]) Skipped() int64 { return p.skipped.Load() }

// Fetches 返回已发起的请求数
func (p *Interval[T]) Fetches() int64 { return p.fetches.Load() }

// Run 实现 Strategy
func (p *Interval[T]) Run(ctx context.Context, publish func(T)) error {
	if p.Every <= 0 {
		return errors.New("interval must be positive")
	}
	if p.Fetch == nil {
		return errors.New("interval has no fetch func")
	}

	var (
		wg       sync.WaitGroup
		inFlight atomic.Bool
	)
	defer wg.Wait()

	fire := func() {
		if !inFlight.CompareAndSwap(false, true) {
			p.skipped.Add(1)
			return
		}
		p.fetches.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer inFlight.Store(false)

			v, err := p.Fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("[poller] %s fetch failed: %v", p.Name, err)
				if p.OnError != nil {
					p.OnError(err)
				}
				return
			}
			publish(v)
		}()
	}

	fire()
	ticker := time.NewTicker(p.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fire()
		}
	}
}
