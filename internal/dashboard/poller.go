// Package dashboard 通过轮询后端保持交易仪表盘概览数据的新鲜度。
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/live"
	model "github.com/risklock/livesync/internal/model/dashboard"
)

// DefaultInterval 与 Web 端组合刷新频率一致
const DefaultInterval = 5 * time.Second

// staleAfter 错过多少个周期后快照视为过期
const staleAfter = 3

// BadgeLoading 首个快照到达前显示
const BadgeLoading model.SyncStatus = "LOADING"

// Fetcher 概览接口（GET /dashboard/overview）
type Fetcher interface {
	Overview(ctx context.Context) (model.Overview, error)
}

// Poller 定时轮询概览
type Poller struct {
	every time.Duration
	bus   *events.Bus
	store *live.Store[model.Overview]
	poll  *live.Interval[model.Overview]
	now   func() time.Time

	mu      sync.Mutex
	lastOK  time.Time
	lastErr error

	unsubAuth func()
}

// NewPoller 创建空闲的轮询器，every <= 0 时使用 DefaultInterval。
// 登录失效（AuthExpired）时轮询器自行停止。
func NewPoller(api Fetcher, every time.Duration, bus *events.Bus) *Poller {
	if every <= 0 {
		every = DefaultInterval
	}
	p := &Poller{
		every: every,
		bus:   bus,
		store: live.NewStore[model.Overview]("dashboard overview"),
		now:   time.Now,
	}
	p.poll = &live.Interval[model.Overview]{
		Name:    "dashboard overview",
		Every:   every,
		OnError: p.failed,
		Fetch: func(ctx context.Context) (model.Overview, error) {
			overview, err := api.Overview(ctx)
			if err == nil {
				p.mu.Lock()
				p.lastOK = p.now()
				p.lastErr = nil
				p.mu.Unlock()
			}
			return overview, err
		},
	}
	// Stop 会等待轮询协程，而发布者可能正是该协程，不能阻塞总线
	p.unsubAuth = bus.Subscribe(func(events.Event) { go p.Stop() }, events.AuthExpired)
	return p
}

// Start 开始轮询：立即请求一次，之后每个周期一次
func (p *Poller) Start(ctx context.Context) error {
	return p.store.Start(ctx, p.poll)
}

// Stop 停止轮询，返回后不再调用订阅者
func (p *Poller) Stop() {
	p.unsubAuth()
	p.store.Stop()
}

// Done 在轮询彻底停止后关闭
func (p *Poller) Done() <-chan struct{} { return p.store.Done() }

// Latest 返回最新快照
func (p *Poller) Latest() (model.Overview, bool) { return p.store.Latest() }

// Subscribe 注册快照回调
func (p *Poller) Subscribe(fn func(model.Overview)) func() { return p.store.Subscribe(fn) }

// Err 返回最近一次失败的错误，下次成功后清除
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Skipped 返回因请求进行中而跳过的 tick 数
func (p *Poller) Skipped() int64 { return p.poll.Skipped() }

// Badge 返回同步状态徽标。快照超过三个周期未更新时，
// 无论后端上次报告什么都显示 STALE。
func (p *Poller) Badge() model.SyncStatus {
	overview, ok := p.store.Latest()
	if !ok {
		return BadgeLoading
	}

	p.mu.Lock()
	lastOK := p.lastOK
	p.mu.Unlock()
	if p.now().Sub(lastOK) > staleAfter*p.every {
		return model.SyncStale
	}

	switch overview.Sync.Status {
	case model.SyncLive, model.SyncDegraded, model.SyncStale, model.SyncPaused:
		return overview.Sync.Status
	default:
		return model.SyncDegraded
	}
}

func (p *Poller) failed(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.bus.Transient("dashboard", err)
}
