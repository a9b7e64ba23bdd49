package support

import (
	"context"
	"sync"

	"github.com/risklock/livesync/internal/live"
	model "github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/transport"
)

// socketFeed 从单个传输通道读取聊天消息的 live.Strategy
type socketFeed struct {
	wsBase  string
	chatID  model.ID
	opts    transport.Options
	onState func(transport.State)

	mu      sync.Mutex
	channel *transport.Channel
	ready   chan struct{}
}

var _ live.Strategy[model.Message] = (*socketFeed)(nil)

func newSocketFeed(wsBase string, chatID model.ID, opts transport.Options, onState func(transport.State)) *socketFeed {
	return &socketFeed{
		wsBase:  wsBase,
		chatID:  chatID,
		opts:    opts,
		onState: onState,
		ready:   make(chan struct{}),
	}
}

func (f *socketFeed) Run(ctx context.Context, publish func(model.Message)) error {
	ch := transport.Open(ctx, f.wsBase, f.chatID, f.opts, transport.Handler{
		OnMessage: publish,
		OnState:   f.onState,
	})
	f.mu.Lock()
	f.channel = ch
	f.mu.Unlock()
	close(f.ready)
	defer ch.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-ch.Done():
		if ch.State() == transport.StateOffline {
			return transport.ErrOffline
		}
		return nil
	}
}

func (f *socketFeed) current() *transport.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

// awaitOpen 等待底层通道完成拨号并打开
func (f *socketFeed) awaitOpen(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
	}
	return f.current().AwaitOpen(ctx)
}

func (f *socketFeed) send(frame model.OutboundFrame) error {
	ch := f.current()
	if ch == nil {
		return transport.ErrNotConnected
	}
	return ch.Send(frame)
}

func (f *socketFeed) state() transport.State {
	ch := f.current()
	if ch == nil {
		return transport.StateConnecting
	}
	return ch.State()
}
