// Package support 客服聊天的共享模块。访客窗口、登录用户的在线客服页
// 与客服控制台共用同一个 Conversation，绑定之间只有身份上下文不同。
package support

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/risklock/livesync/internal/api"
	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/live"
	model "github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/presence"
	"github.com/risklock/livesync/internal/reconcile"
	"github.com/risklock/livesync/internal/service/history"
	"github.com/risklock/livesync/internal/service/session"
	"github.com/risklock/livesync/internal/transport"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrClosed       = errors.New("conversation closed")
	// ErrNotConnected 实时通道未打开时 Send 返回，调用方保留未发送的内容
	ErrNotConnected = transport.ErrNotConnected
)

// DefaultGuestName 访客匿名发起会话时使用的名称
const DefaultGuestName = "Guest User"

// Deps Conversation 依赖的协作者
type Deps struct {
	Sessions  *session.Manager
	History   history.Fetcher
	Bus       *events.Bus
	WSURL     string
	Transport transport.Options
	// Auth 设置时，实时通道握手携带其 bearer token
	Auth *auth.Session
}

// Binding 某一类视图的绑定参数
type Binding struct {
	Owner       model.OwnerContext
	UserID      model.ID
	DisplayName string
	Email       string
	Subscriber  bool
}

// Snapshot 视图渲染所需的状态
type Snapshot struct {
	SessionID model.ID
	Messages  []model.Message
	Status    presence.Status
	Agent     string
	Channel   transport.State
}

// Conversation 驱动一个已挂载的客服聊天视图
type Conversation struct {
	instance string
	binding  Binding
	deps     Deps
	store    *session.Store
	loader   *history.Loader
	rec      *reconcile.Reconciler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	sessionID model.ID
	feed      *live.Store[model.Message]
	socket    *socketFeed
	channel   transport.State
	closed    bool
	subs      map[uint64]func(Snapshot)
	next      uint64
	unsubAuth func()

	deliver sync.Mutex
}

// New 按绑定创建会话。需要登录的绑定在总线发布 AuthExpired 时自行关闭。
func New(deps Deps, binding Binding) (*Conversation, error) {
	if !binding.Owner.Valid() {
		return nil, fmt.Errorf("unknown owner context %q", binding.Owner)
	}
	store, err := deps.Sessions.For(binding.Owner, binding.UserID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		instance: uuid.NewString()[:8],
		binding:  binding,
		deps:     deps,
		store:    store,
		loader:   history.NewLoader(deps.History, deps.Bus),
		rec:      reconcile.New(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		channel:  transport.StateClosed,
		subs:     make(map[uint64]func(Snapshot)),
	}
	c.loader.OnFailure(c.historyFailed)

	if binding.Owner != model.OwnerGuest {
		// Close 会等待消息源，而发布者可能正是它，不能阻塞总线
		c.unsubAuth = deps.Bus.Subscribe(func(events.Event) { go c.Close() }, events.AuthExpired)
	}
	return c, nil
}

// Owner 返回绑定的身份上下文
func (c *Conversation) Owner() model.OwnerContext { return c.binding.Owner }

// Mount 解析已保存的会话，存在时并发加载历史并打开实时通道；
// 没有会话时保持空闲，直到第一次 Send。
func (c *Conversation) Mount(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	id, err := c.store.Resolve(ctx)
	if errors.Is(err, session.ErrNoSession) {
		c.notify()
		return nil
	}
	if err != nil {
		return err
	}

	c.attach(id)
	return nil
}

// Send 将内容写入实时通道，首次发送时创建会话。
// 消息在后端广播回来后才显示。
func (c *Conversation) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	if c.isClosed() {
		return ErrClosed
	}

	feed, err := c.ensureFeed(ctx)
	if err != nil {
		return err
	}

	frame := model.OutboundFrame{Content: content, SenderType: c.binding.Owner.Sender()}
	if c.binding.Owner != model.OwnerGuest {
		frame.SenderID = c.binding.UserID
	}
	if err := feed.send(frame); err != nil {
		log.Printf("[conversation %s] send failed: %v", c.instance, err)
		return err
	}
	return nil
}

// ensureFeed 返回当前会话的通道，必要时创建会话并等待首次连接
func (c *Conversation) ensureFeed(ctx context.Context) (*socketFeed, error) {
	c.mu.Lock()
	feed := c.socket
	c.mu.Unlock()
	if feed != nil {
		if feed.state() == transport.StateConnecting {
			// 首次拨号仍在进行，失败时由 Send 返回 ErrNotConnected
			_ = c.awaitOpen(ctx, feed)
		}
		return feed, nil
	}

	if c.binding.Owner == model.OwnerStaff {
		return nil, session.ErrNoSession
	}

	id, err := c.store.Ensure(ctx, c.initRequest())
	if err != nil {
		return nil, fmt.Errorf("start chat: %w", err)
	}
	feed = c.attach(id)
	if feed == nil {
		return nil, ErrClosed
	}

	if err := c.awaitOpen(ctx, feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return feed, nil
}

// awaitOpen 最多等待一个连接超时时间
func (c *Conversation) awaitOpen(ctx context.Context, feed *socketFeed) error {
	timeout := c.deps.Transport.ConnectTimeout
	if timeout <= 0 {
		timeout = transport.DefaultOptions().ConnectTimeout
	}
	wait, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return feed.awaitOpen(wait)
}

func (c *Conversation) initRequest() model.InitRequest {
	if c.binding.Owner == model.OwnerGuest {
		name := c.binding.DisplayName
		if name == "" {
			name = DefaultGuestName
		}
		return model.InitRequest{GuestName: name, GuestEmail: c.binding.Email}
	}
	subscriber := c.binding.Subscriber
	return model.InitRequest{UserID: c.binding.UserID, IsSubscriber: &subscriber}
}

// attach 将 id 设为当前会话：加载一次历史并启动通道。会话已关闭时返回 nil
func (c *Conversation) attach(id model.ID) *socketFeed {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.sessionID == id && c.socket != nil {
		feed := c.socket
		c.mu.Unlock()
		return feed
	}

	feed := newSocketFeed(c.deps.WSURL, id, c.channelOptions(), func(state transport.State) {
		c.channelChanged(id, state)
	})
	store := live.NewStore[model.Message]("chat " + string(id))
	store.Subscribe(func(msg model.Message) {
		c.merge(id, func() bool { return c.rec.AddLive(msg) })
	})

	c.sessionID = id
	c.socket = feed
	c.feed = store
	c.channel = transport.StateConnecting
	c.mu.Unlock()

	if err := store.Start(c.ctx, feed); err != nil {
		log.Printf("[conversation %s] start feed: %v", c.instance, err)
	}
	go c.loadHistory(id)

	c.notify()
	return feed
}

func (c *Conversation) channelOptions() transport.Options {
	opts := c.deps.Transport
	if c.deps.Auth == nil || c.binding.Owner == model.OwnerGuest {
		return opts
	}
	if token := c.deps.Auth.Token(); token != "" {
		header := opts.Header.Clone()
		if header == nil {
			header = http.Header{}
		}
		header.Set("Authorization", "Bearer "+token)
		opts.Header = header
	}
	return opts
}

func (c *Conversation) loadHistory(id model.ID) {
	msgs, err := c.loader.Load(c.ctx, id)
	if err != nil {
		return
	}
	// 请求期间视图可能已关闭或切换
	c.merge(id, func() bool { return c.rec.AddHistory(msgs) })
}

// merge 仅在 id 仍是当前会话时修改记录，有变化时通知订阅者
func (c *Conversation) merge(id model.ID, fn func() bool) {
	c.mu.Lock()
	changed := !c.closed && c.sessionID == id && fn()
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// historyFailed 丢弃后端已不认识的会话
func (c *Conversation) historyFailed(id model.ID, err error) {
	if !errors.Is(err, api.ErrNotFound) || !c.current(id) {
		return
	}
	log.Printf("[conversation %s] chat %s is gone, forgetting it", c.instance, id)
	if err := c.store.Forget(c.ctx); err != nil {
		log.Printf("[conversation %s] %v", c.instance, err)
	}
	c.detach()
	c.notify()
}

func (c *Conversation) channelChanged(id model.ID, state transport.State) {
	c.mu.Lock()
	if c.closed || c.sessionID != id {
		c.mu.Unlock()
		return
	}
	c.channel = state
	c.mu.Unlock()
	c.notify()
}

// detach 停止当前通道并清除内存中的会话 id
func (c *Conversation) detach() {
	c.mu.Lock()
	feed, old := c.feed, c.sessionID
	c.feed, c.socket, c.sessionID = nil, nil, ""
	c.channel = transport.StateClosed
	c.rec.Reset()
	c.mu.Unlock()

	if old != "" {
		c.loader.Forget(old)
	}
	if feed != nil {
		go feed.Stop()
	}
}

// SwitchSession 切换到另一个会话（客服控制台）
func (c *Conversation) SwitchSession(ctx context.Context, id model.ID) error {
	if c.isClosed() {
		return ErrClosed
	}
	if id == "" {
		return session.ErrNoSession
	}
	c.mu.Lock()
	same := c.sessionID == id
	old, left := c.feed, c.sessionID
	if !same {
		c.feed, c.socket, c.sessionID = nil, nil, ""
		c.rec.Reset()
	}
	c.mu.Unlock()
	if same {
		return nil
	}

	// 清空的记录需要在回到该会话时重新拉取
	if left != "" {
		c.loader.Forget(left)
	}
	if old != nil {
		old.Stop()
	}
	if err := c.store.Select(ctx, id); err != nil {
		return err
	}
	if c.attach(id) == nil {
		return ErrClosed
	}
	return nil
}

// SessionID 返回当前会话 id，没有时为空
func (c *Conversation) SessionID() model.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages 返回合并后的记录
func (c *Conversation) Messages() []model.Message { return c.rec.Messages() }

// Status 返回会话的接待状态
func (c *Conversation) Status() presence.Status {
	return presence.Classify(c.rec.Messages(), c.channelState())
}

// AgentName 返回当前接待的客服名称，默认 "Agent"
func (c *Conversation) AgentName() string { return presence.AgentName(c.rec.Messages()) }

// Snapshot 返回当前视图状态
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	id, state := c.sessionID, c.channel
	c.mu.Unlock()

	msgs := c.rec.Messages()
	return Snapshot{
		SessionID: id,
		Messages:  msgs,
		Status:    presence.Classify(msgs, state),
		Agent:     presence.AgentName(msgs),
		Channel:   state,
	}
}

// Subscribe 注册状态变化回调并返回取消函数。
// Close 返回后不再调用 fn，fn 内部不得调用 Close。
func (c *Conversation) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close 关闭视图：取消进行中的加载、关闭通道并停止通知，可重复调用
func (c *Conversation) Close() {
	c.deliver.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.deliver.Unlock()
		<-c.done
		return
	}
	c.closed = true
	feed, unsub := c.feed, c.unsubAuth
	c.channel = transport.StateClosed
	c.mu.Unlock()
	c.deliver.Unlock()

	if unsub != nil {
		unsub()
	}
	c.cancel()
	if feed != nil {
		feed.Stop()
	}
	log.Printf("[conversation %s] closed", c.instance)
	close(c.done)
}

// Done 在 Close 完成后关闭
func (c *Conversation) Done() <-chan struct{} { return c.done }

func (c *Conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conversation) current(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.sessionID == id
}

func (c *Conversation) channelState() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Conversation) notify() {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	snap := c.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}
