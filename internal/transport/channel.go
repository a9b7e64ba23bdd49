package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/risklock/livesync/internal/model/support"
)

// State 实时通道状态
type State string

const (
	StateConnecting State = "CONNECTING"
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
	// StateOffline 终态：重连次数耗尽或握手被拒绝
	StateOffline State = "OFFLINE"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrOffline      = errors.New("channel offline")
	ErrChannelDone  = errors.New("channel closed")
)

// Handler 通道事件回调，在通道协程中执行。Close 返回后不再调用，
// 回调内部不得调用 Close。
type Handler struct {
	OnMessage func(support.Message)
	OnState   func(State)
}

// Channel 订阅单个客服会话的 WebSocket 通道。后台拨号，
// 断线后按指数退避重连，连续失败 MaxRetries 次后放弃。
type Channel struct {
	url     string
	chatID  support.ID
	opts    Options
	handler Handler
	dialer  *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	changed chan struct{}

	writeMu sync.Mutex
}

// ChatURL 拼接 WS {base}/support/ws/{id}
func ChatURL(wsBase string, chatID support.ID) string {
	return strings.TrimRight(wsBase, "/") + "/support/ws/" + url.PathEscape(string(chatID))
}

// Open 为 chatID 启动通道，立即以 CONNECTING 状态返回，
// 直到 Close 或 ctx 取消。
func Open(ctx context.Context, wsBase string, chatID support.ID, opts Options, handler Handler) *Channel {
	chCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		url:     ChatURL(wsBase, chatID),
		chatID:  chatID,
		opts:    opts,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
		},
		ctx:     chCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
		changed: make(chan struct{}),
	}

	go c.run()
	return c
}

// ChatID 返回订阅的会话
func (c *Channel) ChatID() support.ID { return c.chatID }

// State 返回当前状态
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AwaitOpen 阻塞直到通道打开、离线、关闭或 ctx 结束
func (c *Channel) AwaitOpen(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()

		switch {
		case state == StateOpen:
			return nil
		case state == StateOffline:
			return ErrOffline
		case c.ctx.Err() != nil:
			return ErrChannelDone
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
		case <-changed:
		}
	}
}

// Send 通道打开时写入消息，否则返回 ErrNotConnected
func (c *Channel) Send(frame support.OutboundFrame) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	err := conn.WriteJSON(frame)
	c.writeMu.Unlock()

	if err != nil {
		// 让读循环退出，交给重连逻辑
		conn.Close()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Close 停止重连、关闭连接并等待通道协程退出，可重复调用
func (c *Channel) Close() {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}

	<-c.done
}

// Done 在通道彻底停止后关闭
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) run() {
	defer close(c.done)

	failures := 0
	for {
		c.setState(StateConnecting)

		conn, err := c.dial()
		if err == nil {
			failures = 0
			if c.attach(conn) {
				err = c.readLoop(conn)
			}
			c.detach(conn)
		}

		if c.ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}

		if !IsRetryableError(err) {
			log.Printf("[transport] chat %s: giving up: %v", c.chatID, err)
			c.setState(StateOffline)
			return
		}

		failures++
		if failures > c.opts.MaxRetries {
			log.Printf("[transport] chat %s: offline after %d reconnect attempts: %v", c.chatID, c.opts.MaxRetries, err)
			c.setState(StateOffline)
			return
		}

		c.setState(StateClosed)
		delay := c.opts.Backoff(failures)
		log.Printf("[transport] chat %s: connection lost (%v), retry %d/%d in %s", c.chatID, err, failures, c.opts.MaxRetries, delay)

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			c.setState(StateClosed)
			return
		case <-timer.C:
		}
	}
}

func (c *Channel) dial() (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(c.ctx, c.url, c.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach 发布新连接；Close 已在拨号期间发生时返回 false，由调用方关闭连接
func (c *Channel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateOpen)
	return true
}

func (c *Channel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// readLoop 持续读取消息直到连接出错
func (c *Channel) readLoop(conn *websocket.Conn) error {
	pingCtx, stopPing := context.WithCancel(c.ctx)
	defer stopPing()

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	go c.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		msg, err := support.ParseMessage(data)
		if err != nil {
			log.Printf("[transport] chat %s: dropping frame: %v", c.chatID, err)
			continue
		}
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		if c.handler.OnMessage != nil {
			c.handler.OnMessage(msg)
		}
	}
}

// pingLoop 定期发送 ping，失败时关闭连接交给重连逻辑
func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Channel) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if c.ctx.Err() == nil && c.handler.OnState != nil {
		c.handler.OnState(next)
	}
}

// HandshakeError 服务端以非 101 状态码响应升级请求
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// IsRetryableError 判断错误是否值得重连：握手被 4xx 拒绝与策略性关闭不重连。
func IsRetryableError(err error) bool {
	if err == nil {
		return true
	}

	var hs *HandshakeError
	if errors.As(err, &hs) {
		return hs.Status < 400 || hs.Status >= 500 || hs.Status == http.StatusTooManyRequests
	}

	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		return false
	}

	return true
}
