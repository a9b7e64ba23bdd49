package support

import (
	"context"
	"errors"
	"time"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/live"
	model "github.com/risklock/livesync/internal/model/support"
)

// ErrForbidden 非客服账号打开控制台
var ErrForbidden = errors.New("account may not use the support console")

// NewGuestWidget 匿名访客的悬浮聊天窗口，name 可为空
func NewGuestWidget(deps Deps, name, email string) (*Conversation, error) {
	return New(deps, Binding{Owner: model.OwnerGuest, DisplayName: name, Email: email})
}

// NewLiveSupport 已登录用户的在线客服页面
func NewLiveSupport(deps Deps, session *auth.Session) (*Conversation, error) {
	claims, ok := session.Claims()
	if !ok {
		return nil, auth.ErrNoToken
	}
	return New(deps, Binding{
		Owner:       model.OwnerUser,
		UserID:      claims.Identity(),
		DisplayName: claims.FullName,
		Subscriber:  claims.IsSubscriber(),
	})
}

// ChatLister 客服会话列表接口（GET /support/chats）
type ChatLister interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
}

// Console 客服视图：轮询刷新的会话列表加上当前选中的会话
type Console struct {
	*Conversation

	chats *live.Store[[]model.Chat]
	poll  *live.Interval[[]model.Chat]
}

// NewStaffConsole 为客服账号创建控制台，并按 every 周期轮询会话列表
func NewStaffConsole(deps Deps, session *auth.Session, lister ChatLister, every time.Duration) (*Console, error) {
	claims, ok := session.Claims()
	if !ok {
		return nil, auth.ErrNoToken
	}
	if !claims.IsStaff() {
		return nil, ErrForbidden
	}

	conv, err := New(deps, Binding{
		Owner:       model.OwnerStaff,
		UserID:      claims.Identity(),
		DisplayName: claims.FullName,
	})
	if err != nil {
		return nil, err
	}

	poll := &live.Interval[[]model.Chat]{
		Name:    "support chats",
		Every:   every,
		Fetch:   lister.ListChats,
		OnError: func(err error) { deps.Bus.Transient("console", err) },
	}
	console := &Console{Conversation: conv, chats: live.NewStore[[]model.Chat]("support chats"), poll: poll}
	if err := console.chats.Start(conv.ctx, poll); err != nil {
		conv.Close()
		return nil, err
	}
	return console, nil
}

// Chats 返回最新的会话列表
func (c *Console) Chats() []model.Chat {
	chats, _ := c.chats.Latest()
	return chats
}

// SubscribeChats 注册会话列表刷新回调
func (c *Console) SubscribeChats(fn func([]model.Chat)) func() {
	return c.chats.Subscribe(fn)
}

// Select 在控制台中打开会话
func (c *Console) Select(ctx context.Context, id model.ID) error {
	return c.SwitchSession(ctx, id)
}

// Close 停止轮询并关闭当前会话
func (c *Console) Close() {
	c.chats.Stop()
	c.Conversation.Close()
}
