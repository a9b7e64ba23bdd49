package desk

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/risklock/livesync/internal/analysis/bot"
	"github.com/risklock/livesync/internal/model/support"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrEmptyContent  = errors.New("content is required")
	ErrInvalidSender = errors.New("invalid sender_type")
)

// 创建会话时分配的优先级
const (
	PriorityStandard = "STANDARD"
	PriorityHigh     = "PRIORITY"
)

// Service 内存中的客服台，保存会话与记录并驱动机器人
type Service struct {
	mu       sync.RWMutex
	nextChat int64
	nextMsg  int64
	chats    map[support.ID]*support.Chat
	messages map[support.ID][]support.Message

	hub      *Hub
	botDelay time.Duration
	now      func() time.Time
}

// Option 调整桩服务的行为
type Option func(*Service)

// WithBotDelay 设置机器人回复前的停顿，模拟真人节奏
func WithBotDelay(d time.Duration) Option {
	return func(s *Service) { s.botDelay = d }
}

// NewService 创建空的客服台
func NewService(opts ...Option) *Service {
	s := &Service{
		chats:    make(map[support.ID]*support.Chat),
		messages: make(map[support.ID][]support.Message),
		hub:      NewHub(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub 返回实时连接的分发中心
func (s *Service) Hub() *Hub { return s.hub }

// InitChat 为访客或用户创建会话并写入机器人问候语
func (s *Service) InitChat(_ context.Context, req support.InitRequest) (support.Chat, error) {
	priority := PriorityStandard
	if req.IsSubscriber != nil && *req.IsSubscriber {
		priority = PriorityHigh
	}

	s.mu.Lock()
	s.nextChat++
	chat := &support.Chat{
		ID:         support.ID(strconv.FormatInt(s.nextChat, 10)),
		UserID:     req.UserID,
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		Status:     support.ChatStatusBot,
		Priority:   priority,
		CreatedAt:  support.NewTimestamp(s.now()),
	}
	s.chats[chat.ID] = chat
	s.messages[chat.ID] = make([]support.Message, 0, 16)
	s.appendLocked(chat.ID, support.Message{Content: bot.Greeting, SenderType: support.SenderBot})
	if !s.hub.StaffOnline() {
		s.appendLocked(chat.ID, support.Message{Content: bot.HighVolume, SenderType: support.SenderBot})
	}
	created := *chat
	s.mu.Unlock()

	log.Printf("[desk] chat %s opened (priority=%s)", created.ID, created.Priority)
	return created, nil
}

// GetChat retrieves a chat by identifier.
func (s *Service) GetChat(_ context.Context, chatID support.ID) (support.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return support.Chat{}, ErrChatNotFound
	}
	return *chat, nil
}

// ListChats 返回全部会话，最早的在前
func (s *Service) ListChats(_ context.Context) []support.Chat {
	s.mu.RLock()
	chats := make([]support.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, *chat)
	}
	s.mu.RUnlock()

	sort.Slice(chats, func(i, j int) bool {
		a, _ := strconv.ParseInt(string(chats[i].ID), 10, 64)
		b, _ := strconv.ParseInt(string(chats[j].ID), 10, 64)
		return a < b
	})
	return chats
}

// History 返回 chatID 的聊天记录
func (s *Service) History(_ context.Context, chatID support.ID) ([]support.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}

	copied := make([]support.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Post 保存参与者的消息并广播；会话仍由机器人接待时追加机器人回复
func (s *Service) Post(ctx context.Context, chatID support.ID, frame support.OutboundFrame, senderName string) error {
	if frame.Content == "" {
		return ErrEmptyContent
	}
	if !frame.SenderType.Valid() || frame.SenderType == support.SenderBot {
		return ErrInvalidSender
	}

	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	msg := s.appendLocked(chatID, support.Message{
		Content:    frame.Content,
		SenderType: frame.SenderType,
		SenderID:   frame.SenderID,
		SenderName: senderName,
	})
	botOwned := chat.Status == support.ChatStatusBot
	if frame.SenderType == support.SenderStaff {
		// 客服接入后机器人不再回复
		chat.Status = support.ChatStatusActive
		botOwned = false
	}
	s.mu.Unlock()

	s.hub.Broadcast(chatID, msg)

	if !botOwned {
		return nil
	}

	reply := bot.Respond(frame.Content)
	if s.botDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.botDelay):
		}
	}

	s.mu.Lock()
	if reply.Escalate {
		chat.Status = support.ChatStatusActive
		log.Printf("[desk] chat %s escalated to staff", chatID)
	}
	botMsg := s.appendLocked(chatID, support.Message{Content: reply.Content, SenderType: support.SenderBot})
	s.mu.Unlock()

	s.hub.Broadcast(chatID, botMsg)
	return nil
}

// appendLocked 调用方需持有 mu
func (s *Service) appendLocked(chatID support.ID, msg support.Message) support.Message {
	s.nextMsg++
	msg.ID = support.ID(strconv.FormatInt(s.nextMsg, 10))
	msg.ChatID = chatID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = support.NewTimestamp(s.now())
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return msg
}
