package desk

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/risklock/livesync/internal/model/support"
)

// Subscriber 会话上的一条实时连接
type Subscriber struct {
	ID    string
	Staff bool
	C     chan support.Message
}

// Hub 将消息分发给会话的所有连接
type Hub struct {
	mu    sync.RWMutex
	rooms map[support.ID]map[string]*Subscriber
}

// NewHub 创建分发中心
func NewHub() *Hub {
	return &Hub{rooms: make(map[support.ID]map[string]*Subscriber)}
}

// Join 在 chatID 上注册连接，返回的函数用于离开
func (h *Hub) Join(chatID support.ID, staff bool) (*Subscriber, func()) {
	sub := &Subscriber{ID: uuid.NewString(), Staff: staff, C: make(chan support.Message, 32)}

	h.mu.Lock()
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[string]*Subscriber)
		h.rooms[chatID] = room
	}
	room[sub.ID] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.rooms[chatID], sub.ID)
			if len(h.rooms[chatID]) == 0 {
				delete(h.rooms, chatID)
			}
			h.mu.Unlock()
		})
	}
}

// Broadcast 向 chatID 的所有连接投递消息，缓冲区已满的慢连接会丢帧
func (h *Hub) Broadcast(chatID support.ID, msg support.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.rooms[chatID] {
		select {
		case sub.C <- msg:
		default:
			log.Printf("[hub] chat %s: subscriber %s is lagging, frame dropped", chatID, sub.ID)
		}
	}
}

// StaffOnline 判断是否有客服在线
func (h *Hub) StaffOnline() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		for _, sub := range room {
			if sub.Staff {
				return true
			}
		}
	}
	return false
}

// Connections 返回 chatID 上的连接数
func (h *Hub) Connections(chatID support.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
