// Package reconcile 将单个会话的历史记录与实时消息合并为无重复的记录。
//
// 排序规则：按 created_at 升序；时间相同或缺失时间戳的消息按客户端首次
// 收到的顺序排列。以服务端时钟为准，不校正历史接口与广播之间的时钟偏差。
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/risklock/livesync/internal/model/support"
)

type entry struct {
	msg support.Message
	seq uint64
	// at 排序时间：created_at，缺失时取到达时间
	at time.Time
}

// Reconciler 消息合并器，可并发使用
type Reconciler struct {
	mu      sync.RWMutex
	seq     uint64
	entries []*entry
	byKey   map[string]*entry
	now     func() time.Time
}

// New 创建空的合并器
func New() *Reconciler {
	return &Reconciler{byKey: make(map[string]*entry), now: time.Now}
}

// AddLive 合并一条实时消息，返回记录是否发生变化
func (r *Reconciler) AddLive(msg support.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.add(msg)
	if changed {
		r.sortLocked()
	}
	return changed
}

// AddHistory 合并一批历史消息（顺序不限），返回记录是否发生变化
func (r *Reconciler) AddHistory(batch []support.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, msg := range batch {
		if r.add(msg) {
			changed = true
		}
	}
	if changed {
		r.sortLocked()
	}
	return changed
}

// add 调用方需持有 mu
func (r *Reconciler) add(msg support.Message) bool {
	if msg.Validate() != nil {
		return false
	}

	if e, ok := r.byKey[msg.IdentityKey()]; ok {
		return r.upgrade(e, msg)
	}

	// 无 id 的广播与带 id 的历史行是同一条消息
	if msg.ID != "" {
		noID := msg
		noID.ID = ""
		if e, ok := r.byKey[noID.IdentityKey()]; ok && e.msg.ID == "" {
			r.byKey[msg.IdentityKey()] = e
			return r.upgrade(e, msg)
		}
	}

	r.seq++
	e := &entry{msg: msg, seq: r.seq, at: msg.CreatedAt.Time}
	if e.at.IsZero() {
		e.at = r.now()
	}
	r.entries = append(r.entries, e)
	r.byKey[msg.IdentityKey()] = e
	if msg.ID != "" {
		// 让之后到达的无 id 副本也能命中
		noID := msg
		noID.ID = ""
		if _, taken := r.byKey[noID.IdentityKey()]; !taken {
			r.byKey[noID.IdentityKey()] = e
		}
	}
	return true
}

// upgrade 补全已存副本缺失的字段，位置不变
func (r *Reconciler) upgrade(e *entry, msg support.Message) bool {
	changed := false
	if e.msg.ID == "" && msg.ID != "" {
		e.msg.ID = msg.ID
		changed = true
	}
	if e.msg.SenderName == "" && msg.SenderName != "" {
		e.msg.SenderName = msg.SenderName
		changed = true
	}
	if e.msg.SenderID == "" && msg.SenderID != "" {
		e.msg.SenderID = msg.SenderID
		changed = true
	}
	if e.msg.ChatID == "" && msg.ChatID != "" {
		e.msg.ChatID = msg.ChatID
		changed = true
	}
	return changed
}

func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		return a.seq < b.seq
	})
}

// Messages 返回有序记录的副本
func (r *Reconciler) Messages() []support.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]support.Message, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.msg
	}
	return out
}

// Len 返回去重后的消息数
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset 清空记录，切换会话时使用
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.byKey = make(map[string]*entry)
}
