// Package presence 推导会话当前由谁接待。
package presence

import (
	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/transport"
)

// Status 会话的处理状态
type Status string

const (
	BotHandling Status = "BOT_HANDLING"
	StaffActive Status = "STAFF_ACTIVE"
	Offline     Status = "OFFLINE"
)

// DefaultAgentName 客服未提供名称时显示
const DefaultAgentName = "Agent"

// Classify 纯函数。出现任何 STAFF 消息后会话保持 STAFF_ACTIVE，
// 记录只增不减，因此不会回退。仅当通道重连耗尽时 OFFLINE 优先。
func Classify(msgs []support.Message, channel transport.State) Status {
	if channel == transport.StateOffline {
		return Offline
	}
	for _, m := range msgs {
		if m.SenderType == support.SenderStaff {
			return StaffActive
		}
	}
	return BotHandling
}

// AgentName 返回最近一位客服发送者的名称
func AgentName(msgs []support.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderType == support.SenderStaff && msgs[i].SenderName != "" {
			return msgs[i].SenderName
		}
	}
	return DefaultAgentName
}

// Label 返回状态对应的标题文案
func Label(status Status, agent string) string {
	switch status {
	case StaffActive:
		return "Chatting with " + agent
	case Offline:
		return "Offline - reconnect to continue"
	default:
		return "RiskLock Assistant"
	}
}
