package bot

import "strings"

// Intent 表示访客消息命中的意图。
type Intent string

const (
	Fallback Intent = "fallback"
	Pricing  Intent = "pricing"
	Setup    Intent = "setup"
	Escalate Intent = "escalate"
)

// Reply 给出机器人回复以及是否需要转人工。
type Reply struct {
	Intent   Intent
	Content  string
	Escalate bool
}

// 意图按顺序匹配，第一个命中的生效。
var intentOrder = []Intent{Pricing, Setup, Escalate}

var keywordBuckets = map[Intent][]string{
	Pricing:  {"pricing", "cost"},
	Setup:    {"setup", "connect"},
	Escalate: {"human", "agent", "help"},
}

var replies = map[Intent]string{
	Pricing:  "RiskLock offers three tiers: Standard, Elite, and Ultra. You can find detailed pricing on our /pricing page!",
	Setup:    "To connect your account, go to Dashboard > Settings and enter your MetaApi credentials. I can guide you through it!",
	Escalate: "Understood. I'm notifying a support specialist to join this chat. One moment...",
	Fallback: "I'm the RiskLock AI. I can help with pricing, setup, or technical FAQs. Would you like to speak with a human agent?",
}

// 新会话创建时写入的两条系统消息。
const (
	Greeting   = "Welcome to RiskLock Priority Support. Our AI is analyzing your account status. A human agent will be notified if your query requires deeper technical analysis."
	HighVolume  = "NOTE: Our technical team is currently handling high volume. A Human Agent will join this thread as soon as possible. Please describe your issue in detail."
)

// Respond 根据关键词为访客消息生成回复。
func Respond(text string) Reply {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, intent := range intentOrder {
		for _, word := range keywordBuckets[intent] {
			if strings.Contains(normalized, word) {
				return Reply{Intent: intent, Content: replies[intent], Escalate: intent == Escalate}
			}
		}
	}

	return Reply{Intent: Fallback, Content: replies[Fallback]}
}
