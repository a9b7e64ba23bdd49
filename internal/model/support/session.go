package support

// OwnerContext 会话的身份上下文
type OwnerContext string

const (
	OwnerGuest OwnerContext = "GUEST"
	OwnerUser  OwnerContext = "AUTHENTICATED_USER"
	OwnerStaff OwnerContext = "STAFF"
)

// Sender 返回该身份发送消息时使用的 sender_type
func (o OwnerContext) Sender() Sender {
	switch o {
	case OwnerUser:
		return SenderUser
	case OwnerStaff:
		return SenderStaff
	default:
		return SenderGuest
	}
}

// Valid 判断是否为已知的身份上下文
func (o OwnerContext) Valid() bool {
	return o == OwnerGuest || o == OwnerUser || o == OwnerStaff
}

// Session 客户端视角的客服会话
type Session struct {
	ID    ID           `json:"id"`
	Owner OwnerContext `json:"ownerContext"`
}

// InitRequest POST /support/chats/init 请求体
type InitRequest struct {
	GuestName    string `json:"guest_name,omitempty"`
	GuestEmail   string `json:"guest_email,omitempty"`
	UserID       ID     `json:"user_id,omitempty"`
	IsSubscriber *bool  `json:"is_subscriber,omitempty"`
}

// InitResponse 服务端分配的会话 id
type InitResponse struct {
	ID ID `json:"id"`
}

// OutboundFrame 写入实时通道的消息
type OutboundFrame struct {
	Content    string `json:"content"`
	SenderType Sender `json:"sender_type"`
	SenderID   ID     `json:"sender_id,omitempty"`
}

// 后端返回的会话状态
const (
	ChatStatusBot    = "BOT"
	ChatStatusActive = "ACTIVE"
	ChatStatusClosed = "CLOSED"
)

// Chat 客服控制台会话列表中的一行
type Chat struct {
	ID         ID        `json:"id"`
	UserID     ID        `json:"user_id,omitempty"`
	GuestName  string    `json:"guest_name,omitempty"`
	GuestEmail string    `json:"guest_email,omitempty"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
}
