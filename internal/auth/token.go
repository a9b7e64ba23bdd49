package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/model/support"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoToken      = errors.New("not logged in")
)

// 允许进入客服控制台的角色
var staffRoles = map[string]bool{"FOUNDER": true, "SUPPORT": true, "STAFF": true}

// Claims 后端写入 access token 的载荷
type Claims struct {
	UserID           support.ID `json:"user_id,omitempty"`
	SubID            support.ID `json:"sub_id,omitempty"`
	FullName         string     `json:"full_name,omitempty"`
	Role             string     `json:"role,omitempty"`
	SubscriptionTier string     `json:"subscription_tier,omitempty"`
	jwt.RegisteredClaims
}

// Identity 返回数字用户 id，缺失时回退到 sub_id
func (c Claims) Identity() support.ID {
	if c.UserID != "" {
		return c.UserID
	}
	return c.SubID
}

// IsStaff 判断角色是否可使用客服控制台
func (c Claims) IsStaff() bool {
	return staffRoles[c.Role]
}

// IsSubscriber 判断用户是否为付费订阅
func (c Claims) IsSubscriber() bool {
	return c.SubscriptionTier != "" && c.SubscriptionTier != "free"
}

// ParseClaims 解码 token 但不校验签名。客户端没有签名密钥，
// 由后端校验每个请求。
func ParseClaims(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Session 保存进程内的 bearer token 并广播其失效
type Session struct {
	mu      sync.RWMutex
	token   string
	claims  Claims
	expired bool
	bus     *events.Bus
}

// NewSession 创建登录态，token 为空表示未登录
func NewSession(bus *events.Bus) *Session {
	return &Session{bus: bus}
}

// Login 解码 claims 后保存 token
func (s *Session) Login(token string) error {
	claims, err := ParseClaims(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return ErrExpiredToken
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.expired = false
	s.mu.Unlock()
	return nil
}

// Logout 清除 token，不发布事件
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.claims = Claims{}
	s.mu.Unlock()
}

// Token 返回当前 token，未登录时为空
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Claims 返回当前 token 解码后的 claims
func (s *Session) Claims() (Claims, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims, s.token != ""
}

// Authenticated 判断是否已登录
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Expire 响应 401 清除 token 并发布 AuthExpired，
// 同一 token 的并发 401 只发布一次。
func (s *Session) Expire(source string) {
	s.mu.Lock()
	if s.expired || s.token == "" {
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.token = ""
	s.claims = Claims{}
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.AuthExpired, Source: source, Err: ErrExpiredToken})
}
