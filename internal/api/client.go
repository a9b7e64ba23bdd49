package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/model/dashboard"
	"github.com/risklock/livesync/internal/model/support"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrMissingID    = errors.New("backend returned no chat id")
)

// StatusError 非 2xx 且非 401 的响应
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Path, e.Code, e.Body)
}

// Is 支持 errors.Is(err, ErrNotFound) 匹配 404
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client RiskLock REST 后端客户端。任何 401 都会清除登录态中的 token，
// 并在事件总线上发布 AuthExpired。
type Client struct {
	baseURL string
	http    *http.Client
	session *auth.Session
}

// New 创建客户端，仅访客使用时 session 可为 nil
func New(baseURL string, timeout time.Duration, session *auth.Session) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: session,
	}
}

// InitChat 调用 POST /support/chats/init，返回新会话 id
func (c *Client) InitChat(ctx context.Context, req support.InitRequest) (support.ID, error) {
	var resp support.InitResponse
	if err := c.do(ctx, http.MethodPost, "/support/chats/init", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrMissingID
	}
	return resp.ID, nil
}

// History 调用 GET /support/history/{id}
func (c *Client) History(ctx context.Context, chatID support.ID) ([]support.Message, error) {
	var messages []support.Message
	path := "/support/history/" + url.PathEscape(string(chatID))
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListChats 调用 GET /support/chats（仅客服）
func (c *Client) ListChats(ctx context.Context) ([]support.Chat, error) {
	var chats []support.Chat
	if err := c.do(ctx, http.MethodGet, "/support/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// Overview 调用 GET /dashboard/overview
func (c *Client) Overview(ctx context.Context) (dashboard.Overview, error) {
	var overview dashboard.Overview
	if err := c.do(ctx, http.MethodGet, "/dashboard/overview", nil, &overview); err != nil {
		return dashboard.Overview{}, err
	}
	return overview, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.session != nil {
			c.session.Expire(path)
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
