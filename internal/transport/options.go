package transport

import (
	"net/http"
	"time"

	"github.com/risklock/livesync/internal/config"
)

// Options 描述实时通道的连接、心跳与重连参数。
type Options struct {
	ConnectTimeout time.Duration // 握手超时
	ReadTimeout    time.Duration // 读取超时，收到 pong 时顺延
	WriteTimeout   time.Duration // 写入超时
	PingInterval   time.Duration // Ping 间隔
	MaxRetries     int           // 断线后最多重连次数，耗尽后进入 OFFLINE
	BaseDelay      time.Duration // 退避初始间隔
	MaxDelay       time.Duration // 退避上限
	Header         http.Header   // 握手附带的请求头
}

// DefaultOptions 默认通道选项
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxRetries:     5,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
	}
}

// OptionsFromConfig 由配置生成通道选项
func OptionsFromConfig(cfg config.TransportConfig) Options {
	opts := DefaultOptions()
	if cfg.ConnectTimeout > 0 {
		opts.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.PingInterval > 0 {
		opts.PingInterval = cfg.PingInterval
	}
	if cfg.BaseDelay > 0 {
		opts.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		opts.MaxDelay = cfg.MaxDelay
	}
	opts.MaxRetries = cfg.MaxRetries
	return opts
}

// Backoff 计算第 attempt 次重连前的等待时间（从 1 开始），MaxDelay <= 0 表示不设上限。
func (o Options) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := o.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if o.MaxDelay > 0 && delay >= o.MaxDelay {
			return o.MaxDelay
		}
	}
	if o.MaxDelay > 0 && delay > o.MaxDelay {
		return o.MaxDelay
	}
	return delay
}
