package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合客户端与本地桩服务的配置项。
type Config struct {
	API       APIConfig
	Storage   StorageConfig
	Transport TransportConfig
	Polling   PollingConfig
	Stub      StubConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	transport, err := loadTransportConfig()
	if err != nil {
		return nil, err
	}

	polling, err := loadPollingConfig()
	if err != nil {
		return nil, err
	}

	stub, err := loadStubConfig()
	if err != nil {
		return nil, err
	}

	return &Config{API: api, Storage: storage, Transport: transport, Polling: polling, Stub: stub}, nil
}

// APIConfig 描述 REST 与 WebSocket 后端地址。
type APIConfig struct {
	BaseURL string
	WSURL   string
	Token   string
	Timeout time.Duration
}

func loadAPIConfig() (APIConfig, error) {
	base := strings.TrimRight(getEnvOrDefault("RISKLOCK_API_URL", "http://localhost:8000/api"), "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return APIConfig{}, fmt.Errorf("invalid RISKLOCK_API_URL value %q: %w", base, err)
	}

	wsURL := strings.TrimRight(strings.TrimSpace(os.Getenv("RISKLOCK_WS_URL")), "/")
	if wsURL == "" {
		derived, err := DeriveWSURL(base)
		if err != nil {
			return APIConfig{}, err
		}
		wsURL = derived
	}

	timeout, err := parseDurationEnv("RISKLOCK_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return APIConfig{}, err
	}

	return APIConfig{
		BaseURL: base,
		WSURL:   wsURL,
		Token:   strings.TrimSpace(os.Getenv("RISKLOCK_TOKEN")),
		Timeout: timeout,
	}, nil
}

// DeriveWSURL 把 http(s) 地址换成对应的 ws(s) 地址。
func DeriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// StorageConfig 描述会话 ID 的持久化后端。
type StorageConfig struct {
	Backend    string
	RedisAddr  string
	SQLitePath string
}

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

func loadStorageConfig() (StorageConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("RISKLOCK_STORAGE", StorageMemory))
	switch backend {
	case StorageMemory, StorageRedis, StorageSQLite:
	default:
		return StorageConfig{}, fmt.Errorf("invalid RISKLOCK_STORAGE value %q", backend)
	}

	return StorageConfig{
		Backend:    backend,
		RedisAddr:  getEnvOrDefault("RISKLOCK_REDIS_ADDR", "localhost:6379"),
		SQLitePath: getEnvOrDefault("RISKLOCK_SQLITE_PATH", "risklock-client.db"),
	}, nil
}

// TransportConfig 描述实时通道的连接与重连策略。
type TransportConfig struct {
	ConnectTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
}

func loadTransportConfig() (TransportConfig, error) {
	connectTimeout, err := parseDurationEnv("RISKLOCK_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return TransportConfig{}, err
	}

	baseDelay, err := parseDurationEnv("RISKLOCK_RECONNECT_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return TransportConfig{}, err
	}

	maxDelay, err := parseDurationEnv("RISKLOCK_RECONNECT_MAX_DELAY", 15*time.Second)
	if err != nil {
		return TransportConfig{}, err
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	maxRetries := 5
	if override, err := parseOptionalIntEnv("RISKLOCK_RECONNECT_MAX_RETRIES"); err != nil {
		return TransportConfig{}, err
	} else if override != nil {
		if *override < 0 {
			maxRetries = 0
		} else {
			maxRetries = *override
		}
	}

	return TransportConfig{
		ConnectTimeout: connectTimeout,
		MaxRetries:     maxRetries,
		BaseDelay:      baseDelay,
		MaxDelay:       maxDelay,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
	}, nil
}

// PollingConfig 描述轮询型数据源的间隔。
type PollingConfig struct {
	Dashboard time.Duration
	Chats     time.Duration
}

func loadPollingConfig() (PollingConfig, error) {
	dashboard, err := parseDurationEnv("RISKLOCK_DASHBOARD_POLL", 5*time.Second)
	if err != nil {
		return PollingConfig{}, err
	}

	chats, err := parseDurationEnv("RISKLOCK_CHATS_POLL", 10*time.Second)
	if err != nil {
		return PollingConfig{}, err
	}

	return PollingConfig{Dashboard: dashboard, Chats: chats}, nil
}

// StubConfig 描述本地桩后端的监听地址与签名密钥。
type StubConfig struct {
	Addr      string
	JWTSecret string
}

func loadStubConfig() (StubConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, " ") {
		return StubConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		addr = ":" + port
	}

	return StubConfig{
		Addr:      addr,
		JWTSecret: getEnvOrDefault("STUB_JWT_SECRET", "risklock-dev-secret"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv 同时接受 Go 时长（"750ms"）与纯数字（按毫秒处理）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
