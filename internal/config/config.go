package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/bgmfeed/internal/security"
)

// DefaultUserAgent は上流APIへ送るUser-Agentの既定値。
// Bangumi APIはUser-Agentでクライアントを識別するため、空にはしない。
const DefaultUserAgent = "hitoshi/bgmfeed (https://github.com/hitoshi/bgmfeed)"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string

	// Upstream
	BangumiAPIBaseURL  string
	BangumiSiteBaseURL string
	UpstreamUserAgent  string
	FetchTimeout       time.Duration
	FetchMaxSize       int64

	// Cache
	CacheTTL  time.Duration
	CacheSize int

	// Rate Limit（req/min/IP）
	RateLimitGeneral int

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel slog.Level

	// Tracing
	OTel OTelConfig
}

// OTelConfig はOpenTelemetryトレースのエクスポート設定。
type OTelConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// Load は環境変数からConfigを読み込む。
// すべての項目に既定値があり、ベースURLが不正な場合のみエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	cfg.BangumiAPIBaseURL = strings.TrimRight(getEnvString("BANGUMI_API_BASE_URL", "https://api.bgm.tv"), "/")
	cfg.BangumiSiteBaseURL = strings.TrimRight(getEnvString("BANGUMI_SITE_BASE_URL", "https://bgm.tv"), "/")
	cfg.UpstreamUserAgent = getEnvString("UPSTREAM_USER_AGENT", DefaultUserAgent)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)

	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.CacheSize = getEnvInt("CACHE_SIZE", 256)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)

	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	cfg.LogLevel = getEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	cfg.OTel = OTelConfig{
		Enabled:     getEnvBool("OTEL_ENABLED", false),
		ServiceName: getEnvString("OTEL_SERVICE_NAME", "bgmfeed"),
		Endpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		SampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
	}

	var invalid []string
	if err := security.ValidateBaseURL(cfg.BangumiAPIBaseURL); err != nil {
		invalid = append(invalid, fmt.Sprintf("BANGUMI_API_BASE_URL: %v", err))
	}
	if err := security.ValidateBaseURL(cfg.BangumiSiteBaseURL); err != nil {
		invalid = append(invalid, fmt.Sprintf("BANGUMI_SITE_BASE_URL: %v", err))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvLogLevel は debug / info / warn / error を slog.Level に変換する。
func getEnvLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
