package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/bgmfeed/internal/bangumi"
	"github.com/hitoshi/bgmfeed/internal/cache"
	"github.com/hitoshi/bgmfeed/internal/collection"
	"github.com/hitoshi/bgmfeed/internal/config"
	"github.com/hitoshi/bgmfeed/internal/handler"
	"github.com/hitoshi/bgmfeed/internal/logger"
	"github.com/hitoshi/bgmfeed/internal/metrics"
	"github.com/hitoshi/bgmfeed/internal/middleware"
	"github.com/hitoshi/bgmfeed/internal/observability/otelx"
	"github.com/hitoshi/bgmfeed/internal/security"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数でConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := new(slog.LevelVar)
	log := logger.SetupDefault(w, level)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level.Set(cfg.LogLevel)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで終了する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はctxがキャンセルされるまでアプリケーションを実行する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck と version は設定を読み込まずに実行する
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	case CommandVersion:
		_, err := fmt.Fprintln(w, versionLine())
		return err
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", BuildVersion()),
		slog.String("port", cfg.ServerPort),
		slog.String("bangumi_api_base_url", cfg.BangumiAPIBaseURL),
	)

	return runServe(ctx, cfg, log)
}

// Server はワイヤリング済みのHTTPハンドラーと停止処理をまとめたもの。
type Server struct {
	Handler     http.Handler
	Cache       *cache.FeedCache
	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// NewServer は設定から全依存関係をワイヤリングしたServerを構築する。
// regがnilの場合は新しいPrometheusレジストリを作成する。
func NewServer(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. 上流APIクライアント（接続先を設定されたAPIホストに限定する）
	guard, err := security.NewUpstreamGuard(cfg.BangumiAPIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream guard: %w", err)
	}
	client := bangumi.NewClient(guard.NewClient(cfg.FetchTimeout), log, collector, bangumi.ClientConfig{
		BaseURL:         cfg.BangumiAPIBaseURL,
		UserAgent:       cfg.UpstreamUserAgent,
		MaxResponseSize: cfg.FetchMaxSize,
		ErrorBody:       security.NewTextSanitizer(),
	})

	// 3. アダプタとキャッシュ
	adapter := collection.NewAdapter(client, collector, log, collection.AdapterConfig{
		SiteBaseURL: cfg.BangumiSiteBaseURL,
	})
	feedCache := cache.New(cfg.CacheSize, cfg.CacheTTL, collector)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral), log)
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Builder:           adapter,
		Cache:             feedCache,
		Gatherer:          reg,
	})

	return &Server{
		Handler:     router,
		Cache:       feedCache,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はフィードサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := otelx.Init(ctx, log, cfg.OTel)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := NewServer(cfg, log, nil)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("feed server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down feed server...")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("feed server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
