package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bgmfeed/internal/metrics"
	"github.com/hitoshi/bgmfeed/internal/middleware"
	"github.com/hitoshi/bgmfeed/internal/model"
)

// CollectionRoutePrefix は収蔵一覧フィードのルートの接頭辞。
const CollectionRoutePrefix = "/bangumi/tv/user/collections"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// フィード
	Builder CollectionFeedBuilder
	Cache   ResponseCache

	// nilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer
}

// NewRouter はルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit（フィードのみ）
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
	})

	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	collectionHandler := NewCollectionHandler(deps.Builder, deps.Cache, logger)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route(CollectionRoutePrefix+"/{id}", func(r chi.Router) {
			r.Get("/", collectionHandler.GetCollectionFeed)
			r.Get("/{subject_type}", collectionHandler.GetCollectionFeed)
			r.Get("/{subject_type}/{type}", collectionHandler.GetCollectionFeed)
		})
	})

	return r
}
