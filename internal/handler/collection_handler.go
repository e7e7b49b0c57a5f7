package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/bgmfeed/internal/cache"
	"github.com/hitoshi/bgmfeed/internal/feed"
	"github.com/hitoshi/bgmfeed/internal/middleware"
	"github.com/hitoshi/bgmfeed/internal/model"
)

const tracerName = "github.com/hitoshi/bgmfeed/internal/handler"

// CollectionFeedBuilder は収蔵一覧フィードを組み立てる。
// collection.Adapter が実装する。
type CollectionFeedBuilder interface {
	Handle(ctx context.Context, query model.CollectionQuery) (*model.FeedDocument, error)
}

// ResponseCache は描画済みレスポンスのキャッシュ。
// cache.FeedCache が実装する。
type ResponseCache interface {
	GetOrLoad(ctx context.Context, key string, load cache.LoadFunc) (cache.Entry, bool, error)
	TTL() time.Duration
}

// CollectionHandler は収蔵一覧フィードのHTTPハンドラー。
type CollectionHandler struct {
	builder CollectionFeedBuilder
	cache   ResponseCache
	logger  *slog.Logger
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(builder CollectionFeedBuilder, responseCache ResponseCache, logger *slog.Logger) *CollectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectionHandler{
		builder: builder,
		cache:   responseCache,
		logger:  logger,
	}
}

// GetCollectionFeed は収蔵一覧フィードを返す。
// GET /bangumi/tv/user/collections/{id}[/{subject_type}[/{type}]]?format=rss|atom|json
func (h *CollectionHandler) GetCollectionFeed(w http.ResponseWriter, r *http.Request) {
	query := model.CollectionQuery{
		UserID:         pathParam(r, "id"),
		SubjectType:    pathParam(r, "subject_type"),
		CollectionType: pathParam(r, "type"),
	}

	format, err := feed.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "collection_feed")
	defer span.End()
	span.SetAttributes(
		attribute.String("bangumi.user_id", query.UserID),
		attribute.String("bangumi.subject_type", query.SubjectType),
		attribute.String("bangumi.collection_type", query.CollectionType),
		attribute.String("feed.format", string(format)),
	)

	load := func(ctx context.Context) (cache.Entry, error) {
		doc, err := h.builder.Handle(ctx, query)
		if err != nil {
			return cache.Entry{}, err
		}
		body, err := feed.Render(doc, format)
		if err != nil {
			return cache.Entry{}, fmt.Errorf("フィードの描画に失敗しました: %w", err)
		}
		return cache.Entry{Body: body, ContentType: format.ContentType()}, nil
	}

	var (
		entry cache.Entry
		hit   bool
	)
	if h.cache != nil {
		entry, hit, err = h.cache.GetOrLoad(ctx, cacheKey(query, format), load)
	} else {
		entry, err = load(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleServiceError(w, r.WithContext(ctx), h.logger, err)
		return
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))

	w.Header().Set("Content-Type", entry.ContentType)
	if h.cache != nil && h.cache.TTL() > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.cache.TTL().Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(entry.Body); err != nil {
		h.logger.Warn("failed to write response",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// pathParam はパスパラメータをデコードして返す。
// chiはRawPathがある場合エスケープされたままの値を返すため、ここで戻す。
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// cacheKey はパスパラメータと出力形式からキャッシュキーを組み立てる。
// デコード後のパラメータには任意の文字が入り得るため、各要素をクォートして連結する。
func cacheKey(query model.CollectionQuery, format feed.Format) string {
	return fmt.Sprintf("%q %q %q %q", query.UserID, query.SubjectType, query.CollectionType, format)
}
