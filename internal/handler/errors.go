package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/bgmfeed/internal/middleware"
	"github.com/hitoshi/bgmfeed/internal/model"
)

// handleServiceError はアダプタや描画から返されたエラーを適切なHTTPステータスコードに変換する。
// 上流APIの失敗は利用者向けのAPIErrorに変換し、それ以外の未知のエラーは内部エラーとして扱う。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var upstreamErr *model.UpstreamError
	if errors.As(err, &upstreamErr) {
		logger.Warn("upstream request failed", append(requestAttrs(r),
			slog.String("call", upstreamErr.Call),
			slog.Int("upstream_status", upstreamErr.StatusCode),
			slog.String("error", err.Error()),
		)...)
		apiErr := upstreamErr.APIError()
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	logger.Error("internal server error", append(requestAttrs(r),
		slog.String("error", err.Error()),
	)...)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUpstreamFailed, model.ErrCodeUpstreamMalformed:
		return http.StatusBadGateway
	case model.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// requestAttrs はログに付与するrequest_idと、トレース中であればtrace_idを返す。
func requestAttrs(r *http.Request) []any {
	attrs := []any{slog.String("request_id", middleware.RequestIDFromContext(r.Context()))}
	if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
		attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
	}
	return attrs
}
