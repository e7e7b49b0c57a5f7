package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewRecoveryMiddleware はハンドラー内のpanicを捕捉して500のJSONエラーを返すミドルウェアを生成する。
//
// エラーレスポンスには Cache-Control: no-store を付け、フィードリーダーや中継キャッシュに
// 残らないようにする。レスポンスの書き込みが始まった後のpanicではステータスを変えられないため、
// ログだけを出力して接続を閉じる。
// http.ErrAbortHandler は net/http の中断シグナルなのでそのまま再送出する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				span := trace.SpanFromContext(r.Context())
				span.RecordError(fmt.Errorf("panic: %v", v))
				span.SetStatus(codes.Error, "panic")

				logger.Error("panic recovered",
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				)

				if rec.written {
					panic(http.ErrAbortHandler)
				}
				w.Header().Del("X-Cache")
				w.Header().Set("Cache-Control", "no-store")
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
