// Package otelx はOpenTelemetryトレースの初期化を行う。
package otelx

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hitoshi/bgmfeed/internal/config"
)

const (
	defaultServiceName = "bgmfeed"
	defaultEndpoint    = "localhost:4318"
)

// ShutdownFunc はトレースプロバイダーを停止し、未送信のスパンを送り切る。
type ShutdownFunc func(context.Context) error

// noopShutdown はトレース無効時に返す停止関数。
func noopShutdown(context.Context) error { return nil }

// Init はOTLP/HTTPエクスポーターを使うトレースプロバイダーをグローバルに設定する。
// cfg.Enabledがfalseの場合は何もせず、何もしない停止関数を返す。
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelConfig) (ShutdownFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	sampleRatio := ClampRatio(cfg.SampleRatio)
	endpoint := EndpointOrDefault(cfg)

	opts := []otlptracehttp.Option{}
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("otel initialized",
		slog.String("service_name", serviceName),
		slog.String("otlp_endpoint", endpoint),
		slog.Float64("sample_ratio", sampleRatio),
	)

	return tp.Shutdown, nil
}

// EndpointOrDefault はOTLPエンドポイントを返す。未設定ならlocalhost:4318。
func EndpointOrDefault(cfg config.OTelConfig) string {
	if v := strings.TrimSpace(cfg.Endpoint); v != "" {
		return v
	}
	return defaultEndpoint
}

// ClampRatio はサンプリング率を[0, 1]に収める。
func ClampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
