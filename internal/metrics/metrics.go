// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 上流呼び出しの結果ラベル。
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeMalformed = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流クライアント、アダプタ、キャッシュから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(call, outcome string)
	RecordUpstreamStatus(call string, statusCode int)
	RecordUpstreamLatency(call string, duration time.Duration)
	RecordFeedBuilt(itemCount int)
	RecordCacheHit()
	RecordCacheMiss()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamStatus   *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	feedsBuilt       prometheus.Counter
	itemsEmitted     prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgmfeed_upstream_requests_total",
			Help: "Bangumi API呼び出しの結果別合計数",
		}, []string{"call", "outcome"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgmfeed_upstream_http_status_total",
			Help: "Bangumi APIのHTTPステータスコード別レスポンス数",
		}, []string{"call", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgmfeed_upstream_latency_seconds",
			Help:    "Bangumi API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
		feedsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bgmfeed_feeds_built_total",
			Help: "生成したフィードの合計数",
		}),
		itemsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bgmfeed_items_emitted_total",
			Help: "フィードに出力した記事の合計数",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bgmfeed_cache_hits_total",
			Help: "レスポンスキャッシュのヒット数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bgmfeed_cache_misses_total",
			Help: "レスポンスキャッシュのミス数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamStatus,
		c.upstreamLatency,
		c.feedsBuilt,
		c.itemsEmitted,
		c.cacheHits,
		c.cacheMisses,
	)

	return c
}

// RecordUpstreamRequest は上流呼び出しの結果を記録する。
func (c *Collector) RecordUpstreamRequest(call, outcome string) {
	c.upstreamRequests.WithLabelValues(call, outcome).Inc()
}

// RecordUpstreamStatus は上流のHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(call string, statusCode int) {
	c.upstreamStatus.WithLabelValues(call, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は上流呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(call string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(call).Observe(duration.Seconds())
}

// RecordFeedBuilt はフィード生成と出力記事数を記録する。
func (c *Collector) RecordFeedBuilt(itemCount int) {
	c.feedsBuilt.Inc()
	c.itemsEmitted.Add(float64(itemCount))
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクス不要なテストや組み込み用途向け。
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, string)        {}
func (Nop) RecordUpstreamStatus(string, int)            {}
func (Nop) RecordUpstreamLatency(string, time.Duration) {}
func (Nop) RecordFeedBuilt(int)                         {}
func (Nop) RecordCacheHit()                             {}
func (Nop) RecordCacheMiss()                            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
