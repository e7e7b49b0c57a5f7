// Package cache はレンダリング済みフィードのインメモリキャッシュを提供する。
//
// アダプタ自体はキャッシュを持たず、HTTP層がこのキャッシュ越しにアダプタを呼び出す。
// 同じキーへの同時リクエストはsingleflightで1回の上流呼び出しにまとめる。
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/bgmfeed/internal/metrics"
)

// Entry はキャッシュされるレンダリング結果。
type Entry struct {
	Body        []byte
	ContentType string
}

// LoadFunc はキャッシュミス時にEntryを生成する関数。
type LoadFunc func(ctx context.Context) (Entry, error)

// FeedCache はTTL付きLRUキャッシュ。
// ttlが0以下の場合は保存を行わず、同時リクエストの集約だけを行う。
type FeedCache struct {
	lru     *expirable.LRU[string, Entry]
	group   singleflight.Group
	ttl     time.Duration
	metrics metrics.MetricsCollector
}

// New はFeedCacheを生成する。sizeが0以下の場合は256を使う。
func New(size int, ttl time.Duration, metricsCollector metrics.MetricsCollector) *FeedCache {
	if size <= 0 {
		size = 256
	}
	if metricsCollector == nil {
		metricsCollector = metrics.Nop{}
	}

	c := &FeedCache{
		ttl:     ttl,
		metrics: metricsCollector,
	}
	if ttl > 0 {
		c.lru = expirable.NewLRU[string, Entry](size, nil, ttl)
	}
	return c
}

// TTL はキャッシュの有効期間を返す。
func (c *FeedCache) TTL() time.Duration {
	return c.ttl
}

// GetOrLoad はキーに対応するEntryを返す。2番目の戻り値はキャッシュヒットかどうか。
// キャッシュにない場合はloadを呼び出し、成功した結果だけを保存する。
// loadのエラーはキャッシュせずそのまま返す。
func (c *FeedCache) GetOrLoad(ctx context.Context, key string, load LoadFunc) (Entry, bool, error) {
	if c.lru != nil {
		if e, ok := c.lru.Get(key); ok {
			c.metrics.RecordCacheHit()
			return e, true, nil
		}
	}
	c.metrics.RecordCacheMiss()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// 先行リクエストが保存済みの場合はそれを使う
		if c.lru != nil {
			if e, ok := c.lru.Get(key); ok {
				return e, nil
			}
		}
		// 呼び出し元のキャンセルで共有中の読み込みが失敗しないよう、値だけ引き継ぐ
		e, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return Entry{}, err
		}
		if c.lru != nil {
			c.lru.Add(key, e)
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Len は現在保存されているエントリ数を返す。
func (c *FeedCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge はすべてのエントリを削除する。
func (c *FeedCache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}
