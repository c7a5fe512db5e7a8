// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncCollector はメトリクス収集のインターフェース。
// 同期オーケストレータから利用する。
type SyncCollector interface {
	RecordBookSynced()
	RecordBookSkipped()
	RecordBookFailed()
	RecordBlocksAppended(count int)
	RecordBookLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	booksSynced    prometheus.Counter
	booksSkipped   prometheus.Counter
	booksFailed    prometheus.Counter
	blocksAppended prometheus.Counter
	bookLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		booksSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiori_books_synced_total",
			Help: "同期に成功した書籍の合計数",
		}),
		booksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiori_books_skipped_total",
			Help: "ウォーターマークによりスキップされた書籍の合計数",
		}),
		booksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiori_books_failed_total",
			Help: "同期に失敗した書籍の合計数",
		}),
		blocksAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiori_blocks_appended_total",
			Help: "同期先に追加されたブロックの合計数",
		}),
		bookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shiori_book_sync_latency_seconds",
			Help:    "1冊あたりの同期レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.booksSynced,
		c.booksSkipped,
		c.booksFailed,
		c.blocksAppended,
		c.bookLatency,
	)

	return c
}

// RecordBookSynced は書籍の同期成功を記録する。
func (c *Collector) RecordBookSynced() {
	c.booksSynced.Inc()
}

// RecordBookSkipped はウォーターマークによるスキップを記録する。
func (c *Collector) RecordBookSkipped() {
	c.booksSkipped.Inc()
}

// RecordBookFailed は書籍の同期失敗を記録する。
func (c *Collector) RecordBookFailed() {
	c.booksFailed.Inc()
}

// RecordBlocksAppended は追加されたブロック数を記録する。
func (c *Collector) RecordBlocksAppended(count int) {
	c.blocksAppended.Add(float64(count))
}

// RecordBookLatency は1冊あたりの同期レイテンシを記録する。
func (c *Collector) RecordBookLatency(duration time.Duration) {
	c.bookLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
