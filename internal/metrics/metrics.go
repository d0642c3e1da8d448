// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ステータス照会の結果ラベル
const (
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
	StatusPending   = "pending"
)

// 探索APIの取得元ラベル
const (
	SourceCache   = "cache"
	SourceNetwork = "network"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordStatusLookup(result string)
	RecordNeighborsAdded(count int)
	RecordAlertSent()
	RecordAlertFailure(reason string)
	RecordExploreFetch(source string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordEmailSent(kind string)
	RecordEmailSkipped(kind string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	statusLookups  *prometheus.CounterVec
	neighborsAdded prometheus.Counter
	alertsSent     prometheus.Counter
	alertsFail     *prometheus.CounterVec
	exploreFetches *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	emailsSent     *prometheus.CounterVec
	emailsSkipped  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		statusLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_status_lookups_total",
			Help: "選挙ステータス照会の結果別の合計数",
		}, []string{"result"}),
		neighborsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ballotbuddies_neighbors_added_total",
			Help: "追加された近隣の合計数",
		}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ballotbuddies_alerts_sent_total",
			Help: "送信した活動通知の合計数",
		}),
		alertsFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_alerts_fail_total",
			Help: "活動通知の失敗の合計数",
		}, []string{"reason"}),
		exploreFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_explore_fetches_total",
			Help: "探索APIのページ取得数（取得元別）",
		}, []string{"source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_http_status_total",
			Help: "外部APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ballotbuddies_fetch_latency_seconds",
			Help:    "外部APIフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_emails_sent_total",
			Help: "送信したメールの種類別の合計数",
		}, []string{"kind"}),
		emailsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbuddies_emails_skipped_total",
			Help: "テスト用ドメインのため送信しなかったメールの合計数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.statusLookups,
		c.neighborsAdded,
		c.alertsSent,
		c.alertsFail,
		c.exploreFetches,
		c.httpStatus,
		c.fetchLatency,
		c.emailsSent,
		c.emailsSkipped,
	)

	return c
}

// RecordStatusLookup はステータス照会の結果を記録する。
func (c *Collector) RecordStatusLookup(result string) {
	c.statusLookups.WithLabelValues(result).Inc()
}

// RecordNeighborsAdded は追加された近隣の数を記録する。
func (c *Collector) RecordNeighborsAdded(count int) {
	c.neighborsAdded.Add(float64(count))
}

// RecordAlertSent は通知の送信を記録する。
func (c *Collector) RecordAlertSent() {
	c.alertsSent.Inc()
}

// RecordAlertFailure は通知の失敗を記録する。
func (c *Collector) RecordAlertFailure(reason string) {
	c.alertsFail.WithLabelValues(reason).Inc()
}

// RecordExploreFetch は探索APIのページ取得を記録する。
func (c *Collector) RecordExploreFetch(source string) {
	c.exploreFetches.WithLabelValues(source).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordEmailSent はメール送信を記録する。
func (c *Collector) RecordEmailSent(kind string) {
	c.emailsSent.WithLabelValues(kind).Inc()
}

// RecordEmailSkipped は送信をスキップしたメールを記録する。
func (c *Collector) RecordEmailSkipped(kind string) {
	c.emailsSkipped.WithLabelValues(kind).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集中のエラーは取得できた分だけ返し、エラー自体は promhttp_metric_handler_errors_total に数える。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
