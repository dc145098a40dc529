// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェアやサービス層から利用する。
type Recorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordAuthEvent(event, result string)
	RecordRateLimitRejection()
	RecordRefreshReuse()
	RecordEmailSent(result string)
	SetRateLimitBuckets(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	authEvents     *prometheus.CounterVec
	rateLimited    prometheus.Counter
	refreshReuse   prometheus.Counter
	emailsSent     *prometheus.CounterVec
	rateLimitItems prometheus.Gauge
}

var _ Recorder = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsletter_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_auth_events_total",
			Help: "認証イベント（register, login, refresh, logout）の合計数",
		}, []string{"event", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_rate_limit_rejections_total",
			Help: "レート制限で拒否されたリクエストの合計数",
		}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_refresh_reuse_total",
			Help: "失効済みリフレッシュトークンの再提示数",
		}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_emails_sent_total",
			Help: "送信したメールの合計数",
		}, []string{"result"}),
		rateLimitItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsletter_rate_limit_buckets",
			Help: "保持しているレート制限バケット数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.authEvents,
		c.rateLimited,
		c.refreshReuse,
		c.emailsSent,
		c.rateLimitItems,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, result string) {
	c.authEvents.WithLabelValues(event, result).Inc()
}

func (c *Collector) RecordRateLimitRejection() {
	c.rateLimited.Inc()
}

func (c *Collector) RecordRefreshReuse() {
	c.refreshReuse.Inc()
}

// RecordEmailSent はメール送信結果（success / failure）を記録する。
func (c *Collector) RecordEmailSent(result string) {
	c.emailsSent.WithLabelValues(result).Inc()
}

func (c *Collector) SetRateLimitBuckets(n int) {
	c.rateLimitItems.Set(float64(n))
}

// Nop は何も記録しないRecorder。
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordAuthEvent(string, string) {}
func (Nop) RecordRateLimitRejection() {}
func (Nop) RecordRefreshReuse() {}
func (Nop) RecordEmailSent(string) {}
func (Nop) SetRateLimitBuckets(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
