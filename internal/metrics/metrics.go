// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordUserRegistered()
	RecordLogin(method string)
	RecordNewsFetchSuccess()
	RecordNewsFetchFailure(reason string)
	RecordNewsFetchLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	usersRegistered  prometheus.Counter
	logins           *prometheus.CounterVec
	newsFetchSuccess prometheus.Counter
	newsFetchFail    *prometheus.CounterVec
	newsFetchLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userhub_users_registered_total",
			Help: "登録されたユーザーの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userhub_logins_total",
			Help: "ログイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		newsFetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userhub_news_fetch_success_total",
			Help: "ニュースAPIフェッチ成功の合計数",
		}),
		newsFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userhub_news_fetch_fail_total",
			Help: "ニュースAPIフェッチ失敗の合計数（理由別）",
		}, []string{"reason"}),
		newsFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "userhub_news_fetch_latency_seconds",
			Help:    "ニュースAPIフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.usersRegistered,
		c.logins,
		c.newsFetchSuccess,
		c.newsFetchFail,
		c.newsFetchLatency,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUserRegistered はユーザー登録を記録する。
func (c *Collector) RecordUserRegistered() {
	c.usersRegistered.Inc()
}

// RecordLogin はログイン成功を認証方式（local, github）別に記録する。
func (c *Collector) RecordLogin(method string) {
	c.logins.WithLabelValues(method).Inc()
}

// RecordNewsFetchSuccess はニュースフェッチ成功を記録する。
func (c *Collector) RecordNewsFetchSuccess() {
	c.newsFetchSuccess.Inc()
}

// RecordNewsFetchFailure はニュースフェッチ失敗を理由別に記録する。
func (c *Collector) RecordNewsFetchFailure(reason string) {
	c.newsFetchFail.WithLabelValues(reason).Inc()
}

// RecordNewsFetchLatency はニュースフェッチのレイテンシを記録する。
func (c *Collector) RecordNewsFetchLatency(duration time.Duration) {
	c.newsFetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NoopCollector は何も記録しないMetricsCollector実装。テスト用。
type NoopCollector struct{}

func (NoopCollector) RecordHTTPStatus(int)                 {}
func (NoopCollector) RecordUserRegistered()                {}
func (NoopCollector) RecordLogin(string)                   {}
func (NoopCollector) RecordNewsFetchSuccess()              {}
func (NoopCollector) RecordNewsFetchFailure(string)        {}
func (NoopCollector) RecordNewsFetchLatency(time.Duration) {}

// compile-time interface checks
var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = NoopCollector{}
