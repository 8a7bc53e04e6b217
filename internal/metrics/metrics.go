// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordViewAllowed(newView bool)
	RecordViewDenied(reason string)
	RecordWebhookEvent(eventType, outcome string)
	RecordUpgrade()
	RecordCheckoutSession()
}

var _ MetricsCollector = (*Collector)(nil)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	viewsAllowed     *prometheus.CounterVec
	viewsDenied      *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	upgrades         prometheus.Counter
	checkoutSessions prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		viewsAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studymap_program_views_allowed_total",
			Help: "許可されたプログラム閲覧の合計数",
		}, []string{"kind"}), // new | repeat
		viewsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studymap_program_views_denied_total",
			Help: "拒否されたプログラム閲覧の合計数",
		}, []string{"reason"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studymap_webhook_events_total",
			Help: "受信したWebhookイベントの種別・結果別の合計数",
		}, []string{"type", "outcome"}),
		upgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studymap_upgrades_total",
			Help: "プレミアムへのアップグレード完了の合計数",
		}),
		checkoutSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studymap_checkout_sessions_total",
			Help: "作成されたCheckout Sessionの合計数",
		}),
	}

	reg.MustRegister(
		c.viewsAllowed,
		c.viewsDenied,
		c.webhookEvents,
		c.upgrades,
		c.checkoutSessions,
	)

	return c
}

// RecordViewAllowed は許可された閲覧を記録する。
func (c *Collector) RecordViewAllowed(newView bool) {
	kind := "repeat"
	if newView {
		kind = "new"
	}
	c.viewsAllowed.WithLabelValues(kind).Inc()
}

// RecordViewDenied は拒否された閲覧を理由別に記録する。
func (c *Collector) RecordViewDenied(reason string) {
	c.viewsDenied.WithLabelValues(reason).Inc()
}

// RecordWebhookEvent はWebhookイベントを種別・結果別に記録する。
// outcomeはprocessed, acked, rejected, failedのいずれか。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordUpgrade はプレミアムへのアップグレード完了を記録する。
func (c *Collector) RecordUpgrade() {
	c.upgrades.Inc()
}

// RecordCheckoutSession はCheckout Sessionの作成を記録する。
func (c *Collector) RecordCheckoutSession() {
	c.checkoutSessions.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
