package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue はレジストリから指定メトリクスのカウンタ値を合算して返す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	total := 0.0
	found := false
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		found = true
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if !found {
		t.Fatalf("metric %s not found", name)
	}
	return total
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordViewAllowed_IncrementsCounter は閲覧許可カウンタが増加することを検証する。
func TestRecordViewAllowed_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordViewAllowed(true)
	c.RecordViewAllowed(true)
	c.RecordViewAllowed(false)

	if got := counterValue(t, reg, "studymap_program_views_allowed_total"); got != 3 {
		t.Errorf("views_allowed_total = %v, want 3", got)
	}
}

// TestRecordViewDenied_IncrementsCounter は閲覧拒否カウンタが理由別に増加することを検証する。
func TestRecordViewDenied_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordViewDenied("LimitReached")
	c.RecordViewDenied("StoreUnavailable")

	if got := counterValue(t, reg, "studymap_program_views_denied_total"); got != 2 {
		t.Errorf("views_denied_total = %v, want 2", got)
	}
}

// TestRecordWebhookEvent_IncrementsCounter はWebhookイベントカウンタが増加することを検証する。
func TestRecordWebhookEvent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("checkout.session.completed", "processed")
	c.RecordWebhookEvent("checkout.session.completed", "processed")
	c.RecordWebhookEvent("payment_intent.payment_failed", "acked")

	if got := counterValue(t, reg, "studymap_webhook_events_total"); got != 3 {
		t.Errorf("webhook_events_total = %v, want 3", got)
	}
}

// TestRecordUpgrade_IncrementsCounter はアップグレードカウンタが増加することを検証する。
func TestRecordUpgrade_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpgrade()

	if got := counterValue(t, reg, "studymap_upgrades_total"); got != 1 {
		t.Errorf("upgrades_total = %v, want 1", got)
	}
}

// TestRecordCheckoutSession_IncrementsCounter はCheckoutセッションカウンタが増加することを検証する。
func TestRecordCheckoutSession_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckoutSession()
	c.RecordCheckoutSession()

	if got := counterValue(t, reg, "studymap_checkout_sessions_total"); got != 2 {
		t.Errorf("checkout_sessions_total = %v, want 2", got)
	}
}
