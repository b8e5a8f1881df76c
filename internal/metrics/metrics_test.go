package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetricsWithRegisterer(reg)

	m.RecordCheckoutStarted("bank_transfer")
	m.RecordCheckoutStarted("bank_transfer")
	m.RecordCheckoutStarted("processor")
	m.RecordCheckoutFailed()
	m.RecordWebhook(WebhookApproved)
	m.RecordWebhook(WebhookDuplicate)
	m.RecordOrderCreated("webhook")
	m.RecordNotificationFailure("orderIncoming")
	m.ObserveProcessorCall("create_preference", time.Now().Add(-time.Second))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkoutsStarted.WithLabelValues("bank_transfer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutsStarted.WithLabelValues("processor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookOutcomes.WithLabelValues(WebhookDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated.WithLabelValues("webhook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("orderIncoming")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processorLatency))
}

func TestCheckoutMetricsReuseRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(reg)
	second := NewCheckoutMetricsWithRegisterer(reg)

	first.RecordCheckoutFailed()
	second.RecordCheckoutFailed()

	require.Same(t, first.checkoutsFailed, second.checkoutsFailed)
	assert.Equal(t, 2.0, testutil.ToFloat64(second.checkoutsFailed))
}

func TestNilCheckoutMetricsIsNoop(t *testing.T) {
	var m *CheckoutMetrics
	assert.NotPanics(t, func() {
		m.RecordCheckoutStarted("processor")
		m.RecordWebhook(WebhookFailed)
		m.ObserveProcessorCall("find_payment", time.Now())
	})
}
