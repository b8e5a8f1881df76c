package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes of the payment webhook.
const (
	WebhookIgnored      = "ignored"
	WebhookUnknown      = "unknown_transaction"
	WebhookDuplicate    = "duplicate"
	WebhookApproved     = "approved"
	WebhookRejected     = "rejected"
	WebhookIntermediate = "intermediate"
	WebhookFailed       = "failed"
)

// CheckoutMetrics counts checkout starts, webhook outcomes and the orders they
// produce. A nil *CheckoutMetrics records nothing.
type CheckoutMetrics struct {
	checkoutsStarted     *prometheus.CounterVec
	checkoutsFailed      prometheus.Counter
	webhookOutcomes      *prometheus.CounterVec
	ordersCreated        *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	processorLatency     *prometheus.HistogramVec
}

func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutsStarted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_started_total",
			Help: "Checkouts started, by payment path",
		}, []string{"path"}),
		checkoutsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_failed_total",
			Help: "Checkouts aborted because the payment processor was unavailable",
		}),
		webhookOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_webhooks_total",
			Help: "Payment notifications processed, by outcome",
		}, []string{"outcome"}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Orders materialised, by source",
		}, []string{"source"}),
		notificationFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_notification_failures_total",
			Help: "Notifications that could not be delivered, by template",
		}, []string{"template"}),
		processorLatency: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_payment_processor_seconds",
			Help:    "Latency of payment processor calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

func (m *CheckoutMetrics) RecordCheckoutStarted(path string) {
	if m == nil {
		return
	}
	m.checkoutsStarted.WithLabelValues(path).Inc()
}

func (m *CheckoutMetrics) RecordCheckoutFailed() {
	if m == nil {
		return
	}
	m.checkoutsFailed.Inc()
}

func (m *CheckoutMetrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) RecordOrderCreated(source string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(source).Inc()
}

func (m *CheckoutMetrics) RecordNotificationFailure(template string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(template).Inc()
}

// ObserveProcessorCall records how long a payment processor call took.
func (m *CheckoutMetrics) ObserveProcessorCall(call string, started time.Time) {
	if m == nil {
		return
	}
	m.processorLatency.WithLabelValues(call).Observe(time.Since(started).Seconds())
}
