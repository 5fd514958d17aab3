package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// latencyBuckets spans a sub-10ms cache hit up to a 30s upstream timeout.
var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Metrics is the gateway's Prometheus registry. Each instance owns a
// private prometheus.Registry rather than registering against the
// package-global DefaultRegisterer, so a second Metrics (as in tests)
// never collides with the first on duplicate metric names.
type Metrics struct {
	logger zerolog.Logger
	reg    *prometheus.Registry

	chatTurnsTotal      *prometheus.CounterVec
	chatTurnDuration    *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec
	costMillicentsTotal *prometheus.CounterVec
	injectionRejects    *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
	budgetUtilization   prometheus.Gauge
}

func NewMetrics(logger zerolog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		logger: logger.With().Str("component", "metrics").Logger(),
		reg:    reg,
		chatTurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtg_gateway_chat_turns_total",
			Help: "Completed /api/chat turns by tier and outcome.",
		}, []string{"tier", "success"}),
		chatTurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mtg_gateway_chat_turn_duration_ms",
			Help:    "Chat turn wall-clock duration in milliseconds.",
			Buckets: latencyBuckets,
		}, []string{"tier", "success"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtg_gateway_tokens_total",
			Help: "Input+output tokens billed, by tier and outcome.",
		}, []string{"tier", "success"}),
		costMillicentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtg_gateway_cost_millicents_total",
			Help: "Upstream cost in millicents (1/100000 USD), by tier and outcome.",
		}, []string{"tier", "success"}),
		injectionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtg_gateway_injection_rejects_total",
			Help: "Prompt-injection screen rejections by family.",
		}, []string{"family"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtg_gateway_rate_limited_total",
			Help: "Admission-chain rejections by stage.",
		}, []string{"stage"}),
		budgetUtilization: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtg_gateway_budget_utilization_ratio",
			Help: "Current global daily budget utilization, 0-1+.",
		}),
	}
}

// TrackChatTurn records one completed /api/chat request.
func (m *Metrics) TrackChatTurn(tier string, success bool, durationMs float64, tokens int64, costMillicents int64) {
	successLabel := boolLabel(success)
	m.chatTurnsTotal.WithLabelValues(tier, successLabel).Inc()
	m.chatTurnDuration.WithLabelValues(tier, successLabel).Observe(durationMs)
	m.tokensTotal.WithLabelValues(tier, successLabel).Add(float64(tokens))
	m.costMillicentsTotal.WithLabelValues(tier, successLabel).Add(float64(costMillicents))
}

// TrackInjectionReject records a jailbreak/injection classification.
func (m *Metrics) TrackInjectionReject(family string) {
	m.injectionRejects.WithLabelValues(family).Inc()
}

// TrackRateLimit records an admission-chain rejection.
func (m *Metrics) TrackRateLimit(stage string) {
	m.rateLimited.WithLabelValues(stage).Inc()
}

// TrackBudgetUtilization reports the global budget's current
// utilization as a gauge. Nothing in the gateway calls it, so the gauge
// stays at its zero value unless a caller sets it.
func (m *Metrics) TrackBudgetUtilization(pct float64) {
	m.budgetUtilization.Set(pct)
}

// Handler serves /metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return h.ServeHTTP
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
