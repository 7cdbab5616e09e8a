package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records purchase, allocation and draw outcomes.
type EngineMetrics struct {
	purchases         *prometheus.CounterVec
	allocationRetries prometheus.Counter
	drawDuration      prometheus.Histogram
	winnersDrawn      prometheus.Counter
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	purchases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_purchases_total",
		Help: "Purchase attempts by outcome.",
	}, []string{"outcome"})
	allocationRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ticket_allocation_retries_total",
		Help: "Allocation attempts retried after losing a race.",
	})
	drawDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "raffle_draw_duration_seconds",
		Help:    "Duration of prize draws in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	winnersDrawn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raffle_winners_drawn_total",
		Help: "Winners recorded by the draw engine.",
	})
	reg.MustRegister(purchases, allocationRetries, drawDuration, winnersDrawn)
	return &EngineMetrics{
		purchases:         purchases,
		allocationRetries: allocationRetries,
		drawDuration:      drawDuration,
		winnersDrawn:      winnersDrawn,
	}
}

// IncPurchase increments the purchase counter for the given outcome.
func (m *EngineMetrics) IncPurchase(outcome string) {
	if m == nil || m.purchases == nil {
		return
	}
	m.purchases.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAllocationRetry counts one lost allocation race.
func (m *EngineMetrics) IncAllocationRetry() {
	if m == nil || m.allocationRetries == nil {
		return
	}
	m.allocationRetries.Inc()
}

// ObserveDrawDuration records how long a draw took.
func (m *EngineMetrics) ObserveDrawDuration(duration time.Duration) {
	if m == nil || m.drawDuration == nil {
		return
	}
	m.drawDuration.Observe(duration.Seconds())
}

// AddWinnersDrawn counts winners recorded by a completed draw.
func (m *EngineMetrics) AddWinnersDrawn(count int) {
	if m == nil || m.winnersDrawn == nil || count <= 0 {
		return
	}
	m.winnersDrawn.Add(float64(count))
}
