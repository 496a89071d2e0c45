package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BreakdownTotal counts breakdown computations by outcome.
	BreakdownTotal *prometheus.CounterVec
	// MarginRejectionTotal counts transactions rejected by margin protection.
	MarginRejectionTotal prometheus.Counter
	// TransactionTotal counts finalized transactions by payment type and result.
	TransactionTotal *prometheus.CounterVec
	// TransactionAmount observes grand totals of finalized transactions.
	TransactionAmount prometheus.Histogram
	// DiscountAppliedTotal counts discount code applications by outcome.
	DiscountAppliedTotal *prometheus.CounterVec
	// PointsRedeemedTotal accumulates loyalty points redeemed across transactions.
	PointsRedeemedTotal prometheus.Counter
	// PointsEarnedTotal accumulates loyalty points granted across transactions.
	PointsEarnedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakdownTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breakdown_total",
			Help:      "Count of financial breakdown computations by outcome.",
		}, []string{"result"})
		MarginRejectionTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_rejection_total",
			Help:      "Number of transactions rejected by margin protection.",
		})
		TransactionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_total",
			Help:      "Count of finalized transactions by payment type and result.",
		}, []string{"payment_type", "result"})
		TransactionAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_amount",
			Help:      "Grand total distribution of finalized transactions.",
			Buckets:   []float64{10_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 5_000_000},
		})
		DiscountAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applied_total",
			Help:      "Count of discount code applications by outcome.",
		}, []string{"result"})
		PointsRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_redeemed_total",
			Help:      "Loyalty points redeemed across finalized transactions.",
		})
		PointsEarnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_earned_total",
			Help:      "Loyalty points granted across finalized transactions.",
		})

		reg.MustRegister(
			BreakdownTotal,
			MarginRejectionTotal,
			TransactionTotal,
			TransactionAmount,
			DiscountAppliedTotal,
			PointsRedeemedTotal,
			PointsEarnedTotal,
		)
	})
}
