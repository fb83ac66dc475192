package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PlatformMetrics records the money-flow counters the operations team watches.
type PlatformMetrics struct {
	visitsRecorded     *prometheus.CounterVec
	cashbackEarned     prometheus.Counter
	cashbackSpent      prometheus.Counter
	settlementsCreated prometheus.Counter
	balanceConflicts   prometheus.Counter
}

// NewPlatformMetrics registers the platform metrics on the provided registerer.
func NewPlatformMetrics(reg prometheus.Registerer) *PlatformMetrics {
	if reg == nil {
		return &PlatformMetrics{}
	}
	visitsRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visits_recorded_total",
		Help: "Visits recorded, labeled by partner type.",
	}, []string{"partner_type"})
	cashbackEarned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cashback_earned_total",
		Help: "Total cashback credited to user balances.",
	})
	cashbackSpent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cashback_spent_total",
		Help: "Total cashback redeemed against visits.",
	})
	settlementsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlements_created_total",
		Help: "Settlements produced by batch runs.",
	})
	balanceConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_conflicts_total",
		Help: "Visit writes aborted because the user balance moved during commit.",
	})
	reg.MustRegister(visitsRecorded, cashbackEarned, cashbackSpent, settlementsCreated, balanceConflicts)
	return &PlatformMetrics{
		visitsRecorded:     visitsRecorded,
		cashbackEarned:     cashbackEarned,
		cashbackSpent:      cashbackSpent,
		settlementsCreated: settlementsCreated,
		balanceConflicts:   balanceConflicts,
	}
}

// ObserveVisit counts a recorded visit and its cashback flows.
func (m *PlatformMetrics) ObserveVisit(partnerType string, earned, spent int64) {
	if m == nil || m.visitsRecorded == nil {
		return
	}
	m.visitsRecorded.WithLabelValues(partnerType).Inc()
	if earned > 0 {
		m.cashbackEarned.Add(float64(earned))
	}
	if spent > 0 {
		m.cashbackSpent.Add(float64(spent))
	}
}

// ObserveSettlements counts settlements created by one batch run.
func (m *PlatformMetrics) ObserveSettlements(created int) {
	if m == nil || m.settlementsCreated == nil {
		return
	}
	m.settlementsCreated.Add(float64(created))
}

// ObserveBalanceConflict counts an aborted balance compare-and-swap.
func (m *PlatformMetrics) ObserveBalanceConflict() {
	if m == nil || m.balanceConflicts == nil {
		return
	}
	m.balanceConflicts.Inc()
}
