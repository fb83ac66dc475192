package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVisit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlatformMetrics(reg)

	m.ObserveVisit("SERVICE_CENTER", 750, 0)
	m.ObserveVisit("AUTO_SHOP", 1000, 2000)

	if got := testutil.ToFloat64(m.visitsRecorded.WithLabelValues("SERVICE_CENTER")); got != 1 {
		t.Fatalf("expected 1 service center visit, got %v", got)
	}
	if got := testutil.ToFloat64(m.cashbackEarned); got != 1750 {
		t.Fatalf("expected 1750 earned, got %v", got)
	}
	if got := testutil.ToFloat64(m.cashbackSpent); got != 2000 {
		t.Fatalf("expected 2000 spent, got %v", got)
	}
}

func TestObserveSettlements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlatformMetrics(reg)

	m.ObserveSettlements(3)
	if got := testutil.ToFloat64(m.settlementsCreated); got != 3 {
		t.Fatalf("expected 3 settlements, got %v", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewPlatformMetrics(nil)
	m.ObserveVisit("CAR_WASH", 10, 5)
	m.ObserveSettlements(1)
	m.ObserveBalanceConflict()
}
