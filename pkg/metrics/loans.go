package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "circulation"

// LoanMetrics tracks borrow and return outcomes.
type LoanMetrics struct {
	borrowed   prometheus.Counter
	returned   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	lateDays   prometheus.Histogram
	overdue    prometheus.Gauge
}

func NewLoanMetrics(reg prometheus.Registerer) *LoanMetrics {
	if reg == nil {
		return &LoanMetrics{}
	}
	borrowed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_borrowed_total",
		Help:      "Loan groups created.",
	})
	returned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_returned_total",
		Help:      "Loan groups returned, split by lateness.",
	}, []string{"late"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loan_rejections_total",
		Help:      "Borrow or return requests rejected by a lending rule.",
	}, []string{"reason"})
	lateDays := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "loan_late_days",
		Help:      "Chargeable late days per late return.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "overdue_loan_groups",
		Help:      "Outstanding loan groups past their due date at the last snapshot.",
	})
	reg.MustRegister(borrowed, returned, rejections, lateDays, overdue)
	return &LoanMetrics{
		borrowed:   borrowed,
		returned:   returned,
		rejections: rejections,
		lateDays:   lateDays,
		overdue:    overdue,
	}
}

func (m *LoanMetrics) IncBorrowed() {
	if m == nil || m.borrowed == nil {
		return
	}
	m.borrowed.Inc()
}

// ObserveReturn counts a return and, when late, records its chargeable days.
func (m *LoanMetrics) ObserveReturn(late bool, chargeableDays int) {
	if m == nil || m.returned == nil {
		return
	}
	m.returned.WithLabelValues(strconv.FormatBool(late)).Inc()
	if late {
		m.lateDays.Observe(float64(chargeableDays))
	}
}

func (m *LoanMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LoanMetrics) SetOverdueGroups(count int64) {
	if m == nil || m.overdue == nil {
		return
	}
	m.overdue.Set(float64(count))
}
