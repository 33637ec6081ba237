package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLoanMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLoanMetrics(reg)

	m.IncBorrowed()
	m.IncBorrowed()
	m.ObserveReturn(true, 3)
	m.ObserveReturn(false, 0)
	m.IncRejection("outstanding_loan")
	m.IncRejection("")
	m.SetOverdueGroups(7)

	require.Equal(t, 2.0, testutil.ToFloat64(m.borrowed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.returned.WithLabelValues("true")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.returned.WithLabelValues("false")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("outstanding_loan")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("unknown")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.overdue))

	// on-time returns never reach the late-days histogram
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "circulation_loan_late_days" {
			h := family.GetMetric()[0].GetHistogram()
			require.Equal(t, uint64(1), h.GetSampleCount())
			require.Equal(t, 3.0, h.GetSampleSum())
		}
	}
}

func TestOutboxMetricsCounters(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	m.IncPublished("LIBRARY_BORROWED")
	m.IncFailed("LIBRARY_RETURNED")
	m.IncDLQ("")

	require.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("LIBRARY_BORROWED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("LIBRARY_RETURNED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dlq.WithLabelValues("unknown")))
}
