package twofactor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_verifications_total",
			Help: "Second-factor verification attempts by method and result.",
		},
		[]string{"method", "result"},
	)
	codesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_codes_issued_total",
			Help: "Email and SMS verification codes issued.",
		},
		[]string{"method"},
	)
	sweepRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_sweep_removed_total",
			Help: "Expired records removed by the cleanup sweep.",
		},
		[]string{"kind"},
	)

	registerOnce sync.Once
)

// MustRegisterMetrics registers the two-factor collectors once with reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(verificationsTotal, codesIssued, sweepRemoved)
	})
}

func observeVerification(method string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	verificationsTotal.WithLabelValues(method, result).Inc()
}
