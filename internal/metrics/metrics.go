// Package metrics содержит счётчики исходов пайплайна покупок.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerifyTotal считает исходы операции verify по результату.
	VerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_verify_total",
		Help: "Verify operation outcomes by result.",
	}, []string{"result"})

	// AcknowledgeTotal считает исходы операции acknowledge по результату.
	AcknowledgeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_acknowledge_total",
		Help: "Acknowledge operation outcomes by result.",
	}, []string{"result"})

	// StoreTotal считает исходы операции store: stored, soft, error.
	StoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_store_total",
		Help: "Store operation outcomes by result.",
	}, []string{"result"})
)
