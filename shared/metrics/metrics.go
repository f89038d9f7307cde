// Package metrics declares the Prometheus counters the ingress handler in
// sidecar/api increments as it receives and answers requests. Per the sidecar's design, exporting the /metrics endpoint itself is
// out of scope for the core (it is the sidecar's outer HTTP surface); the
// collectors are registered against the default registry so an external
// process can expose them, following Prysm's shared/prometheus
// convention of registering against prometheus.DefaultRegisterer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// InclusionCommitmentsReceived counts every request the ingress handler
	// decodes successfully, before it is offered to the coordinator.
	InclusionCommitmentsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt_sidecar",
		Name:      "inclusion_commitments_received_total",
		Help:      "Number of inclusion commitment requests received.",
	})

	// InclusionCommitmentsAccepted counts requests that made it all the way
	// through validation, signing, and acknowledgement.
	InclusionCommitmentsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt_sidecar",
		Name:      "inclusion_commitments_accepted_total",
		Help:      "Number of inclusion commitment requests accepted.",
	})

	// ValidationErrors counts every error response the coordinator returns,
	// labeled with the error's Tag() where it has one and "internal" otherwise.
	ValidationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bolt_sidecar",
		Name:      "validation_errors_total",
		Help:      "Number of execution validation errors by taxonomy tag.",
	}, []string{"tag"})

	// TransactionsPreconfirmed is incremented once per accepted request,
	// always with the label value "inclusion"; it does not count individual
	// transactions and does not break them down by transaction type.
	TransactionsPreconfirmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bolt_sidecar",
		Name:      "transactions_preconfirmed_total",
		Help:      "Number of transactions preconfirmed by tx type.",
	}, []string{"tx_type"})

	// TemplateEvictions counts committed transactions evicted from a
	// template on head-triggered revalidation (the "commitment already
	// issued" hazard documented in the sidecar's design).
	TemplateEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt_sidecar",
		Name:      "template_evictions_total",
		Help:      "Number of committed transactions evicted on revalidation after a head change.",
	})

	// LatestHeadSlot tracks the most recently observed slot.
	LatestHeadSlot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bolt_sidecar",
		Name:      "latest_head_slot",
		Help:      "Most recently observed consensus slot.",
	})
)

func init() {
	prometheus.MustRegister(
		InclusionCommitmentsReceived,
		InclusionCommitmentsAccepted,
		ValidationErrors,
		TransactionsPreconfirmed,
		TemplateEvictions,
		LatestHeadSlot,
	)
}
