// Package metrics exposes the control plane's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts normalized events published to the bus, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_bus_events_published_total",
		Help: "Normalized events published to the incident bus.",
	}, []string{"type"})

	// EventsConsumed counts events the supervisor actually orchestrated.
	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_supervisor_events_consumed_total",
		Help: "Events consumed by the supervisor while running.",
	})

	// EventsDuplicate counts exact duplicates suppressed by the ledger.
	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_supervisor_events_duplicate_total",
		Help: "Exact-duplicate events suppressed by the ledger.",
	})

	// IncidentsOpened and IncidentsClosed track correlation clustering.
	IncidentsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_correlation_incidents_opened_total",
		Help: "Incidents opened by the correlation agent.",
	})
	IncidentsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_correlation_incidents_closed_total",
		Help: "Incidents closed by the correlation agent, by reason.",
	}, []string{"reason"})

	// MitigationsRun counts troubleshooting runs, by outcome.
	MitigationsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_mitigations_total",
		Help: "Troubleshooting runs, by outcome (restored, stabilized).",
	}, []string{"outcome"})

	// ApprovalsEnqueued and ApprovalsResolved track the HITL queue.
	ApprovalsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_approvals_enqueued_total",
		Help: "Approvals enqueued in human-in-the-loop mode.",
	})
	ApprovalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_approvals_resolved_total",
		Help: "Approvals resolved, by decision.",
	}, []string{"decision"})

	// ApprovalsPending gauges the open approval queue.
	ApprovalsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_approvals_pending",
		Help: "Approvals currently awaiting a decision.",
	})

	// CasesRecorded counts RCA casebook outcomes.
	CasesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_rca_cases_total",
		Help: "RCA record outcomes (recorded, noise_or_unknown, dedup_suppressed).",
	}, []string{"outcome"})

	// BusSubscribers gauges attached live subscribers.
	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_bus_subscribers",
		Help: "Live subscribers attached to the incident bus.",
	})

	// BridgeConnected reports stream health (1 connected, 0 not).
	BridgeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_bridge_stream_connected",
		Help: "Whether the tower stream is currently connected.",
	})
)
