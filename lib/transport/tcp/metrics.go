package tcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failures here are never surfaced as errors across the core boundary; the
// counters are the operator-visible signal (plus logs).
var (
	metricBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_bytes_sent_total",
		Help: "Ciphertext bytes written to peer sockets.",
	})
	metricBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_bytes_received_total",
		Help: "Ciphertext bytes read from peer sockets.",
	})
	metricBoxesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_boxes_delivered_total",
		Help: "Authenticated application payloads handed upward.",
	})
	metricMessagesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_messages_lost_total",
		Help: "Delivered payloads whose acknowledgment reported failure.",
	})
	metricRekeysInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_rekeys_initiated_total",
		Help: "Rekey frames injected into outbound streams.",
	})
	metricRekeysAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_rekeys_accepted_total",
		Help: "Rekey frames verified and applied on inbound streams.",
	})
	metricHandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_handshake_failures_total",
		Help: "Initial key exchanges that failed validation or timed out.",
	})
	metricProtocolViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_protocol_violations_total",
		Help: "Connections terminated for malformed or unauthenticated frames.",
	})
	metricConnsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_connections_accepted_total",
		Help: "Inbound TCP connections accepted.",
	})
	metricConnsDialed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_communicator_connections_dialed_total",
		Help: "Outbound TCP connections established.",
	})
)
