// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id helpers for the chat service.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Gauges
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge

	// Counters
	MessagesRelayed    prometheus.Counter
	MessagesRejected   *prometheus.CounterVec // label: kind
	RemoteMessages     prometheus.Counter
	SubscribersDropped prometheus.Counter
	RoomsSwept         prometheus.Counter
	ArchiveWritten     prometheus.Counter
	ArchiveDropped     prometheus.Counter
	ArchiveFailed      prometheus.Counter
	HistoryRequests    *prometheus.CounterVec // label: status

	// Histograms (seconds)
	HistoryDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connections_active", Help: "Authenticated WebSocket connections currently open"})
		RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_rooms_active", Help: "Tournament rooms currently held in memory"})
		MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_relayed_total", Help: "Messages admitted and broadcast by the relay"})
		MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_rejected_total", Help: "Client operations refused, by error kind"}, []string{"kind"})
		RemoteMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_remote_messages_total", Help: "Messages received from other instances over the fan-out bus"})
		SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_subscribers_dropped_total", Help: "Subscribers removed because their send queue was full or closed"})
		RoomsSwept = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_rooms_swept_total", Help: "Rooms evicted by the expiry sweeper"})
		ArchiveWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_archive_written_total", Help: "Messages written to the durable log"})
		ArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_archive_dropped_total", Help: "Messages dropped because the archive queue was full"})
		ArchiveFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_archive_failed_total", Help: "Messages that could not be written after all retries"})
		HistoryRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_history_requests_total", Help: "History requests by HTTP status"}, []string{"status"})
		HistoryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_history_duration_seconds", Help: "History request duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// SetConnections records the number of open connections.
func SetConnections(n int) {
	if ConnectionsActive != nil {
		ConnectionsActive.Set(float64(n))
	}
}

// SetRooms records the number of rooms in memory.
func SetRooms(n int) {
	if RoomsActive != nil {
		RoomsActive.Set(float64(n))
	}
}

// IncRelayed counts one broadcast message.
func IncRelayed() {
	if MessagesRelayed != nil {
		MessagesRelayed.Inc()
	}
}

// IncRejected counts one refused operation of the given error kind.
func IncRejected(kind string) {
	if MessagesRejected != nil {
		MessagesRejected.WithLabelValues(kind).Inc()
	}
}

func IncRemote() {
	if RemoteMessages != nil {
		RemoteMessages.Inc()
	}
}

func IncSubscriberDropped() {
	if SubscribersDropped != nil {
		SubscribersDropped.Inc()
	}
}

func IncSwept() {
	if RoomsSwept != nil {
		RoomsSwept.Inc()
	}
}

func IncArchiveWritten() {
	if ArchiveWritten != nil {
		ArchiveWritten.Inc()
	}
}

func IncArchiveDropped() {
	if ArchiveDropped != nil {
		ArchiveDropped.Inc()
	}
}

func IncArchiveFailed() {
	if ArchiveFailed != nil {
		ArchiveFailed.Inc()
	}
}

// ObserveHistory records a history request outcome and its duration.
func ObserveHistory(status string, seconds float64) {
	if HistoryRequests != nil {
		HistoryRequests.WithLabelValues(status).Inc()
	}
	if HistoryDuration != nil {
		HistoryDuration.Observe(seconds)
	}
}
