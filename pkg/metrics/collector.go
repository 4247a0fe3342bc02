// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/workmanhq/workman-bot/internal/conversation"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_messages_total",
			Help: "Total number of inbound bot messages labeled by kind and status",
		},
		[]string{"kind", "status"},
	)
	messageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_duration_seconds",
			Help:    "Duration of inbound message handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of order placement attempts by outcome",
		},
		[]string{"status"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of in-progress conversation sessions",
		},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_by_state",
			Help: "Number of sessions per conversation state",
		},
		[]string{"state"},
	)
)

var trackedStates = []conversation.State{
	conversation.StateAwaitingDescription,
	conversation.StateAwaitingLocation,
	conversation.StateAwaitingSelection,
	conversation.StateAwaitingConfirmation,
}

func init() {
	conversation.RegisterTransitionRecorder(RecordStateTransition)
	conversation.RegisterOrderRecorder(RecordOrder)
}

// RecordMessage increments message counters and records handling duration.
func RecordMessage(kind, status string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	messagesTotal.WithLabelValues(kind, status).Inc()
	messageDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStateTransition tracks conversation transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordOrder tracks order placement outcomes.
func RecordOrder(status string) {
	if status == "" {
		status = "unknown"
	}

	ordersTotal.WithLabelValues(status).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SessionCollector periodically gathers session counts and emits gauge metrics.
type SessionCollector struct {
	storage  conversation.Storage
	interval time.Duration
}

// NewSessionCollector builds a metrics collector bound to the session storage.
func NewSessionCollector(storage conversation.Storage, interval time.Duration) *SessionCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &SessionCollector{storage: storage, interval: interval}
}

// Run polls session storage on an interval, updating gauges until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.storage == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *SessionCollector) collect(ctx context.Context) error {
	sessions, err := c.storage.GetAllSessions(ctx)
	if err != nil {
		return err
	}

	activeSessions.Set(float64(len(sessions)))

	stateCounts := make(map[string]int, len(sessions))
	for _, session := range sessions {
		label := "unknown"
		if session != nil && session.State != "" {
			label = string(session.State)
		}
		stateCounts[label]++
	}

	sessionsByState.Reset()

	for _, tracked := range trackedStates {
		label := string(tracked)
		sessionsByState.WithLabelValues(label).Set(float64(stateCounts[label]))
		delete(stateCounts, label)
	}

	for label, count := range stateCounts {
		sessionsByState.WithLabelValues(label).Set(float64(count))
	}

	return nil
}
