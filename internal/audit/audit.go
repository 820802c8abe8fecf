// Package audit defines the structured records emitted after every
// successful state transition and the sinks that deliver them.
//
// Emission is fire-and-forget from the caller's point of view: a sink
// failure is logged and counted but never undoes the state change that
// produced the event.
package audit

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
)

// Kind names the state transition an event records.
type Kind string

const (
	SessionInitialized Kind = "session_initialized"
	ParticipantJoined  Kind = "participant_joined"
	OrderExecuted      Kind = "order_executed"
	PnlUpdated         Kind = "pnl_updated"
	LeaderboardUpdated Kind = "leaderboard_updated"
	SessionClosed      Kind = "session_closed"
)

// Event is one audit record. Only the fields relevant to Kind are set.
type Event struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"kind"`
	SessionID        uint64          `json:"session_id"`
	User             string          `json:"user,omitempty"`
	TradingPair      string          `json:"trading_pair,omitempty"`
	Side             model.OrderSide `json:"side,omitempty"`
	Quantity         uint64          `json:"quantity,omitempty"`
	Price            int64           `json:"price,omitempty"`
	RealizedPnL      int64           `json:"realized_pnl,omitempty"`
	UnrealizedPnL    int64           `json:"unrealized_pnl,omitempty"`
	TotalValue       int64           `json:"total_value,omitempty"`
	InitialBalance   int64           `json:"initial_balance,omitempty"`
	ParticipantCount uint32          `json:"participant_count,omitempty"`
	StartTime        *time.Time      `json:"start_time,omitempty"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Sink delivers audit events.
type Sink interface {
	Emit(ev Event) error
}

// Publish stamps ev with an id (if missing) and emits it to sink. Failures
// are logged and counted; they are never returned.
func Publish(sink Sink, log *zap.Logger, ev Event) {
	if sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := sink.Emit(ev); err != nil {
		metrics.AuditEmitFailures.WithLabelValues(string(ev.Kind)).Inc()
		if log != nil {
			log.Warn("audit emit failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
	}
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) error { return nil }

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("audit")}
}

func (s *LogSink) Emit(ev Event) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.Uint64("session_id", ev.SessionID),
		zap.Time("timestamp", ev.Timestamp),
	}
	if ev.User != "" {
		fields = append(fields, zap.String("user", ev.User))
	}
	switch ev.Kind {
	case OrderExecuted:
		fields = append(fields,
			zap.String("pair", ev.TradingPair),
			zap.String("side", string(ev.Side)),
			zap.Uint64("qty", ev.Quantity),
			zap.Int64("price", ev.Price),
		)
	case PnlUpdated:
		fields = append(fields,
			zap.Int64("realized_pnl", ev.RealizedPnL),
			zap.Int64("unrealized_pnl", ev.UnrealizedPnL),
			zap.Int64("total_value", ev.TotalValue),
		)
	case ParticipantJoined:
		fields = append(fields, zap.Int64("initial_balance", ev.InitialBalance))
	case SessionClosed:
		fields = append(fields, zap.Uint32("participant_count", ev.ParticipantCount))
	}
	s.log.Info(string(ev.Kind), fields...)
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}
