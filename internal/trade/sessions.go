package trade

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/pair"
	"github.com/atmx/trading-game/internal/session"
)

// CreateSession handles POST /api/v1/sessions
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := fixedpoint.FromDecimal(req.VirtualBalance)
	if err != nil {
		writeError(w, "virtual_balance out of range", http.StatusBadRequest)
		return
	}
	if req.DurationSeconds <= 0 || req.DurationSeconds > math.MaxInt64/int64(time.Second) {
		writeError(w, "duration_seconds out of range", http.StatusBadRequest)
		return
	}
	pairs := make([]string, len(req.TradingPairs))
	for i, p := range req.TradingPairs {
		pairs[i] = pair.Normalize(p)
	}

	ctx := r.Context()
	unlock := s.locks.Lock("sessions")
	defer unlock()

	id := req.ID
	if id == 0 {
		existing, err := s.store.ListSessions(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
		id = 1
		for _, e := range existing {
			if e.ID >= id {
				id = e.ID + 1
			}
		}
	}

	now := s.now()
	sess, err := session.Initialize(id, now, time.Duration(req.DurationSeconds)*time.Second, balance, pairs)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		s.fail(w, err)
		return
	}
	metrics.ActiveSessions.Inc()

	audit.Publish(s.sink, s.log, audit.Event{
		Kind:           audit.SessionInitialized,
		SessionID:      sess.ID,
		InitialBalance: sess.VirtualBalance,
		StartTime:      &sess.StartTime,
		EndTime:        &sess.EndTime,
		Timestamp:      now,
	})
	s.log.Info("session initialized",
		zap.Uint64("session", sess.ID),
		zap.Time("end", sess.EndTime),
		zap.String("balance", fixedpoint.String(sess.VirtualBalance)),
		zap.Strings("pairs", sess.TradingPairs),
	)

	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// ListSessions handles GET /api/v1/sessions
func (s *Service) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]SessionView, len(sessions))
	for i := range sessions {
		out[i] = sessionView(&sessions[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// CloseSession handles POST /api/v1/sessions/{sessionID}/close
// Only allowed once the session's end time has passed.
func (s *Service) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	unlock := s.locks.Lock(sessionLock(id))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	now := s.now()
	if err := session.Close(sess, now); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		s.fail(w, err)
		return
	}
	metrics.ActiveSessions.Dec()

	audit.Publish(s.sink, s.log, audit.Event{
		Kind:             audit.SessionClosed,
		SessionID:        sess.ID,
		ParticipantCount: sess.ParticipantCount,
		Timestamp:        now,
	})
	s.log.Info("session closed",
		zap.Uint64("session", sess.ID),
		zap.Uint32("participants", sess.ParticipantCount),
	)

	writeJSON(w, http.StatusOK, sessionView(sess))
}

// JoinSession handles POST /api/v1/sessions/{sessionID}/join
// Creates the caller's portfolio funded with the session balance.
func (s *Service) JoinSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	unlock := s.locks.Lock(sessionLock(id))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	now := s.now()
	p, err := session.Join(sess, req.UserID, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.Enroll(ctx, sess, p); err != nil {
		s.fail(w, fmt.Errorf("join %s: %w", req.UserID, err))
		return
	}
	metrics.Participants.Inc()

	audit.Publish(s.sink, s.log, audit.Event{
		Kind:             audit.ParticipantJoined,
		SessionID:        sess.ID,
		User:             p.Owner,
		InitialBalance:   p.CashBalance,
		ParticipantCount: sess.ParticipantCount,
		Timestamp:        now,
	})
	s.log.Info("participant joined",
		zap.Uint64("session", sess.ID),
		zap.String("user", p.Owner),
		zap.Uint32("participants", sess.ParticipantCount),
	)

	writeJSON(w, http.StatusCreated, portfolioView(p, sess.VirtualBalance))
}
