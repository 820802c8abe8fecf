// Package trade provides the HTTP handlers for the trading game: session
// lifecycle, order execution, valuation, leaderboards and quote intake.
//
// Every handler follows one load-mutate-store cycle. Money and quantities
// cross the API as decimal strings and are converted to fixed-point once,
// at the edge.
package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/engine"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/leaderboard"
	"github.com/atmx/trading-game/internal/ledger"
	"github.com/atmx/trading-game/internal/oracle"
	"github.com/atmx/trading-game/internal/pair"
	"github.com/atmx/trading-game/internal/quotes"
	"github.com/atmx/trading-game/internal/session"
	"github.com/atmx/trading-game/internal/store"
)

// Service handles trading-game operations. Operations on one portfolio are
// serialized by a per-(session, owner) lock, session mutations by a
// per-session lock, and leaderboard passes by a per-board lock. This is
// single-instance locking; run one writer per store.
type Service struct {
	store  store.Store
	book   quotes.Book
	exec   *engine.Executor
	ranker *leaderboard.Ranker
	sink   audit.Sink
	log    *zap.Logger
	now    func() time.Time
	locks  keyedMutex
}

// NewService creates a new trade service pricing through gw.
// Pass nil for sink if audit events are not needed.
func NewService(st store.Store, book quotes.Book, gw oracle.Gateway, sink audit.Sink, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  st,
		book:   book,
		exec:   engine.NewExecutor(gw, sink, log),
		ranker: leaderboard.NewRanker(sink, log),
		sink:   sink,
		log:    log.Named("trade"),
		now:    time.Now,
	}
}

// WithClock replaces the wall clock for the service and its engines.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.exec.WithClock(now)
	s.ranker.WithClock(now)
	return s
}

// Routes registers the API handlers on r (mounted under /api/v1).
func (s *Service) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Post("/close", s.CloseSession)
			r.Post("/join", s.JoinSession)
			r.Post("/orders", s.ExecuteOrder)
			r.Get("/portfolios/{userID}", s.GetPortfolio)
			r.Post("/portfolios/{userID}/valuation", s.UpdateValuation)
			r.Get("/portfolios/{userID}/trades", s.GetTrades)
			r.Get("/leaderboard", s.GetLeaderboard)
			r.Post("/leaderboard/{userID}", s.UpdateLeaderboard)
		})
	})
	r.Post("/quotes", s.PushQuote)
	r.Get("/quotes", s.ListQuotes)
}

// --- Locking ---

// keyedMutex hands out one mutex per key, dropping it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func portfolioLock(sessionID uint64, owner string) string {
	return fmt.Sprintf("portfolio:%d:%s", sessionID, owner)
}

func sessionLock(sessionID uint64) string { return fmt.Sprintf("session:%d", sessionID) }

func leaderboardLock(sessionID uint64) string { return fmt.Sprintf("leaderboard:%d", sessionID) }

// --- Helpers ---

func sessionIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || id == 0 || id > session.MaxID {
		return 0, fmt.Errorf("invalid session id %q", chi.URLParam(r, "sessionID"))
	}
	return id, nil
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, session.ErrPairNotPermitted),
		errors.Is(err, pair.ErrInvalidSymbol),
		errors.Is(err, pair.ErrSameAsset),
		errors.Is(err, pair.ErrDuplicate),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidSide),
		errors.Is(err, quotes.ErrInvalidQuote):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionInactive),
		errors.Is(err, session.ErrSessionEnded),
		errors.Is(err, session.ErrSessionStillActive),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientPosition),
		errors.Is(err, ledger.ErrNoPosition):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrUnsupportedTradingPair),
		errors.Is(err, oracle.ErrPriceFeedNotFound),
		errors.Is(err, oracle.ErrStalePriceData),
		errors.Is(err, oracle.ErrInvalidPriceData),
		errors.Is(err, fixedpoint.ErrMathOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// not echoed to the client.
func (s *Service) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
