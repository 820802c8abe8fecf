package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/engine"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/pair"
	"github.com/atmx/trading-game/internal/session"
)

// ExecuteOrder handles POST /api/v1/sessions/{sessionID}/orders
// Fills a market order at the oracle price, persists the portfolio and
// trade record, then refreshes the caller's leaderboard entry.
func (s *Service) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	side := model.OrderSide(strings.ToUpper(req.Side))
	if !side.Valid() {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	qty, err := fixedpoint.QuantityFromDecimal(req.Quantity)
	if err != nil || qty == 0 {
		writeError(w, "quantity out of range", http.StatusBadRequest)
		return
	}
	symbol := pair.Normalize(req.TradingPair)
	if _, err := pair.Parse(symbol); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := "error"
	defer func() {
		metrics.OrdersTotal.WithLabelValues(string(side), result).Inc()
		metrics.OrderLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
	}()

	ctx := r.Context()
	unlock := s.locks.Lock(portfolioLock(id, req.UserID))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !session.Permits(sess, symbol) {
		s.fail(w, fmt.Errorf("%w: %s", session.ErrPairNotPermitted, symbol))
		return
	}
	p, err := s.store.GetPortfolio(ctx, id, req.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	candidates, err := s.book.Candidates(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	rec, err := s.exec.Execute(p, sess, engine.Order{Pair: symbol, Side: side, Quantity: qty}, candidates)
	if err != nil {
		result = "rejected"
		s.log.Debug("order rejected",
			zap.Uint64("session", id),
			zap.String("user", req.UserID),
			zap.String("pair", symbol),
			zap.Error(err),
		)
		s.fail(w, err)
		return
	}
	if err := s.store.SaveOrder(ctx, p, rec); err != nil {
		s.fail(w, err)
		return
	}
	result = "filled"

	if err := s.refreshLeaderboard(ctx, sess, p); err != nil {
		s.log.Warn("leaderboard refresh failed",
			zap.Uint64("session", id),
			zap.String("user", p.Owner),
			zap.Error(err),
		)
	}

	s.log.Info("order executed",
		zap.String("trade_id", rec.ID),
		zap.Uint64("session", id),
		zap.String("user", p.Owner),
		zap.String("pair", symbol),
		zap.String("side", string(side)),
		zap.String("qty", fixedpoint.QuantityDecimal(qty).String()),
		zap.String("price", fixedpoint.String(rec.Price)),
	)

	writeJSON(w, http.StatusOK, OrderResponse{
		Trade:     tradeView(rec),
		Portfolio: portfolioView(p, sess.VirtualBalance),
	})
}

// UpdateValuation handles POST /api/v1/sessions/{sessionID}/portfolios/{userID}/valuation
// Marks every open position to the current oracle price.
func (s *Service) UpdateValuation(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID := chi.URLParam(r, "userID")

	ctx := r.Context()
	unlock := s.locks.Lock(portfolioLock(id, userID))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPortfolio(ctx, id, userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	candidates, err := s.book.Candidates(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.exec.Revalue(p, candidates); err != nil {
		metrics.ValuationsTotal.WithLabelValues("rejected").Inc()
		s.fail(w, err)
		return
	}
	if err := s.store.SavePortfolio(ctx, p); err != nil {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		s.fail(w, err)
		return
	}
	metrics.ValuationsTotal.WithLabelValues("ok").Inc()

	writeJSON(w, http.StatusOK, portfolioView(p, sess.VirtualBalance))
}

// GetPortfolio handles GET /api/v1/sessions/{sessionID}/portfolios/{userID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPortfolio(ctx, id, chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioView(p, sess.VirtualBalance))
}

// GetTrades handles GET /api/v1/sessions/{sessionID}/portfolios/{userID}/trades
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()
	if _, err := s.store.GetPortfolio(ctx, id, userID); err != nil {
		s.fail(w, err)
		return
	}
	trades, err := s.store.GetTrades(ctx, id, userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]TradeView, len(trades))
	for i := range trades {
		out[i] = tradeView(&trades[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Leaderboard ---

// UpdateLeaderboard handles POST /api/v1/sessions/{sessionID}/leaderboard/{userID}
// Records the participant's current standing and re-ranks the board.
func (s *Service) UpdateLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID := chi.URLParam(r, "userID")

	ctx := r.Context()
	// Held until the board is saved so no order can commit a newer standing
	// in between.
	unlock := s.locks.Lock(portfolioLock(id, userID))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPortfolio(ctx, id, userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.refreshLeaderboard(ctx, sess, p); err != nil {
		s.fail(w, err)
		return
	}
	lb, err := s.store.GetLeaderboard(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardView(lb))
}

// GetLeaderboard handles GET /api/v1/sessions/{sessionID}/leaderboard
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetSession(ctx, id); err != nil {
		s.fail(w, err)
		return
	}
	lb, err := s.store.GetLeaderboard(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardView(lb))
}

func (s *Service) refreshLeaderboard(ctx context.Context, sess *model.TradingSession, p *model.Portfolio) error {
	unlock := s.locks.Lock(leaderboardLock(sess.ID))
	defer unlock()

	lb, err := s.store.GetLeaderboard(ctx, sess.ID)
	if err != nil {
		return err
	}
	if err := s.ranker.Update(lb, p, sess.VirtualBalance); err != nil {
		return err
	}
	return s.store.SaveLeaderboard(ctx, lb)
}
