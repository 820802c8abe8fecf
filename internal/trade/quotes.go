package trade

import (
	"encoding/json"
	"net/http"

	"github.com/atmx/trading-game/internal/metrics"
	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/pair"
)

// PushQuote handles POST /api/v1/quotes
// Accepts a raw oracle quote (price with its decimal exponent).
func (s *Service) PushQuote(w http.ResponseWriter, r *http.Request) {
	var q model.PriceQuote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if q.TradingPair != "" {
		q.TradingPair = pair.Normalize(q.TradingPair)
	}
	if q.PublishTime.IsZero() {
		writeError(w, "publish_time is required", http.StatusBadRequest)
		return
	}
	if err := s.book.Put(r.Context(), q); err != nil {
		s.fail(w, err)
		return
	}
	metrics.QuotesIngested.WithLabelValues("http").Inc()
	writeJSON(w, http.StatusAccepted, q)
}

// ListQuotes handles GET /api/v1/quotes
func (s *Service) ListQuotes(w http.ResponseWriter, r *http.Request) {
	qs, err := s.book.Candidates(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}
