package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/oracle"
	"github.com/atmx/trading-game/internal/quotes"
	"github.com/atmx/trading-game/internal/store"
	"github.com/atmx/trading-game/internal/trade"
)

var t0 = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	store  *store.MemoryStore
	book   *quotes.MemoryBook
	events *audit.Recorder
	router chi.Router

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(dt time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(dt)
	e.mu.Unlock()
}

// newTestEnv creates a test Service with in-memory store, quote book and chi router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWrapped(t, func(st store.Store) store.Store { return st })
}

// newTestEnvWrapped is newTestEnv with the service's store passed through wrap.
func newTestEnvWrapped(t *testing.T, wrap func(store.Store) store.Store) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  store.NewMemoryStore(),
		book:   quotes.NewMemoryBook(),
		events: &audit.Recorder{},
		now:    t0,
	}
	gw := oracle.NewRecordGateway([]string{"SOL/USD", "BTC/USD", "ETH/USD"}, oracle.DefaultMaxAge)
	svc := trade.NewService(wrap(env.store), env.book, gw, env.events, zap.NewNop()).WithClock(env.clock)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) quote(t *testing.T, pair, price string) {
	t.Helper()
	q := model.PriceQuote{TradingPair: pair, Price: d(price).Shift(6).IntPart(), Expo: -6, PublishTime: e.clock()}
	if err := e.book.Put(context.Background(), q); err != nil {
		t.Fatalf("put quote: %v", err)
	}
}

// seedSession creates session 1 with a 100000 balance and one participant.
func (e *testEnv) seedSession(t *testing.T, users ...string) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/sessions", trade.CreateSessionRequest{
		ID:              1,
		DurationSeconds: 3600,
		VirtualBalance:  d("100000"),
		TradingPairs:    []string{"SOL/USD", "BTC/USD"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	for _, u := range users {
		w := e.do(t, "POST", "/api/v1/sessions/1/join", trade.JoinRequest{UserID: u})
		if w.Code != http.StatusCreated {
			t.Fatalf("join %s: %d %s", u, w.Code, w.Body.String())
		}
	}
}

func (e *testEnv) order(t *testing.T, user, pair, side, qty string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, "POST", "/api/v1/sessions/1/orders", trade.OrderRequest{
		UserID: user, TradingPair: pair, Side: side, Quantity: d(qty),
	})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

// --- Session lifecycle ---

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/v1/sessions", trade.CreateSessionRequest{
		DurationSeconds: 60,
		VirtualBalance:  d("5000.5"),
		TradingPairs:    []string{"sol-usd"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sess := decode[trade.SessionView](t, w)
	if sess.ID != 1 || !sess.IsActive || sess.VirtualBalance.String() != "5000.5" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.TradingPairs[0] != "SOL/USD" {
		t.Errorf("pair not normalized: %v", sess.TradingPairs)
	}
	if !sess.EndTime.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected end %v, got %v", t0.Add(time.Minute), sess.EndTime)
	}

	// Next id is assigned automatically.
	w = env.do(t, "POST", "/api/v1/sessions", trade.CreateSessionRequest{
		DurationSeconds: 60, VirtualBalance: d("1"), TradingPairs: []string{"BTC/USD"},
	})
	if got := decode[trade.SessionView](t, w); got.ID != 2 {
		t.Errorf("expected id 2, got %d", got.ID)
	}

	if n := len(env.events.OfKind(audit.SessionInitialized)); n != 2 {
		t.Errorf("expected 2 session_initialized events, got %d", n)
	}
}

func TestCreateSession_Rejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"zero duration", trade.CreateSessionRequest{DurationSeconds: 0, VirtualBalance: d("1"), TradingPairs: []string{"SOL/USD"}}, http.StatusBadRequest},
		{"zero balance", trade.CreateSessionRequest{DurationSeconds: 60, VirtualBalance: d("0"), TradingPairs: []string{"SOL/USD"}}, http.StatusBadRequest},
		{"bad pair", trade.CreateSessionRequest{DurationSeconds: 60, VirtualBalance: d("1"), TradingPairs: []string{"SOLUSD"}}, http.StatusBadRequest},
		{"no pairs", trade.CreateSessionRequest{DurationSeconds: 60, VirtualBalance: d("1")}, http.StatusBadRequest},
		{"duplicate id", trade.CreateSessionRequest{ID: 1, DurationSeconds: 60, VirtualBalance: d("1"), TradingPairs: []string{"SOL/USD"}}, http.StatusConflict},
		{"id beyond int64", trade.CreateSessionRequest{ID: 1 << 63, DurationSeconds: 60, VirtualBalance: d("1"), TradingPairs: []string{"SOL/USD"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/sessions", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestJoinSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")

	p, err := env.store.GetPortfolio(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("portfolio not stored: %v", err)
	}
	if p.CashBalance != 100_000_000_000 || p.TotalValue != p.CashBalance {
		t.Errorf("unexpected opening balance: %+v", p)
	}

	w := env.do(t, "POST", "/api/v1/sessions/1/join", trade.JoinRequest{UserID: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate join: expected 409, got %d", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/sessions/9/join", trade.JoinRequest{UserID: "bob"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/sessions/1/join", trade.JoinRequest{UserID: "a/b"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad user id: expected 400, got %d", w.Code)
	}

	sess, _ := env.store.GetSession(context.Background(), 1)
	if sess.ParticipantCount != 1 {
		t.Errorf("rejected joins must not count: got %d", sess.ParticipantCount)
	}
	if n := len(env.events.OfKind(audit.ParticipantJoined)); n != 1 {
		t.Errorf("expected 1 participant_joined event, got %d", n)
	}
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")

	w := env.do(t, "POST", "/api/v1/sessions/1/close", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("close before end: expected 409, got %d", w.Code)
	}

	env.advance(time.Hour)
	w = env.do(t, "POST", "/api/v1/sessions/1/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode[trade.SessionView](t, w).IsActive {
		t.Error("session should be inactive after close")
	}

	w = env.do(t, "POST", "/api/v1/sessions/1/close", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second close: expected 409, got %d", w.Code)
	}
	if n := len(env.events.OfKind(audit.SessionClosed)); n != 1 {
		t.Errorf("expected exactly 1 session_closed event, got %d", n)
	}

	env.quote(t, "SOL/USD", "20")
	w = env.order(t, "alice", "SOL/USD", "BUY", "1")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "not active") {
		t.Errorf("order on closed session: expected 409 inactive, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice", "bob")

	w := env.do(t, "GET", "/api/v1/sessions/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[trade.SessionView](t, w); got.ParticipantCount != 2 {
		t.Errorf("expected 2 participants, got %d", got.ParticipantCount)
	}

	if w := env.do(t, "GET", "/api/v1/sessions/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/sessions/9223372036854775808", nil); w.Code != http.StatusBadRequest {
		t.Errorf("id beyond int64: expected 400, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/sessions/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}

	w = env.do(t, "GET", "/api/v1/sessions", nil)
	if list := decode[[]trade.SessionView](t, w); len(list) != 1 {
		t.Errorf("expected 1 session, got %d", len(list))
	}
}

// --- Order execution ---

func TestExecuteOrder_BuyThenSell(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")

	env.quote(t, "SOL/USD", "20")
	w := env.order(t, "alice", "SOL/USD", "BUY", "10")
	if w.Code != http.StatusOK {
		t.Fatalf("buy: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[trade.OrderResponse](t, w)
	if resp.Trade.ID == "" || resp.Trade.Notional.String() != "200" {
		t.Errorf("unexpected trade: %+v", resp.Trade)
	}
	if resp.Portfolio.CashBalance.String() != "99800" {
		t.Errorf("expected cash 99800, got %s", resp.Portfolio.CashBalance)
	}
	if len(resp.Portfolio.Positions) != 1 || resp.Portfolio.Positions[0].AvgEntryPrice.String() != "20" ||
		resp.Portfolio.Positions[0].Quantity.String() != "10" || resp.Portfolio.Positions[0].Side != "LONG" {
		t.Errorf("unexpected position: %+v", resp.Portfolio.Positions)
	}

	env.advance(5 * time.Second)
	env.quote(t, "SOL/USD", "25")
	w = env.order(t, "alice", "sol-usd", "sell", "10")
	if w.Code != http.StatusOK {
		t.Fatalf("sell: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = decode[trade.OrderResponse](t, w)
	pf := resp.Portfolio
	if pf.CashBalance.String() != "100050" || pf.RealizedPnL.String() != "50" ||
		pf.UnrealizedPnL.String() != "0" || pf.TotalValue.String() != "100100" {
		t.Errorf("unexpected portfolio after round trip: %+v", pf)
	}
	if len(pf.Positions) != 0 || pf.NumTrades != 2 {
		t.Errorf("expected flat book after 2 trades, got %+v", pf)
	}
	if resp.Trade.RealizedPnL.String() != "50" {
		t.Errorf("expected trade realized 50, got %s", resp.Trade.RealizedPnL)
	}

	w = env.do(t, "GET", "/api/v1/sessions/1/portfolios/alice/trades", nil)
	trades := decode[[]trade.TradeView](t, w)
	if len(trades) != 2 || trades[0].Side != "BUY" || trades[1].Side != "SELL" {
		t.Errorf("unexpected trade history: %+v", trades)
	}

	w = env.do(t, "GET", "/api/v1/sessions/1/leaderboard", nil)
	lb := decode[trade.LeaderboardView](t, w)
	if len(lb.Entries) != 1 || lb.Entries[0].User != "alice" || lb.Entries[0].Rank != 1 ||
		lb.Entries[0].TotalPnL.String() != "50" {
		t.Errorf("unexpected leaderboard: %+v", lb)
	}

	if n := len(env.events.OfKind(audit.OrderExecuted)); n != 2 {
		t.Errorf("expected 2 order_executed events, got %d", n)
	}
}

func TestExecuteOrder_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")
	env.quote(t, "SOL/USD", "20")

	tests := []struct {
		name                  string
		user, pair, side, qty string
		want                  int
		msg                   string
	}{
		{"insufficient funds", "alice", "SOL/USD", "BUY", "5001", http.StatusConflict, "insufficient cash"},
		{"no position", "alice", "SOL/USD", "SELL", "1", http.StatusConflict, "no position"},
		{"pair not in session", "alice", "ETH/USD", "BUY", "1", http.StatusBadRequest, "not permitted"},
		{"no quote", "alice", "BTC/USD", "BUY", "1", http.StatusUnprocessableEntity, "price feed"},
		{"bad side", "alice", "SOL/USD", "HOLD", "1", http.StatusBadRequest, "side"},
		{"zero qty", "alice", "SOL/USD", "BUY", "0", http.StatusBadRequest, "quantity"},
		{"sub-unit qty", "alice", "SOL/USD", "BUY", "0.0000001", http.StatusBadRequest, "quantity"},
		{"bad pair", "alice", "SOLUSD", "BUY", "1", http.StatusBadRequest, "invalid trading pair"},
		{"unknown user", "mallory", "SOL/USD", "BUY", "1", http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.order(t, tt.user, tt.pair, tt.side, tt.qty)
			if w.Code != tt.want || !strings.Contains(w.Body.String(), tt.msg) {
				t.Errorf("expected %d containing %q, got %d: %s", tt.want, tt.msg, w.Code, w.Body.String())
			}
		})
	}

	p, _ := env.store.GetPortfolio(context.Background(), 1, "alice")
	if p.CashBalance != 100_000_000_000 || p.NumTrades != 0 || len(p.Positions) != 0 {
		t.Errorf("rejected orders changed the portfolio: %+v", p)
	}
	if trades, _ := env.store.GetTrades(context.Background(), 1, "alice"); len(trades) != 0 {
		t.Errorf("rejected orders recorded trades: %d", len(trades))
	}
}

func TestExecuteOrder_StaleQuote(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")
	env.quote(t, "SOL/USD", "20")

	env.advance(31 * time.Second)
	w := env.order(t, "alice", "SOL/USD", "BUY", "1")
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "stale") {
		t.Errorf("expected 422 stale, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteOrder_SessionEnded(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")

	env.advance(time.Hour)
	env.quote(t, "SOL/USD", "20")
	w := env.order(t, "alice", "SOL/USD", "BUY", "1")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "ended") {
		t.Errorf("expected 409 ended, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteOrder_ConcurrentBuysSerialize(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")
	env.quote(t, "SOL/USD", "10")

	// Each buy costs 10000; only 10 of 20 fit in the 100000 balance.
	var wg sync.WaitGroup
	codes := make([]int, 20)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.order(t, "alice", "SOL/USD", "BUY", "1000").Code
		}(i)
	}
	wg.Wait()

	filled := 0
	for _, c := range codes {
		if c == http.StatusOK {
			filled++
		}
	}
	if filled != 10 {
		t.Errorf("expected 10 fills, got %d", filled)
	}
	p, _ := env.store.GetPortfolio(context.Background(), 1, "alice")
	if p.CashBalance != 0 || p.NumTrades != 10 || p.Positions[0].Quantity != 10_000_000_000 {
		t.Errorf("unexpected portfolio after concurrent buys: %+v", p)
	}
}

// --- Valuation & leaderboard ---

func TestUpdateValuation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice")
	env.quote(t, "SOL/USD", "20")
	env.order(t, "alice", "SOL/USD", "BUY", "10")

	env.advance(time.Second)
	env.quote(t, "SOL/USD", "22.5")
	w := env.do(t, "POST", "/api/v1/sessions/1/portfolios/alice/valuation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	pf := decode[trade.PortfolioView](t, w)
	if pf.UnrealizedPnL.String() != "25" || pf.TotalValue.String() != "99825" {
		t.Errorf("unexpected valuation: %+v", pf)
	}
	if pf.ROIPercentage != 0.025 {
		t.Errorf("expected ROI 0.025, got %v", pf.ROIPercentage)
	}

	stored, _ := env.store.GetPortfolio(context.Background(), 1, "alice")
	if stored.UnrealizedPnL != 25_000_000 {
		t.Errorf("valuation not persisted: %d", stored.UnrealizedPnL)
	}
	if n := len(env.events.OfKind(audit.PnlUpdated)); n != 1 {
		t.Errorf("expected 1 pnl_updated event, got %d", n)
	}

	env.advance(time.Minute)
	w = env.do(t, "POST", "/api/v1/sessions/1/portfolios/alice/valuation", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("stale valuation: expected 422, got %d", w.Code)
	}
	again, _ := env.store.GetPortfolio(context.Background(), 1, "alice")
	if again.UnrealizedPnL != 25_000_000 {
		t.Error("failed valuation changed the stored portfolio")
	}
}

func TestLeaderboard_Ranking(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "alice", "bob", "carol")
	env.quote(t, "SOL/USD", "20")
	env.quote(t, "BTC/USD", "100")

	env.order(t, "alice", "SOL/USD", "BUY", "10")
	env.order(t, "bob", "BTC/USD", "BUY", "1")

	env.advance(time.Second)
	env.quote(t, "SOL/USD", "30")
	env.quote(t, "BTC/USD", "90")
	env.order(t, "alice", "SOL/USD", "SELL", "10") // +100 realized
	env.order(t, "bob", "BTC/USD", "SELL", "1")    // -10 realized

	w := env.do(t, "POST", "/api/v1/sessions/1/leaderboard/carol", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	lb := decode[trade.LeaderboardView](t, w)
	want := []struct {
		user string
		pnl  string
	}{{"alice", "100"}, {"carol", "0"}, {"bob", "-10"}}
	if len(lb.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), lb.Entries)
	}
	for i, e := range want {
		got := lb.Entries[i]
		if got.User != e.user || got.TotalPnL.String() != e.pnl || got.Rank != uint32(i+1) {
			t.Errorf("rank %d: expected %s/%s, got %+v", i+1, e.user, e.pnl, got)
		}
	}
	if lb.Entries[0].ROIPercentage != 0.1 {
		t.Errorf("expected alice ROI 0.1, got %v", lb.Entries[0].ROIPercentage)
	}

	if w := env.do(t, "POST", "/api/v1/sessions/1/leaderboard/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/sessions/5/leaderboard", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", w.Code)
	}
}

// --- Quotes ---

// pausingStore blocks the first GetPortfolio after arm until release is closed.
type pausingStore struct {
	store.Store
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *pausingStore) GetPortfolio(ctx context.Context, sessionID uint64, owner string) (*model.Portfolio, error) {
	p, err := s.Store.GetPortfolio(ctx, sessionID, owner)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return p, err
}

func TestUpdateLeaderboard_OrderCannotInterleave(t *testing.T) {
	ps := &pausingStore{read: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWrapped(t, func(st store.Store) store.Store {
		ps.Store = st
		return ps
	})
	env.seedSession(t, "alice")
	env.quote(t, "SOL/USD", "20")
	if w := env.order(t, "alice", "SOL/USD", "BUY", "10"); w.Code != http.StatusOK {
		t.Fatalf("buy: %d %s", w.Code, w.Body.String())
	}
	env.advance(time.Second)
	env.quote(t, "SOL/USD", "25")

	ps.armed.Store(true)
	var wg sync.WaitGroup
	var boardCode, sellCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		boardCode = env.do(t, "POST", "/api/v1/sessions/1/leaderboard/alice", nil).Code
	}()
	<-ps.read

	// The sell must wait for the leaderboard pass holding alice's portfolio.
	wg.Add(1)
	go func() {
		defer wg.Done()
		sellCode = env.order(t, "alice", "SOL/USD", "SELL", "10").Code
	}()
	time.Sleep(50 * time.Millisecond)
	close(ps.release)
	wg.Wait()

	if boardCode != http.StatusOK || sellCode != http.StatusOK {
		t.Fatalf("expected 200/200, got leaderboard %d, sell %d", boardCode, sellCode)
	}

	lb := decode[trade.LeaderboardView](t, env.do(t, "GET", "/api/v1/sessions/1/leaderboard", nil))
	if len(lb.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", lb.Entries)
	}
	if !lb.Entries[0].TotalPnL.Equal(d("50")) {
		t.Errorf("board must hold the post-sell standing 50, got %s", lb.Entries[0].TotalPnL)
	}
}

func TestPushQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/quotes", model.PriceQuote{
		TradingPair: "sol-usd", Price: 2_000_000_000, Expo: -8, PublishTime: t0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/quotes", nil)
	qs := decode[[]model.PriceQuote](t, w)
	if len(qs) != 1 || qs[0].TradingPair != "SOL/USD" || qs[0].Expo != -8 {
		t.Errorf("unexpected quotes: %+v", qs)
	}

	if w := env.do(t, "POST", "/api/v1/quotes", model.PriceQuote{Price: 1, PublishTime: t0}); w.Code != http.StatusBadRequest {
		t.Errorf("keyless quote: expected 400, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/v1/quotes", model.PriceQuote{TradingPair: "SOL/USD", Price: 1}); w.Code != http.StatusBadRequest {
		t.Errorf("missing publish time: expected 400, got %d", w.Code)
	}
}
