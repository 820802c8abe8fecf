package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/atmx/trading-game/internal/model"
)

var t0 = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func testSession(id uint64) *model.TradingSession {
	return &model.TradingSession{
		ID:             id,
		StartTime:      t0,
		EndTime:        t0.Add(24 * time.Hour),
		VirtualBalance: 100_000_000_000,
		TradingPairs:   []string{"SOL/USD", "BTC/USD"},
		IsActive:       true,
	}
}

func testPortfolio(sessionID uint64, owner string) *model.Portfolio {
	return &model.Portfolio{
		Owner:       owner,
		SessionID:   sessionID,
		CashBalance: 100_000_000_000,
		TotalValue:  100_000_000_000,
		Positions:   []model.Position{},
	}
}

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("SessionLifecycle", func(t *testing.T) {
		s := newStore(t)
		sess := testSession(1)
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.CreateSession(ctx, testSession(1)); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		got, err := s.GetSession(ctx, 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.EndTime.Equal(sess.EndTime) || got.VirtualBalance != sess.VirtualBalance ||
			!reflect.DeepEqual(got.TradingPairs, sess.TradingPairs) || !got.IsActive {
			t.Errorf("round trip mismatch: %+v", got)
		}

		got.IsActive = false
		if err := s.UpdateSession(ctx, got); err != nil {
			t.Fatalf("update: %v", err)
		}
		again, _ := s.GetSession(ctx, 1)
		if again.IsActive {
			t.Error("update not persisted")
		}

		if _, err := s.GetSession(ctx, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.UpdateSession(ctx, testSession(99)); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on update, got %v", err)
		}

		s.CreateSession(ctx, testSession(2))
		list, _ := s.ListSessions(ctx)
		if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
			t.Errorf("unexpected list: %+v", list)
		}
	})

	t.Run("EnrollAndOrders", func(t *testing.T) {
		s := newStore(t)
		sess := testSession(1)
		s.CreateSession(ctx, sess)

		sess.ParticipantCount = 1
		if err := s.Enroll(ctx, sess, testPortfolio(1, "alice")); err != nil {
			t.Fatalf("enroll: %v", err)
		}
		if err := s.Enroll(ctx, sess, testPortfolio(1, "alice")); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		got, _ := s.GetSession(ctx, 1)
		if got.ParticipantCount != 1 {
			t.Errorf("expected participant count 1, got %d", got.ParticipantCount)
		}

		p, err := s.GetPortfolio(ctx, 1, "alice")
		if err != nil {
			t.Fatalf("get portfolio: %v", err)
		}
		if !reflect.DeepEqual(p, testPortfolio(1, "alice")) {
			t.Errorf("portfolio mismatch: %+v", p)
		}

		p.CashBalance -= 200_000_000
		p.NumTrades = 1
		p.Positions = append(p.Positions, model.Position{
			TradingPair: "SOL/USD", Quantity: 10_000_000, AvgEntryPrice: 20_000_000, Side: model.Long,
		})
		trade := &model.TradeRecord{
			ID: "7d0f3f0e-1111-4a4a-8b8b-000000000001", SessionID: 1, User: "alice",
			TradingPair: "SOL/USD", Side: model.Buy, Quantity: 10_000_000,
			Price: 20_000_000, Notional: 200_000_000, Timestamp: t0,
		}
		if err := s.SaveOrder(ctx, p, trade); err != nil {
			t.Fatalf("save order: %v", err)
		}

		stored, _ := s.GetPortfolio(ctx, 1, "alice")
		if !reflect.DeepEqual(stored, p) {
			t.Errorf("saved portfolio mismatch:\n got %+v\nwant %+v", stored, p)
		}
		trades, _ := s.GetTrades(ctx, 1, "alice")
		if len(trades) != 1 || trades[0].ID != trade.ID || trades[0].Quantity != trade.Quantity ||
			!trades[0].Timestamp.Equal(t0) {
			t.Errorf("unexpected trades: %+v", trades)
		}
		if trades, _ := s.GetTrades(ctx, 1, "bob"); len(trades) != 0 {
			t.Errorf("expected no trades for bob, got %d", len(trades))
		}

		if err := s.SaveOrder(ctx, testPortfolio(1, "bob"), trade); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown portfolio, got %v", err)
		}
		if err := s.SavePortfolio(ctx, testPortfolio(1, "bob")); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on save, got %v", err)
		}

		sess.ParticipantCount = 2
		s.Enroll(ctx, sess, testPortfolio(1, "bob"))
		list, _ := s.ListPortfolios(ctx, 1)
		if len(list) != 2 || list[0].Owner != "alice" || list[1].Owner != "bob" {
			t.Errorf("unexpected portfolios: %+v", list)
		}
	})

	t.Run("Leaderboard", func(t *testing.T) {
		s := newStore(t)
		s.CreateSession(ctx, testSession(1))

		lb, err := s.GetLeaderboard(ctx, 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if lb.SessionID != 1 || lb.Entries == nil || len(lb.Entries) != 0 {
			t.Errorf("expected empty board, got %+v", lb)
		}

		lb.Entries = append(lb.Entries, model.LeaderboardEntry{User: "alice", TotalPnL: 50, Rank: 1, LastUpdated: t0})
		if err := s.SaveLeaderboard(ctx, lb); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, _ := s.GetLeaderboard(ctx, 1)
		if len(got.Entries) != 1 || got.Entries[0].User != "alice" || got.Entries[0].Rank != 1 {
			t.Errorf("unexpected board: %+v", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestPebbleStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenPebbleStore(t.TempDir())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sess := testSession(1)
	s.CreateSession(ctx, sess)
	s.Enroll(ctx, sess, testPortfolio(1, "alice"))

	p, _ := s.GetPortfolio(ctx, 1, "alice")
	p.CashBalance = 0
	p.Positions = append(p.Positions, model.Position{TradingPair: "SOL/USD", Quantity: 1})

	again, _ := s.GetPortfolio(ctx, 1, "alice")
	if again.CashBalance == 0 || len(again.Positions) != 0 {
		t.Error("caller mutation leaked into store")
	}

	sess.TradingPairs[0] = "XXX/YYY"
	got, _ := s.GetSession(ctx, 1)
	if got.TradingPairs[0] != "SOL/USD" {
		t.Error("session slice aliased by store")
	}
}

func TestUpperBound(t *testing.T) {
	if got := string(upperBound([]byte("trade/"))); got != "trade0" {
		t.Errorf("expected trade0, got %q", got)
	}
	if got := upperBound([]byte{0xff, 0xff}); got != nil {
		t.Errorf("expected nil bound, got %v", got)
	}
}
