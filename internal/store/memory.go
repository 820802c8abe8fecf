package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/trading-game/internal/model"
)

type portfolioKey struct {
	session uint64
	owner   string
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[uint64]*model.TradingSession
	portfolios   map[portfolioKey]*model.Portfolio
	trades       map[portfolioKey][]model.TradeRecord
	leaderboards map[uint64]*model.Leaderboard
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[uint64]*model.TradingSession),
		portfolios:   make(map[portfolioKey]*model.Portfolio),
		trades:       make(map[portfolioKey][]model.TradeRecord),
		leaderboards: make(map[uint64]*model.Leaderboard),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *model.TradingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrAlreadyExists)
	}
	// Store a copy to avoid external mutation.
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id uint64) (*model.TradingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]model.TradingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TradingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess *model.TradingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrNotFound)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) Enroll(_ context.Context, sess *model.TradingSession, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrNotFound)
	}
	key := portfolioKey{p.SessionID, p.Owner}
	if _, ok := s.portfolios[key]; ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrAlreadyExists)
	}
	s.sessions[sess.ID] = sess.Clone()
	s.portfolios[key] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, sessionID uint64, owner string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[portfolioKey{sessionID, owner}]
	if !ok {
		return nil, fmt.Errorf("portfolio %d/%s: %w", sessionID, owner, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListPortfolios(_ context.Context, sessionID uint64) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Portfolio
	for key, p := range s.portfolios {
		if key.session == sessionID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKey{p.SessionID, p.Owner}
	if _, ok := s.portfolios[key]; !ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrNotFound)
	}
	s.portfolios[key] = p.Clone()
	return nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, p *model.Portfolio, t *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKey{p.SessionID, p.Owner}
	if _, ok := s.portfolios[key]; !ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrNotFound)
	}
	s.portfolios[key] = p.Clone()
	s.trades[key] = append(s.trades[key], *t)
	return nil
}

func (s *MemoryStore) GetTrades(_ context.Context, sessionID uint64, owner string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[portfolioKey{sessionID, owner}]
	out := make([]model.TradeRecord, len(trades))
	copy(out, trades)
	return out, nil
}

func (s *MemoryStore) GetLeaderboard(_ context.Context, sessionID uint64) (*model.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lb, ok := s.leaderboards[sessionID]
	if !ok {
		return &model.Leaderboard{SessionID: sessionID, Entries: []model.LeaderboardEntry{}}, nil
	}
	return lb.Clone(), nil
}

func (s *MemoryStore) SaveLeaderboard(_ context.Context, lb *model.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leaderboards[lb.SessionID] = lb.Clone()
	return nil
}
