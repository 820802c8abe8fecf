package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/trading-game/internal/model"
)

// CachedStore wraps a primary Store with a Redis cache for sessions,
// portfolios and leaderboards. Writes go to the primary store and then
// overwrite the cached copy; read misses fill the cache with SETNX so a
// slow reader can never replace a newer value written meanwhile.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then overwrite cache) ---

func (s *CachedStore) CreateSession(ctx context.Context, sess *model.TradingSession) error {
	if err := s.primary.CreateSession(ctx, sess); err != nil {
		return err
	}
	s.store(ctx, sessionCacheKey(sess.ID), sess)
	return nil
}

func (s *CachedStore) UpdateSession(ctx context.Context, sess *model.TradingSession) error {
	if err := s.primary.UpdateSession(ctx, sess); err != nil {
		return err
	}
	s.store(ctx, sessionCacheKey(sess.ID), sess)
	return nil
}

func (s *CachedStore) Enroll(ctx context.Context, sess *model.TradingSession, p *model.Portfolio) error {
	if err := s.primary.Enroll(ctx, sess, p); err != nil {
		return err
	}
	s.store(ctx, sessionCacheKey(sess.ID), sess)
	s.store(ctx, portfolioCacheKey(p.SessionID, p.Owner), p)
	return nil
}

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	s.store(ctx, portfolioCacheKey(p.SessionID, p.Owner), p)
	return nil
}

func (s *CachedStore) SaveOrder(ctx context.Context, p *model.Portfolio, t *model.TradeRecord) error {
	if err := s.primary.SaveOrder(ctx, p, t); err != nil {
		return err
	}
	s.store(ctx, portfolioCacheKey(p.SessionID, p.Owner), p)
	return nil
}

func (s *CachedStore) SaveLeaderboard(ctx context.Context, lb *model.Leaderboard) error {
	if err := s.primary.SaveLeaderboard(ctx, lb); err != nil {
		return err
	}
	s.store(ctx, leaderboardCacheKey(lb.SessionID), lb)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSession(ctx context.Context, id uint64) (*model.TradingSession, error) {
	var sess model.TradingSession
	if s.lookup(ctx, sessionCacheKey(id), &sess) {
		return &sess, nil
	}
	got, err := s.primary.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, sessionCacheKey(id), got)
	return got, nil
}

func (s *CachedStore) GetPortfolio(ctx context.Context, sessionID uint64, owner string) (*model.Portfolio, error) {
	var p model.Portfolio
	if s.lookup(ctx, portfolioCacheKey(sessionID, owner), &p) {
		if p.Positions == nil {
			p.Positions = []model.Position{}
		}
		return &p, nil
	}
	got, err := s.primary.GetPortfolio(ctx, sessionID, owner)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, portfolioCacheKey(sessionID, owner), got)
	return got, nil
}

func (s *CachedStore) GetLeaderboard(ctx context.Context, sessionID uint64) (*model.Leaderboard, error) {
	var lb model.Leaderboard
	if s.lookup(ctx, leaderboardCacheKey(sessionID), &lb) {
		if lb.Entries == nil {
			lb.Entries = []model.LeaderboardEntry{}
		}
		return &lb, nil
	}
	got, err := s.primary.GetLeaderboard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, leaderboardCacheKey(sessionID), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSessions(ctx context.Context) ([]model.TradingSession, error) {
	return s.primary.ListSessions(ctx)
}

func (s *CachedStore) ListPortfolios(ctx context.Context, sessionID uint64) ([]model.Portfolio, error) {
	return s.primary.ListPortfolios(ctx, sessionID)
}

func (s *CachedStore) GetTrades(ctx context.Context, sessionID uint64, owner string) ([]model.TradeRecord, error) {
	return s.primary.GetTrades(ctx, sessionID, owner)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// cache fills a missing key from a primary read.
func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.SetNX(ctx, key, data, s.ttl)
	}
}

// store overwrites key after a primary write. On failure the key is dropped
// so readers fall back to the primary.
func (s *CachedStore) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.rdb.Set(ctx, key, data, s.ttl).Err()
	}
	if err != nil {
		s.rdb.Del(ctx, key)
	}
}

func sessionCacheKey(id uint64) string { return fmt.Sprintf("session:%d", id) }
func portfolioCacheKey(sid uint64, owner string) string {
	return fmt.Sprintf("portfolio:%d:%s", sid, owner)
}
func leaderboardCacheKey(sid uint64) string { return fmt.Sprintf("leaderboard:%d", sid) }
