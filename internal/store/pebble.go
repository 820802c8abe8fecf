package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/atmx/trading-game/internal/model"
)

// PebbleStore implements Store on an embedded Pebble database for
// single-node deployments. Records are JSON values under prefixed keys;
// multi-record writes go through one batch.
type PebbleStore struct {
	db *pebble.DB
	// mu serializes check-then-write sequences (create, enroll, save).
	mu sync.Mutex
}

// OpenPebbleStore opens (or creates) a Pebble database at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) CreateSession(_ context.Context, sess *model.TradingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(sess.ID)
	if ok, err := s.has(key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrAlreadyExists)
	}
	return s.put(key, sess)
}

func (s *PebbleStore) GetSession(_ context.Context, id uint64) (*model.TradingSession, error) {
	var sess model.TradingSession
	if err := s.get(sessionKey(id), &sess); err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return &sess, nil
}

func (s *PebbleStore) ListSessions(_ context.Context) ([]model.TradingSession, error) {
	var out []model.TradingSession
	err := s.scan([]byte("session/"), func(v []byte) error {
		var sess model.TradingSession
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		out = append(out, sess)
		return nil
	})
	return out, err
}

func (s *PebbleStore) UpdateSession(_ context.Context, sess *model.TradingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(sess.ID)
	if ok, err := s.has(key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrNotFound)
	}
	return s.put(key, sess)
}

func (s *PebbleStore) Enroll(_ context.Context, sess *model.TradingSession, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.has(sessionKey(sess.ID)); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("session %d: %w", sess.ID, ErrNotFound)
	}
	pkey := portfolioKeyBytes(p.SessionID, p.Owner)
	if ok, err := s.has(pkey); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrAlreadyExists)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := batchPut(b, sessionKey(sess.ID), sess); err != nil {
		return err
	}
	if err := batchPut(b, pkey, p); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) GetPortfolio(_ context.Context, sessionID uint64, owner string) (*model.Portfolio, error) {
	var p model.Portfolio
	if err := s.get(portfolioKeyBytes(sessionID, owner), &p); err != nil {
		return nil, fmt.Errorf("get portfolio %d/%s: %w", sessionID, owner, err)
	}
	if p.Positions == nil {
		p.Positions = []model.Position{}
	}
	return &p, nil
}

func (s *PebbleStore) ListPortfolios(_ context.Context, sessionID uint64) ([]model.Portfolio, error) {
	var out []model.Portfolio
	err := s.scan(portfolioPrefix(sessionID), func(v []byte) error {
		var p model.Portfolio
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if p.Positions == nil {
			p.Positions = []model.Position{}
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (s *PebbleStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKeyBytes(p.SessionID, p.Owner)
	if ok, err := s.has(key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrNotFound)
	}
	return s.put(key, p)
}

func (s *PebbleStore) SaveOrder(_ context.Context, p *model.Portfolio, t *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKeyBytes(p.SessionID, p.Owner)
	if ok, err := s.has(key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrNotFound)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := batchPut(b, key, p); err != nil {
		return err
	}
	if err := batchPut(b, tradeKey(t), t); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) GetTrades(_ context.Context, sessionID uint64, owner string) ([]model.TradeRecord, error) {
	out := []model.TradeRecord{}
	err := s.scan(tradePrefix(sessionID, owner), func(v []byte) error {
		var t model.TradeRecord
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (s *PebbleStore) GetLeaderboard(_ context.Context, sessionID uint64) (*model.Leaderboard, error) {
	var lb model.Leaderboard
	err := s.get(leaderboardKey(sessionID), &lb)
	if errors.Is(err, ErrNotFound) {
		return &model.Leaderboard{SessionID: sessionID, Entries: []model.LeaderboardEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard %d: %w", sessionID, err)
	}
	if lb.Entries == nil {
		lb.Entries = []model.LeaderboardEntry{}
	}
	return &lb, nil
}

func (s *PebbleStore) SaveLeaderboard(_ context.Context, lb *model.Leaderboard) error {
	return s.put(leaderboardKey(lb.SessionID), lb)
}

// --- helpers ---

func (s *PebbleStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) get(key []byte, v any) error {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(data, v)
}

func (s *PebbleStore) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.Sync)
}

func (s *PebbleStore) scan(prefix []byte, fn func(v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func batchPut(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

// Fixed-width ids keep lexical key order equal to numeric order.

func sessionKey(id uint64) []byte {
	return []byte(fmt.Sprintf("session/%020d", id))
}

func portfolioPrefix(sessionID uint64) []byte {
	return []byte(fmt.Sprintf("portfolio/%020d/", sessionID))
}

func portfolioKeyBytes(sessionID uint64, owner string) []byte {
	return append(portfolioPrefix(sessionID), owner...)
}

func tradePrefix(sessionID uint64, owner string) []byte {
	return []byte(fmt.Sprintf("trade/%020d/%s/", sessionID, owner))
}

func tradeKey(t *model.TradeRecord) []byte {
	return append(tradePrefix(t.SessionID, t.User), fmt.Sprintf("%020d/%s", t.Timestamp.UnixNano(), t.ID)...)
}

func leaderboardKey(sessionID uint64) []byte {
	return []byte(fmt.Sprintf("leaderboard/%020d", sessionID))
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
