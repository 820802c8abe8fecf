// Package store defines the persistence interface for the trading game.
// Implementations include PostgreSQL (source of truth), Pebble (single-node
// durable), Redis (read-through cache), and in-memory (for testing).
//
// Every call is a plain load or store of whole records; callers own the
// load-mutate-store cycle and its locking.
package store

import (
	"context"
	"errors"

	"github.com/atmx/trading-game/internal/model"
)

var (
	// ErrNotFound is returned when a session, portfolio or record is absent.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface.
type Store interface {
	// --- Sessions ---

	// CreateSession persists a new session. ErrAlreadyExists if the id is taken.
	CreateSession(ctx context.Context, s *model.TradingSession) error

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, id uint64) (*model.TradingSession, error)

	// ListSessions returns all sessions ordered by id.
	ListSessions(ctx context.Context) ([]model.TradingSession, error)

	// UpdateSession overwrites an existing session.
	UpdateSession(ctx context.Context, s *model.TradingSession) error

	// --- Portfolios ---

	// Enroll atomically stores the updated session (participant count) and
	// inserts the new portfolio. ErrAlreadyExists if the owner is enrolled.
	Enroll(ctx context.Context, s *model.TradingSession, p *model.Portfolio) error

	// GetPortfolio retrieves one participant's portfolio.
	GetPortfolio(ctx context.Context, sessionID uint64, owner string) (*model.Portfolio, error)

	// ListPortfolios returns every portfolio in a session ordered by owner.
	ListPortfolios(ctx context.Context, sessionID uint64) ([]model.Portfolio, error)

	// SavePortfolio overwrites an existing portfolio.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error

	// --- Immutable trade log ---

	// SaveOrder atomically stores the post-trade portfolio and appends its
	// trade record.
	SaveOrder(ctx context.Context, p *model.Portfolio, t *model.TradeRecord) error

	// GetTrades returns a participant's trades, oldest first.
	GetTrades(ctx context.Context, sessionID uint64, owner string) ([]model.TradeRecord, error)

	// --- Leaderboards ---

	// GetLeaderboard returns the session's board, empty if none was saved.
	GetLeaderboard(ctx context.Context, sessionID uint64) (*model.Leaderboard, error)

	// SaveLeaderboard overwrites the session's board.
	SaveLeaderboard(ctx context.Context, lb *model.Leaderboard) error
}
