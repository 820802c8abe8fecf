package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/trading-game/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Money columns hold the fixed-point int64 directly; positions and
// leaderboard entries are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.TradingSession) error {
	pairs, err := json.Marshal(sess.TradingPairs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO trading_sessions (id, start_time, end_time, virtual_balance, trading_pairs, is_active, participant_count)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		int64(sess.ID), sess.StartTime, sess.EndTime, sess.VirtualBalance,
		string(pairs), sess.IsActive, int64(sess.ParticipantCount),
	)
	if err != nil {
		return fmt.Errorf("create session %d: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d: %w", sess.ID, ErrAlreadyExists)
	}
	return nil
}

const sessionColumns = `id, start_time, end_time, virtual_balance, trading_pairs, is_active, participant_count`

func (s *PostgresStore) GetSession(ctx context.Context, id uint64) (*model.TradingSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM trading_sessions WHERE id = $1`, int64(id))
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, notFound(err))
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.TradingSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM trading_sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.TradingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *model.TradingSession) error {
	return updateSession(ctx, s.pool, sess)
}

func (s *PostgresStore) Enroll(ctx context.Context, sess *model.TradingSession, p *model.Portfolio) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO portfolios (session_id, owner, cash_balance, total_value, realized_pnl, unrealized_pnl, num_trades, positions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::JSONB)
		 ON CONFLICT (session_id, owner) DO NOTHING`,
		int64(p.SessionID), p.Owner, p.CashBalance, p.TotalValue,
		p.RealizedPnL, p.UnrealizedPnL, int64(p.NumTrades), string(positions),
	)
	if err != nil {
		return fmt.Errorf("enroll %d/%s: %w", p.SessionID, p.Owner, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrAlreadyExists)
	}
	if err := updateSession(ctx, tx, sess); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const portfolioColumns = `session_id, owner, cash_balance, total_value, realized_pnl, unrealized_pnl, num_trades, positions`

func (s *PostgresStore) GetPortfolio(ctx context.Context, sessionID uint64, owner string) (*model.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE session_id = $1 AND owner = $2`,
		int64(sessionID), owner)
	p, err := scanPortfolio(row)
	if err != nil {
		return nil, fmt.Errorf("get portfolio %d/%s: %w", sessionID, owner, notFound(err))
	}
	return p, nil
}

func (s *PostgresStore) ListPortfolios(ctx context.Context, sessionID uint64) ([]model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE session_id = $1 ORDER BY owner`,
		int64(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list portfolios %d: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	return savePortfolio(ctx, s.pool, p)
}

func (s *PostgresStore) SaveOrder(ctx context.Context, p *model.Portfolio, t *model.TradeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := savePortfolio(ctx, tx, p); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO trade_records (id, session_id, owner, trading_pair, side, quantity, price, notional, realized_pnl, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10)`,
		t.ID, int64(t.SessionID), t.User, t.TradingPair, string(t.Side),
		strconv.FormatUint(t.Quantity, 10), t.Price, t.Notional, t.RealizedPnL, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetTrades(ctx context.Context, sessionID uint64, owner string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, session_id, owner, trading_pair, side, quantity::TEXT, price, notional, realized_pnl, created_at
		 FROM trade_records WHERE session_id = $1 AND owner = $2
		 ORDER BY created_at, id`, int64(sessionID), owner)
	if err != nil {
		return nil, fmt.Errorf("get trades %d/%s: %w", sessionID, owner, err)
	}
	defer rows.Close()

	out := []model.TradeRecord{}
	for rows.Next() {
		var t model.TradeRecord
		var sid int64
		var side, qty string
		if err := rows.Scan(&t.ID, &sid, &t.User, &t.TradingPair, &side, &qty,
			&t.Price, &t.Notional, &t.RealizedPnL, &t.Timestamp); err != nil {
			return nil, err
		}
		t.SessionID = uint64(sid)
		t.Side = model.OrderSide(side)
		if t.Quantity, err = strconv.ParseUint(qty, 10, 64); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLeaderboard(ctx context.Context, sessionID uint64) (*model.Leaderboard, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT entries FROM leaderboards WHERE session_id = $1`, int64(sessionID)).Scan(&data)
	lb := &model.Leaderboard{SessionID: sessionID, Entries: []model.LeaderboardEntry{}}
	if errors.Is(err, pgx.ErrNoRows) {
		return lb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard %d: %w", sessionID, err)
	}
	if err := json.Unmarshal(data, &lb.Entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard %d: %w", sessionID, err)
	}
	return lb, nil
}

func (s *PostgresStore) SaveLeaderboard(ctx context.Context, lb *model.Leaderboard) error {
	entries, err := json.Marshal(lb.Entries)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leaderboards (session_id, entries) VALUES ($1, $2::JSONB)
		 ON CONFLICT (session_id) DO UPDATE SET entries = EXCLUDED.entries`,
		int64(lb.SessionID), string(entries))
	if err != nil {
		return fmt.Errorf("save leaderboard %d: %w", lb.SessionID, err)
	}
	return nil
}

// --- helpers ---

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateSession(ctx context.Context, db execer, sess *model.TradingSession) error {
	tag, err := db.Exec(ctx,
		`UPDATE trading_sessions SET is_active = $2, participant_count = $3 WHERE id = $1`,
		int64(sess.ID), sess.IsActive, int64(sess.ParticipantCount))
	if err != nil {
		return fmt.Errorf("update session %d: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d: %w", sess.ID, ErrNotFound)
	}
	return nil
}

func savePortfolio(ctx context.Context, db execer, p *model.Portfolio) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE portfolios
		 SET cash_balance = $3, total_value = $4, realized_pnl = $5, unrealized_pnl = $6,
		     num_trades = $7, positions = $8::JSONB
		 WHERE session_id = $1 AND owner = $2`,
		int64(p.SessionID), p.Owner, p.CashBalance, p.TotalValue,
		p.RealizedPnL, p.UnrealizedPnL, int64(p.NumTrades), string(positions))
	if err != nil {
		return fmt.Errorf("save portfolio %d/%s: %w", p.SessionID, p.Owner, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio %d/%s: %w", p.SessionID, p.Owner, ErrNotFound)
	}
	return nil
}

func scanSession(row pgx.Row) (*model.TradingSession, error) {
	var sess model.TradingSession
	var id, count int64
	var pairs []byte
	if err := row.Scan(&id, &sess.StartTime, &sess.EndTime, &sess.VirtualBalance,
		&pairs, &sess.IsActive, &count); err != nil {
		return nil, err
	}
	sess.ID = uint64(id)
	sess.ParticipantCount = uint32(count)
	if err := json.Unmarshal(pairs, &sess.TradingPairs); err != nil {
		return nil, fmt.Errorf("decode trading pairs: %w", err)
	}
	return &sess, nil
}

func scanPortfolio(row pgx.Row) (*model.Portfolio, error) {
	var p model.Portfolio
	var sid, trades int64
	var positions []byte
	if err := row.Scan(&sid, &p.Owner, &p.CashBalance, &p.TotalValue,
		&p.RealizedPnL, &p.UnrealizedPnL, &trades, &positions); err != nil {
		return nil, err
	}
	p.SessionID = uint64(sid)
	p.NumTrades = uint32(trades)
	if err := json.Unmarshal(positions, &p.Positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	if p.Positions == nil {
		p.Positions = []model.Position{}
	}
	return &p, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
