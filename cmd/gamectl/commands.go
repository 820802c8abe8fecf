package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/atmx/trading-game/internal/audit"
	"github.com/atmx/trading-game/internal/config"
	"github.com/atmx/trading-game/internal/fixedpoint"
	"github.com/atmx/trading-game/internal/logging"
	"github.com/atmx/trading-game/internal/pair"
	"github.com/atmx/trading-game/internal/session"
	"github.com/atmx/trading-game/internal/store"
)

var commands = []subcommands.Command{
	&listSessionsCmd{},
	&initSessionCmd{},
	&closeSessionCmd{},
	&leaderboardCmd{},
	&portfolioCmd{},
}

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// openStore is swapped in tests.
var openStore = func(ctx context.Context) (store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(pool), pool.Close, nil
	case cfg.PebblePath != "":
		pb, err := store.OpenPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		return pb, func() { pb.Close() }, nil
	default:
		return nil, nil, errors.New("set DATABASE_URL or PEBBLE_PATH")
	}
}

func withStore(ctx context.Context, fn func(store.Store) error) subcommands.ExitStatus {
	st, closeFn, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeFn()
	if err := fn(st); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func newLogger() *zap.Logger {
	log, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// --- sessions ---

type listSessionsCmd struct{}

func (*listSessionsCmd) Name() string     { return "sessions" }
func (*listSessionsCmd) Synopsis() string { return "list trading sessions" }
func (*listSessionsCmd) Usage() string {
	return `sessions

  Lists every session with its window, balance and participant count.
`
}
func (*listSessionsCmd) SetFlags(*flag.FlagSet) {}

func (*listSessionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withStore(ctx, func(st store.Store) error {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACTIVE\tSTART\tEND\tBALANCE\tPARTICIPANTS\tPAIRS")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%d\t%t\t%s\t%s\t%s\t%d\t%s\n",
				s.ID, s.IsActive,
				s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339),
				fixedpoint.String(s.VirtualBalance), s.ParticipantCount,
				strings.Join(s.TradingPairs, ","))
		}
		return tw.Flush()
	})
}

// --- init-session ---

type initSessionCmd struct {
	id       uint64
	duration time.Duration
	balance  string
	pairs    string
}

func (*initSessionCmd) Name() string     { return "init-session" }
func (*initSessionCmd) Synopsis() string { return "create a trading session starting now" }
func (*initSessionCmd) Usage() string {
	return `init-session -id <id> -duration <duration> -balance <amount> -pairs <BASE/QUOTE,...>

  Creates an active session:
  - id: unique session id.
  - duration: session length (e.g. "24h").
  - balance: starting cash per participant (e.g. "100000").
  - pairs: comma-separated trading pairs (e.g. "SOL/USD,BTC/USD").
`
}

func (c *initSessionCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.id, "id", 0, "Session id (required)")
	f.DurationVar(&c.duration, "duration", 24*time.Hour, "Session length")
	f.StringVar(&c.balance, "balance", "100000", "Virtual balance per participant")
	f.StringVar(&c.pairs, "pairs", "", "Comma-separated trading pairs (required)")
}

func (c *initSessionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 || c.pairs == "" {
		fmt.Fprintln(os.Stderr, "Error: -id and -pairs are required.")
		return subcommands.ExitUsageError
	}
	balance, err := fixedpoint.Parse(c.balance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing balance %q: %v\n", c.balance, err)
		return subcommands.ExitUsageError
	}
	var pairs []string
	for _, p := range strings.Split(c.pairs, ",") {
		pairs = append(pairs, pair.Normalize(p))
	}

	return withStore(ctx, func(st store.Store) error {
		now := time.Now()
		sess, err := session.Initialize(c.id, now, c.duration, balance, pairs)
		if err != nil {
			return err
		}
		if err := st.CreateSession(ctx, sess); err != nil {
			return err
		}
		audit.Publish(audit.NewLogSink(newLogger()), zap.NewNop(), audit.Event{
			Kind:           audit.SessionInitialized,
			SessionID:      sess.ID,
			InitialBalance: sess.VirtualBalance,
			StartTime:      &sess.StartTime,
			EndTime:        &sess.EndTime,
			Timestamp:      now,
		})
		fmt.Fprintf(stdout, "session %d active until %s\n", sess.ID, sess.EndTime.Format(time.RFC3339))
		return nil
	})
}

// --- close-session ---

type closeSessionCmd struct {
	id uint64
}

func (*closeSessionCmd) Name() string     { return "close-session" }
func (*closeSessionCmd) Synopsis() string { return "close a session whose end time has passed" }
func (*closeSessionCmd) Usage() string {
	return `close-session -id <id>

  Deactivates the session. Fails while the session is still running.
`
}

func (c *closeSessionCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.id, "id", 0, "Session id (required)")
}

func (c *closeSessionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 {
		fmt.Fprintln(os.Stderr, "Error: -id is required.")
		return subcommands.ExitUsageError
	}
	return withStore(ctx, func(st store.Store) error {
		sess, err := st.GetSession(ctx, c.id)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := session.Close(sess, now); err != nil {
			return err
		}
		if err := st.UpdateSession(ctx, sess); err != nil {
			return err
		}
		audit.Publish(audit.NewLogSink(newLogger()), zap.NewNop(), audit.Event{
			Kind:             audit.SessionClosed,
			SessionID:        sess.ID,
			ParticipantCount: sess.ParticipantCount,
			Timestamp:        now,
		})
		fmt.Fprintf(stdout, "session %d closed with %d participants\n", sess.ID, sess.ParticipantCount)
		return nil
	})
}

// --- leaderboard ---

type leaderboardCmd struct {
	id uint64
}

func (*leaderboardCmd) Name() string     { return "leaderboard" }
func (*leaderboardCmd) Synopsis() string { return "print a session's leaderboard" }
func (*leaderboardCmd) Usage() string {
	return `leaderboard -id <id>

  Prints the ranked standings of the session.
`
}

func (c *leaderboardCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.id, "id", 0, "Session id (required)")
}

func (c *leaderboardCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 {
		fmt.Fprintln(os.Stderr, "Error: -id is required.")
		return subcommands.ExitUsageError
	}
	return withStore(ctx, func(st store.Store) error {
		lb, err := st.GetLeaderboard(ctx, c.id)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tUSER\tTOTAL P&L\tROI %\tTRADES")
		for _, e := range lb.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%d\n",
				e.Rank, e.User, fixedpoint.String(e.TotalPnL), e.ROIPercentage, e.NumTrades)
		}
		return tw.Flush()
	})
}

// --- portfolio ---

type portfolioCmd struct {
	id   uint64
	user string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "print a participant's portfolio" }
func (*portfolioCmd) Usage() string {
	return `portfolio -id <id> -user <user>

  Prints balances and open positions of one participant.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.id, "id", 0, "Session id (required)")
	f.StringVar(&c.user, "user", "", "Participant id (required)")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 || c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -id and -user are required.")
		return subcommands.ExitUsageError
	}
	return withStore(ctx, func(st store.Store) error {
		p, err := st.GetPortfolio(ctx, c.id, c.user)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "cash %s  realized %s  unrealized %s  total %s  trades %d\n",
			fixedpoint.String(p.CashBalance), fixedpoint.String(p.RealizedPnL),
			fixedpoint.String(p.UnrealizedPnL), fixedpoint.String(p.TotalValue), p.NumTrades)
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PAIR\tSIDE\tQUANTITY\tAVG ENTRY")
		for _, pos := range p.Positions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pos.TradingPair, pos.Side,
				fixedpoint.QuantityDecimal(pos.Quantity).String(), fixedpoint.String(pos.AvgEntryPrice))
		}
		return tw.Flush()
	})
}

// --- migrate ---

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create PostgreSQL tables" }
func (*migrateCmd) Usage() string {
	return `migrate

  Applies the schema to the database at DATABASE_URL.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withStore(ctx, func(st store.Store) error {
		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return errors.New("migrate requires DATABASE_URL")
		}
		return pg.Migrate(ctx)
	})
}
