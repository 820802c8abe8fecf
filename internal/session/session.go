// Package session implements the competition-window lifecycle: creating a
// session, enrolling participants, closing it once its end time has passed,
// and the tradability check the order engine runs before every fill.
package session

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/atmx/trading-game/internal/model"
	"github.com/atmx/trading-game/internal/pair"
)

var (
	ErrSessionInactive    = errors.New("session: trading session is not active")
	ErrSessionEnded       = errors.New("session: trading session has ended")
	ErrSessionStillActive = errors.New("session: session is still active, cannot close yet")
	ErrSessionClosed      = errors.New("session: session is already closed")
	ErrInvalidSession     = errors.New("session: invalid session parameters")
	ErrPairNotPermitted   = errors.New("session: trading pair not permitted in this session")
)

// MaxID is the largest session id. Ids are stored as signed 64-bit keys.
const MaxID = math.MaxInt64

// ownerPattern limits participant ids to characters that are safe inside
// store keys and URL paths.
var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)

// Initialize creates an active session starting at now and lasting duration.
// virtualBalance is the fixed-point starting cash of every participant.
func Initialize(id uint64, now time.Time, duration time.Duration, virtualBalance int64, pairs []string) (*model.TradingSession, error) {
	if id == 0 || id > MaxID {
		return nil, fmt.Errorf("%w: session id must be in 1..%d", ErrInvalidSession, uint64(MaxID))
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidSession)
	}
	if virtualBalance <= 0 {
		return nil, fmt.Errorf("%w: virtual balance must be positive", ErrInvalidSession)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: at least one trading pair is required", ErrInvalidSession)
	}
	if err := pair.ValidateSet(pairs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	start := now.UTC()
	return &model.TradingSession{
		ID:             id,
		StartTime:      start,
		EndTime:        start.Add(duration),
		VirtualBalance: virtualBalance,
		TradingPairs:   slices.Clone(pairs),
		IsActive:       true,
	}, nil
}

// CheckTradable returns nil when orders may be placed in s at now.
func CheckTradable(s *model.TradingSession, now time.Time) error {
	if !s.IsActive {
		return ErrSessionInactive
	}
	if !now.Before(s.EndTime) {
		return ErrSessionEnded
	}
	return nil
}

// Join enrolls owner in s, returning the new portfolio funded with the
// session's virtual balance. The participant counter saturates instead of
// wrapping.
func Join(s *model.TradingSession, owner string, now time.Time) (*model.Portfolio, error) {
	if !ownerPattern.MatchString(owner) {
		return nil, fmt.Errorf("%w: invalid owner %q", ErrInvalidSession, owner)
	}
	if err := CheckTradable(s, now); err != nil {
		return nil, err
	}

	if s.ParticipantCount < math.MaxUint32 {
		s.ParticipantCount++
	}
	return &model.Portfolio{
		Owner:       owner,
		SessionID:   s.ID,
		CashBalance: s.VirtualBalance,
		TotalValue:  s.VirtualBalance,
		Positions:   []model.Position{},
	}, nil
}

// Close deactivates s once its end time has been reached. A session is
// closed exactly once.
func Close(s *model.TradingSession, now time.Time) error {
	if !s.IsActive {
		return ErrSessionClosed
	}
	if now.Before(s.EndTime) {
		return ErrSessionStillActive
	}
	s.IsActive = false
	return nil
}

// Permits reports whether pair is one of the session's trading pairs.
func Permits(s *model.TradingSession, pair string) bool {
	return slices.Contains(s.TradingPairs, pair)
}
