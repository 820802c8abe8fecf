// Package pair parses and validates trading-pair symbols such as "SOL/USD".
package pair

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches: {BASE}/{QUOTE}
// Example: SOL/USD, BTC/USDC
var symbolRegex = regexp.MustCompile(`^([A-Z0-9]{2,10})/([A-Z0-9]{2,10})$`)

var (
	ErrInvalidSymbol = errors.New("pair: invalid trading pair symbol")
	ErrSameAsset     = errors.New("pair: base and quote asset must differ")
	ErrDuplicate     = errors.New("pair: duplicate trading pair")
)

// Pair is a parsed trading-pair symbol.
type Pair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// Parse parses and validates a trading-pair symbol.
// Format: {BASE}/{QUOTE}, upper-case alphanumerics.
func Parse(symbol string) (*Pair, error) {
	matches := symbolRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected BASE/QUOTE)", ErrInvalidSymbol, symbol)
	}
	if matches[1] == matches[2] {
		return nil, fmt.Errorf("%w: %s", ErrSameAsset, symbol)
	}
	return &Pair{
		Symbol: symbol,
		Base:   matches[1],
		Quote:  matches[2],
	}, nil
}

// Normalize upper-cases and trims a user-supplied symbol. "sol-usd" and
// "sol_usd" are accepted as aliases of "SOL/USD".
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("-", "/", "_", "/").Replace(s)
}

// ValidateSet checks that every symbol parses and none repeats.
func ValidateSet(symbols []string) error {
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if _, err := Parse(s); err != nil {
			return err
		}
		if seen[s] {
			return fmt.Errorf("%w: %s", ErrDuplicate, s)
		}
		seen[s] = true
	}
	return nil
}
