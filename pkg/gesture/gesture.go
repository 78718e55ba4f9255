// Package gesture maps detected sign colors to rock-paper-scissors moves.
package gesture

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/teslashibe/reachy-signs/pkg/signs"
)

// ErrInvalidTable is returned by ParseTable for malformed input.
var ErrInvalidTable = errors.New("gesture: invalid table")

// Gesture is a rock-paper-scissors move.
type Gesture string

const (
	None     Gesture = ""
	Rock     Gesture = "rock"
	Paper    Gesture = "paper"
	Scissors Gesture = "scissors"
)

// Valid reports whether g is one of the three moves.
func (g Gesture) Valid() bool {
	return g == Rock || g == Paper || g == Scissors
}

// beats lists the move each gesture defeats.
var beats = map[Gesture]Gesture{
	Scissors: Paper,
	Paper:    Rock,
	Rock:     Scissors,
}

// Beats reports whether a defeats b.
func Beats(a, b Gesture) bool {
	return a.Valid() && beats[a] == b
}

// Winner returns 1 when a wins, -1 when b wins and 0 for a draw or when
// either move is invalid.
func Winner(a, b Gesture) int {
	switch {
	case Beats(a, b):
		return 1
	case Beats(b, a):
		return -1
	default:
		return 0
	}
}

// Table maps sign colors to gestures.
type Table map[signs.Result]Gesture

// DefaultTable returns red=rock, blue=paper, green=scissors.
func DefaultTable() Table {
	return Table{
		signs.Red:   Rock,
		signs.Blue:  Paper,
		signs.Green: Scissors,
	}
}

// Lookup returns the gesture for r, or None when r is not mapped.
func (t Table) Lookup(r signs.Result) Gesture {
	return t[r]
}

// String formats the table the way ParseTable reads it.
func (t Table) String() string {
	pairs := make([]string, 0, len(t))
	for r, g := range t {
		pairs = append(pairs, r.String()+"="+string(g))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// ParseTable reads "color=gesture" pairs separated by commas, for example
// "red=rock,blue=paper,green=scissors". Only sign colors may be mapped and
// each gesture may appear once.
func ParseTable(s string) (Table, error) {
	t := Table{}
	seen := map[Gesture]signs.Result{}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		color, move, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not color=gesture", ErrInvalidTable, pair)
		}

		r, err := signs.ParseResult(strings.TrimSpace(color))
		if err != nil || !r.IsColor() {
			return nil, fmt.Errorf("%w: unknown color %q", ErrInvalidTable, color)
		}
		g := Gesture(strings.ToLower(strings.TrimSpace(move)))
		if !g.Valid() {
			return nil, fmt.Errorf("%w: unknown gesture %q", ErrInvalidTable, move)
		}
		if _, dup := t[r]; dup {
			return nil, fmt.Errorf("%w: %s mapped twice", ErrInvalidTable, r)
		}
		if prev, dup := seen[g]; dup {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrInvalidTable, g, prev, r)
		}

		t[r] = g
		seen[g] = r
	}

	if len(t) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTable)
	}
	return t, nil
}
