package gesture

import (
	"errors"
	"testing"

	"github.com/teslashibe/reachy-signs/pkg/signs"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		r    signs.Result
		want Gesture
	}{
		{signs.Red, Rock},
		{signs.Blue, Paper},
		{signs.Green, Scissors},
		{signs.NoSignal, None},
		{signs.Ambiguous, None},
	}
	for _, tt := range tests {
		if got := table.Lookup(tt.r); got != tt.want {
			t.Errorf("Lookup(%v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestBeatsAndWinner(t *testing.T) {
	tests := []struct {
		a, b Gesture
		want int
	}{
		{Scissors, Paper, 1},
		{Paper, Rock, 1},
		{Rock, Scissors, 1},
		{Paper, Scissors, -1},
		{Rock, Paper, -1},
		{Scissors, Rock, -1},
		{Rock, Rock, 0},
		{None, Rock, 0},
		{Gesture("lizard"), Paper, 0},
	}
	for _, tt := range tests {
		if got := Winner(tt.a, tt.b); got != tt.want {
			t.Errorf("Winner(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Beats(tt.a, tt.b); got != (tt.want == 1) {
			t.Errorf("Beats(%q, %q) = %v", tt.a, tt.b, got)
		}
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(" Red=ROCK, blue=paper ,green=scissors,")
	if err != nil {
		t.Fatal(err)
	}
	if table.String() != DefaultTable().String() {
		t.Errorf("table = %s, want %s", table, DefaultTable())
	}

	swapped, err := ParseTable("red=paper,blue=rock")
	if err != nil {
		t.Fatal(err)
	}
	if swapped.Lookup(signs.Red) != Paper || swapped.Lookup(signs.Green) != None {
		t.Errorf("swapped = %s", swapped)
	}
}

func TestParseTable_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"red",
		"purple=rock",
		"none=rock",
		"ambiguous=rock",
		"red=lizard",
		"red=rock,red=paper",
		"red=rock,blue=rock",
	} {
		if _, err := ParseTable(in); !errors.Is(err, ErrInvalidTable) {
			t.Errorf("ParseTable(%q) error = %v, want ErrInvalidTable", in, err)
		}
	}
}

func TestTable_String(t *testing.T) {
	if got, want := DefaultTable().String(), "blue=paper,green=scissors,red=rock"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
