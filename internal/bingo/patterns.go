// internal/bingo/patterns.go
package bingo

import (
	"fmt"
	"strings"
)

// Pattern names a win condition.
type Pattern string

const (
	PatternNormal      Pattern = "normal"       // any row, column or diagonal
	PatternFourCorners Pattern = "four_corners" // the four corner cells
	PatternCross       Pattern = "cross"        // centre row and centre column
	PatternBlackout    Pattern = "blackout"     // every cell
)

// AllPatterns lists every supported pattern in canonical order.
var AllPatterns = []Pattern{PatternNormal, PatternFourCorners, PatternCross, PatternBlackout}

// DefaultPatterns is used whenever no pattern is enabled.
var DefaultPatterns = []Pattern{PatternNormal}

// Known reports whether p is a supported pattern.
func (p Pattern) Known() bool {
	for _, k := range AllPatterns {
		if k == p {
			return true
		}
	}
	return false
}

// ParsePatterns normalizes user supplied pattern names. Unknown names are an
// error, duplicates are dropped, and an empty list becomes DefaultPatterns.
// The result is in canonical order.
func ParsePatterns(names []string) ([]Pattern, error) {
	enabled := make(map[Pattern]bool, len(names))
	for _, raw := range names {
		p := Pattern(strings.ToLower(strings.TrimSpace(raw)))
		if p == "" {
			continue
		}
		if !p.Known() {
			return nil, fmt.Errorf("unknown pattern %q", raw)
		}
		enabled[p] = true
	}
	return canonical(enabled), nil
}

// Normalize applies the same defaulting as ParsePatterns to typed input.
func Normalize(patterns []Pattern) []Pattern {
	enabled := make(map[Pattern]bool, len(patterns))
	for _, p := range patterns {
		if p.Known() {
			enabled[p] = true
		}
	}
	return canonical(enabled)
}

func canonical(enabled map[Pattern]bool) []Pattern {
	out := make([]Pattern, 0, len(enabled))
	for _, p := range AllPatterns {
		if enabled[p] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append(out, DefaultPatterns...)
	}
	return out
}

// Marks is the set of positions a player has daubed.
type Marks map[Pos]bool

// NewMarks builds a mark set from a list of positions, skipping invalid ones.
func NewMarks(positions ...Pos) Marks {
	m := make(Marks, len(positions))
	for _, p := range positions {
		if p.Valid() {
			m[p] = true
		}
	}
	return m
}

// Positions lists the marked positions in row-major order.
func (m Marks) Positions() []Pos {
	out := make([]Pos, 0, len(m))
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			p := Pos{Row: row, Col: col}
			if m[p] {
				out = append(out, p)
			}
		}
	}
	return out
}

// CalledMarks marks every cell whose number has been called, plus FREE.
// This is the satisfied set derived purely from authoritative state.
func CalledMarks(card Card, called map[int]bool) Marks {
	m := make(Marks, Size*Size)
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			p := Pos{Row: row, Col: col}
			if card.IsFree(p) || called[card.At(p)] {
				m[p] = true
			}
		}
	}
	return m
}

// Satisfied reports whether the cell at p counts toward a pattern. The mark
// set alone is never trusted: the number must also be in called.
func Satisfied(card Card, marks Marks, called map[int]bool, p Pos) bool {
	if card.IsFree(p) {
		return true
	}
	return marks[p] && called[card.At(p)]
}

// Validate reports whether any enabled pattern is complete.
func Validate(card Card, marks Marks, called map[int]bool, patterns []Pattern) bool {
	return len(Matches(card, marks, called, patterns)) > 0
}

// Matches returns every enabled pattern that is complete, in canonical order.
func Matches(card Card, marks Marks, called map[int]bool, patterns []Pattern) []Pattern {
	var grid [Size][Size]bool
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			grid[row][col] = Satisfied(card, marks, called, Pos{Row: row, Col: col})
		}
	}

	var out []Pattern
	for _, p := range Normalize(patterns) {
		if patternComplete(p, &grid) {
			out = append(out, p)
		}
	}
	return out
}

func patternComplete(p Pattern, g *[Size][Size]bool) bool {
	switch p {
	case PatternNormal:
		return anyRow(g) || anyCol(g) || diagonal(g, false) || diagonal(g, true)
	case PatternFourCorners:
		return g[0][0] && g[0][Size-1] && g[Size-1][0] && g[Size-1][Size-1]
	case PatternCross:
		return fullRow(g, Center.Row) && fullCol(g, Center.Col)
	case PatternBlackout:
		for row := 0; row < Size; row++ {
			if !fullRow(g, row) {
				return false
			}
		}
		return true
	}
	return false
}

func fullRow(g *[Size][Size]bool, row int) bool {
	for col := 0; col < Size; col++ {
		if !g[row][col] {
			return false
		}
	}
	return true
}

func fullCol(g *[Size][Size]bool, col int) bool {
	for row := 0; row < Size; row++ {
		if !g[row][col] {
			return false
		}
	}
	return true
}

func anyRow(g *[Size][Size]bool) bool {
	for row := 0; row < Size; row++ {
		if fullRow(g, row) {
			return true
		}
	}
	return false
}

func anyCol(g *[Size][Size]bool) bool {
	for col := 0; col < Size; col++ {
		if fullCol(g, col) {
			return true
		}
	}
	return false
}

func diagonal(g *[Size][Size]bool, anti bool) bool {
	for i := 0; i < Size; i++ {
		col := i
		if anti {
			col = Size - 1 - i
		}
		if !g[i][col] {
			return false
		}
	}
	return true
}
