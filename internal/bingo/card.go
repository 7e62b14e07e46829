// internal/bingo/card.go
package bingo

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	// Size is the width and height of a card.
	Size = 5
	// BandWidth is how many numbers each column band spans.
	BandWidth = 15
	// MaxNumber is the highest number that can be called.
	MaxNumber = Size * BandWidth
	// Free is the sentinel value stored in the centre cell.
	Free = 0
)

// Center is the FREE cell.
var Center = Pos{Row: 2, Col: 2}

// bandLetters label the five column bands.
var bandLetters = [Size]string{"B", "I", "N", "G", "O"}

// Pos addresses a single cell on a card.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Valid reports whether p lies on a 5x5 card.
func (p Pos) Valid() bool {
	return p.Row >= 0 && p.Row < Size && p.Col >= 0 && p.Col < Size
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Card is a 5x5 grid indexed [row][col]. The centre holds Free.
type Card [Size][Size]int

// At returns the value at p.
func (c Card) At(p Pos) int {
	return c[p.Row][p.Col]
}

// IsFree reports whether p is the FREE sentinel cell.
func (c Card) IsFree(p Pos) bool {
	return c.At(p) == Free
}

// Find returns the position holding n, if any.
func (c Card) Find(n int) (Pos, bool) {
	if n < 1 || n > MaxNumber {
		return Pos{}, false
	}
	col := (n - 1) / BandWidth
	for row := 0; row < Size; row++ {
		if c[row][col] == n {
			return Pos{Row: row, Col: col}, true
		}
	}
	return Pos{}, false
}

// Band returns the inclusive number range for column col.
func Band(col int) (lo, hi int) {
	return 1 + BandWidth*col, BandWidth + BandWidth*col
}

// Label formats a called number with its column letter, e.g. "N-42".
func Label(n int) string {
	if n < 1 || n > MaxNumber {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s-%d", bandLetters[(n-1)/BandWidth], n)
}

// newRand returns a time-seeded source when r is nil.
func newRand(r *rand.Rand) *rand.Rand {
	if r != nil {
		return r
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateCard draws five distinct numbers per column from that column's
// band, in draw order top to bottom, then overwrites the centre with Free.
func GenerateCard(r *rand.Rand) Card {
	r = newRand(r)
	var card Card
	for col := 0; col < Size; col++ {
		lo, _ := Band(col)
		pool := make([]int, BandWidth)
		for i := range pool {
			pool[i] = lo + i
		}
		// partial Fisher-Yates: the first Size slots are the draw
		for row := 0; row < Size; row++ {
			j := row + r.Intn(len(pool)-row)
			pool[row], pool[j] = pool[j], pool[row]
			card[row][col] = pool[row]
		}
	}
	card[Center.Row][Center.Col] = Free
	return card
}

// Validate checks the structural card invariants: every non-centre cell is
// inside its column band, no column repeats, and the centre is Free.
func (c Card) Validate() error {
	if c.At(Center) != Free {
		return fmt.Errorf("centre cell must be FREE, got %d", c.At(Center))
	}
	for col := 0; col < Size; col++ {
		lo, hi := Band(col)
		seen := make(map[int]bool, Size)
		for row := 0; row < Size; row++ {
			p := Pos{Row: row, Col: col}
			if p == Center {
				continue
			}
			v := c.At(p)
			if v < lo || v > hi {
				return fmt.Errorf("cell %s value %d outside band %d-%d", p, v, lo, hi)
			}
			if seen[v] {
				return fmt.Errorf("column %d repeats %d", col, v)
			}
			seen[v] = true
		}
	}
	return nil
}
