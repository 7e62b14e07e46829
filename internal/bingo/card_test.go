package bingo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCardInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		card := GenerateCard(r)
		require.NoError(t, card.Validate(), "card %d", i)
		assert.True(t, card.IsFree(Center))

		for col := 0; col < Size; col++ {
			lo, hi := Band(col)
			seen := map[int]bool{}
			for row := 0; row < Size; row++ {
				p := Pos{Row: row, Col: col}
				if p == Center {
					continue
				}
				v := card.At(p)
				assert.GreaterOrEqual(t, v, lo)
				assert.LessOrEqual(t, v, hi)
				assert.False(t, seen[v], "column %d repeats %d", col, v)
				seen[v] = true
			}
		}
	}
}

func TestBandsDoNotOverlap(t *testing.T) {
	for a := 0; a < Size; a++ {
		_, hiA := Band(a)
		for b := a + 1; b < Size; b++ {
			loB, _ := Band(b)
			assert.Less(t, hiA, loB, "band %d overlaps band %d", a, b)
		}
	}
	lo, hi := Band(Size - 1)
	assert.Equal(t, 61, lo)
	assert.Equal(t, MaxNumber, hi)
}

func TestCardFind(t *testing.T) {
	card := GenerateCard(rand.New(rand.NewSource(7)))
	v := card[0][3]
	p, ok := card.Find(v)
	require.True(t, ok)
	assert.Equal(t, Pos{Row: 0, Col: 3}, p)

	_, ok = card.Find(0)
	assert.False(t, ok, "FREE is not findable")
	_, ok = card.Find(76)
	assert.False(t, ok)
}

func TestCardValidateRejectsBadCards(t *testing.T) {
	card := GenerateCard(rand.New(rand.NewSource(1)))

	noFree := card
	noFree[2][2] = 31
	assert.Error(t, noFree.Validate())

	outOfBand := card
	outOfBand[0][0] = 16
	assert.Error(t, outOfBand.Validate())

	repeat := card
	repeat[1][0] = repeat[0][0]
	assert.Error(t, repeat.Validate())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "B-1", Label(1))
	assert.Equal(t, "I-30", Label(30))
	assert.Equal(t, "N-42", Label(42))
	assert.Equal(t, "G-46", Label(46))
	assert.Equal(t, "O-75", Label(75))
	assert.Equal(t, "99", Label(99))
}
