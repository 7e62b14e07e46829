package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
)

// MaxNameLength bounds display names, counted in runes.
const MaxNameLength = 24

// Player is a participant in a room. The card stored here is the
// authoritative copy used when arbitrating claims.
type Player struct {
	ID       uuid.UUID  `json:"id"`
	RoomCode string     `json:"room_code"`
	Name     string     `json:"name"`
	Card     bingo.Card `json:"card"`
	JoinedAt time.Time  `json:"joined_at"`
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", fmt.Errorf("display name is empty: %w", ErrInvalidInput)
	}
	if n > MaxNameLength {
		return "", fmt.Errorf("display name longer than %d characters: %w", MaxNameLength, ErrInvalidInput)
	}
	return name, nil
}

// NameKey is the case-insensitive form used for uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
