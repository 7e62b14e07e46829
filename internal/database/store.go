// internal/database/store.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

// PostgresStore persists rooms, call logs, players, claims and winners.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{pool: db.Pool}
}

func patternsToText(ps []bingo.Pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func textToPatterns(ss []string) []bingo.Pattern {
	out := make([]bingo.Pattern, len(ss))
	for i, s := range ss {
		out[i] = bingo.Pattern(s)
	}
	return out
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (code, state, patterns, host_id, epoch, outcome, announce, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, q,
		room.Code, room.State, patternsToText(room.Patterns), room.HostID,
		room.Epoch, room.Outcome, room.Announce, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", mapError(err))
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	q := `
	SELECT code, state, patterns, host_id, epoch, outcome, announce, created_at, updated_at
	FROM rooms
	WHERE code = $1
	`
	var (
		r        models.Room
		patterns []string
	)
	err := s.pool.QueryRow(ctx, q, code).Scan(
		&r.Code, &r.State, &patterns, &r.HostID, &r.Epoch,
		&r.Outcome, &r.Announce, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, mapError(err))
	}
	r.Patterns = textToPatterns(patterns)
	return &r, nil
}

// UpdateRoom is a compare-and-set on state. When no row matches it tells
// a missing room apart from one that moved on.
func (s *PostgresStore) UpdateRoom(ctx context.Context, room *models.Room, expect models.RoomState) error {
	q := `
	UPDATE rooms
	SET state = $3, patterns = $4, epoch = $5, outcome = $6, announce = $7, updated_at = $8
	WHERE code = $1 AND state = $2
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			room.Code, expect, room.State, patternsToText(room.Patterns),
			room.Epoch, room.Outcome, room.Announce, room.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update room: %w", mapError(err))
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var current models.RoomState
		err = tx.QueryRow(ctx, `SELECT state FROM rooms WHERE code = $1`, room.Code).Scan(&current)
		if err != nil {
			return fmt.Errorf("update room %s: %w", room.Code, mapError(err))
		}
		return fmt.Errorf("room %s is %s, expected %s: %w", room.Code, current, expect, models.ErrStaleState)
	})
}

func (s *PostgresStore) AppendCall(ctx context.Context, call models.Call) error {
	q := `
	INSERT INTO calls (room_code, epoch, seq, number, called_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, q, call.RoomCode, call.Epoch, call.Seq, call.Number, call.CalledAt); err != nil {
		return fmt.Errorf("insert call: %w", mapError(err))
	}
	return nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, code string, epoch int) ([]int, error) {
	q := `SELECT number FROM calls WHERE room_code = $1 AND epoch = $2 ORDER BY seq`
	rows, err := s.pool.Query(ctx, q, code, epoch)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	nums, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("scan calls: %w", err)
	}
	return nums, nil
}

func (s *PostgresStore) AddPlayer(ctx context.Context, p *models.Player) error {
	q := `
	INSERT INTO players (id, room_code, name, card, joined_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.RoomCode, p.Name, p.Card, p.JoinedAt); err != nil {
		return fmt.Errorf("insert player: %w", mapError(err))
	}
	return nil
}

const playerColumns = `id, room_code, name, card, joined_at`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	if err := row.Scan(&p.ID, &p.RoomCode, &p.Name, &p.Card, &p.JoinedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, code string, id uuid.UUID) (*models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players WHERE room_code = $1 AND id = $2`
	p, err := scanPlayer(s.pool.QueryRow(ctx, q, code, id))
	if err != nil {
		return nil, fmt.Errorf("get player %s: %w", id, mapError(err))
	}
	return p, nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context, code string) ([]*models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players WHERE room_code = $1 ORDER BY joined_at`
	rows, err := s.pool.Query(ctx, q, code)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePlayerCard(ctx context.Context, code string, id uuid.UUID, card bingo.Card) error {
	tag, err := s.pool.Exec(ctx, `UPDATE players SET card = $3 WHERE room_code = $1 AND id = $2`, code, id, card)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) RemovePlayer(ctx context.Context, code string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM players WHERE room_code = $1 AND id = $2`, code, id)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %s: %w", id, models.ErrNotFound)
	}
	return nil
}

const insertClaim = `
	INSERT INTO claims (id, room_code, epoch, player_id, pattern, marks, verdict, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

func (s *PostgresStore) AddClaim(ctx context.Context, c *models.Claim) error {
	if _, err := s.pool.Exec(ctx, insertClaim,
		c.ID, c.RoomCode, c.Epoch, c.PlayerID, c.Pattern, c.Marks, c.Verdict, c.ReceivedAt,
	); err != nil {
		return fmt.Errorf("insert claim: %w", mapError(err))
	}
	return nil
}

// RecordWin inserts the winner and its accepted claim in one transaction.
func (s *PostgresStore) RecordWin(ctx context.Context, c *models.Claim, w *models.Winner) error {
	q := `
	INSERT INTO winners (room_code, epoch, player_id, player_name, pattern, declared_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q,
			w.RoomCode, w.Epoch, w.PlayerID, w.PlayerName, w.Pattern, w.DeclaredAt,
		); err != nil {
			return fmt.Errorf("insert winner: %w", mapError(err))
		}
		if _, err := tx.Exec(ctx, insertClaim,
			c.ID, c.RoomCode, c.Epoch, c.PlayerID, c.Pattern, c.Marks, c.Verdict, c.ReceivedAt,
		); err != nil {
			return fmt.Errorf("insert claim: %w", mapError(err))
		}
		return nil
	})
}

func (s *PostgresStore) ListWinners(ctx context.Context, code string, epoch int) ([]models.Winner, error) {
	q := `
	SELECT room_code, epoch, player_id, player_name, pattern, declared_at
	FROM winners
	WHERE room_code = $1 AND epoch = $2
	ORDER BY declared_at
	`
	rows, err := s.pool.Query(ctx, q, code, epoch)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	defer rows.Close()

	var out []models.Winner
	for rows.Next() {
		var w models.Winner
		if err := rows.Scan(&w.RoomCode, &w.Epoch, &w.PlayerID, &w.PlayerName, &w.Pattern, &w.DeclaredAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
