package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type CharacterRow struct {
	ID         string
	AccountID  string
	Name       string
	X, Y, Z    float64
	Health     int
	MaxHealth  int
	Coins      int64
	CreatedAt  time.Time
	LastPlayed *time.Time
}

type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

func (r *CharacterRepo) Load(ctx context.Context, id string) (*CharacterRow, error) {
	row := &CharacterRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, account_id, name, pos_x, pos_y, pos_z,
		        health, max_health, coins, created_at, last_played
		 FROM characters WHERE id = $1`, id,
	).Scan(
		&row.ID, &row.AccountID, &row.Name, &row.X, &row.Y, &row.Z,
		&row.Health, &row.MaxHealth, &row.Coins, &row.CreatedAt, &row.LastPlayed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *CharacterRepo) ListByAccount(ctx context.Context, accountID string) ([]*CharacterRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, account_id, name, pos_x, pos_y, pos_z,
		        health, max_health, coins, created_at, last_played
		 FROM characters WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CharacterRow
	for rows.Next() {
		row := &CharacterRow{}
		if err := rows.Scan(
			&row.ID, &row.AccountID, &row.Name, &row.X, &row.Y, &row.Z,
			&row.Health, &row.MaxHealth, &row.Coins, &row.CreatedAt, &row.LastPlayed,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Create inserts a character with its starting skills in one transaction.
func (r *CharacterRepo) Create(ctx context.Context, accountID, name string, x, y, z float64, skills map[string]SkillRow) (*CharacterRow, error) {
	row := &CharacterRow{
		ID:        NewID(),
		AccountID: accountID,
		Name:      name,
		X:         x, Y: y, Z: z,
		Health:    100,
		MaxHealth: 100,
		CreatedAt: time.Now(),
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO characters (id, account_id, name, pos_x, pos_y, pos_z, health, max_health)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.ID, row.AccountID, row.Name, row.X, row.Y, row.Z, row.Health, row.MaxHealth,
	)
	if err != nil {
		return nil, fmt.Errorf("insert character: %w", err)
	}
	for skill, s := range skills {
		_, err = tx.Exec(ctx,
			`INSERT INTO character_skills (character_id, skill, level, xp) VALUES ($1, $2, $3, $4)`,
			row.ID, skill, s.Level, s.XP,
		)
		if err != nil {
			return nil, fmt.Errorf("insert skill %s: %w", skill, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

// SaveState persists the volatile character fields.
func (r *CharacterRepo) SaveState(ctx context.Context, id string, x, y, z float64, health int, coins int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters
		 SET pos_x = $2, pos_y = $3, pos_z = $4, health = $5, coins = $6, last_played = NOW()
		 WHERE id = $1`,
		id, x, y, z, health, coins,
	)
	return err
}

func (r *CharacterRepo) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM characters WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

// NameTaken reports whether a character name is already in use
// (case-insensitive).
func (r *CharacterRepo) NameTaken(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM characters WHERE LOWER(name) = LOWER($1)`, name).Scan(&n)
	return n > 0, err
}

// LoadPrefs returns stored preferences, defaulting when absent.
func (r *CharacterRepo) LoadPrefs(ctx context.Context, id string) (autoRetaliate bool, err error) {
	err = r.db.Pool.QueryRow(ctx,
		`SELECT auto_retaliate FROM character_prefs WHERE character_id = $1`, id).Scan(&autoRetaliate)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	return autoRetaliate, err
}

func (r *CharacterRepo) SavePrefs(ctx context.Context, id string, autoRetaliate bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO character_prefs (character_id, auto_retaliate) VALUES ($1, $2)
		 ON CONFLICT (character_id) DO UPDATE SET auto_retaliate = EXCLUDED.auto_retaliate`,
		id, autoRetaliate,
	)
	return err
}
