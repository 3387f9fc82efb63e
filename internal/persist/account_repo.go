package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type AccountRow struct {
	ID           string
	Provider     string
	ProviderID   string
	DisplayName  string
	PasswordHash string
	Roles        []string
	IsAnonymous  bool
	Banned       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Load(ctx context.Context, id string) (*AccountRow, error) {
	return r.loadWhere(ctx, `id = $1`, id)
}

// LoadByProvider resolves an account by its external identity.
func (r *AccountRepo) LoadByProvider(ctx context.Context, provider, providerID string) (*AccountRow, error) {
	return r.loadWhere(ctx, `provider = $1 AND provider_id = $2`, provider, providerID)
}

func (r *AccountRepo) loadWhere(ctx context.Context, where string, args ...any) (*AccountRow, error) {
	row := &AccountRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, provider, COALESCE(provider_id,''), display_name,
		        COALESCE(password_hash,''), roles, is_anonymous, banned,
		        created_at, last_login_at
		 FROM accounts WHERE `+where, args...,
	).Scan(
		&row.ID, &row.Provider, &row.ProviderID, &row.DisplayName,
		&row.PasswordHash, &row.Roles, &row.IsAnonymous, &row.Banned,
		&row.CreatedAt, &row.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// CreateAnonymous mints a guest account. The caller enforces the per-IP
// creation rate limit before calling.
func (r *AccountRepo) CreateAnonymous(ctx context.Context, displayName, ip string) (*AccountRow, error) {
	now := time.Now()
	row := &AccountRow{
		ID:          NewID(),
		Provider:    "anonymous",
		DisplayName: displayName,
		Roles:       []string{"player"},
		IsAnonymous: true,
		CreatedAt:   now,
		LastLoginAt: &now,
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO accounts (id, provider, display_name, roles, is_anonymous, created_ip, last_login_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		row.ID, row.Provider, row.DisplayName, row.Roles, ip, row.LastLoginAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create anonymous account: %w", err)
	}
	return row, nil
}

// CreateLocal registers a password account.
func (r *AccountRepo) CreateLocal(ctx context.Context, displayName, rawPassword, ip string) (*AccountRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	row := &AccountRow{
		ID:           NewID(),
		Provider:     "local",
		ProviderID:   displayName,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Roles:        []string{"player"},
		CreatedAt:    now,
		LastLoginAt:  &now,
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO accounts (id, provider, provider_id, display_name, password_hash, roles, created_ip, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.ID, row.Provider, row.ProviderID, row.DisplayName, row.PasswordHash, row.Roles, ip, row.LastLoginAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create local account: %w", err)
	}
	return row, nil
}

func (r *AccountRepo) ValidatePassword(hash, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}

func (r *AccountRepo) TouchLogin(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET last_login_at = NOW() WHERE id = $1`, id)
	return err
}

// CountAnonymousSince counts guest accounts minted from an IP after the
// cutoff. Backs the per-IP creation limit across restarts.
func (r *AccountRepo) CountAnonymousSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts
		 WHERE is_anonymous AND created_ip = $1 AND created_at >= $2`,
		ip, since,
	).Scan(&n)
	return n, err
}
