package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/config"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/persist"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBanned             = errors.New("account is banned")
	ErrRateLimited        = errors.New("anonymous account limit reached")
)

// TokenVerifier validates a third-party identity token and returns the
// provider's stable subject id and display name. Verifiers are tried in
// order before falling back to local session tokens.
type TokenVerifier interface {
	Provider() string
	Verify(ctx context.Context, token string) (subjectID, displayName string, err error)
}

// Request is the client's authenticate payload.
type Request struct {
	Token       string `json:"token,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Anonymous   bool   `json:"anonymous,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AdminCode   string `json:"adminCode,omitempty"`
}

// Identity is a successful authentication. Token is always freshly minted
// so clients never hold a near-expiry credential across a session.
type Identity struct {
	AccountID   string
	DisplayName string
	Roles       []string
	IsAnonymous bool
	Token       string
}

// Authenticator resolves authenticate requests against the verifier chain,
// local session tokens, password accounts, and the anonymous path.
type Authenticator struct {
	accounts  *persist.AccountRepo
	jwt       *JWTManager
	limiter   *AnonLimiter
	verifiers []TokenVerifier
	cfg       *config.Config
	log       *zap.Logger
}

func NewAuthenticator(accounts *persist.AccountRepo, jwt *JWTManager, limiter *AnonLimiter, verifiers []TokenVerifier, cfg *config.Config, log *zap.Logger) *Authenticator {
	return &Authenticator{
		accounts:  accounts,
		jwt:       jwt,
		limiter:   limiter,
		verifiers: verifiers,
		cfg:       cfg,
		log:       log,
	}
}

// Authenticate resolves the request to an identity or a typed error. Runs
// in the connection's handshake goroutine, not the game loop.
func (a *Authenticator) Authenticate(ctx context.Context, req Request, ip string) (*Identity, error) {
	var row *persist.AccountRow
	var err error

	switch {
	case req.Token != "":
		row, err = a.resolveToken(ctx, req.Token, ip)
	case req.Username != "" && req.Password != "":
		row, err = a.resolvePassword(ctx, req.Username, req.Password, ip)
	case req.Anonymous:
		row, err = a.createAnonymous(ctx, req.DisplayName, ip)
	default:
		err = ErrInvalidCredentials
	}
	if err != nil {
		metrics.AuthFailures.Inc()
		return nil, err
	}
	if row.Banned {
		metrics.AuthFailures.Inc()
		return nil, ErrBanned
	}

	if err := a.accounts.TouchLogin(ctx, row.ID); err != nil {
		a.log.Warn("touch login failed", zap.String("account", row.ID), zap.Error(err))
	}

	roles := a.expandRoles(row.Roles, req.AdminCode)
	fresh, err := a.jwt.Generate(row.ID, row.DisplayName, roles, row.IsAnonymous)
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}

	return &Identity{
		AccountID:   row.ID,
		DisplayName: row.DisplayName,
		Roles:       roles,
		IsAnonymous: row.IsAnonymous,
		Token:       fresh,
	}, nil
}

// PruneLimiter drops idle per-IP anonymous limiter entries.
func (a *Authenticator) PruneLimiter(maxIdle time.Duration) int {
	return a.limiter.Prune(maxIdle)
}

// resolveToken tries the third-party verifier chain, then the local
// session token.
func (a *Authenticator) resolveToken(ctx context.Context, token, ip string) (*persist.AccountRow, error) {
	for _, v := range a.verifiers {
		subject, name, err := v.Verify(ctx, token)
		if err != nil {
			continue
		}
		row, err := a.accounts.LoadByProvider(ctx, v.Provider(), subject)
		if err != nil {
			return nil, fmt.Errorf("load provider account: %w", err)
		}
		if row == nil {
			return nil, ErrInvalidCredentials
		}
		if name != "" && name != row.DisplayName {
			row.DisplayName = name
		}
		return row, nil
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	row, err := a.accounts.Load(ctx, claims.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if row == nil {
		return nil, ErrInvalidToken
	}
	return row, nil
}

func (a *Authenticator) resolvePassword(ctx context.Context, username, password, ip string) (*persist.AccountRow, error) {
	row, err := a.accounts.LoadByProvider(ctx, "local", username)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if row == nil {
		// Auto-registration only in development.
		if !a.cfg.IsDevelopment() {
			return nil, ErrInvalidCredentials
		}
		return a.accounts.CreateLocal(ctx, username, password, ip)
	}
	if !a.accounts.ValidatePassword(row.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return row, nil
}

func (a *Authenticator) createAnonymous(ctx context.Context, displayName, ip string) (*persist.AccountRow, error) {
	if !a.limiter.Allow(ip) {
		metrics.AnonRateLimited.Inc()
		return nil, ErrRateLimited
	}
	// The in-memory limiter resets on restart; the DB count backs it up.
	n, err := a.accounts.CountAnonymousSince(ctx, ip, time.Now().Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count anonymous accounts: %w", err)
	}
	if n >= a.cfg.Auth.AnonymousPerHour {
		metrics.AnonRateLimited.Inc()
		return nil, ErrRateLimited
	}
	if displayName == "" {
		displayName = "Guest-" + persist.NewID()[:6]
	}
	return a.accounts.CreateAnonymous(ctx, displayName, ip)
}

// expandRoles grants the admin role in development, or anywhere when the
// configured admin code matches.
func (a *Authenticator) expandRoles(roles []string, adminCode string) []string {
	out := append([]string(nil), roles...)
	hasAdmin := false
	for _, r := range out {
		if r == "admin" {
			hasAdmin = true
		}
	}
	if hasAdmin {
		return out
	}
	code := a.cfg.Env.AdminCode
	if (code != "" && adminCode == code) || (code == "" && a.cfg.IsDevelopment() && adminCode != "") {
		out = append(out, "admin")
	}
	return out
}
