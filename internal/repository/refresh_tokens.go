package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bizmarket/marketplace/internal/model"
)

const ownedTokenQuery = "SELECT t.id,t.user_id,t.token_hash,t.expires_at,t.revoked_at,t.created_at," +
	"u.id,u.email,u.display_name,u.password_hash,u.role,u.is_active,u.created_at,u.updated_at " +
	"FROM refresh_tokens t JOIN users u ON u.id=t.user_id WHERE t.token_hash=? LIMIT 1"

// ownedToken is a refresh token row together with the account that holds it.
type ownedToken struct {
	Token model.RefreshToken
	Owner model.User
}

func (o ownedToken) usable(now time.Time) bool {
	return o.Token.RevokedAt == nil && now.Before(o.Token.ExpiresAt)
}

// RefreshTokenRepo keeps refresh tokens by SHA-256 hash. A token is never
// stored in the clear.
type RefreshTokenRepo struct{ DB *sql.DB }

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo { return &RefreshTokenRepo{DB: db} }

// Issue records a freshly minted token.
func (r *RefreshTokenRepo) Issue(ctx context.Context, t model.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		t.UserID, t.TokenHash, t.ExpiresAt.UTC())
	return err
}

// Rotate exchanges the token behind oldHash for next in one transaction and
// returns the owner. The presented token is locked, so two concurrent
// exchanges of it cannot both succeed. ErrTokenInvalid covers unknown,
// revoked and expired tokens; ErrAccountDisabled leaves the token untouched.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, oldHash string, next model.RefreshToken) (model.User, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanOwned(tx.QueryRowContext(ctx, ownedTokenQuery+" FOR UPDATE", oldHash))
	if errors.Is(err, ErrNotFound) {
		return model.User{}, ErrTokenInvalid
	}
	if err != nil {
		return model.User{}, err
	}
	if !cur.usable(time.Now().UTC()) {
		return model.User{}, ErrTokenInvalid
	}
	if !cur.Owner.IsActive {
		return cur.Owner, ErrAccountDisabled
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE id=?", cur.Token.ID); err != nil {
		return model.User{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		cur.Owner.ID, next.TokenHash, next.ExpiresAt.UTC()); err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return cur.Owner, nil
}

// Revoke retires one active token and returns its owner's id.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL", tokenHash)
	if err != nil {
		return 0, err
	}
	// Lost a race with another revoke or rotation.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// RevokeAll retires every active token of a user and reports how many.
func (r *RefreshTokenRepo) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanOwned(row rowScanner) (ownedToken, error) {
	var (
		o       ownedToken
		revoked sql.NullTime
		role    string
	)
	err := row.Scan(
		&o.Token.ID, &o.Token.UserID, &o.Token.TokenHash, &o.Token.ExpiresAt, &revoked, &o.Token.CreatedAt,
		&o.Owner.ID, &o.Owner.Email, &o.Owner.DisplayName, &o.Owner.PasswordHash, &role, &o.Owner.IsActive, &o.Owner.CreatedAt, &o.Owner.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ownedToken{}, ErrNotFound
	}
	if err != nil {
		return ownedToken{}, err
	}
	if revoked.Valid {
		t := revoked.Time
		o.Token.RevokedAt = &t
	}
	o.Owner.Role, _ = model.ParseRole(role)
	return o, nil
}
