package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talk2me/internal/domain"
)

const (
	createQuery = `
		INSERT INTO refresh_tokens (id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	revokeQuery = `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
	`
)

// RefreshTokenRepository implements domain.RefreshTokenRepository using
// prepared statements.
type RefreshTokenRepository struct {
	db                *sql.DB
	tx                *TxManager
	createStmt        *sql.Stmt
	getActiveStmt     *sql.Stmt
	revokeUserStmt    *sql.Stmt
	deleteExpiredStmt *sql.Stmt
}

// NewRefreshTokenRepository prepares all statements up front.
// Returns an error if statement preparation fails.
func NewRefreshTokenRepository(db *sql.DB) (*RefreshTokenRepository, error) {
	repo := &RefreshTokenRepository{db: db, tx: NewTxManager(db)}

	var err error
	repo.createStmt, err = db.Prepare(createQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getActiveStmt, err = db.Prepare(`
		SELECT id, user_id, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getActive statement: %w", err)
	}

	repo.revokeUserStmt, err = db.Prepare(`
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare revokeAllForUser statement: %w", err)
	}

	repo.deleteExpiredStmt, err = db.Prepare(`DELETE FROM refresh_tokens WHERE expires_at <= $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return repo, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	defer observeQuery("insert", "refresh_tokens", time.Now())

	err := r.createStmt.QueryRowContext(ctx, token.ID, token.UserID, token.ExpiresAt).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetActive(ctx context.Context, id string) (*domain.RefreshToken, error) {
	defer observeQuery("select", "refresh_tokens", time.Now())

	token := &domain.RefreshToken{}
	var revokedAt sql.NullTime
	err := r.getActiveStmt.QueryRowContext(ctx, id, time.Now()).Scan(
		&token.ID,
		&token.UserID,
		&token.ExpiresAt,
		&revokedAt,
		&token.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}
	return token, nil
}

// Rotate revokes oldID and inserts next in one transaction. A concurrent
// rotation of the same token loses with ErrRefreshTokenNotFound.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID string, next *domain.RefreshToken) error {
	defer observeQuery("rotate", "refresh_tokens", time.Now())

	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, revokeQuery, oldID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrRefreshTokenNotFound
		}

		err = tx.QueryRowContext(ctx, createQuery, next.ID, next.UserID, next.ExpiresAt).Scan(&next.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create refresh token: %w", err)
		}
		return nil
	})
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	defer observeQuery("update", "refresh_tokens", time.Now())

	result, err := r.revokeUserStmt.ExecContext(ctx, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	defer observeQuery("delete", "refresh_tokens", time.Now())

	result, err := r.deleteExpiredStmt.ExecContext(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// Close releases the prepared statements.
func (r *RefreshTokenRepository) Close() error {
	for _, stmt := range []*sql.Stmt{r.createStmt, r.getActiveStmt, r.revokeUserStmt, r.deleteExpiredStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
