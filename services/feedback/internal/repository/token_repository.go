package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/guest-feedback/pkg/database"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenCols = `id::text, token, staff_id::text, category, is_used, used_at, expires_at, created_at`

func scanToken(row pgx.Row) (*domain.GuestToken, error) {
	var t domain.GuestToken
	err := row.Scan(&t.ID, &t.Token, &t.StaffID, &t.Category, &t.IsUsed, &t.UsedAt, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) Create(ctx context.Context, t *domain.GuestToken) (*domain.GuestToken, error) {
	const q = `
		INSERT INTO guest_tokens (token, staff_id, category, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tokenCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	created, err := scanToken(r.pool.QueryRow(ctx, q, t.Token, t.StaffID, string(t.Category), t.ExpiresAt))
	if database.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return created, err
}

func (r *tokenRepository) FindRedeemable(ctx context.Context, token string) (*domain.GuestToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM guest_tokens
		WHERE token = $1 AND is_used = false AND expires_at > now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanToken(r.pool.QueryRow(ctx, q, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *tokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM guest_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
