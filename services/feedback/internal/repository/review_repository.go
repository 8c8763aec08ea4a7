package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/guest-feedback/pkg/database"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

type reviewRepository struct {
	pool *pgxpool.Pool
}

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepository{pool: pool}
}

func (r *reviewRepository) Create(ctx context.Context, rev *domain.Review) (*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out *domain.Review
	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = insertReview(ctx, tx, rev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reviewRepository) CreateWithToken(ctx context.Context, token string, rev *domain.Review) (*domain.Review, error) {
	// Row locking on the UPDATE serializes concurrent redemptions of the same
	// token; the loser re-evaluates is_used and matches no row.
	const redeem = `
		UPDATE guest_tokens
		SET is_used = true, used_at = now()
		WHERE token = $1 AND is_used = false AND expires_at > now()
		RETURNING staff_id::text, category`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out *domain.Review
	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var staffID, category string
		err := tx.QueryRow(ctx, redeem, token).Scan(&staffID, &category)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenNotRedeemable
		}
		if err != nil {
			return fmt.Errorf("redeem token: %w", err)
		}
		if domain.Category(category) != rev.Category {
			return ErrTokenCategoryMismatch
		}

		withStaff := *rev
		withStaff.StaffID = staffID
		out, err = insertReview(ctx, tx, &withStaff)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertReview(ctx context.Context, tx pgx.Tx, rev *domain.Review) (*domain.Review, error) {
	const q = `
		INSERT INTO reviews (staff_id, category, description, guest_name, guest_phone, guest_room_number, guest_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at`

	out := *rev
	err := tx.QueryRow(ctx, q,
		rev.StaffID, string(rev.Category), nullIfEmpty(rev.Description),
		nullIfEmpty(rev.GuestInfo.Name), nullIfEmpty(rev.GuestInfo.Phone),
		nullIfEmpty(rev.GuestInfo.RoomNumber), nullIfEmpty(rev.GuestInfo.Email),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert review: %w", err)
	}

	if len(rev.Answers) == 0 {
		out.Answers = []domain.Answer{}
		return &out, nil
	}

	const qa = `
		INSERT INTO review_answers (review_id, position, question_id, kind, rating, answer_boolean, answer_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for i, a := range rev.Answers {
		batch.Queue(qa, out.ID, i, a.QuestionID, string(a.Kind), a.Rating, a.AnswerBoolean, nullIfEmpty(a.AnswerText))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert answers: %w", err)
	}
	out.Answers = append([]domain.Answer(nil), rev.Answers...)
	return &out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
