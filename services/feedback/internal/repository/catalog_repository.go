package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

type catalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

const questionCols = `id::text, text, order_index, is_active, category, question_type, is_primary_issue_indicator`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.Text, &q.Order, &q.IsActive, &q.Category, &q.QuestionType, &q.IsPrimaryIssueIndicator)
	return q, err
}

func (r *catalogRepository) ListQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error) {
	const q = `SELECT ` + questionCols + ` FROM questions
		WHERE category = $1 AND is_active = true
		ORDER BY order_index, text`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Question{}
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, question)
	}
	return out, rows.Err()
}

func (r *catalogRepository) GetQuestions(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	out := make(map[string]domain.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const q = `SELECT ` + questionCols + ` FROM questions WHERE id = ANY($1::text[]::uuid[])`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[question.ID] = question
	}
	return out, rows.Err()
}

func (r *catalogRepository) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	const q = `SELECT ` + questionCols + ` FROM questions WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	question, err := scanQuestion(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

const compositeSelect = `
	SELECT c.id::text, c.name, c.category, c.order_index,
	       COALESCE(array_agg(cq.question_id::text ORDER BY cq.position)
	                FILTER (WHERE cq.question_id IS NOT NULL), '{}')
	FROM composites c
	LEFT JOIN composite_questions cq ON cq.composite_id = c.id`

func scanComposite(row pgx.Row) (domain.Composite, error) {
	var c domain.Composite
	err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Order, &c.QuestionIDs)
	return c, err
}

func (r *catalogRepository) GetComposite(ctx context.Context, id string) (*domain.Composite, error) {
	const q = compositeSelect + ` WHERE c.id = $1 GROUP BY c.id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanComposite(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *catalogRepository) ListComposites(ctx context.Context, category domain.Category) ([]domain.Composite, error) {
	b := &queryBuilder{}
	if category != "" {
		b.where("c.category = " + b.arg(string(category)))
	}
	q := compositeSelect + b.clause() + ` GROUP BY c.id ORDER BY c.order_index, c.name`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Composite{}
	for rows.Next() {
		c, err := scanComposite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
