package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

type analyticsRepository struct {
	pool *pgxpool.Pool
}

func NewAnalyticsRepository(pool *pgxpool.Pool) AnalyticsRepository {
	return &analyticsRepository{pool: pool}
}

// collect runs q and maps every row with scan.
func collect[T any](ctx context.Context, pool *pgxpool.Pool, q string, args []any, scan func(pgx.Rows) (T, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *analyticsRepository) Stats(ctx context.Context, f domain.Filter) (int, *float64, error) {
	q, args := statsQuery(f)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		count int
		avg   *float64
	)
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&count, &avg); err != nil {
		return 0, nil, err
	}
	return count, avg, nil
}

func (r *analyticsRepository) QuestionAverages(ctx context.Context, f domain.Filter, compositeID string) ([]domain.QuestionAverage, error) {
	q, args := questionAveragesQuery(f, compositeID)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.QuestionAverage, error) {
		var qa domain.QuestionAverage
		err := rows.Scan(&qa.QuestionID, &qa.Name, &qa.Value)
		return qa, err
	})
}

func (r *analyticsRepository) CompositeAverages(ctx context.Context, f domain.Filter) ([]domain.CompositeAverage, error) {
	q, args := compositeAveragesQuery(f)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.CompositeAverage, error) {
		var ca domain.CompositeAverage
		err := rows.Scan(&ca.CompositeID, &ca.Name, &ca.Value)
		return ca, err
	})
}

func (r *analyticsRepository) StaffPerformance(ctx context.Context, f domain.Filter) ([]domain.StaffPerformance, error) {
	q, args := staffPerformanceQuery(f)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.StaffPerformance, error) {
		var sp domain.StaffPerformance
		err := rows.Scan(&sp.StaffID, &sp.StaffName, &sp.TotalReviews, &sp.AverageRating)
		return sp, err
	})
}

func (r *analyticsRepository) TimeSeries(ctx context.Context, tq domain.TimeSeriesQuery) ([]domain.TimePoint, error) {
	q, args := timeSeriesQuery(tq)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.TimePoint, error) {
		var p domain.TimePoint
		err := rows.Scan(&p.Name, &p.Value)
		return p, err
	})
}

func (r *analyticsRepository) QuestionAverage(ctx context.Context, f domain.Filter, questionID string) (*float64, error) {
	q, args := questionAverageQuery(f, questionID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var avg *float64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&avg); err != nil {
		return nil, err
	}
	return avg, nil
}

func (r *analyticsRepository) AvailableYears(ctx context.Context) ([]int, error) {
	const q = `SELECT DISTINCT EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int AS year
		FROM reviews ORDER BY year DESC`
	return collect(ctx, r.pool, q, nil, func(rows pgx.Rows) (int, error) {
		var y int
		err := rows.Scan(&y)
		return y, err
	})
}

func (r *analyticsRepository) YesNoResponses(ctx context.Context, f domain.Filter) ([]domain.YesNoResponse, error) {
	q, args := yesNoResponsesQuery(f)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.YesNoResponse, error) {
		var (
			resp  domain.YesNoResponse
			items []byte
		)
		err := rows.Scan(&resp.ReviewID, &resp.CreatedAt, &resp.Category, &resp.Description,
			&resp.GuestInfo.Name, &resp.GuestInfo.Phone, &resp.GuestInfo.RoomNumber, &resp.GuestInfo.Email, &items)
		if err != nil {
			return resp, err
		}
		if err := json.Unmarshal(items, &resp.YesNoAnswers); err != nil {
			return resp, fmt.Errorf("decode yes/no answers: %w", err)
		}
		return resp, nil
	})
}

func (r *analyticsRepository) LowRatedByQuestion(ctx context.Context, questionID string, f domain.Filter, threshold int) ([]domain.LowRatedReview, error) {
	q, args := lowRatedQuery(questionID, f, threshold)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.LowRatedReview, error) {
		var lr domain.LowRatedReview
		err := rows.Scan(&lr.ReviewID, &lr.Date, &lr.QuestionText, &lr.Point,
			&lr.GuestName, &lr.Email, &lr.RoomNumber, &lr.Phone,
			&lr.StaffName, &lr.Description, &lr.AnswerText)
		return lr, err
	})
}

func scanMonthly(rows pgx.Rows) (domain.MonthlyAverage, error) {
	var m domain.MonthlyAverage
	err := rows.Scan(&m.SubjectID, &m.Name, &m.Month, &m.Value)
	return m, err
}

func (r *analyticsRepository) MonthlyQuestionAverages(ctx context.Context, f domain.Filter) ([]domain.MonthlyAverage, error) {
	q, args := monthlyQuestionQuery(f)
	return collect(ctx, r.pool, q, args, scanMonthly)
}

func (r *analyticsRepository) MonthlyCompositeAverages(ctx context.Context, f domain.Filter) ([]domain.MonthlyAverage, error) {
	q, args := monthlyCompositeQuery(f)
	return collect(ctx, r.pool, q, args, scanMonthly)
}

func (r *analyticsRepository) ReviewRatings(ctx context.Context, f domain.Filter) ([]domain.ReviewRatings, error) {
	q, args := reviewRatingsQuery(f)
	return collect(ctx, r.pool, q, args, func(rows pgx.Rows) (domain.ReviewRatings, error) {
		var (
			rr      domain.ReviewRatings
			ratings []byte
		)
		if err := rows.Scan(&rr.ReviewID, &rr.CreatedAt, &rr.GuestName, &rr.RoomNumber, &ratings); err != nil {
			return rr, err
		}
		rr.Ratings = map[string]int{}
		if err := json.Unmarshal(ratings, &rr.Ratings); err != nil {
			return rr, fmt.Errorf("decode ratings: %w", err)
		}
		return rr, nil
	})
}

// NewPostgresStore wires every repository to pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tokens:    NewTokenRepository(pool),
		Reviews:   NewReviewRepository(pool),
		Catalog:   NewCatalogRepository(pool),
		Users:     NewUserRepository(pool),
		Analytics: NewAnalyticsRepository(pool),
	}
}
