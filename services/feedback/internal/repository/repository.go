package repository

import (
	"context"
	"errors"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

var (
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("duplicate value")
	// ErrTokenNotRedeemable covers unknown, used and expired tokens alike.
	ErrTokenNotRedeemable = errors.New("token not redeemable")
	// ErrTokenCategoryMismatch means the token was issued for another category.
	// The redemption is rolled back.
	ErrTokenCategoryMismatch = errors.New("token issued for another category")
)

type TokenRepository interface {
	Create(ctx context.Context, t *domain.GuestToken) (*domain.GuestToken, error)
	FindRedeemable(ctx context.Context, token string) (*domain.GuestToken, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, r *domain.Review) (*domain.Review, error)
	// CreateWithToken redeems token and inserts r in one transaction. StaffID
	// is taken from the token.
	CreateWithToken(ctx context.Context, token string, r *domain.Review) (*domain.Review, error)
}

type CatalogRepository interface {
	ListQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error)
	GetQuestions(ctx context.Context, ids []string) (map[string]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	GetComposite(ctx context.Context, id string) (*domain.Composite, error)
	ListComposites(ctx context.Context, category domain.Category) ([]domain.Composite, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// AnalyticsRepository returns unrounded averages; callers round for display.
type AnalyticsRepository interface {
	Stats(ctx context.Context, f domain.Filter) (int, *float64, error)
	QuestionAverages(ctx context.Context, f domain.Filter, compositeID string) ([]domain.QuestionAverage, error)
	CompositeAverages(ctx context.Context, f domain.Filter) ([]domain.CompositeAverage, error)
	StaffPerformance(ctx context.Context, f domain.Filter) ([]domain.StaffPerformance, error)
	TimeSeries(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error)
	QuestionAverage(ctx context.Context, f domain.Filter, questionID string) (*float64, error)
	AvailableYears(ctx context.Context) ([]int, error)
	YesNoResponses(ctx context.Context, f domain.Filter) ([]domain.YesNoResponse, error)
	LowRatedByQuestion(ctx context.Context, questionID string, f domain.Filter, threshold int) ([]domain.LowRatedReview, error)
	MonthlyQuestionAverages(ctx context.Context, f domain.Filter) ([]domain.MonthlyAverage, error)
	MonthlyCompositeAverages(ctx context.Context, f domain.Filter) ([]domain.MonthlyAverage, error)
	ReviewRatings(ctx context.Context, f domain.Filter) ([]domain.ReviewRatings, error)
}

// Store bundles every repository so the service layer can be wired from a
// single backend.
type Store struct {
	Tokens    TokenRepository
	Reviews   ReviewRepository
	Catalog   CatalogRepository
	Users     UserRepository
	Analytics AnalyticsRepository
}
