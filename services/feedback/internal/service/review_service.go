package service

import (
	"context"
	"errors"
	"strings"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/cache"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

type ReviewService interface {
	SubmitReview(ctx context.Context, staffID string, req *domain.SubmitReviewRequest) (*domain.Review, error)
	SubmitGuestReview(ctx context.Context, req *domain.GuestReviewRequest) (*domain.Review, error)
	ListQuestions(ctx context.Context, category string) ([]domain.Question, error)
}

type reviewService struct {
	reviewRepo  repository.ReviewRepository
	catalogRepo repository.CatalogRepository
	cache       *cache.Versioned
	eventBus    events.EventBus
}

func NewReviewService(
	reviewRepo repository.ReviewRepository,
	catalogRepo repository.CatalogRepository,
	cache *cache.Versioned,
	eventBus events.EventBus,
) ReviewService {
	return &reviewService{
		reviewRepo:  reviewRepo,
		catalogRepo: catalogRepo,
		cache:       cache,
		eventBus:    eventBus,
	}
}

// ListQuestions returns the active questions guests answer for category.
func (s *reviewService) ListQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	cat, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalogRepo.ListQuestions(ctx, cat)
	if err != nil {
		return nil, apperr.Internal("failed to load questions", err)
	}
	return questions, nil
}

func (s *reviewService) SubmitReview(ctx context.Context, staffID string, req *domain.SubmitReviewRequest) (*domain.Review, error) {
	review, questions, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	review.StaffID = staffID

	created, err := s.reviewRepo.Create(ctx, review)
	if err != nil {
		return nil, apperr.Internal("failed to save review", err)
	}

	s.afterCommit(ctx, created, questions, false)
	return created, nil
}

func (s *reviewService) SubmitGuestReview(ctx context.Context, req *domain.GuestReviewRequest) (*domain.Review, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, apperr.NotFound("invalid or expired token")
	}

	// The payload is fully checked before the token is touched.
	review, questions, err := s.prepare(ctx, &req.SubmitReviewRequest)
	if err != nil {
		return nil, err
	}

	created, err := s.reviewRepo.CreateWithToken(ctx, token, review)
	switch {
	case errors.Is(err, repository.ErrTokenNotRedeemable):
		return nil, apperr.NotFound("invalid or expired token")
	case errors.Is(err, repository.ErrTokenCategoryMismatch):
		return nil, apperr.ValidationField("category", "category does not match the token")
	case err != nil:
		return nil, apperr.Internal("failed to save review", err)
	}

	s.afterCommit(ctx, created, questions, true)
	return created, nil
}

// prepare validates req against the catalog and returns the review to insert.
func (s *reviewService) prepare(ctx context.Context, req *domain.SubmitReviewRequest) (*domain.Review, map[string]domain.Question, error) {
	req.Normalize()
	category, err := req.Validate()
	if err != nil {
		return nil, nil, err
	}

	questions, err := s.catalogRepo.GetQuestions(ctx, req.QuestionIDs())
	if err != nil {
		return nil, nil, apperr.Internal("failed to load questions", err)
	}
	answers, err := domain.BuildAnswers(req.Answers, questions, category)
	if err != nil {
		return nil, nil, err
	}

	return &domain.Review{
		Category:    category,
		Answers:     answers,
		Description: req.Description,
		GuestInfo:   req.GuestInfo,
	}, questions, nil
}

// afterCommit runs the best-effort side effects of a stored review.
func (s *reviewService) afterCommit(ctx context.Context, review *domain.Review, questions map[string]domain.Question, viaToken bool) {
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to invalidate analytics cache", "error", err, "review_id", review.ID)
	}

	event := events.ReviewSubmittedEvent{
		ReviewID:    review.ID,
		StaffID:     review.StaffID,
		Category:    string(review.Category),
		ViaToken:    viaToken,
		GuestName:   review.GuestInfo.Name,
		RoomNumber:  review.GuestInfo.RoomNumber,
		Description: review.Description,
		Ratings:     []events.RatedQuestion{},
		CreatedAt:   review.CreatedAt,
	}
	for _, a := range review.Answers {
		if a.Rating == nil {
			continue
		}
		q := questions[a.QuestionID]
		event.Ratings = append(event.Ratings, events.RatedQuestion{
			QuestionID:       a.QuestionID,
			QuestionText:     q.Text,
			Rating:           *a.Rating,
			PrimaryIndicator: q.IsPrimaryIssueIndicator,
		})
	}

	if err := s.eventBus.Publish(ctx, events.ReviewSubmitted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish review submitted event", "error", err, "review_id", review.ID)
	}
}
