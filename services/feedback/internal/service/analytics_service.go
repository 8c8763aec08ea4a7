package service

import (
	"context"
	"sort"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/cache"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

type AnalyticsService interface {
	Stats(ctx context.Context, f domain.Filter) (*domain.Stats, error)
	QuestionAverages(ctx context.Context, f domain.Filter, compositeID string) ([]domain.QuestionAverage, error)
	CompositeAverages(ctx context.Context, f domain.Filter) ([]domain.CompositeAverage, error)
	StaffPerformance(ctx context.Context, f domain.Filter, sortBy domain.StaffSort) ([]domain.StaffPerformance, error)
	CompositeOverTime(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error)
	QuestionOverTime(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error)
	QuestionAverage(ctx context.Context, f domain.Filter, questionID string) (*domain.SingleQuestionAverage, error)
	AvailableYears(ctx context.Context) ([]int, error)
	YesNoResponses(ctx context.Context, f domain.Filter) ([]domain.YesNoResponse, error)
	LowRatedByQuestion(ctx context.Context, questionID string, f domain.Filter) ([]domain.LowRatedReview, error)
}

type analyticsService struct {
	analyticsRepo repository.AnalyticsRepository
	catalogRepo   repository.CatalogRepository
	cache         *cache.Versioned
}

func NewAnalyticsService(
	analyticsRepo repository.AnalyticsRepository,
	catalogRepo repository.CatalogRepository,
	cache *cache.Versioned,
) AnalyticsService {
	return &analyticsService{
		analyticsRepo: analyticsRepo,
		catalogRepo:   catalogRepo,
		cache:         cache,
	}
}

func (s *analyticsService) Stats(ctx context.Context, f domain.Filter) (*domain.Stats, error) {
	return cache.Remember(ctx, s.cache, "stats", f, func(ctx context.Context) (*domain.Stats, error) {
		count, avg, err := s.analyticsRepo.Stats(ctx, f)
		if err != nil {
			return nil, apperr.Internal("failed to load stats", err)
		}
		stats := &domain.Stats{TotalSubmissions: count}
		if avg != nil {
			stats.AverageRating = domain.Round2(*avg)
		}
		return stats, nil
	})
}

func (s *analyticsService) QuestionAverages(ctx context.Context, f domain.Filter, compositeID string) ([]domain.QuestionAverage, error) {
	if compositeID != "" {
		if err := s.requireComposite(ctx, compositeID); err != nil {
			return nil, err
		}
	}

	params := struct {
		F           domain.Filter
		CompositeID string
	}{f, compositeID}

	return cache.Remember(ctx, s.cache, "question-averages", params, func(ctx context.Context) ([]domain.QuestionAverage, error) {
		rows, err := s.analyticsRepo.QuestionAverages(ctx, f, compositeID)
		if err != nil {
			return nil, apperr.Internal("failed to load question averages", err)
		}
		for i := range rows {
			rows[i].Value = domain.Round2(rows[i].Value)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Name != rows[j].Name {
				return rows[i].Name < rows[j].Name
			}
			return rows[i].QuestionID < rows[j].QuestionID
		})
		return rows, nil
	})
}

func (s *analyticsService) CompositeAverages(ctx context.Context, f domain.Filter) ([]domain.CompositeAverage, error) {
	return cache.Remember(ctx, s.cache, "composite-averages", f, func(ctx context.Context) ([]domain.CompositeAverage, error) {
		rows, err := s.analyticsRepo.CompositeAverages(ctx, f)
		if err != nil {
			return nil, apperr.Internal("failed to load composite averages", err)
		}
		for i := range rows {
			rows[i].Value = domain.Round2(rows[i].Value)
		}
		return rows, nil
	})
}

func (s *analyticsService) StaffPerformance(ctx context.Context, f domain.Filter, sortBy domain.StaffSort) ([]domain.StaffPerformance, error) {
	params := struct {
		F      domain.Filter
		SortBy domain.StaffSort
	}{f, sortBy}

	return cache.Remember(ctx, s.cache, "staff-performance", params, func(ctx context.Context) ([]domain.StaffPerformance, error) {
		rows, err := s.analyticsRepo.StaffPerformance(ctx, f)
		if err != nil {
			return nil, apperr.Internal("failed to load staff performance", err)
		}
		for i := range rows {
			if rows[i].AverageRating != nil {
				v := domain.Round2(*rows[i].AverageRating)
				rows[i].AverageRating = &v
			}
		}
		sortStaff(rows, sortBy)
		return rows, nil
	})
}

// sortStaff orders by rating (nulls last) or by review count, both
// descending, then by name.
func sortStaff(rows []domain.StaffPerformance, sortBy domain.StaffSort) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sortBy == domain.SortByRating {
			switch {
			case a.AverageRating == nil && b.AverageRating != nil:
				return false
			case a.AverageRating != nil && b.AverageRating == nil:
				return true
			case a.AverageRating != nil && *a.AverageRating != *b.AverageRating:
				return *a.AverageRating > *b.AverageRating
			}
		} else if a.TotalReviews != b.TotalReviews {
			return a.TotalReviews > b.TotalReviews
		}
		if a.StaffName != b.StaffName {
			return a.StaffName < b.StaffName
		}
		return a.StaffID < b.StaffID
	})
}

func (s *analyticsService) CompositeOverTime(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error) {
	if q.CompositeID == "" {
		return nil, apperr.ValidationField("compositeId", "compositeId is required")
	}
	if err := s.requireComposite(ctx, q.CompositeID); err != nil {
		return nil, err
	}
	q.QuestionID = ""
	return s.timeSeries(ctx, "composite-over-time", q)
}

func (s *analyticsService) QuestionOverTime(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error) {
	if q.QuestionID == "" {
		return nil, apperr.ValidationField("questionId", "questionId is required")
	}
	if !domain.IsValidID(q.QuestionID) {
		return nil, apperr.ValidationField("questionId", "invalid questionId")
	}
	q.CompositeID = ""
	return s.timeSeries(ctx, "question-over-time", q)
}

func (s *analyticsService) timeSeries(ctx context.Context, op string, q domain.TimeSeriesQuery) ([]domain.TimePoint, error) {
	return cache.Remember(ctx, s.cache, op, q, func(ctx context.Context) ([]domain.TimePoint, error) {
		points, err := s.analyticsRepo.TimeSeries(ctx, q)
		if err != nil {
			return nil, apperr.Internal("failed to load time series", err)
		}
		for i := range points {
			points[i].Value = domain.Round2(points[i].Value)
		}
		sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
		return points, nil
	})
}

func (s *analyticsService) QuestionAverage(ctx context.Context, f domain.Filter, questionID string) (*domain.SingleQuestionAverage, error) {
	switch {
	case f.Start == nil:
		return nil, apperr.ValidationField("startDate", "startDate is required")
	case f.End == nil:
		return nil, apperr.ValidationField("endDate", "endDate is required")
	case questionID == "":
		return nil, apperr.ValidationField("questionId", "questionId is required")
	case !domain.IsValidID(questionID):
		return nil, apperr.ValidationField("questionId", "invalid questionId")
	case f.Category == "":
		return nil, apperr.ValidationField("category", "category is required")
	}

	params := struct {
		F          domain.Filter
		QuestionID string
	}{f, questionID}

	return cache.Remember(ctx, s.cache, "question-average", params, func(ctx context.Context) (*domain.SingleQuestionAverage, error) {
		avg, err := s.analyticsRepo.QuestionAverage(ctx, f, questionID)
		if err != nil {
			return nil, apperr.Internal("failed to load question average", err)
		}
		out := &domain.SingleQuestionAverage{QuestionID: questionID, Name: "N/A"}
		if avg == nil {
			return out, nil
		}

		q, err := s.catalogRepo.GetQuestion(ctx, questionID)
		if err != nil {
			return nil, apperr.Internal("failed to load question", err)
		}
		if q != nil {
			out.Name = q.Text
		}
		v := domain.Round2(*avg)
		out.Value = &v
		return out, nil
	})
}

func (s *analyticsService) AvailableYears(ctx context.Context) ([]int, error) {
	return cache.Remember(ctx, s.cache, "available-years", nil, func(ctx context.Context) ([]int, error) {
		years, err := s.analyticsRepo.AvailableYears(ctx)
		if err != nil {
			return nil, apperr.Internal("failed to load available years", err)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(years)))
		return years, nil
	})
}

func (s *analyticsService) YesNoResponses(ctx context.Context, f domain.Filter) ([]domain.YesNoResponse, error) {
	return cache.Remember(ctx, s.cache, "yes-no-responses", f, func(ctx context.Context) ([]domain.YesNoResponse, error) {
		rows, err := s.analyticsRepo.YesNoResponses(ctx, f)
		if err != nil {
			return nil, apperr.Internal("failed to load yes/no responses", err)
		}
		return rows, nil
	})
}

func (s *analyticsService) LowRatedByQuestion(ctx context.Context, questionID string, f domain.Filter) ([]domain.LowRatedReview, error) {
	if questionID == "" {
		return nil, apperr.ValidationField("questionId", "questionId is required")
	}
	if !domain.IsValidID(questionID) {
		return nil, apperr.ValidationField("questionId", "invalid questionId")
	}

	params := struct {
		F          domain.Filter
		QuestionID string
	}{f, questionID}

	return cache.Remember(ctx, s.cache, "low-rated", params, func(ctx context.Context) ([]domain.LowRatedReview, error) {
		rows, err := s.analyticsRepo.LowRatedByQuestion(ctx, questionID, f, domain.LowRatingThreshold)
		if err != nil {
			return nil, apperr.Internal("failed to load low rated reviews", err)
		}
		return rows, nil
	})
}

func (s *analyticsService) requireComposite(ctx context.Context, id string) error {
	if !domain.IsValidID(id) {
		return apperr.ValidationField("compositeId", "invalid compositeId")
	}
	c, err := s.catalogRepo.GetComposite(ctx, id)
	if err != nil {
		return apperr.Internal("failed to load composite", err)
	}
	if c == nil {
		return apperr.NotFound("composite not found")
	}
	return nil
}
