package service

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/cache"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/report"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

type ReportService interface {
	YearlyReport(ctx context.Context, year int, category domain.Category) (*domain.YearlyReport, error)
	ExportYearlyReport(ctx context.Context, year int, category domain.Category, w io.Writer) error
}

type reportService struct {
	analyticsRepo repository.AnalyticsRepository
	catalogRepo   repository.CatalogRepository
	cache         *cache.Versioned
}

func NewReportService(
	analyticsRepo repository.AnalyticsRepository,
	catalogRepo repository.CatalogRepository,
	cache *cache.Versioned,
) ReportService {
	return &reportService{
		analyticsRepo: analyticsRepo,
		catalogRepo:   catalogRepo,
		cache:         cache,
	}
}

func (s *reportService) YearlyReport(ctx context.Context, year int, category domain.Category) (*domain.YearlyReport, error) {
	if year < domain.MinReportYear || year > domain.MaxReportYear {
		return nil, apperr.ValidationField("year", "invalid year")
	}
	if !category.Valid() {
		return nil, apperr.ValidationField("category", "invalid category")
	}

	params := struct {
		Year     int
		Category domain.Category
	}{year, category}

	return cache.Remember(ctx, s.cache, "yearly-report", params, func(ctx context.Context) (*domain.YearlyReport, error) {
		return s.build(ctx, year, category)
	})
}

func (s *reportService) build(ctx context.Context, year int, category domain.Category) (*domain.YearlyReport, error) {
	questions, err := s.catalogRepo.ListQuestions(ctx, category)
	if err != nil {
		return nil, apperr.Internal("failed to load questions", err)
	}
	headers := []domain.QuestionHeader{}
	for _, q := range questions {
		if q.QuestionType == domain.QuestionRating {
			headers = append(headers, domain.QuestionHeader{ID: q.ID, Text: q.Text})
		}
	}

	f := domain.YearFilter(year, category)

	var (
		ratings           []domain.ReviewRatings
		monthlyQuestions  []domain.MonthlyAverage
		monthlyComposites []domain.MonthlyAverage
		yearlyQuestions   []domain.QuestionAverage
		yearlyComposites  []domain.CompositeAverage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ratings, err = s.analyticsRepo.ReviewRatings(gctx, f)
		return wrapReportErr("daily ratings", err)
	})
	g.Go(func() (err error) {
		monthlyQuestions, err = s.analyticsRepo.MonthlyQuestionAverages(gctx, f)
		return wrapReportErr("monthly question averages", err)
	})
	g.Go(func() (err error) {
		monthlyComposites, err = s.analyticsRepo.MonthlyCompositeAverages(gctx, f)
		return wrapReportErr("monthly composite averages", err)
	})
	g.Go(func() (err error) {
		yearlyQuestions, err = s.analyticsRepo.QuestionAverages(gctx, f, "")
		return wrapReportErr("yearly question averages", err)
	})
	g.Go(func() (err error) {
		yearlyComposites, err = s.analyticsRepo.CompositeAverages(gctx, f)
		return wrapReportErr("yearly composite averages", err)
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal("failed to build yearly report", err)
	}

	out := &domain.YearlyReport{
		Year:            year,
		Category:        category,
		QuestionHeaders: headers,
		DailyData:       dailyRows(ratings, headers),
	}
	out.MonthlyData.Questions = monthlyRows(monthlyQuestions)
	out.MonthlyData.Composites = monthlyRows(monthlyComposites)

	for i := range yearlyQuestions {
		yearlyQuestions[i].Value = domain.Round2(yearlyQuestions[i].Value)
	}
	for i := range yearlyComposites {
		yearlyComposites[i].Value = domain.Round2(yearlyComposites[i].Value)
	}
	out.YearlyData.Questions = yearlyQuestions
	out.YearlyData.Composites = yearlyComposites
	return out, nil
}

func wrapReportErr(part string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", part, err)
	}
	return nil
}

// dailyRows keeps one row per review with a cell per header question.
func dailyRows(ratings []domain.ReviewRatings, headers []domain.QuestionHeader) []domain.DailyRow {
	rows := make([]domain.DailyRow, 0, len(ratings))
	for _, rr := range ratings {
		row := domain.DailyRow{
			ReviewID:        rr.ReviewID,
			Date:            rr.CreatedAt,
			GuestName:       rr.GuestName,
			RoomNumber:      rr.RoomNumber,
			QuestionRatings: make(map[string]*int, len(headers)),
		}
		sum, n := 0, 0
		for _, h := range headers {
			v, ok := rr.Ratings[h.ID]
			if !ok {
				row.QuestionRatings[h.ID] = nil
				continue
			}
			row.QuestionRatings[h.ID] = &v
			sum += v
			n++
		}
		if n > 0 {
			avg := domain.Round2(float64(sum) / float64(n))
			row.Average = &avg
		}
		rows = append(rows, row)
	}
	return rows
}

// monthlyRows pivots (subject, month) cells into one row per subject with
// twelve formatted slots, "-" where a month has no data. Row order follows
// the first appearance of each subject.
func monthlyRows(cells []domain.MonthlyAverage) []domain.MonthlyRow {
	index := map[string]int{}
	rows := []domain.MonthlyRow{}
	for _, c := range cells {
		i, ok := index[c.SubjectID]
		if !ok {
			i = len(rows)
			index[c.SubjectID] = i
			averages := make([]string, 12)
			for m := range averages {
				averages[m] = "-"
			}
			rows = append(rows, domain.MonthlyRow{Name: c.Name, Averages: averages})
		}
		if c.Month >= 1 && c.Month <= 12 {
			rows[i].Averages[c.Month-1] = fmt.Sprintf("%.2f", domain.Round2(c.Value))
		}
	}
	return rows
}

func (s *reportService) ExportYearlyReport(ctx context.Context, year int, category domain.Category, w io.Writer) error {
	rep, err := s.YearlyReport(ctx, year, category)
	if err != nil {
		return err
	}
	if err := report.WriteXLSX(w, rep); err != nil {
		return apperr.Internal("failed to write spreadsheet", err)
	}
	return nil
}
