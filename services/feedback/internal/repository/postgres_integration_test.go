//go:build integration

package repository_test

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/guest-feedback/pkg/config"
	"github.com/diagnosis/guest-feedback/pkg/database"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

// Run with: FEEDBACK_TEST_DATABASE_URL=postgres://... go test -tags integration ./services/feedback/internal/repository/
// The database is truncated before each test.

type fixture struct {
	pool      *pgxpool.Pool
	store     *repository.Store
	staffID   string
	clean     string
	comfort   string
	again     string
	food      string
	composite string
}

func openFixture(t *testing.T) *fixture {
	t.Helper()
	url := os.Getenv("FEEDBACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FEEDBACK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := database.Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, MinConns: 1, MaxLifetime: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE review_answers, reviews, composite_questions, composites, questions, guest_tokens, users CASCADE`); err != nil {
		t.Fatal(err)
	}

	f := &fixture{pool: pool, store: repository.NewPostgresStore(pool)}
	staff, err := f.store.Users.Create(ctx, &domain.User{Username: "amy", FullName: "Amy Lee", PasswordHash: "x", Role: "staff", IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	f.staffID = staff.ID

	f.clean = f.question(t, "Cleanliness", 1, domain.CategoryRoom, domain.QuestionRating)
	f.comfort = f.question(t, "Comfort", 2, domain.CategoryRoom, domain.QuestionRating)
	f.again = f.question(t, "Would stay again", 3, domain.CategoryRoom, domain.QuestionYesNo)
	f.food = f.question(t, "Food quality", 1, domain.CategoryFnB, domain.QuestionRating)

	if err := pool.QueryRow(ctx, `INSERT INTO composites (name, category, order_index) VALUES ('Room overall', 'room', 1) RETURNING id::text`).Scan(&f.composite); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO composite_questions (composite_id, question_id, position) VALUES ($1, $2, 0), ($1, $3, 1)`, f.composite, f.clean, f.comfort); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) question(t *testing.T, text string, order int, cat domain.Category, kind domain.QuestionType) string {
	t.Helper()
	var id string
	err := f.pool.QueryRow(context.Background(),
		`INSERT INTO questions (text, order_index, category, question_type) VALUES ($1, $2, $3, $4) RETURNING id::text`,
		text, order, string(cat), string(kind)).Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// review inserts rev through the repository and backdates it to at.
func (f *fixture) review(t *testing.T, at time.Time, rev domain.Review) string {
	t.Helper()
	ctx := context.Background()
	rev.StaffID = f.staffID
	out, err := f.store.Reviews.Create(ctx, &rev)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.pool.Exec(ctx, `UPDATE reviews SET created_at = $2 WHERE id = $1`, out.ID, at); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

func (f *fixture) seed(t *testing.T) (lowID string) {
	t.Helper()
	f.review(t, time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC), domain.Review{
		Category: domain.CategoryRoom,
		Answers: []domain.Answer{
			domain.RatingAnswer(f.clean, 8, ""),
			domain.RatingAnswer(f.comfort, 6, ""),
			domain.YesNoAnswer(f.again, true, "sure"),
		},
		GuestInfo: domain.GuestInfo{Name: "Ann"},
	})
	lowID = f.review(t, time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC), domain.Review{
		Category:  domain.CategoryRoom,
		Answers:   []domain.Answer{domain.RatingAnswer(f.clean, 4, "dusty")},
		GuestInfo: domain.GuestInfo{Email: "a@b.com"},
	})
	f.review(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), domain.Review{
		Category: domain.CategoryRoom,
		Answers:  []domain.Answer{domain.RatingAnswer(f.clean, 10, "")},
	})
	f.review(t, time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), domain.Review{
		Category: domain.CategoryFnB,
		Answers:  []domain.Answer{domain.RatingAnswer(f.food, 2, "")},
	})
	return lowID
}

func near(got, want float64) bool { return math.Abs(got-want) < 1e-6 }

func TestPostgresAggregates(t *testing.T) {
	f := openFixture(t)
	lowID := f.seed(t)
	ctx := context.Background()
	room := domain.YearFilter(2025, domain.CategoryRoom)

	count, avg, err := f.store.Analytics.Stats(ctx, domain.YearFilter(2025, ""))
	if err != nil || count != 4 || avg == nil || !near(*avg, 6) {
		t.Fatalf("Stats(all) = %d, %v, %v", count, avg, err)
	}
	count, avg, err = f.store.Analytics.Stats(ctx, room)
	if err != nil || count != 3 || avg == nil || !near(*avg, 7) {
		t.Fatalf("Stats(room) = %d, %v, %v", count, avg, err)
	}

	qa, err := f.store.Analytics.QuestionAverages(ctx, room, f.composite)
	if err != nil || len(qa) != 2 || qa[0].Name != "Cleanliness" || !near(qa[0].Value, 22.0/3) || qa[1].Name != "Comfort" || !near(qa[1].Value, 6) {
		t.Errorf("QuestionAverages = %+v, %v", qa, err)
	}

	ca, err := f.store.Analytics.CompositeAverages(ctx, room)
	if err != nil || len(ca) != 1 || ca[0].CompositeID != f.composite || !near(ca[0].Value, 7) {
		t.Errorf("CompositeAverages = %+v, %v", ca, err)
	}

	monthly, err := f.store.Analytics.MonthlyCompositeAverages(ctx, room)
	if err != nil || len(monthly) != 2 || monthly[0].Month != 1 || !near(monthly[0].Value, 6) || monthly[1].Month != 3 || !near(monthly[1].Value, 10) {
		t.Errorf("MonthlyCompositeAverages = %+v, %v", monthly, err)
	}

	staff, err := f.store.Analytics.StaffPerformance(ctx, room)
	if err != nil || len(staff) != 1 || staff[0].StaffName != "Amy Lee" || staff[0].TotalReviews != 3 {
		t.Errorf("StaffPerformance = %+v, %v", staff, err)
	}

	yes, err := f.store.Analytics.YesNoResponses(ctx, room)
	if err != nil || len(yes) != 1 || len(yes[0].YesNoAnswers) != 1 || !yes[0].YesNoAnswers[0].Answer || yes[0].YesNoAnswers[0].AnswerText != "sure" {
		t.Errorf("YesNoResponses = %+v, %v", yes, err)
	}

	low, err := f.store.Analytics.LowRatedByQuestion(ctx, f.clean, room, domain.LowRatingThreshold)
	if err != nil || len(low) != 1 || low[0].ReviewID != lowID || low[0].Email != "a@b.com" || low[0].StaffName != "Amy Lee" || low[0].AnswerText != "dusty" {
		t.Errorf("LowRatedByQuestion = %+v, %v", low, err)
	}

	years, err := f.store.Analytics.AvailableYears(ctx)
	if err != nil || len(years) != 1 || years[0] != 2025 {
		t.Errorf("AvailableYears = %v, %v", years, err)
	}
}

func TestPostgresTimeSeriesBuckets(t *testing.T) {
	f := openFixture(t)
	f.seed(t)
	ctx := context.Background()

	january := 0
	weekly, err := f.store.Analytics.TimeSeries(ctx, domain.TimeSeriesQuery{
		Year: 2025, Period: domain.PeriodWeekly, Month: &january, CompositeID: f.composite,
	})
	// Jan 3 2025 precedes the first Sunday; Jan 5 is a Sunday.
	if err != nil || len(weekly) != 2 ||
		weekly[0].Name != "00" || !near(weekly[0].Value, 4) ||
		weekly[1].Name != "01" || !near(weekly[1].Value, 7) {
		t.Fatalf("weekly = %+v, %v", weekly, err)
	}
	goWeek := domain.TimeSeriesQuery{Period: domain.PeriodWeekly}
	for i, day := range []int{3, 5} {
		if b := goWeek.Bucket(time.Date(2025, 1, day, 10, 0, 0, 0, time.UTC)); b != weekly[i].Name {
			t.Errorf("Jan %d: SQL bucket %q, memory store bucket %q", day, weekly[i].Name, b)
		}
	}

	monthly, err := f.store.Analytics.TimeSeries(ctx, domain.TimeSeriesQuery{
		Year: 2025, Period: domain.PeriodMonthly, Category: domain.CategoryRoom, QuestionID: f.clean,
	})
	if err != nil || len(monthly) != 2 || monthly[0] != (domain.TimePoint{Name: "01", Value: 6}) || monthly[1] != (domain.TimePoint{Name: "03", Value: 10}) {
		t.Errorf("monthly = %+v, %v", monthly, err)
	}
}

func TestPostgresCreateWithToken(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	token := strings.Repeat("ab", 32)

	_, err := f.store.Tokens.Create(ctx, &domain.GuestToken{
		Token: token, StaffID: f.staffID, Category: domain.CategoryRoom, ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	wrong := &domain.Review{Category: domain.CategoryFnB, Answers: []domain.Answer{domain.RatingAnswer(f.food, 9, "")}}
	if _, err := f.store.Reviews.CreateWithToken(ctx, token, wrong); !errors.Is(err, repository.ErrTokenCategoryMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}
	if tok, err := f.store.Tokens.FindRedeemable(ctx, token); err != nil || tok == nil {
		t.Fatalf("token consumed by a rolled back submission: %v, %v", tok, err)
	}

	right := &domain.Review{Category: domain.CategoryRoom, Answers: []domain.Answer{domain.RatingAnswer(f.clean, 9, "")}}
	out, err := f.store.Reviews.CreateWithToken(ctx, token, right)
	if err != nil || out.StaffID != f.staffID {
		t.Fatalf("CreateWithToken = %+v, %v", out, err)
	}
	if _, err := f.store.Reviews.CreateWithToken(ctx, token, right); !errors.Is(err, repository.ErrTokenNotRedeemable) {
		t.Fatalf("second redemption err = %v", err)
	}
}
