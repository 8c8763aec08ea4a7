package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/cache"
	"github.com/diagnosis/guest-feedback/pkg/config"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/pkg/mailer"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository/memory"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/service"
)

// ---------- Mocks ----------

type mockMailer struct {
	mu      sync.Mutex
	links   []string
	alerts  []mailer.LowRatingAlert
	sendErr error
}

func (m *mockMailer) SendReviewLink(toEmail, category, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return m.sendErr
}

func (m *mockMailer) SendLowRatingAlert(toEmail string, alert mailer.LowRatingAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.sendErr
}

// collidingTokenRepo reports a duplicate secret for the first n inserts.
type collidingTokenRepo struct {
	repository.TokenRepository
	n     int
	calls int
}

func (r *collidingTokenRepo) Create(ctx context.Context, t *domain.GuestToken) (*domain.GuestToken, error) {
	r.calls++
	if r.calls <= r.n {
		return nil, repository.ErrDuplicate
	}
	return r.TokenRepository.Create(ctx, t)
}

// eventRecorder collects published events by subject.
type eventRecorder struct {
	mu   sync.Mutex
	msgs map[string][]*events.Message
}

func recordEvents(bus events.Subscriber, subjects ...string) *eventRecorder {
	rec := &eventRecorder{msgs: map[string][]*events.Message{}}
	for _, s := range subjects {
		subject := s
		_ = bus.Subscribe(subject, func(msg *events.Message) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.msgs[subject] = append(rec.msgs[subject], msg)
		})
	}
	return rec
}

func (r *eventRecorder) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[subject])
}

func (r *eventRecorder) last(subject string) *events.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.msgs[subject]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// ---------- Fixture ----------

type testEnv struct {
	db     *memory.DB
	store  *repository.Store
	bus    *events.LocalEventBus
	events *eventRecorder
	mailer *mockMailer
	cfg    *config.Config
	cache  *cache.Versioned

	staff *domain.User
	clean domain.Question // room, rating, primary
	bed   domain.Question // room, rating
	issue domain.Question // room, yes/no
	food  domain.Question // f&b, rating
	room  domain.Composite

	tokens    service.TokenService
	reviews   service.ReviewService
	analytics service.AnalyticsService
	reports   service.ReportService
	auth      service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memory.New()
	store := db.Store()
	bus := events.NewLocalEventBus()
	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour},
		Feedback: config.FeedbackConfig{
			GuestTokenTTL: 24 * time.Hour,
			PublicFormURL: "https://feedback.example.com/review",
		},
	}

	e := &testEnv{
		db:     db,
		store:  store,
		bus:    bus,
		events: recordEvents(bus, events.TokenIssued, events.ReviewSubmitted),
		mailer: &mockMailer{},
		cfg:    cfg,
		cache:  cache.NewVersioned(cache.NewMemoryStore(), "analytics", time.Minute),
	}

	staff, err := store.Users.Create(context.Background(), &domain.User{Username: "amy", FullName: "Amy Lee", Role: "staff", IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	e.staff = staff

	e.clean = db.AddQuestion(domain.Question{Text: "Cleanliness", Order: 1, IsActive: true, Category: domain.CategoryRoom, QuestionType: domain.QuestionRating, IsPrimaryIssueIndicator: true})
	e.bed = db.AddQuestion(domain.Question{Text: "Bed comfort", Order: 2, IsActive: true, Category: domain.CategoryRoom, QuestionType: domain.QuestionRating})
	e.issue = db.AddQuestion(domain.Question{Text: "Anything broken?", Order: 3, IsActive: true, Category: domain.CategoryRoom, QuestionType: domain.QuestionYesNo})
	e.food = db.AddQuestion(domain.Question{Text: "Food quality", Order: 1, IsActive: true, Category: domain.CategoryFnB, QuestionType: domain.QuestionRating})
	e.room = db.AddComposite(domain.Composite{Name: "Room", Category: domain.CategoryRoom, Order: 1, QuestionIDs: []string{e.clean.ID, e.bed.ID}})

	e.tokens = service.NewTokenService(store.Tokens, e.mailer, bus, cfg)
	e.reviews = service.NewReviewService(store.Reviews, store.Catalog, e.cache, bus)
	e.analytics = service.NewAnalyticsService(store.Analytics, store.Catalog, e.cache)
	e.reports = service.NewReportService(store.Analytics, store.Catalog, e.cache)
	e.auth = service.NewAuthService(store.Users, cfg)
	return e
}

func (e *testEnv) roomRequest(answers ...domain.AnswerInput) domain.SubmitReviewRequest {
	return domain.SubmitReviewRequest{
		Category:  "room",
		Answers:   answers,
		GuestInfo: domain.GuestInfo{Name: "Ann", Phone: "555-0100", RoomNumber: "101"},
	}
}

// addReview stores a back-dated room review with the given ratings.
func (e *testEnv) addReview(created time.Time, answers ...domain.Answer) domain.Review {
	return e.db.AddReview(domain.Review{
		StaffID:   e.staff.ID,
		Category:  domain.CategoryRoom,
		Answers:   answers,
		GuestInfo: domain.GuestInfo{Name: "Guest", Phone: "1", RoomNumber: "7"},
		CreatedAt: created,
	})
}

func rating(id string, v float64) domain.AnswerInput {
	return domain.AnswerInput{QuestionID: id, Rating: &v}
}

func yesNo(id string, v bool) domain.AnswerInput {
	return domain.AnswerInput{QuestionID: id, AnswerBoolean: &v}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}
