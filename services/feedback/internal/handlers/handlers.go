package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/guest-feedback/pkg/auth"
	"github.com/diagnosis/guest-feedback/pkg/config"
	mw "github.com/diagnosis/guest-feedback/pkg/middleware"
	"github.com/diagnosis/guest-feedback/pkg/response"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/service"
)

const (
	maxBodyBytes   = 1 << 20
	idempotencyTTL = 24 * time.Hour
)

type Handlers struct {
	tokenService     service.TokenService
	reviewService    service.ReviewService
	analyticsService service.AnalyticsService
	reportService    service.ReportService
	authService      service.AuthService
	config           *config.Config
}

func New(
	tokenService service.TokenService,
	reviewService service.ReviewService,
	analyticsService service.AnalyticsService,
	reportService service.ReportService,
	authService service.AuthService,
	config *config.Config,
) *Handlers {
	return &Handlers{
		tokenService:     tokenService,
		reviewService:    reviewService,
		analyticsService: analyticsService,
		reportService:    reportService,
		authService:      authService,
		config:           config,
	}
}

// Routes registers the API on r. Public routes that touch tokens go through
// limiter; authenticated POSTs honour Idempotency-Key via idem.
func (h *Handlers) Routes(r chi.Router, limiter *mw.IPRateLimiter, idem mw.IdempotencyStore) {
	authenticate := mw.Authenticate(h.config.Auth.JWTSecret)

	r.Post("/auth/login", h.Login)
	r.With(authenticate).Get("/auth/me", h.Me)

	r.Route("/public", func(r chi.Router) {
		r.Get("/questions/{category}", h.PublicQuestions)
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitByIP(limiter))
			r.Get("/validate/{token}", h.ValidateToken)
			r.Post("/review", h.SubmitGuestReview)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.With(mw.RequirePermission(auth.PermTokensIssue)).Post("/tokens", h.IssueToken)
		r.With(mw.RequirePermission(auth.PermReviewsCreate), mw.Idempotency(idem, idempotencyTTL)).
			Post("/reviews", h.SubmitReview)

		r.Route("/analytics", func(r chi.Router) {
			r.Use(mw.RequirePermission(auth.PermAnalyticsRead))
			r.Get("/stats", h.Stats)
			r.Get("/question-averages", h.QuestionAverages)
			r.Get("/composite-averages", h.CompositeAverages)
			r.Get("/staff-performance", h.StaffPerformance)
			r.Get("/composite-over-time", h.CompositeOverTime)
			r.Get("/question-over-time", h.QuestionOverTime)
			r.Get("/question-average", h.QuestionAverage)
			r.Get("/available-years", h.AvailableYears)
			r.Get("/yes-no-responses", h.YesNoResponses)
			r.Get("/low-rated", h.LowRated)
			r.Get("/yearly-report", h.YearlyReport)
			r.Get("/yearly-report/export", h.ExportYearlyReport)
		})
	})
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.BadRequest(w, "Request body too large")
			return false
		}
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

// allowAllCategories checks that the caller may use perm without naming a
// category. Callers holding only category-scoped grants must name one.
func allowAllCategories(w http.ResponseWriter, r *http.Request, perm string) bool {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		response.Unauthorized(w, "authentication required")
		return false
	}
	if !claims.Permissions.AllowsAll(perm) {
		response.Forbidden(w, "category is required for a category-scoped grant")
		return false
	}
	return true
}

// allowCategory checks the caller's grant for perm on the named category.
// An unparseable category is reported as a validation error.
func allowCategory(w http.ResponseWriter, r *http.Request, perm, raw string) bool {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		response.Unauthorized(w, "authentication required")
		return false
	}
	category, err := domain.ParseCategory(strings.TrimSpace(raw))
	if err != nil {
		response.Error(w, r, err)
		return false
	}
	if !claims.Permissions.Allows(perm, string(category)) {
		response.Forbidden(w, "insufficient permissions for category "+string(category))
		return false
	}
	return true
}
