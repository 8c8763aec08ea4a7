package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/config"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/pkg/mailer"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

const (
	tokenBytes       = 32
	tokenMaxAttempts = 3
)

type TokenService interface {
	IssueToken(ctx context.Context, staffID string, req *domain.IssueTokenRequest) (*domain.IssueTokenResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.ValidateTokenResponse, error)
	PurgeExpired(ctx context.Context) (int64, error)
	RunSweeper(ctx context.Context, interval time.Duration)
}

type tokenService struct {
	tokenRepo repository.TokenRepository
	mailer    mailer.Service
	eventBus  events.EventBus
	config    *config.Config
}

func NewTokenService(
	tokenRepo repository.TokenRepository,
	mailer mailer.Service,
	eventBus events.EventBus,
	config *config.Config,
) TokenService {
	return &tokenService{
		tokenRepo: tokenRepo,
		mailer:    mailer,
		eventBus:  eventBus,
		config:    config,
	}
}

func newSecret() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *tokenService) IssueToken(ctx context.Context, staffID string, req *domain.IssueTokenRequest) (*domain.IssueTokenResponse, error) {
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.GuestEmail))
	if email != "" && !domain.IsValidEmail(email) {
		return nil, apperr.ValidationField("guestEmail", "invalid email format")
	}

	var created *domain.GuestToken
	for attempt := 0; attempt < tokenMaxAttempts && created == nil; attempt++ {
		secret, err := newSecret()
		if err != nil {
			return nil, apperr.Internal("failed to generate token", err)
		}
		created, err = s.tokenRepo.Create(ctx, &domain.GuestToken{
			Token:     secret,
			StaffID:   staffID,
			Category:  category,
			ExpiresAt: time.Now().UTC().Add(s.config.Feedback.GuestTokenTTL),
		})
		if errors.Is(err, repository.ErrDuplicate) {
			logger.WarnContext(ctx, "Guest token collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, apperr.Internal("failed to create guest token", err)
		}
	}
	if created == nil {
		return nil, apperr.Internal("failed to create guest token", repository.ErrDuplicate)
	}

	resp := &domain.IssueTokenResponse{
		Token:     created.Token,
		Category:  created.Category,
		ExpiresAt: created.ExpiresAt,
		Link:      s.reviewLink(created.Token),
	}

	// Emailing the link is best effort; the caller still gets the token.
	emailed := false
	if email != "" {
		if err := s.mailer.SendReviewLink(email, string(category), resp.Link, created.ExpiresAt); err != nil {
			logger.ErrorContext(ctx, "Failed to email review link", "error", err, "token_id", created.ID)
		} else {
			emailed = true
		}
	}

	event := events.TokenIssuedEvent{
		TokenID:   created.ID,
		StaffID:   staffID,
		Category:  string(category),
		ExpiresAt: created.ExpiresAt,
		Emailed:   emailed,
	}
	if err := s.eventBus.Publish(ctx, events.TokenIssued, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish token issued event", "error", err, "token_id", created.ID)
	}

	return resp, nil
}

func (s *tokenService) reviewLink(token string) string {
	base := s.config.Feedback.PublicFormURL
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func (s *tokenService) ValidateToken(ctx context.Context, token string) (*domain.ValidateTokenResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound("invalid or expired token")
	}
	t, err := s.tokenRepo.FindRedeemable(ctx, token)
	if err != nil {
		return nil, apperr.Internal("failed to validate token", err)
	}
	if t == nil {
		return nil, apperr.NotFound("invalid or expired token")
	}
	return &domain.ValidateTokenResponse{Category: t.Category}, nil
}

func (s *tokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokenRepo.PurgeExpired(ctx)
	if err != nil {
		return 0, apperr.Internal("failed to purge expired tokens", err)
	}
	return n, nil
}

// RunSweeper deletes expired tokens every interval until ctx is done.
func (s *tokenService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "Purged expired guest tokens", "count", n)
			}
		}
	}
}
