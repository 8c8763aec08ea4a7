package service_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/service"
)

func TestIssueTokenFormatAndUniqueness(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		resp, err := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room"})
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		if len(resp.Token) != 64 {
			t.Fatalf("token length = %d", len(resp.Token))
		}
		if _, err := hex.DecodeString(resp.Token); err != nil {
			t.Fatalf("token is not hex: %q", resp.Token)
		}
		if seen[resp.Token] {
			t.Fatalf("duplicate token %q", resp.Token)
		}
		seen[resp.Token] = true
	}

	if got := e.events.count(events.TokenIssued); got != 50 {
		t.Errorf("token.issued events = %d", got)
	}
}

func TestIssueTokenResponse(t *testing.T) {
	e := newTestEnv(t)
	before := time.Now()

	resp, err := e.tokens.IssueToken(context.Background(), e.staff.ID, &domain.IssueTokenRequest{Category: "f&b", GuestEmail: " Guest@Example.com "})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Category != domain.CategoryFnB {
		t.Errorf("category = %q", resp.Category)
	}
	if !strings.HasPrefix(resp.Link, "https://feedback.example.com/review?token=") || !strings.HasSuffix(resp.Link, resp.Token) {
		t.Errorf("link = %q", resp.Link)
	}
	ttl := resp.ExpiresAt.Sub(before)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Errorf("expiry is %v away, want about 24h", ttl)
	}
	if len(e.mailer.links) != 1 || e.mailer.links[0] != resp.Link {
		t.Errorf("mailed links = %v", e.mailer.links)
	}

	var ev events.TokenIssuedEvent
	if err := e.events.last(events.TokenIssued).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if !ev.Emailed || ev.StaffID != e.staff.ID || ev.Category != "f&b" {
		t.Errorf("event = %+v", ev)
	}
}

func TestIssueTokenValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "spa"})
	wantKind(t, err, apperr.KindValidation)

	_, err = e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room", GuestEmail: "nope"})
	wantKind(t, err, apperr.KindValidation)
}

func TestIssueTokenMailFailureIsNotFatal(t *testing.T) {
	e := newTestEnv(t)
	e.mailer.sendErr = context.DeadlineExceeded

	resp, err := e.tokens.IssueToken(context.Background(), e.staff.ID, &domain.IssueTokenRequest{Category: "room", GuestEmail: "a@b.com"})
	if err != nil || resp.Token == "" {
		t.Fatalf("IssueToken = %v, %v", resp, err)
	}
}

func TestIssueTokenRetriesCollisions(t *testing.T) {
	e := newTestEnv(t)
	repo := &collidingTokenRepo{TokenRepository: e.store.Tokens, n: 2}
	tokens := service.NewTokenService(repo, e.mailer, e.bus, e.cfg)

	if _, err := tokens.IssueToken(context.Background(), e.staff.ID, &domain.IssueTokenRequest{Category: "room"}); err != nil {
		t.Fatalf("IssueToken after collisions: %v", err)
	}
	if repo.calls != 3 {
		t.Errorf("create calls = %d, want 3", repo.calls)
	}

	repo = &collidingTokenRepo{TokenRepository: e.store.Tokens, n: 10}
	tokens = service.NewTokenService(repo, e.mailer, e.bus, e.cfg)
	_, err := tokens.IssueToken(context.Background(), e.staff.ID, &domain.IssueTokenRequest{Category: "room"})
	wantKind(t, err, apperr.KindInternal)
}

func TestValidateToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, _ := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "cfc"})

	got, err := e.tokens.ValidateToken(ctx, resp.Token)
	if err != nil || got.Category != domain.CategoryCFC {
		t.Fatalf("ValidateToken = %+v, %v", got, err)
	}
	// Validation is read-only.
	if _, err := e.tokens.ValidateToken(ctx, resp.Token); err != nil {
		t.Fatalf("second validate: %v", err)
	}

	_, err = e.tokens.ValidateToken(ctx, strings.Repeat("a", 64))
	wantKind(t, err, apperr.KindNotFound)
	_, err = e.tokens.ValidateToken(ctx, "")
	wantKind(t, err, apperr.KindNotFound)
}

func TestExpiredTokenFailsValidationAndIsPurged(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, _ := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room"})

	later := time.Now().Add(25 * time.Hour)
	e.db.SetClock(func() time.Time { return later })

	_, err := e.tokens.ValidateToken(ctx, resp.Token)
	wantKind(t, err, apperr.KindNotFound)

	n, err := e.tokens.PurgeExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired = %d, %v", n, err)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.tokens.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
