package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

func TestGuestReviewEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	issued, err := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "f&b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.tokens.ValidateToken(ctx, issued.Token); err != nil {
		t.Fatal(err)
	}

	req := &domain.GuestReviewRequest{
		Token: issued.Token,
		SubmitReviewRequest: domain.SubmitReviewRequest{
			Category:  "f&b",
			Answers:   []domain.AnswerInput{rating(e.food.ID, 7)},
			GuestInfo: domain.GuestInfo{Email: "a@b.com"},
		},
	}
	review, err := e.reviews.SubmitGuestReview(ctx, req)
	if err != nil {
		t.Fatalf("SubmitGuestReview: %v", err)
	}
	if review.StaffID != e.staff.ID {
		t.Errorf("staff = %q, want token owner %q", review.StaffID, e.staff.ID)
	}

	avgs, err := e.analytics.QuestionAverages(ctx, domain.Filter{Category: domain.CategoryFnB}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(avgs) != 1 || avgs[0].QuestionID != e.food.ID || avgs[0].Value != 7 {
		t.Errorf("averages = %+v", avgs)
	}

	// The token is spent.
	_, err = e.tokens.ValidateToken(ctx, issued.Token)
	wantKind(t, err, apperr.KindNotFound)
	_, err = e.reviews.SubmitGuestReview(ctx, req)
	wantKind(t, err, apperr.KindNotFound)

	var ev events.ReviewSubmittedEvent
	if err := e.events.last(events.ReviewSubmitted).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if !ev.ViaToken || ev.ReviewID != review.ID || len(ev.Ratings) != 1 || ev.Ratings[0].Rating != 7 {
		t.Errorf("event = %+v", ev)
	}
}

func TestConcurrentGuestSubmissionsRedeemOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	issued, _ := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room"})

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		notFound int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.reviews.SubmitGuestReview(ctx, &domain.GuestReviewRequest{
				Token:               issued.Token,
				SubmitReviewRequest: e.roomRequest(rating(e.clean.ID, 9)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || notFound != n-1 {
		t.Fatalf("ok=%d notFound=%d", ok, notFound)
	}
	stats, _ := e.analytics.Stats(ctx, domain.Filter{})
	if stats.TotalSubmissions != 1 {
		t.Errorf("reviews stored = %d", stats.TotalSubmissions)
	}
}

func TestInvalidGuestPayloadKeepsToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	issued, _ := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room"})

	bad := e.roomRequest(rating(e.clean.ID, 11))
	_, err := e.reviews.SubmitGuestReview(ctx, &domain.GuestReviewRequest{Token: issued.Token, SubmitReviewRequest: bad})
	wantKind(t, err, apperr.KindValidation)

	if _, err := e.tokens.ValidateToken(ctx, issued.Token); err != nil {
		t.Fatalf("token consumed by invalid payload: %v", err)
	}
}

func TestGuestReviewCategoryMismatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	issued, _ := e.tokens.IssueToken(ctx, e.staff.ID, &domain.IssueTokenRequest{Category: "room"})

	_, err := e.reviews.SubmitGuestReview(ctx, &domain.GuestReviewRequest{
		Token: issued.Token,
		SubmitReviewRequest: domain.SubmitReviewRequest{
			Category:  "f&b",
			Answers:   []domain.AnswerInput{rating(e.food.ID, 5)},
			GuestInfo: domain.GuestInfo{Email: "a@b.com"},
		},
	})
	wantKind(t, err, apperr.KindValidation)

	if _, err := e.tokens.ValidateToken(ctx, issued.Token); err != nil {
		t.Fatalf("mismatch must roll back the redemption: %v", err)
	}
	if stats, _ := e.analytics.Stats(ctx, domain.Filter{}); stats.TotalSubmissions != 0 {
		t.Errorf("review persisted on mismatch")
	}
}

func TestGuestReviewMissingToken(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.reviews.SubmitGuestReview(context.Background(), &domain.GuestReviewRequest{SubmitReviewRequest: e.roomRequest()})
	wantKind(t, err, apperr.KindNotFound)
}

func TestSubmitReviewAuthenticated(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	req := e.roomRequest(rating(e.clean.ID, 3), rating(e.bed.ID, 8), yesNo(e.issue.ID, true))
	req.Description = "  Dusty shelves  "
	review, err := e.reviews.SubmitReview(ctx, e.staff.ID, &req)
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if review.StaffID != e.staff.ID || review.ID == "" || review.CreatedAt.IsZero() {
		t.Errorf("review = %+v", review)
	}
	if review.Description != "Dusty shelves" {
		t.Errorf("description = %q", review.Description)
	}
	if review.Answers[2].Kind != domain.QuestionYesNo || review.Answers[2].Rating != nil {
		t.Errorf("yes/no answer = %+v", review.Answers[2])
	}

	var ev events.ReviewSubmittedEvent
	if err := e.events.last(events.ReviewSubmitted).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.ViaToken || len(ev.Ratings) != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if !ev.Ratings[0].PrimaryIndicator || ev.Ratings[0].QuestionText != "Cleanliness" || ev.Ratings[1].PrimaryIndicator {
		t.Errorf("ratings = %+v", ev.Ratings)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.SubmitReviewRequest
	}{
		{"room without phone", func() domain.SubmitReviewRequest {
			r := e.roomRequest()
			r.GuestInfo.Phone = ""
			return r
		}()},
		{"f&b with bad email", domain.SubmitReviewRequest{Category: "f&b", GuestInfo: domain.GuestInfo{Email: "not-an-email"}}},
		{"question from another category", e.roomRequest(rating(e.food.ID, 5))},
		{"unknown question", e.roomRequest(rating("9b2d7f0e-0000-4000-8000-000000000000", 5))},
		{"boolean for rating question", e.roomRequest(yesNo(e.clean.ID, true))},
		{"rating for yes/no question", e.roomRequest(rating(e.issue.ID, 4))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := e.reviews.SubmitReview(ctx, e.staff.ID, &req)
			wantKind(t, err, apperr.KindValidation)
		})
	}

	if stats, _ := e.analytics.Stats(ctx, domain.Filter{}); stats.TotalSubmissions != 0 {
		t.Errorf("invalid submissions persisted %d reviews", stats.TotalSubmissions)
	}
}

func TestListQuestions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	qs, err := e.reviews.ListQuestions(ctx, "room")
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 3 || qs[0].ID != e.clean.ID || qs[2].QuestionType != domain.QuestionYesNo {
		t.Errorf("questions = %+v", qs)
	}

	_, err = e.reviews.ListQuestions(ctx, "spa")
	wantKind(t, err, apperr.KindValidation)
}
