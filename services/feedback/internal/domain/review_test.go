package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
)

const (
	qRating = "11111111-1111-1111-1111-111111111111"
	qYesNo  = "22222222-2222-2222-2222-222222222222"
	qFnB    = "33333333-3333-3333-3333-333333333333"
)

func ptrF(v float64) *float64 { return &v }
func ptrB(v bool) *bool       { return &v }
func ptrS(v string) *string   { return &v }

func roomRequest() SubmitReviewRequest {
	return SubmitReviewRequest{
		Category:  "room",
		GuestInfo: GuestInfo{Name: "Ann", Phone: "555", RoomNumber: "101"},
		Answers: []AnswerInput{
			{QuestionID: qRating, Rating: ptrF(8)},
			{QuestionID: qYesNo, AnswerBoolean: ptrB(true), AnswerText: ptrS(" towels ")},
		},
	}
}

func catalog() map[string]Question {
	return map[string]Question{
		qRating: {ID: qRating, Text: "Cleanliness", Category: CategoryRoom, QuestionType: QuestionRating},
		qYesNo:  {ID: qYesNo, Text: "Any issue?", Category: CategoryRoom, QuestionType: QuestionYesNo},
		qFnB:    {ID: qFnB, Text: "Food", Category: CategoryFnB, QuestionType: QuestionRating},
	}
}

func TestSubmitReviewRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *SubmitReviewRequest)
		wantField string
	}{
		{"valid room", func(r *SubmitReviewRequest) {}, ""},
		{"empty answers allowed", func(r *SubmitReviewRequest) { r.Answers = nil }, ""},
		{"bad category", func(r *SubmitReviewRequest) { r.Category = "spa" }, "category"},
		{"room needs name", func(r *SubmitReviewRequest) { r.GuestInfo.Name = "" }, "guestInfo.name"},
		{"room needs phone", func(r *SubmitReviewRequest) { r.GuestInfo.Phone = "" }, "guestInfo.phone"},
		{"room needs room number", func(r *SubmitReviewRequest) { r.GuestInfo.RoomNumber = "" }, "guestInfo.roomNumber"},
		{"f&b needs email", func(r *SubmitReviewRequest) { r.Category = "f&b" }, "guestInfo.email"},
		{"f&b valid email", func(r *SubmitReviewRequest) {
			r.Category = "f&b"
			r.GuestInfo = GuestInfo{Email: "guest@example.com"}
		}, ""},
		{"cfc rejects bad email", func(r *SubmitReviewRequest) {
			r.Category = "cfc"
			r.GuestInfo = GuestInfo{Email: "not-an-email"}
		}, "guestInfo.email"},
		{"question id must be uuid", func(r *SubmitReviewRequest) { r.Answers[0].QuestionID = "abc" }, "answers[0].questionId"},
		{"duplicate question", func(r *SubmitReviewRequest) { r.Answers[1].QuestionID = qRating }, "answers[1].questionId"},
		{"description too long", func(r *SubmitReviewRequest) { r.Description = strings.Repeat("x", MaxDescriptionLength+1) }, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := roomRequest()
			tt.mutate(&req)
			req.Normalize()
			_, err := req.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ae *apperr.Error
			if !errors.As(err, &ae) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ae.Kind != apperr.KindValidation || ae.Field != tt.wantField {
				t.Errorf("got kind=%s field=%q, want field %q", ae.Kind, ae.Field, tt.wantField)
			}
		})
	}
}

func TestBuildAnswersTypedVariant(t *testing.T) {
	req := roomRequest()
	req.Normalize()

	answers, err := BuildAnswers(req.Answers, catalog(), CategoryRoom)
	if err != nil {
		t.Fatalf("BuildAnswers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("answers = %d", len(answers))
	}
	if answers[0].Kind != QuestionRating || *answers[0].Rating != 8 || answers[0].AnswerBoolean != nil {
		t.Errorf("rating answer = %+v", answers[0])
	}
	if answers[1].Kind != QuestionYesNo || !*answers[1].AnswerBoolean || answers[1].Rating != nil {
		t.Errorf("yes/no answer = %+v", answers[1])
	}
	if answers[1].AnswerText != "towels" {
		t.Errorf("answer text = %q", answers[1].AnswerText)
	}
}

func TestBuildAnswersRejects(t *testing.T) {
	tests := []struct {
		name  string
		input AnswerInput
	}{
		{"unknown question", AnswerInput{QuestionID: "44444444-4444-4444-4444-444444444444", Rating: ptrF(5)}},
		{"other category", AnswerInput{QuestionID: qFnB, Rating: ptrF(5)}},
		{"rating below range", AnswerInput{QuestionID: qRating, Rating: ptrF(0)}},
		{"rating above range", AnswerInput{QuestionID: qRating, Rating: ptrF(11)}},
		{"fractional rating", AnswerInput{QuestionID: qRating, Rating: ptrF(7.5)}},
		{"rating missing", AnswerInput{QuestionID: qRating}},
		{"boolean on rating question", AnswerInput{QuestionID: qRating, Rating: ptrF(5), AnswerBoolean: ptrB(true)}},
		{"rating on yes/no question", AnswerInput{QuestionID: qYesNo, Rating: ptrF(5)}},
		{"text only", AnswerInput{QuestionID: qYesNo, AnswerText: ptrS("hello")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAnswers([]AnswerInput{tt.input}, catalog(), CategoryRoom)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBuildAnswersBoundaryRatings(t *testing.T) {
	for _, r := range []float64{1, 10} {
		if _, err := BuildAnswers([]AnswerInput{{QuestionID: qRating, Rating: ptrF(r)}}, catalog(), CategoryRoom); err != nil {
			t.Errorf("rating %v rejected: %v", r, err)
		}
	}
}
