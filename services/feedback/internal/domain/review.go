package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
)

const (
	MinRating            = 1
	MaxRating            = 10
	MaxDescriptionLength = 4000
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type GuestInfo struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	RoomNumber string `json:"roomNumber,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Answer is one response in a review. Kind mirrors the question's type and
// decides which value is set: Rating for rating questions, AnswerBoolean for
// yes/no questions. AnswerText is an optional comment on either kind.
type Answer struct {
	QuestionID    string       `json:"questionId"`
	Kind          QuestionType `json:"kind"`
	Rating        *int         `json:"rating,omitempty"`
	AnswerBoolean *bool        `json:"answerBoolean,omitempty"`
	AnswerText    string       `json:"answerText,omitempty"`
}

func RatingAnswer(questionID string, rating int, text string) Answer {
	return Answer{QuestionID: questionID, Kind: QuestionRating, Rating: &rating, AnswerText: text}
}

func YesNoAnswer(questionID string, answer bool, text string) Answer {
	return Answer{QuestionID: questionID, Kind: QuestionYesNo, AnswerBoolean: &answer, AnswerText: text}
}

type Review struct {
	ID          string    `json:"id"`
	StaffID     string    `json:"staffId"`
	Category    Category  `json:"category"`
	Answers     []Answer  `json:"answers"`
	Description string    `json:"description,omitempty"`
	GuestInfo   GuestInfo `json:"guestInfo"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AnswerInput is an answer as submitted. Rating is decoded as a float so a
// non-integer value is reported as a validation error rather than a decode
// failure.
type AnswerInput struct {
	QuestionID    string   `json:"questionId"`
	Rating        *float64 `json:"rating,omitempty"`
	AnswerBoolean *bool    `json:"answerBoolean,omitempty"`
	AnswerText    *string  `json:"answerText,omitempty"`
}

type SubmitReviewRequest struct {
	Category    string        `json:"category"`
	Answers     []AnswerInput `json:"answers"`
	Description string        `json:"description,omitempty"`
	GuestInfo   GuestInfo     `json:"guestInfo"`
}

type GuestReviewRequest struct {
	Token string `json:"token"`
	SubmitReviewRequest
}

func (r *SubmitReviewRequest) Normalize() {
	r.Description = strings.TrimSpace(r.Description)
	r.GuestInfo.Name = strings.TrimSpace(r.GuestInfo.Name)
	r.GuestInfo.Phone = strings.TrimSpace(r.GuestInfo.Phone)
	r.GuestInfo.RoomNumber = strings.TrimSpace(r.GuestInfo.RoomNumber)
	r.GuestInfo.Email = strings.ToLower(strings.TrimSpace(r.GuestInfo.Email))
	for i := range r.Answers {
		r.Answers[i].QuestionID = strings.ToLower(strings.TrimSpace(r.Answers[i].QuestionID))
	}
}

// Validate checks everything that does not need the question catalog and
// returns the parsed category.
func (r *SubmitReviewRequest) Validate() (Category, error) {
	category, err := ParseCategory(r.Category)
	if err != nil {
		return "", err
	}

	if len(r.Description) > MaxDescriptionLength {
		return "", apperr.ValidationField("description", fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}

	if category.RequiresRoomGuest() {
		switch {
		case r.GuestInfo.Name == "":
			return "", apperr.ValidationField("guestInfo.name", "guest name is required")
		case r.GuestInfo.Phone == "":
			return "", apperr.ValidationField("guestInfo.phone", "guest phone is required")
		case r.GuestInfo.RoomNumber == "":
			return "", apperr.ValidationField("guestInfo.roomNumber", "room number is required")
		}
	} else if !IsValidEmail(r.GuestInfo.Email) {
		return "", apperr.ValidationField("guestInfo.email", "a valid guest email is required")
	}

	seen := make(map[string]bool, len(r.Answers))
	for i, a := range r.Answers {
		field := fmt.Sprintf("answers[%d].questionId", i)
		if !IsValidID(a.QuestionID) {
			return "", apperr.ValidationField(field, "invalid question id")
		}
		if seen[a.QuestionID] {
			return "", apperr.ValidationField(field, "duplicate answer for question")
		}
		seen[a.QuestionID] = true
	}

	return category, nil
}

// QuestionIDs lists the referenced questions in submission order.
func (r *SubmitReviewRequest) QuestionIDs() []string {
	ids := make([]string, 0, len(r.Answers))
	for _, a := range r.Answers {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

// BuildAnswers resolves each input against its question and produces the
// typed answer. questions must contain every referenced id that exists.
func BuildAnswers(inputs []AnswerInput, questions map[string]Question, category Category) ([]Answer, error) {
	answers := make([]Answer, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("answers[%d]", i)

		q, ok := questions[in.QuestionID]
		if !ok {
			return nil, apperr.ValidationField(field+".questionId", "question does not exist")
		}
		if q.Category != category {
			return nil, apperr.ValidationField(field+".questionId", "question belongs to another category")
		}

		var text string
		if in.AnswerText != nil {
			text = strings.TrimSpace(*in.AnswerText)
		}

		switch q.QuestionType {
		case QuestionRating:
			if in.AnswerBoolean != nil {
				return nil, apperr.ValidationField(field+".answerBoolean", "rating question does not take a yes/no answer")
			}
			if in.Rating == nil {
				return nil, apperr.ValidationField(field+".rating", "rating is required")
			}
			r := *in.Rating
			if r != math.Trunc(r) || r < MinRating || r > MaxRating {
				return nil, apperr.ValidationField(field+".rating", fmt.Sprintf("rating must be an integer between %d and %d", MinRating, MaxRating))
			}
			answers = append(answers, RatingAnswer(q.ID, int(r), text))
		case QuestionYesNo:
			if in.Rating != nil {
				return nil, apperr.ValidationField(field+".rating", "yes/no question does not take a rating")
			}
			if in.AnswerBoolean == nil {
				return nil, apperr.ValidationField(field+".answerBoolean", "answerBoolean is required")
			}
			answers = append(answers, YesNoAnswer(q.ID, *in.AnswerBoolean, text))
		default:
			return nil, apperr.Internal("unknown question type", fmt.Errorf("question %s has type %q", q.ID, q.QuestionType))
		}
	}
	return answers, nil
}
