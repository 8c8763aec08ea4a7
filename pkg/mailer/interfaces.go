package mailer

import "time"

type Service interface {
	SendReviewLink(toEmail, category, link string, expiresAt time.Time) error
	SendLowRatingAlert(toEmail string, alert LowRatingAlert) error
}

type LowRatingAlert struct {
	ReviewID    string
	Category    string
	GuestName   string
	RoomNumber  string
	Description string
	Items       []AlertItem
	SubmittedAt time.Time
}

type AlertItem struct {
	Question string
	Rating   int
}

// New picks the MailerSend client when an API key is configured and dev
// mode is off, otherwise the logging mailer.
func New(devMode bool, apiKey, fromName, fromEmail string) Service {
	if !devMode && apiKey != "" {
		return NewMailerSend(apiKey, fromName, fromEmail)
	}
	return NewDevMailer()
}
