package mailer

import (
	"time"

	"github.com/diagnosis/guest-feedback/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendReviewLink(toEmail, category, link string, expiresAt time.Time) error {
	logger.Info("[DEV MAIL] Review link",
		"to", toEmail,
		"category", category,
		"link", link,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return nil
}

func (d *DevMailer) SendLowRatingAlert(toEmail string, alert LowRatingAlert) error {
	items := make([]any, 0, len(alert.Items))
	for _, it := range alert.Items {
		items = append(items, map[string]any{"question": it.Question, "rating": it.Rating})
	}
	logger.Info("[DEV MAIL] Low rating alert",
		"to", toEmail,
		"review_id", alert.ReviewID,
		"category", alert.Category,
		"guest", alert.GuestName,
		"room", alert.RoomNumber,
		"items", items,
	)
	return nil
}
