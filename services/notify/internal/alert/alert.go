// Package alert mails front-office staff when a guest gives a low score on a
// question flagged as a primary issue indicator.
package alert

import (
	"context"

	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/pkg/mailer"
)

type Notifier struct {
	mailer    mailer.Service
	to        string
	threshold int
}

func New(m mailer.Service, to string, threshold int) *Notifier {
	return &Notifier{mailer: m, to: to, threshold: threshold}
}

// Subscribe attaches the notifier to review.submitted in the notify queue
// group, so each review is handled by one replica.
func (n *Notifier) Subscribe(sub events.Subscriber) error {
	return sub.QueueSubscribe(events.ReviewSubmitted, events.NotifyQueue, n.Handle)
}

// LowRatings returns the primary-indicator ratings at or below the threshold.
func (n *Notifier) LowRatings(ev events.ReviewSubmittedEvent) []mailer.AlertItem {
	var items []mailer.AlertItem
	for _, r := range ev.Ratings {
		if r.PrimaryIndicator && r.Rating <= n.threshold {
			items = append(items, mailer.AlertItem{Question: r.QuestionText, Rating: r.Rating})
		}
	}
	return items
}

func (n *Notifier) Handle(msg *events.Message) {
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, msg.ID)

	var ev events.ReviewSubmittedEvent
	if err := msg.Decode(&ev); err != nil {
		logger.ErrorContext(ctx, "Failed to decode review event", "subject", msg.Subject, "error", err)
		return
	}

	items := n.LowRatings(ev)
	if len(items) == 0 {
		return
	}
	if n.to == "" {
		logger.WarnContext(ctx, "Low rating received but ALERT_EMAIL is not set", "review_id", ev.ReviewID)
		return
	}

	err := n.mailer.SendLowRatingAlert(n.to, mailer.LowRatingAlert{
		ReviewID:    ev.ReviewID,
		Category:    ev.Category,
		GuestName:   ev.GuestName,
		RoomNumber:  ev.RoomNumber,
		Description: ev.Description,
		Items:       items,
		SubmittedAt: ev.CreatedAt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send low rating alert", "review_id", ev.ReviewID, "error", err)
		return
	}
	logger.InfoContext(ctx, "Sent low rating alert", "review_id", ev.ReviewID, "items", len(items))
}
