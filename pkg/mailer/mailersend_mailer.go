package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendReviewLink(toEmail, category, link string, expiresAt time.Time) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Tell us about your stay"
	body := fmt.Sprintf(`
		<h2>We would love your feedback</h2>
		<p>Please take a minute to review your %s experience:</p>
		<p><a href="%s">Leave a review</a></p>
		<p>This link can be used once and expires on %s.</p>
	`, html.EscapeString(CategoryLabel(category)), link, expiresAt.UTC().Format("2 Jan 2006 15:04 MST"))

	text := fmt.Sprintf("Leave a review: %s\n\nThe link can be used once and expires on %s.",
		link, expiresAt.UTC().Format("2 Jan 2006 15:04 MST"))

	return m.sendEmail(toEmail, "", subject, text, body)
}

func (m *MailerSendClient) SendLowRatingAlert(toEmail string, alert LowRatingAlert) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("Low rating received (%s)", CategoryLabel(alert.Category))

	var rows, lines strings.Builder
	for _, it := range alert.Items {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td></tr>", html.EscapeString(it.Question), it.Rating)
		fmt.Fprintf(&lines, "- %s: %d\n", it.Question, it.Rating)
	}

	body := fmt.Sprintf(`
		<h2>Low rating alert</h2>
		<p>Guest: %s %s</p>
		<table>%s</table>
		<p>%s</p>
		<p>Review %s, submitted %s</p>
	`, html.EscapeString(alert.GuestName), html.EscapeString(alert.RoomNumber), rows.String(),
		html.EscapeString(alert.Description), alert.ReviewID, alert.SubmittedAt.UTC().Format(time.RFC1123))

	text := fmt.Sprintf("Guest: %s %s\n%s\n%s\nReview %s",
		alert.GuestName, alert.RoomNumber, lines.String(), alert.Description, alert.ReviewID)

	return m.sendEmail(toEmail, "", subject, text, body)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, htmlBody string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(htmlBody) != "" {
		msg.SetHTML(htmlBody)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}

// CategoryLabel is the guest-facing name of a review category.
func CategoryLabel(category string) string {
	switch category {
	case "room":
		return "room"
	case "f&b":
		return "food and beverage"
	case "cfc":
		return "CFC"
	default:
		return category
	}
}
