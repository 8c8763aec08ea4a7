package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/guest-feedback/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg.Subject, msg.Data))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg.Subject, msg.Data))
	})
	return err
}

// Close drains pending messages before closing the connection.
func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func toMessage(subject string, data []byte) *Message {
	now := time.Now()
	return &Message{
		Subject:   subject,
		Data:      data,
		Timestamp: now,
		ID:        fmt.Sprintf("%d", now.UnixNano()),
	}
}

// LocalEventBus delivers events synchronously inside the process. It backs the
// memory store mode and tests; queue groups behave like plain subscriptions.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(msg *Message)
}

func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{handlers: make(map[string][]func(msg *Message))}
}

func (l *LocalEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	l.mu.RLock()
	hs := append([]func(*Message){}, l.handlers[subject]...)
	l.mu.RUnlock()

	logger.DebugContext(ctx, "Publishing local event", "subject", subject, "subscribers", len(hs))
	for _, h := range hs {
		h(toMessage(subject, payload))
	}
	return nil
}

func (l *LocalEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[subject] = append(l.handlers[subject], handler)
	return nil
}

func (l *LocalEventBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return l.Subscribe(subject, handler)
}

func (l *LocalEventBus) Close() error { return nil }

const (
	TokenIssued     = "token.issued"
	ReviewSubmitted = "review.submitted"

	NotifyQueue = "notify"
)

type TokenIssuedEvent struct {
	TokenID   string    `json:"tokenId"`
	StaffID   string    `json:"staffId"`
	Category  string    `json:"category"`
	ExpiresAt time.Time `json:"expiresAt"`
	Emailed   bool      `json:"emailed"`
}

type ReviewSubmittedEvent struct {
	ReviewID    string          `json:"reviewId"`
	StaffID     string          `json:"staffId"`
	Category    string          `json:"category"`
	ViaToken    bool            `json:"viaToken"`
	GuestName   string          `json:"guestName,omitempty"`
	RoomNumber  string          `json:"roomNumber,omitempty"`
	Description string          `json:"description,omitempty"`
	Ratings     []RatedQuestion `json:"ratings"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type RatedQuestion struct {
	QuestionID       string `json:"questionId"`
	QuestionText     string `json:"questionText"`
	Rating           int    `json:"rating"`
	PrimaryIndicator bool   `json:"primaryIndicator"`
}
