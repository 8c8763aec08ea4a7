package events

import (
	"context"
	"testing"
)

func TestLocalEventBusDelivers(t *testing.T) {
	bus := NewLocalEventBus()

	var got ReviewSubmittedEvent
	calls := 0
	_ = bus.QueueSubscribe(ReviewSubmitted, NotifyQueue, func(msg *Message) {
		calls++
		if err := msg.Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	})

	err := bus.Publish(context.Background(), ReviewSubmitted, ReviewSubmittedEvent{
		ReviewID: "r1",
		Category: "room",
		Ratings:  []RatedQuestion{{QuestionID: "q1", Rating: 3, PrimaryIndicator: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d", calls)
	}
	if got.ReviewID != "r1" || len(got.Ratings) != 1 || !got.Ratings[0].PrimaryIndicator {
		t.Errorf("event = %+v", got)
	}
}

func TestLocalEventBusIgnoresOtherSubjects(t *testing.T) {
	bus := NewLocalEventBus()
	calls := 0
	_ = bus.Subscribe(TokenIssued, func(*Message) { calls++ })

	_ = bus.Publish(context.Background(), ReviewSubmitted, map[string]string{"x": "y"})
	if calls != 0 {
		t.Fatalf("unexpected delivery")
	}
}
