// Package eventbus publishes downstream notifications over NATS:
// inspection completion and golden-sample promotion. Publishing is
// best-effort — a failure is logged, never returned to the caller,
// since no inspection should block on a notification bus being down.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// InspectionCompletedEvent is published once per finished inspection.
type InspectionCompletedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	ProductName string    `json:"product_name"`
	DeviceID    string    `json:"device_id"`
	Result      string    `json:"result"` // pass/fail
	OccurredAt  time.Time `json:"occurred_at"`
}

// GoldenPromotedEvent is published whenever the golden library accepts
// a new best sample for an ROI.
type GoldenPromotedEvent struct {
	ProductName string    `json:"product_name"`
	ROIID       string    `json:"roi_id"`
	GoldenName  string    `json:"golden_name"`
	Similarity  float64   `json:"similarity"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher wraps a NATS connection with retrying, best-effort sends.
type Publisher struct {
	conn       *nats.Conn
	maxRetries int
}

func NewPublisher(conn *nats.Conn, maxRetries int) *Publisher {
	return &Publisher{conn: conn, maxRetries: maxRetries}
}

// PublishInspectionCompleted sends evt to inspection.completed.<product>.
func (p *Publisher) PublishInspectionCompleted(evt InspectionCompletedEvent) {
	subject := fmt.Sprintf("inspection.completed.%s", evt.ProductName)
	p.publish(subject, evt)
}

// PublishGoldenPromoted sends evt to golden.promoted.<product>.<roi>.
func (p *Publisher) PublishGoldenPromoted(evt GoldenPromotedEvent) {
	subject := fmt.Sprintf("golden.promoted.%s.%s", evt.ProductName, evt.ROIID)
	p.publish(subject, evt)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[eventbus] marshal failed for %s: %v", subject, err)
		return
	}

	// retries and their backoff run off the caller's goroutine
	go func() {
		var pubErr error
		for i := 0; i <= p.maxRetries; i++ {
			pubErr = p.conn.Publish(subject, data)
			if pubErr == nil {
				return
			}
			time.Sleep(time.Duration(i*100) * time.Millisecond)
		}

		log.Printf("[eventbus] publish to %s failed after %d retries: %v", subject, p.maxRetries, pubErr)
	}()
}
