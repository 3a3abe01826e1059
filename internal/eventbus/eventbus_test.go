package eventbus

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPublishNilConnDoesNotPanic(t *testing.T) {
	p := NewPublisher(nil, 2)

	p.PublishInspectionCompleted(InspectionCompletedEvent{
		SessionID:   uuid.New(),
		ProductName: "widget-a",
		Result:      "pass",
		OccurredAt:  time.Now(),
	})

	p.PublishGoldenPromoted(GoldenPromotedEvent{
		ProductName: "widget-a",
		ROIID:       "roi-1",
		GoldenName:  "golden_001.png",
		Similarity:  0.98,
		OccurredAt:  time.Now(),
	})
}

func TestPublishNilPublisherDoesNotPanic(t *testing.T) {
	var p *Publisher
	p.PublishInspectionCompleted(InspectionCompletedEvent{ProductName: "widget-a"})
}

func TestPublishMarshalFailureDoesNotPanic(t *testing.T) {
	p := NewPublisher(nil, 0)
	// a channel value cannot be marshaled to JSON; publish must log and return.
	p.publish("test.subject", map[string]interface{}{"bad": make(chan int)})
}
