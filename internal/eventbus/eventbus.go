// Package eventbus publishes normalized webhook events onto the internal
// event bus for asynchronous downstream processing.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Event envelope constants. Downstream rules match on these.
const (
	eventSource = "facebook.webhook"
	detailType  = "Facebook Webhook Event"
)

// Publisher delivers one event record to the bus. Publish failures are
// surfaced to the caller, never swallowed.
type Publisher interface {
	Publish(ctx context.Context, detail interface{}) error
}

// EventBridgePublisher implements Publisher on an EventBridge bus.
type EventBridgePublisher struct {
	client  *eventbridge.Client
	busName string
}

// Compile-time interface check.
var _ Publisher = (*EventBridgePublisher)(nil)

// NewEventBridgePublisher creates a publisher targeting the given bus.
// An empty bus name targets the account's default bus.
func NewEventBridgePublisher(client *eventbridge.Client, busName string) *EventBridgePublisher {
	return &EventBridgePublisher{
		client:  client,
		busName: busName,
	}
}

// Publish serializes detail and puts it on the bus as a single entry.
func (p *EventBridgePublisher) Publish(ctx context.Context, detail interface{}) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		Source:     aws.String(eventSource),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(data)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("PutEvents entry rejected: %s: %s",
					aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries rejected", out.FailedEntryCount)
	}

	log.Debug().Str("source", eventSource).Msg("Event published")
	return nil
}
