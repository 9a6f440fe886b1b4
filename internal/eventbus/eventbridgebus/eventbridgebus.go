// Package eventbridgebus adapts eventbus.EventBus to AWS EventBridge,
// batching publishes in groups of 10 (EventBridge's PutEvents limit).
package eventbridgebus

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/eventbus"
)

const maxBatchEntries = 10

// Bus publishes eventbus.Event values to a single EventBridge bus.
type Bus struct {
	client   *eventbridge.Client
	busName  string
	source   string
}

// New returns a Bus. busName defaults to "default" and source to
// "sagaorchestrator" when empty.
func New(client *eventbridge.Client, busName, source string) *Bus {
	if busName == "" {
		busName = "default"
	}
	if source == "" {
		source = "sagaorchestrator"
	}
	return &Bus{client: client, busName: busName, source: source}
}

func (b *Bus) Publish(ctx context.Context, events ...eventbus.Event) error {
	for start := 0; start < len(events); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(events) {
			end = len(events)
		}
		if err := b.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) publishBatch(ctx context.Context, batch []eventbus.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, ev := range batch {
		detail, err := json.Marshal(ev)
		if err != nil {
			return orcherrors.NewError(orcherrors.StoreError, "marshal event detail").
				WithSaga(ev.SagaID).WithCause(err).Build()
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(b.busName),
			Source:       aws.String(b.source),
			DetailType:   aws.String(string(ev.Type)),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(ev.OccurredAt),
			Resources:    []string{ev.SagaID},
		})
	}

	out, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return orcherrors.NewError(orcherrors.StoreError, "put events to eventbridge").WithCause(err).Build()
	}
	if out.FailedEntryCount > 0 {
		return orcherrors.NewError(orcherrors.StoreError, "eventbridge rejected some entries").Build()
	}
	return nil
}
