package queue

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler adapts h to an SQS-triggered Lambda with partial batch
// responses enabled. Any record that is not acked is reported as a failure.
func LambdaHandler(h Handler) func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		resp := events.SQSEventResponse{
			BatchItemFailures: []events.SQSBatchItemFailure{},
		}

		for _, record := range event.Records {
			if Process(ctx, h, []byte(record.Body)) != Ack {
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
					ItemIdentifier: record.MessageId,
				})
			}
		}

		return resp, nil
	}
}
