package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/domain"
)

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("queue.NewSQSClient: load aws config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, job domain.ReportJob) error {
	body, err := Encode(job)
	if err != nil {
		return fmt.Errorf("queue.SQSPublisher.Publish: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue.SQSPublisher.Publish: %w", err)
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }

// SQSConsumer long-polls a queue with a fixed number of workers.
// Rejected messages are left to expire their visibility timeout so the
// queue's redrive policy can dead-letter them; retries are made visible
// again immediately.
type SQSConsumer struct {
	client      SQSAPI
	queueURL    string
	workers     int
	waitSeconds int32
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

const (
	defaultMinReceiveBackoff = time.Second
	defaultMaxReceiveBackoff = 30 * time.Second
)

func NewSQSConsumer(client SQSAPI, queueURL string, workers int, waitSeconds int32) *SQSConsumer {
	if workers < 1 {
		workers = 1
	}
	return &SQSConsumer{
		client:      client,
		queueURL:    queueURL,
		workers:     workers,
		waitSeconds: waitSeconds,
		minBackoff:  defaultMinReceiveBackoff,
		maxBackoff:  defaultMaxReceiveBackoff,
	}
}

// WithReceiveBackoff sets the delay bounds between failed receives. The delay
// doubles per consecutive failure and resets after a successful receive.
func (c *SQSConsumer) WithReceiveBackoff(minDelay, maxDelay time.Duration) *SQSConsumer {
	c.minBackoff = minDelay
	c.maxBackoff = max(minDelay, maxDelay)
	return c
}

func (c *SQSConsumer) Run(ctx context.Context, h Handler) error {
	log.Info().Str("queue_url", c.queueURL).Int("workers", c.workers).Msg("queue.SQSConsumer: started")

	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.poll(ctx, h)
		}()
	}
	wg.Wait()

	log.Info().Msg("queue.SQSConsumer: stopped")
	return nil
}

func (c *SQSConsumer) poll(ctx context.Context, h Handler) {
	delay := c.minBackoff
	for ctx.Err() == nil {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     c.waitSeconds,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("backoff", delay).Msg("queue.SQSConsumer: receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxBackoff)
			continue
		}
		delay = c.minBackoff

		for _, msg := range out.Messages {
			c.handle(ctx, h, msg)
		}
	}
}

func (c *SQSConsumer) handle(ctx context.Context, h Handler, msg types.Message) {
	disp := Process(ctx, h, []byte(aws.ToString(msg.Body)))

	// Settle even if ctx was cancelled while the job ran.
	settleCtx := context.WithoutCancel(ctx)

	var err error
	switch disp {
	case Ack:
		_, err = c.client.DeleteMessage(settleCtx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
	case Retry:
		_, err = c.client.ChangeMessageVisibility(settleCtx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(c.queueURL),
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: 0,
		})
	case Reject:
	}
	if err != nil {
		log.Error().Err(err).
			Str("message_id", aws.ToString(msg.MessageId)).
			Str("disposition", disp.String()).
			Msg("queue.SQSConsumer: settle failed")
	}
}

func (c *SQSConsumer) Close() error { return nil }
