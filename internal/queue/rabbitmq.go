package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/domain"
)

// RabbitMQ holds one connection and channel bound to a durable queue.
// Rejected deliveries are nacked without requeue so a dead-letter exchange
// configured on the queue receives them.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
}

func NewRabbitMQ(url, queue string, prefetch int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue.NewRabbitMQ: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue.NewRabbitMQ: channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue.NewRabbitMQ: declare %s: %w", queue, err)
	}

	if prefetch < 1 {
		prefetch = 1
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: queue, prefetch: prefetch}, nil
}

func (q *RabbitMQ) Publish(ctx context.Context, job domain.ReportJob) error {
	body, err := Encode(job)
	if err != nil {
		return fmt.Errorf("queue.RabbitMQ.Publish: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",      // default exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.AuditReportID.String(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("queue.RabbitMQ.Publish: %w", err)
	}
	return nil
}

func (q *RabbitMQ) Run(ctx context.Context, h Handler) error {
	if err := q.channel.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("queue.RabbitMQ.Run: qos: %w", err)
	}

	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue.RabbitMQ.Run: consume: %w", err)
	}

	log.Info().Str("queue", q.queue).Int("prefetch", q.prefetch).Msg("queue.RabbitMQ: consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("queue.RabbitMQ.Run: delivery channel closed")
			}
			if err := Settle(d, Process(ctx, h, d.Body)); err != nil {
				log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("queue.RabbitMQ: settle failed")
			}
		}
	}
}

// Settle acknowledges d according to disp.
func Settle(d amqp.Delivery, disp Disposition) error {
	switch disp {
	case Ack:
		return d.Ack(false)
	case Retry:
		return d.Nack(false, true)
	default:
		return d.Nack(false, false)
	}
}

func (q *RabbitMQ) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("queue.RabbitMQ.Close: %w", err)
		}
	}
	return nil
}
