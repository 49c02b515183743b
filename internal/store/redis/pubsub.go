package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/wardline/internal/domain"
)

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// ReportStatusEvent is published whenever a report changes status.
type ReportStatusEvent struct {
	Type     string              `json:"type"`
	ReportID uuid.UUID           `json:"report_id"`
	Status   domain.ReportStatus `json:"status"`
}

const reportStatusEventType = "report_status"

// PublishReportStatus notifies subscribers of the user's report channel.
func (ps *PubSub) PublishReportStatus(ctx context.Context, tenantID, userID, reportID uuid.UUID, status domain.ReportStatus) error {
	payload, err := json.Marshal(ReportStatusEvent{
		Type:     reportStatusEventType,
		ReportID: reportID,
		Status:   status,
	})
	if err != nil {
		return fmt.Errorf("redis.PubSub.PublishReportStatus: marshal: %w", err)
	}

	return ps.Publish(ctx, ReportChannel(tenantID, userID), payload)
}

// ReportChannel returns the Redis channel name for a user's report updates.
func ReportChannel(tenantID, userID uuid.UUID) string {
	return "report:" + tenantID.String() + ":" + userID.String()
}
