package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/domain"
)

// ErrMalformedJob marks a payload that can never be processed.
var ErrMalformedJob = errors.New("queue: malformed job payload")

// Handler runs one report job. ok=false is an expected rejection; a non-nil
// error is an unexpected failure that should be retried by the queue.
type Handler interface {
	HandleJob(ctx context.Context, job domain.ReportJob) (ok bool, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job domain.ReportJob) (bool, error)

func (f HandlerFunc) HandleJob(ctx context.Context, job domain.ReportJob) (bool, error) {
	return f(ctx, job)
}

// Publisher enqueues report jobs.
type Publisher interface {
	Publish(ctx context.Context, job domain.ReportJob) error
	Close() error
}

// Consumer delivers jobs to a Handler until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// Disposition is what the transport should do with a delivered message.
type Disposition int

const (
	// Ack removes the message.
	Ack Disposition = iota
	// Reject drops the message without redelivery, or dead-letters it where the transport supports it.
	Reject
	// Retry hands the message back for redelivery.
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Encode serialises a job payload.
func Encode(job domain.ReportJob) ([]byte, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue.Encode: %w", err)
	}
	return b, nil
}

// Decode parses a job payload and checks that all identifiers are present.
func Decode(body []byte) (domain.ReportJob, error) {
	var job domain.ReportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return domain.ReportJob{}, fmt.Errorf("queue.Decode: %w: %w", ErrMalformedJob, err)
	}
	if job.AuditReportID == uuid.Nil || job.TenantID == uuid.Nil || job.UserID == uuid.Nil {
		return domain.ReportJob{}, fmt.Errorf("queue.Decode: %w: missing identifier", ErrMalformedJob)
	}
	return job, nil
}

// Process decodes body, runs h and maps the result onto a Disposition.
func Process(ctx context.Context, h Handler, body []byte) Disposition {
	job, err := Decode(body)
	if err != nil {
		log.Error().Err(err).Msg("queue.Process: dropping message")
		return Reject
	}

	ok, err := h.HandleJob(ctx, job)
	switch {
	case err != nil:
		log.Error().Err(err).
			Str("report_id", job.AuditReportID.String()).
			Str("tenant_id", job.TenantID.String()).
			Msg("queue.Process: job failed unexpectedly, will retry")
		return Retry
	case !ok:
		log.Warn().
			Str("report_id", job.AuditReportID.String()).
			Str("tenant_id", job.TenantID.String()).
			Msg("queue.Process: job rejected")
		return Reject
	default:
		return Ack
	}
}
