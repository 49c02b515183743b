package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/wardline/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type options struct {
	appName string
	now     func() time.Time
}

type Option func(*options)

// WithAppName sets the application prefix used in report names.
func WithAppName(name string) Option {
	return func(o *options) { o.appName = name }
}

// WithClock overrides the clock used to stamp report creation.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Store struct {
	pool        *pgxpool.Pool
	reports     *AuditReportRepo
	events      *AuditEventRepo
	attachments *AttachmentRepo
	retention   *RetentionRepo
}

func New(ctx context.Context, dsn string, maxConns int32, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return NewFromPool(pool, opts...), nil
}

// NewFromPool wires the repositories over an existing pool.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	o := options{appName: "wardline", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store{
		pool:        pool,
		reports:     NewAuditReportRepo(pool, o.appName, o.now),
		events:      NewAuditEventRepo(pool),
		attachments: NewAttachmentRepo(pool),
		retention:   NewRetentionRepo(pool),
	}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

// InTx runs fn inside a single transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, s.pool, fn); err != nil {
		return fmt.Errorf("postgres.Store.InTx: %w", err)
	}
	return nil
}

func (s *Store) AuditReports() domain.AuditReportRepository           { return s.reports }
func (s *Store) AuditEvents() domain.AuditEventRepository             { return s.events }
func (s *Store) Attachments() domain.AttachmentRepository             { return s.attachments }
func (s *Store) RetentionSettings() domain.RetentionSettingRepository { return s.retention }
