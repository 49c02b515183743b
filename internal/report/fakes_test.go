package report_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
)

type statusUpdate struct {
	ID       uuid.UUID
	Status   domain.ReportStatus
	Metadata []domain.AssetDescriptor
}

// fakeReports is an in-memory AuditReportRepository that records writes.
type fakeReports struct {
	mu       sync.Mutex
	reports  map[uuid.UUID]*domain.AuditReport
	getCalls int
	updates  []statusUpdate
	created  []domain.ReportRequest
	replaced []domain.ReportRequest
	count    int
	paths    []string
	getErr   error
}

func newFakeReports(reports ...*domain.AuditReport) *fakeReports {
	f := &fakeReports{reports: make(map[uuid.UUID]*domain.AuditReport)}
	for _, r := range reports {
		f.reports[r.ID] = r
	}
	return f
}

func (f *fakeReports) setStatus(id uuid.UUID, status domain.ReportStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reports[id]; ok {
		r.Status = status
	}
}

func (f *fakeReports) status(id uuid.UUID) domain.ReportStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[id].Status
}

func (f *fakeReports) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeReports) statusUpdates() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.updates...)
}

func (f *fakeReports) updatesWith(status domain.ReportStatus) int {
	n := 0
	for _, u := range f.statusUpdates() {
		if u.Status == status {
			n++
		}
	}
	return n
}

func (f *fakeReports) Create(_ context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return f.insert(req), nil
}

func (f *fakeReports) ReplaceOldest(_ context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, req)
	return f.insert(req), nil
}

func (f *fakeReports) insert(req domain.ReportRequest) *domain.AuditReport {
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	r := &domain.AuditReport{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		Status:       domain.ReportStatusPending,
		StatusDate:   now,
		Name:         domain.ReportName("wardline", req, now),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		IncludeMedia: req.IncludeMedia,
		GeneratedAt:  now,
	}
	f.reports[r.ID] = r
	return r
}

func (f *fakeReports) Get(_ context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.reports[id]
	if !ok || r.TenantID != tenantID || r.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) ListByUser(_ context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.AuditReport
	for _, r := range f.reports {
		if r.TenantID == tenantID && r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeReports) CountByUser(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeReports) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, status domain.ReportStatus, metadata []domain.AssetDescriptor) (*domain.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{ID: id, Status: status, Metadata: metadata})
	r, ok := f.reports[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	r.Status = status
	r.Metadata = nil
	if status == domain.ReportStatusComplete {
		r.Metadata = metadata
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) ListCompletedAssetPaths(context.Context) ([]string, error) {
	return f.paths, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
	calls  int
	start  time.Time
	end    time.Time
	hook   func()
}

func (f *fakeEvents) ListInRange(_ context.Context, _ uuid.UUID, start, end time.Time) ([]*domain.AuditEvent, error) {
	f.mu.Lock()
	f.calls++
	f.start, f.end = start, end
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.events, nil
}

func (f *fakeEvents) DeleteOlderThan(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEvents) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAttachments struct {
	photos []*domain.AuditAttachment
}

func (f *fakeAttachments) ListPhotosForEvents(context.Context, uuid.UUID, []uuid.UUID) ([]*domain.AuditAttachment, error) {
	return f.photos, nil
}

func (f *fakeAttachments) ListForClosedEncountersBefore(context.Context, uuid.UUID, time.Time) ([]*domain.AuditAttachment, error) {
	return nil, nil
}

func (f *fakeAttachments) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

// hookStore wraps a blob.Store and lets tests intercept uploads.
type hookStore struct {
	blob.Store
	mu      sync.Mutex
	puts    []string
	putHook func(ctx context.Context, key string) error
}

func (h *hookStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	h.mu.Lock()
	h.puts = append(h.puts, key)
	hook := h.putHook
	h.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, key); err != nil {
			return err
		}
	}
	return h.Store.Put(ctx, key, body, size, contentType)
}

func (h *hookStore) putKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.puts...)
}

type publishedStatus struct {
	ReportID uuid.UUID
	Status   domain.ReportStatus
}

type fakeStatusPublisher struct {
	mu     sync.Mutex
	events []publishedStatus
	err    error
}

func (f *fakeStatusPublisher) PublishReportStatus(_ context.Context, _, _, reportID uuid.UUID, status domain.ReportStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedStatus{ReportID: reportID, Status: status})
	return f.err
}

type fakeJobPublisher struct {
	jobs []domain.ReportJob
	err  error
}

func (f *fakeJobPublisher) Publish(_ context.Context, job domain.ReportJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}
