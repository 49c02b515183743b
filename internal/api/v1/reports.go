package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/wardline/internal/domain"
	"github.com/gosuda/wardline/internal/server/middleware"
)

const dateLayout = "2006-01-02"

// Report is the API view of an audit report.
type Report struct {
	ID           uuid.UUID                `json:"id"`
	Name         string                   `json:"name"`
	Status       domain.ReportStatus      `json:"status" enum:"PENDING,COMPLETE,FAILED,CANCELLED"`
	StatusDate   time.Time                `json:"statusDate"`
	StartDate    string                   `json:"startDate" format:"date"`
	EndDate      string                   `json:"endDate" format:"date"`
	IncludeMedia bool                     `json:"includeMedia"`
	GeneratedAt  time.Time                `json:"generatedAt"`
	Metadata     []domain.AssetDescriptor `json:"metadata,omitempty"`
}

func toReport(r *domain.AuditReport) *Report {
	return &Report{
		ID:           r.ID,
		Name:         r.Name,
		Status:       r.Status,
		StatusDate:   r.StatusDate,
		StartDate:    r.StartDate.UTC().Format(dateLayout),
		EndDate:      r.EndDate.UTC().Format(dateLayout),
		IncludeMedia: r.IncludeMedia,
		GeneratedAt:  r.GeneratedAt,
		Metadata:     r.Metadata,
	}
}

type CreateReportInput struct {
	Body struct {
		StartDate    string `json:"startDate" format:"date" doc:"First day covered (YYYY-MM-DD)"`
		EndDate      string `json:"endDate" format:"date" doc:"Last day covered, inclusive (YYYY-MM-DD)"`
		IncludeMedia bool   `json:"includeMedia,omitempty" doc:"Bundle photo attachments into the archive"`
	}
}

type ReportOutput struct {
	Body *Report
}

type ListReportsOutput struct {
	Body []*Report
}

type ReportIDInput struct {
	ID uuid.UUID `path:"id" doc:"Report ID"`
}

type ReportResourcesOutput struct {
	Body struct {
		URLs []string `json:"urls" doc:"Freshly signed download URLs, one per archive part"`
	}
}

func identity(ctx context.Context) (uuid.UUID, uuid.UUID, error) {
	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, huma.Error403Forbidden("missing tenant context")
	}
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, huma.Error403Forbidden("missing user context")
	}
	return tenantID, userID, nil
}

func reportError(msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("report not found")
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, domain.ErrInvalidRequest):
		return huma.Error400BadRequest(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func RegisterReportRoutes(api huma.API, svc ReportService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Request an audit report",
		Tags:          []string{"Reports"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *CreateReportInput) (*ReportOutput, error) {
		tenantID, userID, err := identity(ctx)
		if err != nil {
			return nil, err
		}

		start, err := time.Parse(dateLayout, input.Body.StartDate)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid startDate", err)
		}
		end, err := time.Parse(dateLayout, input.Body.EndDate)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid endDate", err)
		}

		report, err := svc.Request(ctx, domain.ReportRequest{
			TenantID:     tenantID,
			UserID:       userID,
			StartDate:    start,
			EndDate:      end,
			IncludeMedia: input.Body.IncludeMedia,
		})
		if err != nil {
			return nil, reportError("failed to request report", err)
		}

		return &ReportOutput{Body: toReport(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List the caller's reports, newest first",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, _ *struct{}) (*ListReportsOutput, error) {
		tenantID, userID, err := identity(ctx)
		if err != nil {
			return nil, err
		}

		reports, err := svc.List(ctx, tenantID, userID)
		if err != nil {
			return nil, reportError("failed to list reports", err)
		}

		out := make([]*Report, 0, len(reports))
		for _, r := range reports {
			out = append(out, toReport(r))
		}
		return &ListReportsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get a report",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *ReportIDInput) (*ReportOutput, error) {
		tenantID, userID, err := identity(ctx)
		if err != nil {
			return nil, err
		}

		report, err := svc.Get(ctx, tenantID, userID, input.ID)
		if err != nil {
			return nil, reportError("failed to get report", err)
		}
		return &ReportOutput{Body: toReport(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/cancel",
		Summary:     "Cancel a pending report",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *ReportIDInput) (*ReportOutput, error) {
		tenantID, userID, err := identity(ctx)
		if err != nil {
			return nil, err
		}

		report, err := svc.Cancel(ctx, tenantID, userID, input.ID)
		if err != nil {
			return nil, reportError("report is not pending", err)
		}
		return &ReportOutput{Body: toReport(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report-resources",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/resources",
		Summary:     "Mint download URLs for a completed report",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *ReportIDInput) (*ReportResourcesOutput, error) {
		tenantID, userID, err := identity(ctx)
		if err != nil {
			return nil, err
		}

		urls, err := svc.ResourceURLs(ctx, tenantID, userID, input.ID)
		if err != nil {
			return nil, reportError("failed to sign report resources", err)
		}

		out := &ReportResourcesOutput{}
		out.Body.URLs = urls
		return out, nil
	})
}
