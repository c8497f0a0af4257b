package store

import (
	"context"
	"time"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/resilience"
)

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Status   model.ReportStatus `json:"status,omitempty"`
	Category model.Category     `json:"category,omitempty"`
	District string             `json:"district,omitempty"`
	Since    time.Time          `json:"since,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the reporting pipeline.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, r *model.Report) error
	UpdateReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error
	UpdateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	CountReports(ctx context.Context, filter ReportFilter) (int, error)

	// Dead letter queue for failed submissions
	AddDLQEntry(ctx context.Context, entry *resilience.DLQEntry) error
	ListDLQEntries(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	DeleteDLQEntry(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
