// Package store persists appraisal requests, properties, sales history,
// appraisal results, and the idempotent action cache. Two drivers exist:
// Postgres (pgx) for production and SQLite (modernc) for local runs and tests.
package store

import (
	"context"

	"github.com/appraisement/appraisal-engine/internal/model"
)

// RequestFilter specifies criteria for listing appraisal requests.
type RequestFilter struct {
	Status model.RequestStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the appraisal pipeline.
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	// Requests
	CreateRequest(ctx context.Context, address, normalized string) (*model.AppraisalRequest, error)
	GetRequest(ctx context.Context, id string) (*model.AppraisalRequest, error)
	// FindActiveRequest returns the oldest non-terminal request for a
	// normalized address, the dedup anchor for Start.
	FindActiveRequest(ctx context.Context, normalized string) (*model.AppraisalRequest, error)
	LinkWorkflow(ctx context.Context, id, workflowID string) error
	// UpdateRequestStatus commits a status transition. Backward or
	// out-of-terminal transitions are rejected.
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	CompleteRequest(ctx context.Context, id string, finalValue float64) error
	MarkFailed(ctx context.Context, id, message string) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.AppraisalRequest, error)

	// Properties. UpsertProperty dedups on full address: first insert wins,
	// a second insert resolves to the existing row and fills only still-null
	// fields. A subject upsert additionally claims the row for its request,
	// so re-appraising an address re-links the shared property row.
	UpsertProperty(ctx context.Context, p *model.Property) (*model.Property, error)
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	GetSubjectProperty(ctx context.Context, requestID string) (*model.Property, error)
	AttachComparable(ctx context.Context, requestID, propertyID string, position int) error
	ListComparables(ctx context.Context, requestID string) ([]model.Property, error)
	SetAccountNumber(ctx context.Context, propertyID string, accountNumber *string) error
	// EnrichProperty fills nil attributes only; populated fields are never
	// overwritten. Returns the number of fields filled.
	EnrichProperty(ctx context.Context, propertyID string, attrs model.PropertyAttributes) (int, error)
	AddSalesHistory(ctx context.Context, propertyID string, sales []model.SaleRecord) error
	ListSalesHistory(ctx context.Context, propertyID string) ([]model.SaleRecord, error)

	// Results are append-only; a re-run inserts a new row.
	SaveResult(ctx context.Context, res *model.AppraisalResult) (*model.AppraisalResult, error)
	GetLatestResult(ctx context.Context, requestID string) (*model.AppraisalResult, error)

	// Idempotent action cache. GetCacheEntry returns (nil, nil) for missing
	// or expired keys.
	GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error
	DeleteExpiredCacheEntries(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
