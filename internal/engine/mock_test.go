package engine

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/client"

	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRequest(ctx context.Context, address, normalized string) (*model.AppraisalRequest, error) {
	args := m.Called(ctx, address, normalized)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AppraisalRequest), args.Error(1)
}

func (m *mockStore) GetRequest(ctx context.Context, id string) (*model.AppraisalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AppraisalRequest), args.Error(1)
}

func (m *mockStore) FindActiveRequest(ctx context.Context, normalized string) (*model.AppraisalRequest, error) {
	args := m.Called(ctx, normalized)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AppraisalRequest), args.Error(1)
}

func (m *mockStore) LinkWorkflow(ctx context.Context, id, workflowID string) error {
	return m.Called(ctx, id, workflowID).Error(0)
}

func (m *mockStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockStore) CompleteRequest(ctx context.Context, id string, finalValue float64) error {
	return m.Called(ctx, id, finalValue).Error(0)
}

func (m *mockStore) MarkFailed(ctx context.Context, id, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *mockStore) ListRequests(ctx context.Context, filter store.RequestFilter) ([]model.AppraisalRequest, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AppraisalRequest), args.Error(1)
}

func (m *mockStore) UpsertProperty(ctx context.Context, p *model.Property) (*model.Property, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Property), args.Error(1)
}

func (m *mockStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Property), args.Error(1)
}

func (m *mockStore) GetSubjectProperty(ctx context.Context, requestID string) (*model.Property, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Property), args.Error(1)
}

func (m *mockStore) AttachComparable(ctx context.Context, requestID, propertyID string, position int) error {
	return m.Called(ctx, requestID, propertyID, position).Error(0)
}

func (m *mockStore) ListComparables(ctx context.Context, requestID string) ([]model.Property, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Property), args.Error(1)
}

func (m *mockStore) SetAccountNumber(ctx context.Context, propertyID string, accountNumber *string) error {
	return m.Called(ctx, propertyID, accountNumber).Error(0)
}

func (m *mockStore) EnrichProperty(ctx context.Context, propertyID string, attrs model.PropertyAttributes) (int, error) {
	args := m.Called(ctx, propertyID, attrs)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) AddSalesHistory(ctx context.Context, propertyID string, sales []model.SaleRecord) error {
	return m.Called(ctx, propertyID, sales).Error(0)
}

func (m *mockStore) ListSalesHistory(ctx context.Context, propertyID string) ([]model.SaleRecord, error) {
	args := m.Called(ctx, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SaleRecord), args.Error(1)
}

func (m *mockStore) SaveResult(ctx context.Context, res *model.AppraisalResult) (*model.AppraisalResult, error) {
	args := m.Called(ctx, res)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AppraisalResult), args.Error(1)
}

func (m *mockStore) GetLatestResult(ctx context.Context, requestID string) (*model.AppraisalResult, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AppraisalResult), args.Error(1)
}

func (m *mockStore) GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CacheEntry), args.Error(1)
}

func (m *mockStore) PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	called := m.Called(ctx, options, workflow, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).(client.WorkflowRun), called.Error(1)
}

type fakeRun struct {
	id    string
	runID string
}

func (r *fakeRun) GetID() string    { return r.id }
func (r *fakeRun) GetRunID() string { return r.runID }

func (r *fakeRun) Get(ctx context.Context, valuePtr interface{}) error { return nil }

func (r *fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, options client.WorkflowRunGetOptions) error {
	return nil
}
