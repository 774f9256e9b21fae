package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/appraisement/appraisal-engine/internal/appraise"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/firecrawl"
	"github.com/appraisement/appraisal-engine/pkg/geocode"
)

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Forward(ctx context.Context, query string) (*geocode.Address, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Address), args.Error(1)
}

type mockAssessor struct {
	mock.Mock
}

func (m *mockAssessor) LookupAccount(ctx context.Context, street string) (*string, error) {
	args := m.Called(ctx, street)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *mockAssessor) DetailsURL(account string) string {
	return m.Called(account).String(0)
}

type mockValuer struct {
	mock.Mock
}

func (m *mockValuer) Run(ctx context.Context, in appraise.Input) (*model.AppraisalPayload, string, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*model.AppraisalPayload), args.String(1), args.Error(2)
}

type mockFirecrawl struct {
	mock.Mock
}

func (m *mockFirecrawl) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
}

func (m *mockFirecrawl) BatchScrape(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeResponse), args.Error(1)
}

func (m *mockFirecrawl) GetBatchScrapeStatus(ctx context.Context, id string) (*firecrawl.BatchScrapeStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeStatusResponse), args.Error(1)
}
