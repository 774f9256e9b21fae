package firecrawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient returns scripted batch statuses in order.
type fakeClient struct {
	statuses []BatchScrapeStatusResponse
	calls    int
}

func (f *fakeClient) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	return nil, nil
}

func (f *fakeClient) BatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error) {
	return nil, nil
}

func (f *fakeClient) GetBatchScrapeStatus(ctx context.Context, id string) (*BatchScrapeStatusResponse, error) {
	status := f.statuses[f.calls]
	if f.calls < len(f.statuses)-1 {
		f.calls++
	}
	return &status, nil
}

func TestPollBatchScrapeCompletes(t *testing.T) {
	fc := &fakeClient{statuses: []BatchScrapeStatusResponse{
		{Status: "scraping"},
		{Status: "scraping"},
		{Status: "completed", Total: 2},
	}}

	status, err := PollBatchScrape(context.Background(), fc, "batch-1",
		WithPollInterval(time.Millisecond), WithPollCap(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 2, status.Total)
}

func TestPollBatchScrapeFailure(t *testing.T) {
	fc := &fakeClient{statuses: []BatchScrapeStatusResponse{
		{Status: "failed"},
	}}

	_, err := PollBatchScrape(context.Background(), fc, "batch-1", WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestPollBatchScrapeTimeout(t *testing.T) {
	fc := &fakeClient{statuses: []BatchScrapeStatusResponse{
		{Status: "scraping"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := PollBatchScrape(ctx, fc, "batch-1",
		WithPollInterval(10*time.Millisecond), WithPollCap(10*time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
