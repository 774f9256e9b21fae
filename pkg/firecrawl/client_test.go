package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeJSONExtraction(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"url": "https://lookups.example.org/assessor/search",
				"json": {"addresses": ["5750 Westchester Farm Dr", "5756 Westchester Farm Dr"]},
				"statusCode": 200
			}
		}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("fc-test", WithBaseURL(srv.URL))

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"addresses": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
	resp, err := c.Scrape(context.Background(), ScrapeRequest{
		URL:     "https://lookups.example.org/assessor/search",
		Formats: []JSONFormat{NewJSONFormat(schema, "Extract every street address shown in the results table.")},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	formats, ok := gotBody["formats"].([]any)
	require.True(t, ok)
	require.Len(t, formats, 1)
	format := formats[0].(map[string]any)
	assert.Equal(t, "json", format["type"])
	assert.NotEmpty(t, format["prompt"])
	assert.NotNil(t, format["schema"])

	var extracted struct {
		Addresses []string `json:"addresses"`
	}
	require.NoError(t, json.Unmarshal(resp.Data.JSON, &extracted))
	assert.Equal(t, []string{"5750 Westchester Farm Dr", "5756 Westchester Farm Dr"}, extracted.Addresses)
}

func TestBatchScrapeStartsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch/scrape", r.URL.Path)
		w.Write([]byte(`{"success": true, "id": "batch-123"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("fc-test", WithBaseURL(srv.URL))
	resp, err := c.BatchScrape(context.Background(), BatchScrapeRequest{
		URLs: []string{"https://lookups.example.org/assessor/details/A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-123", resp.ID)
}

func TestGetBatchScrapeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch/scrape/batch-123", r.URL.Path)
		w.Write([]byte(`{
			"status": "completed",
			"total": 1,
			"data": [{"url": "https://lookups.example.org/assessor/details/A1", "json": {"bedrooms": 4}, "statusCode": 200}]
		}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("fc-test", WithBaseURL(srv.URL))
	status, err := c.GetBatchScrapeStatus(context.Background(), "batch-123")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	require.Len(t, status.Data, 1)
	assert.JSONEq(t, `{"bedrooms": 4}`, string(status.Data[0].JSON))
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": "insufficient credits"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("fc-test", WithBaseURL(srv.URL))
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "insufficient credits")
}
