// Package assessor looks up parcel account numbers in a county assessor's
// public search tool via its CSV export endpoint.
package assessor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client resolves street addresses to assessor account numbers.
type Client interface {
	// LookupAccount searches the assessor export for a street address and
	// returns the matching account number, or nil when no match exists.
	LookupAccount(ctx context.Context, street string) (*string, error)

	// DetailsURL returns the property detail page for an account number.
	DetailsURL(account string) string
}

// accountColumns are the header names the export has been observed to use for
// the account number, in preference order.
var accountColumns = []string{
	"Account", "ACCOUNT", "Account Number", "AccountNumber", "Acct", "Account ID",
}

// detailsLinkRe extracts account numbers from embedded detail-page links when
// no recognizable account column exists.
var detailsLinkRe = regexp.MustCompile(`/assessor/details/([A-Za-z0-9]+)`)

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithResultsPerPage sets how many rows the export is asked for.
func WithResultsPerPage(n int) Option {
	return func(c *client) {
		c.resultsPerPage = n
	}
}

// WithRateLimit sets the requests-per-second limit for export calls. The
// county tool is not built for traffic; stay polite.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type client struct {
	httpClient     *http.Client
	exportURL      string
	detailsBaseURL string
	resultsPerPage int
	limiter        *rate.Limiter
}

// NewClient creates an assessor Client for the given export and details URLs.
func NewClient(exportURL, detailsBaseURL string, opts ...Option) Client {
	c := &client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		exportURL:      exportURL,
		detailsBaseURL: detailsBaseURL,
		resultsPerPage: 3,
		limiter:        rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) DetailsURL(account string) string {
	return strings.TrimRight(c.detailsBaseURL, "/") + "/" + account
}

func (c *client) LookupAccount(ctx context.Context, street string) (*string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "assessor: rate limit")
	}

	params := url.Values{
		"reset_session":         {"true"},
		"SitusName":             {street},
		"searchPropertyType[0]": {"0"},
		"results_per_page":      {strconv.Itoa(c.resultsPerPage)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exportURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "assessor: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "assessor: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "assessor: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	account := extractAccount(string(body), street)
	return account, nil
}

// extractAccount pulls an account number out of the export CSV. It prefers a
// row whose situs address shares the query's house number, then falls back to
// the first data row, then to any embedded details link.
func extractAccount(body, street string) *string {
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil || len(records) < 2 {
		return accountFromLink(body)
	}

	header := records[0]
	col := -1
	for _, candidate := range accountColumns {
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), candidate) {
				col = i
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return accountFromLink(body)
	}

	houseNumber := leadingNumber(street)
	var first *string
	for _, row := range records[1:] {
		if col >= len(row) {
			continue
		}
		account := strings.TrimSpace(row[col])
		if account == "" {
			continue
		}
		if first == nil {
			first = &account
		}
		if houseNumber != "" && rowMatchesHouseNumber(row, houseNumber) {
			return &account
		}
	}
	return first
}

func accountFromLink(body string) *string {
	m := detailsLinkRe.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	return &m[1]
}

func rowMatchesHouseNumber(row []string, houseNumber string) bool {
	for _, field := range row {
		if leadingNumber(field) == houseNumber {
			return true
		}
	}
	return false
}

func leadingNumber(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// APIError represents a non-2xx response from the assessor tool.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assessor: export returned status %d", e.StatusCode)
}
