package assessor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAccountQueryShape(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"reset_session":         q.Get("reset_session"),
			"SitusName":             q.Get("SitusName"),
			"searchPropertyType[0]": q.Get("searchPropertyType[0]"),
			"results_per_page":      q.Get("results_per_page"),
		}
		w.Write([]byte("Account,Situs Address\nT123456,5756 Westchester Farm Dr\n")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	account, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.NoError(t, err)

	assert.Equal(t, "true", gotQuery["reset_session"])
	assert.Equal(t, "5756 Westchester Farm Dr", gotQuery["SitusName"])
	assert.Equal(t, "0", gotQuery["searchPropertyType[0]"])
	assert.Equal(t, "3", gotQuery["results_per_page"])
	require.NotNil(t, account)
	assert.Equal(t, "T123456", *account)
}

func TestLookupAccountPrefersHouseNumberMatch(t *testing.T) {
	body := "ACCOUNT,Situs Address\n" +
		"A111,5750 Westchester Farm Dr\n" +
		"A222,5756 Westchester Farm Dr\n" +
		"A333,5760 Westchester Farm Dr\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	account, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "A222", *account)
}

func TestLookupAccountFallsBackToFirstRow(t *testing.T) {
	body := "Account Number,Situs Address\nB999,12 Somewhere Else Rd\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	account, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "B999", *account)
}

func TestLookupAccountDetailsLinkFallback(t *testing.T) {
	// Export without a recognizable account column but with embedded links.
	body := "Parcel,Link\nX,https://lookups.example.org/assessor/details/T987654\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	account, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "T987654", *account)
}

func TestLookupAccountNoMatchIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Account,Situs Address\n")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	account, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestLookupAccountServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL+"/details")
	_, err := c.LookupAccount(context.Background(), "5756 Westchester Farm Dr")
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 502")
}

func TestDetailsURL(t *testing.T) {
	c := NewClient("https://lookups.example.org/assessor/export", "https://lookups.example.org/assessor/details/")
	assert.Equal(t, "https://lookups.example.org/assessor/details/T123456", c.DetailsURL("T123456"))
}
