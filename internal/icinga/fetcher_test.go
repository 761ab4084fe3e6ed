package icinga

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/speedwagon-io/icinga-status/internal/lib/logger/sl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_OK(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": []}`))
	}))
	defer srv.Close()

	q, err := NewQuery(QueryParams{
		Host:        srv.URL,
		Target:      TargetService,
		AuthKey:     "k",
		Columns:     []string{"SERVICE_NAME", "SERVICE_ID"},
		Order:       []string{"SERVICE_ID;DESC"},
		CountColumn: "SERVICE_ID",
		Output:      OutputJSON,
	})
	require.NoError(t, err)

	f := NewFetcher(sl.Discard(), 0, false)
	defer f.Close()

	body, err := f.Fetch(context.Background(), q.URL())
	require.NoError(t, err)
	assert.Equal(t, `{"result": []}`, body)
	assert.Equal(t, "/web/api/service/columns[SERVICE_NAME|SERVICE_ID]/order(SERVICE_ID;DESC)/countColumn=SERVICE_ID/authkey=k/json", gotURI)
}

func TestFetch_NonOKYieldsEmptyBody(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusNoContent} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			w.Write([]byte(`{"result": [{"SERVICE_CURRENT_STATE": 2}]}`))
		}))

		f := NewFetcher(sl.Discard(), 0, false)
		body, err := f.Fetch(context.Background(), srv.URL+"/web/api/service/authkey=k/json")
		srv.Close()

		require.NoError(t, err, code)
		assert.Empty(t, body, code)

		sum, err := Summarize(body, ServiceStates)
		require.NoError(t, err)
		assert.Equal(t, "0 / 0", sum.TotalValue())
	}
}

func TestFetch_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/web/api/host/authkey=secret/json"
	srv.Close()

	f := NewFetcher(sl.Discard(), 0, false)
	_, err := f.Fetch(context.Background(), url)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "get", fe.Op)
	assert.NotContains(t, err.Error(), "secret")
	assert.NotContains(t, err.Error(), "http:/web")
	assert.Contains(t, err.Error(), strings.TrimPrefix(srv.URL, "http://"))
	assert.Contains(t, err.Error(), "authkey=***")
}

func TestFetch_ParseFailureHidesAuthKey(t *testing.T) {
	f := NewFetcher(sl.Discard(), 0, false)
	_, err := f.Fetch(context.Background(), "http://mon.example/web/api/host/authkey=secret/%zz")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "parse", fe.Op)
	assert.NotContains(t, err.Error(), "secret")
}

func TestFetch_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": []}`))
	}))
	defer srv.Close()

	f := NewFetcher(sl.Discard(), 0, true)
	body, err := f.Fetch(context.Background(), srv.URL+"/web/api/host/authkey=k/json")
	require.NoError(t, err)
	assert.Equal(t, `{"result": []}`, body)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := NewFetcher(sl.Discard(), 0, false)
	_, err := f.Fetch(context.Background(), "ftp://mon.example/web/api/host/authkey=k/json")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "parse", fe.Op)
}

func TestRequestURL_DefaultPorts(t *testing.T) {
	tests := []struct {
		raw      string
		wantHost string
	}{
		{"http://mon.example/web/api/host/authkey=k/json", "mon.example:80"},
		{"https://mon.example/web/api/host/authkey=k/json", "mon.example:443"},
		{"https://mon.example:8443/web/api/host/authkey=k/json", "mon.example:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := requestURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, u.Host)
			assert.Equal(t, "/web/api/host/authkey=k/json", u.Opaque)
		})
	}
}

func TestRequestURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "/web/api/host", "mailto:a@b", "http:///web/api"} {
		_, err := requestURL(raw)
		assert.Error(t, err, raw)
	}
}
