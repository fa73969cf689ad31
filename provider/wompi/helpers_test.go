package wompi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mstgnz/gowompi/provider"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "test_client_id"
	testClientSecret = "test_client_secret"
	testToken        = "test_token"
)

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// fakeWompi serves the auth endpoint on /test and the API under /v1/test
type fakeWompi struct {
	t      *testing.T
	server *httptest.Server

	authCalls atomic.Int32
	authCode  int
	authBody  string
	authDelay time.Duration

	mu       sync.Mutex
	routes   map[string]fakeResponse
	requests []recordedRequest
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeWompi(t *testing.T) *fakeWompi {
	t.Helper()

	f := &fakeWompi{
		t:        t,
		authCode: http.StatusOK,
		authBody: `{"access_token":"test_token","expires_in":3600,"token_type":"Bearer"}`,
		routes:   make(map[string]fakeResponse),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWompi) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/test" {
		f.authCalls.Add(1)
		if f.authDelay > 0 {
			select {
			case <-time.After(f.authDelay):
			case <-r.Context().Done():
				return
			}
		}
		if err := r.ParseForm(); err != nil ||
			r.PostForm.Get("grant_type") != "client_credentials" ||
			r.PostForm.Get("client_id") != testClientID ||
			r.PostForm.Get("client_secret") != testClientSecret ||
			r.PostForm.Get("audience") != "wompi_api" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_request"}`)
			return
		}
		w.WriteHeader(f.authCode)
		_, _ = io.WriteString(w, f.authBody)
		return
	}

	rec := recordedRequest{
		Method:        r.Method,
		Path:          strings.TrimPrefix(r.URL.EscapedPath(), "/v1/test/"),
		Authorization: r.Header.Get("Authorization"),
	}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	resp, ok := f.routes[r.Method+" "+rec.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"mensaje":"not found"}`)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeWompi) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeWompi) lastRequest() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeWompi) credentials() Credentials {
	return Credentials{
		AuthURL:      f.server.URL + "/test",
		APIURL:       f.server.URL + "/v1/test",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}
}

func (f *fakeWompi) client(opts ...Option) *Client {
	f.t.Helper()
	client, err := New(f.credentials(), opts...)
	require.NoError(f.t, err)
	return client
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeWompi) {
	t.Helper()
	fake := newFakeWompi(t)
	return fake.client(opts...), fake
}

var errCacheDown = errors.New("cache unavailable")

// failingCache fails every read and write
type failingCache struct{}

func (failingCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, errCacheDown
}

func (failingCache) Set(_ context.Context, _, _ string, _ time.Duration) error {
	return errCacheDown
}

var _ provider.TokenCache = failingCache{}
