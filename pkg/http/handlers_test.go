package http

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"qr-tracker/pkg/geo"
	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/middleware"
	"qr-tracker/pkg/service"
	"qr-tracker/pkg/storage"
)

type fixedLocator struct{}

func (fixedLocator) Lookup(ctx context.Context, ip string) (*geo.Location, error) {
	return &geo.Location{City: "Paris", Country: "France", Lat: 48.8566, Lon: 2.3522}, nil
}

type testServer struct {
	*httptest.Server
	mem       *storage.MemoryStorage
	redirects *service.RedirectService
}

func newTestServer(t *testing.T, auth *middleware.Authenticator) *testServer {
	t.Helper()
	logger := logging.Nop()
	mem := storage.NewMemoryStorage()
	redirects := service.NewRedirectService(mem, mem, nil, time.Minute, logger)

	handler, err := NewHandler(HandlerDeps{
		Tracker:   service.NewTracker(redirects, mem, fixedLocator{}, time.Second, logger),
		Redirects: redirects,
		Dashboard: service.NewDashboardService(redirects, mem),
		Auth:      auth,
		PublicURL: "https://qr.example.com",
		Logger:    logger,
	})
	require.NoError(t, err)

	opts := RouteOptions{TrackRateLimit: 1000, TrackRateWindow: time.Minute}
	r := NewRouter(opts)
	SetupRoutes(r, handler, opts)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mem: mem, redirects: redirects}
}

// browser is an HTTP client with a cookie jar that does not follow redirects.
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfFrom(t *testing.T, client *http.Client, pageURL string) string {
	t.Helper()
	resp, err := client.Get(pageURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m := csrfInput.FindStringSubmatch(string(body))
	require.Len(t, m, 2, "page has no csrf token")
	return m[1]
}

func TestTrackEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	_, err := srv.redirects.Create(context.Background(), "", "promo1", "https://example.com/sale")
	require.NoError(t, err)
	client := browser(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
		wantLoc  string
	}{
		{"redirects", "/track?id=promo1", http.StatusFound, "", "https://example.com/sale"},
		{"short alias", "/r/promo1", http.StatusFound, "", "https://example.com/sale"},
		{"missing id", "/track", http.StatusBadRequest, "Missing ID", ""},
		{"unknown code", "/track?id=doesnotexist", http.StatusNotFound, "Invalid code", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(string(body)))
			}
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, resp.Header.Get("Location"))
			}
		})
	}

	n, err := srv.mem.CountByCode(context.Background(), "promo1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = srv.mem.CountByCode(context.Background(), "doesnotexist")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDashboardFlowWithoutAuth(t *testing.T) {
	srv := newTestServer(t, nil)
	client := browser(t)

	token := csrfFrom(t, client, srv.URL+"/dashboard")

	post := func(path string, form url.Values) *http.Response {
		form.Set("csrf_token", token)
		resp, err := client.PostForm(srv.URL+path, form)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := post("/add", url.Values{"short_id": {"promo1"}, "destination": {"https://example.com"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = post("/add", url.Values{"short_id": {"promo1"}, "destination": {"https://other.example"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = post("/add", url.Values{"short_id": {""}, "destination": {"https://other.example"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post("/edit", url.Values{"short_id": {"promo1"}, "new_destination": {"https://example.org"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = post("/edit", url.Values{"short_id": {"ghost"}, "new_destination": {"https://example.org"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL + "/track?id=promo1")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "https://example.org", resp.Header.Get("Location"))
	}

	apiResp, err := client.Get(srv.URL + "/api/dashboard")
	require.NoError(t, err)
	defer apiResp.Body.Close()
	var dash service.Dashboard
	require.NoError(t, json.NewDecoder(apiResp.Body).Decode(&dash))
	require.Len(t, dash.Stats, 1)
	assert.Equal(t, "promo1", dash.Stats[0].ShortCode)
	assert.Equal(t, 3, dash.Stats[0].Scans)
	require.Len(t, dash.Locations, 1)
	assert.Equal(t, 3, dash.Locations[0].Scans)

	csvResp, err := client.Get(srv.URL + "/export-csv")
	require.NoError(t, err)
	defer csvResp.Body.Close()
	assert.Contains(t, csvResp.Header.Get("Content-Disposition"), "all_scan_logs.csv")
	records, err := csv.NewReader(csvResp.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	resp = post("/delete/promo1", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp = post("/delete/promo1", url.Values{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	n, err := srv.mem.CountByCode(context.Background(), "promo1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFormsRequireCSRF(t *testing.T) {
	srv := newTestServer(t, nil)
	client := browser(t)

	resp, err := client.PostForm(srv.URL+"/add", url.Values{"short_id": {"promo1"}, "destination": {"https://example.com"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestQREndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	_, err := srv.redirects.Create(context.Background(), "", "promo1", "https://example.com")
	require.NoError(t, err)
	client := browser(t)

	tests := []struct {
		path        string
		contentType string
		filename    string
	}{
		{"/view-qr/promo1", "image/png", ""},
		{"/download-png/promo1", "image/png", "promo1_qr.png"},
		{"/download-svg/promo1", "image/svg+xml", "promo1_qr.svg"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			if tt.filename != "" {
				assert.Contains(t, resp.Header.Get("Content-Disposition"), tt.filename)
			} else {
				assert.Empty(t, resp.Header.Get("Content-Disposition"))
			}
		})
	}

	resp, err := client.Get(srv.URL + "/view-qr/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	sessions, err := middleware.NewSessionManager(middleware.SessionConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		TTL:        time.Hour,
		CookieName: "qrtrack_session",
		Users:      map[string]string{"alice": string(hash), "bob": string(hash)},
	})
	require.NoError(t, err)
	srv := newTestServer(t, middleware.NewAuthenticator(true, sessions, nil, logging.Nop()))
	_, err = srv.redirects.Create(context.Background(), "bob", "bobs", "https://bob.example")
	require.NoError(t, err)

	client := browser(t)

	resp, err := client.Get(srv.URL + "/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	token := csrfFrom(t, client, srv.URL+"/login")

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"username": {"alice"}, "password": {"wrong"}, "csrf_token": {token}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"username": {"alice"}, "password": {"s3cret"}, "csrf_token": {token}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/dashboard")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "alice")
	assert.NotContains(t, string(body), "bobs")

	resp, err = client.PostForm(srv.URL+"/delete/bobs", url.Values{"csrf_token": {token}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/export-csv")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "alice_scan_logs.csv")

	resp, err = client.Get(srv.URL + "/logout")
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = client.Get(srv.URL + "/api/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func newTrackRouter(t *testing.T, opts RouteOptions) http.Handler {
	t.Helper()
	logger := logging.Nop()
	mem := storage.NewMemoryStorage()
	redirects := service.NewRedirectService(mem, mem, nil, time.Minute, logger)
	_, err := redirects.Create(context.Background(), "", "promo1", "https://example.com")
	require.NoError(t, err)
	handler, err := NewHandler(HandlerDeps{
		Tracker:   service.NewTracker(redirects, mem, nil, time.Second, logger),
		Redirects: redirects,
		Dashboard: service.NewDashboardService(redirects, mem),
		Logger:    logger,
	})
	require.NoError(t, err)

	r := NewRouter(opts)
	SetupTrackRoutes(r, handler, opts)
	return r
}

func TestTrackRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		expected   []int
	}{
		{"forwarded headers ignored", false, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}},
		{"forwarded headers trusted", true, []int{http.StatusFound, http.StatusFound, http.StatusFound}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTrackRouter(t, RouteOptions{TrackRateLimit: 2, TrackRateWindow: time.Minute, TrustProxy: tt.trustProxy})

			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				w := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/track?id=promo1", nil)
				req.RemoteAddr = "203.0.113.7:5555"
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
				r.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.expected, codes)
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
