package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/metrics"
)

type fakeProfiles struct {
	profile *domain.Profile
	err     error
	panic   bool
	calls   []string
}

func (f *fakeProfiles) GetProfile(ctx context.Context, username string) (*domain.Profile, error) {
	f.calls = append(f.calls, username)
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeInvalidator struct {
	err         error
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, username string) error {
	f.invalidated = append(f.invalidated, username)
	return f.err
}

func newTestRouter(profiles *fakeProfiles, invalidator CacheInvalidator, collector *metrics.Collector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	NewHandler(profiles, invalidator, logger, collector).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }

func TestGetUserSuccess(t *testing.T) {
	profiles := &fakeProfiles{profile: &domain.Profile{
		Username:    "octocat",
		DisplayName: strPtr("The Octocat"),
		Avatar:      strPtr("https://avatars.githubusercontent.com/u/583231?v=4"),
		Location:    strPtr("San Francisco"),
		URL:         strPtr("https://api.github.com/users/octocat"),
		CreatedAt:   strPtr("Tue, 25 Jan 2011 18:44:36 GMT"),
		Repos: []domain.Repo{
			{Name: "boysenberry-repo-1", URL: "https://api.github.com/repos/octocat/boysenberry-repo-1"},
			{Name: "git-consortium", URL: "https://api.github.com/repos/octocat/git-consortium"},
		},
	}}
	router := newTestRouter(profiles, nil, nil)

	rec := serve(router, http.MethodGet, "/api/users/octocat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]any{
		"user_name":    "octocat",
		"display_name": "The Octocat",
		"avatar":       "https://avatars.githubusercontent.com/u/583231?v=4",
		"geo_location": "San Francisco",
		"email":        nil,
		"url":          "https://api.github.com/users/octocat",
		"created_at":   "Tue, 25 Jan 2011 18:44:36 GMT",
	}
	for key, value := range want {
		got, ok := body[key]
		if !ok {
			t.Errorf("missing key %q", key)
			continue
		}
		if got != value {
			t.Errorf("%s = %v, want %v", key, got, value)
		}
	}

	repos, ok := body["repos"].([]any)
	if !ok || len(repos) != 2 {
		t.Fatalf("repos = %v", body["repos"])
	}
	first := repos[0].(map[string]any)
	if first["name"] != "boysenberry-repo-1" || first["url"] != "https://api.github.com/repos/octocat/boysenberry-repo-1" {
		t.Errorf("repos[0] = %v", first)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}
}

func TestGetUserEmptyReposRendersArray(t *testing.T) {
	profiles := &fakeProfiles{profile: &domain.Profile{Username: "octocat"}}
	router := newTestRouter(profiles, nil, nil)

	rec := serve(router, http.MethodGet, "/api/users/octocat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"repos":[]`) {
		t.Errorf("body = %s, want empty repos array", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"created_at":null`) {
		t.Errorf("body = %s, want null created_at", rec.Body.String())
	}
}

func TestGetUserErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:        "not found",
			err:         domain.NotFound("ghost"),
			wantStatus:  http.StatusNotFound,
			wantError:   "Not Found",
			wantMessage: "GitHub user not found: ghost",
		},
		{
			name:        "upstream status",
			err:         domain.UpstreamFailure(503, ""),
			wantStatus:  http.StatusBadGateway,
			wantError:   "Bad Gateway",
			wantMessage: "Error communicating with GitHub API: GitHub API error: 503",
		},
		{
			name:        "internal",
			err:         domain.InternalFailure("fetch user", errors.New("dial tcp: connection refused")),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "Internal Server Error",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "unclassified",
			err:         context.DeadlineExceeded,
			wantStatus:  http.StatusInternalServerError,
			wantError:   "Internal Server Error",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeProfiles{err: tt.err}, nil, nil)
			rec := serve(router, http.MethodGet, "/api/users/ghost")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantError || body.Message != tt.wantMessage || body.Status != tt.wantStatus {
				t.Errorf("body = %+v", body)
			}
			if strings.Contains(rec.Body.String(), "connection refused") {
				t.Error("internal cause leaked into the response")
			}
		})
	}
}

func TestUnknownRoutes(t *testing.T) {
	profiles := &fakeProfiles{}
	router := newTestRouter(profiles, nil, nil)

	for _, target := range []string{"/", "/api", "/api/users", "/api/users/", "/api/users/octocat/repos", "/favicon.ico"} {
		rec := serve(router, http.MethodGet, target)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
			continue
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode body: %v", target, err)
		}
		if body.Message != invalidEndpointMessage || body.Status != http.StatusNotFound || body.Error != "Not Found" {
			t.Errorf("%s: body = %+v", target, body)
		}
	}
	if len(profiles.calls) != 0 {
		t.Errorf("profile service called for unknown routes: %v", profiles.calls)
	}
}

func TestPanicRecoversWithUniformBody(t *testing.T) {
	router := newTestRouter(&fakeProfiles{panic: true}, nil, nil)

	rec := serve(router, http.MethodGet, "/api/users/octocat")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Message != "An unexpected error occurred" || body.Status != http.StatusInternalServerError {
		t.Errorf("body = %+v", body)
	}
}

func TestInvalidateUser(t *testing.T) {
	invalidator := &fakeInvalidator{}
	router := newTestRouter(&fakeProfiles{}, invalidator, nil)

	rec := serve(router, http.MethodDelete, "/api/users/octocat/cache")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(invalidator.invalidated) != 1 || invalidator.invalidated[0] != "octocat" {
		t.Errorf("invalidated = %v", invalidator.invalidated)
	}
}

func TestInvalidateRouteDisabledWithoutInvalidator(t *testing.T) {
	router := newTestRouter(&fakeProfiles{}, nil, nil)

	rec := serve(router, http.MethodDelete, "/api/users/octocat/cache")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Message != invalidEndpointMessage {
		t.Errorf("body = %+v", body)
	}
}

func TestInvalidateUserStoreFailure(t *testing.T) {
	invalidator := &fakeInvalidator{err: errors.New("redis: connection refused")}
	router := newTestRouter(&fakeProfiles{}, invalidator, nil)

	rec := serve(router, http.MethodDelete, "/api/users/octocat/cache")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeProfiles{}, nil, nil)

	rec := serve(router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(&fakeProfiles{profile: &domain.Profile{Username: "octocat"}}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users/octocat", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&fakeProfiles{}, nil, nil)

	rec := serve(router, http.MethodOptions, "/api/users/octocat")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestRequestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	router := newTestRouter(&fakeProfiles{err: domain.NotFound("ghost")}, nil, collector)

	serve(router, http.MethodGet, "/api/users/ghost")
	serve(router, http.MethodGet, "/nope")

	expected := `
# HELP user_proxy_http_requests_total Total number of HTTP requests served
# TYPE user_proxy_http_requests_total counter
user_proxy_http_requests_total{route="/api/users/:username",status_code="404"} 1
user_proxy_http_requests_total{route="unmatched",status_code="404"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "user_proxy_http_requests_total"); err != nil {
		t.Error(err)
	}
}
