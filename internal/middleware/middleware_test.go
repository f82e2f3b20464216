package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/recordloader"
	"github.com/rpattn/pawlog/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestLimiterStoreReusesLimiterPerKey(t *testing.T) {
	s := NewLimiterStore(10, 1)
	assert.Same(t, s.Get("k"), s.Get("k"))
	assert.NotSame(t, s.Get("k"), s.Get("other"))
	assert.Equal(t, 2, s.Len())
}

func TestLimiterStoreCleanupRemovesIdleEntries(t *testing.T) {
	s := NewLimiterStore(10, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0))
	now := time.Now()
	s.now = func() time.Time { return now }

	before := s.Get("k")
	now = now.Add(2 * time.Minute)
	s.Cleanup()
	assert.Equal(t, 0, s.Len())
	assert.NotSame(t, before, s.Get("k"))
}

func TestJanitorStopsWithContext(t *testing.T) {
	s := NewLimiterStore(10, 1, WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartJanitor(ctx)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	handler := RateLimit(NewLimiterStore(0.01, 1), nil)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	other := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code, "buckets are per client")
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	assert.Equal(t, "ip:192.168.1.9", RateLimitKey(req))

	id := uuid.New()
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), id))
	assert.Equal(t, "user:"+id.String(), RateLimitKey(req))
}

type stubAuthenticator struct {
	principal uuid.UUID
	err       error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.principal, nil
}

func TestRequireAuth(t *testing.T) {
	principal := uuid.New()
	var seen uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		authn  stubAuthenticator
		status int
	}{
		{name: "missing header", header: "", authn: stubAuthenticator{principal: principal}, status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", authn: stubAuthenticator{principal: principal}, status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer tok", authn: stubAuthenticator{err: auth.ErrSessionExpired}, status: http.StatusUnauthorized},
		{name: "store down", header: "Bearer tok", authn: stubAuthenticator{err: errors.New("conn refused")}, status: http.StatusServiceUnavailable},
		{name: "valid", header: "bearer tok", authn: stubAuthenticator{principal: principal}, status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(tt.authn, nil)(next).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, principal, seen)
			} else {
				assert.Equal(t, uuid.Nil, seen)
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		header   string
		bearer   bool
		status   int
	}{
		{name: "missing", expected: "ops", status: http.StatusForbidden},
		{name: "wrong", expected: "ops", header: "opz", status: http.StatusForbidden},
		{name: "bearer session only", expected: "ops", bearer: true, status: http.StatusForbidden},
		{name: "unconfigured", expected: "", header: "", status: http.StatusForbidden},
		{name: "match", expected: "ops", header: "ops", status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/admin/profiles/x/tier", nil)
			if tt.header != "" {
				req.Header.Set(OperatorTokenHeader, tt.header)
			}
			if tt.bearer {
				req.Header.Set("Authorization", "Bearer ops")
			}
			rec := httptest.NewRecorder()
			RequireOperator(tt.expected, nil)(okHandler).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/pets", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/api/pets", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}

type noRecords struct {
	repository.HealthRecordRepository
}

func TestDataLoaderMiddlewareAttachesLoader(t *testing.T) {
	var found bool
	handler := DataLoaderMiddleware(noRecords{})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		found = recordloader.FromContext(r.Context()) != nil
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, found)
}
