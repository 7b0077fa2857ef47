package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

type failingToken struct{}

func (failingToken) Token() (string, error) { return "", errors.New("no token on disk") }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient points a Client at the given handler with sleeps recorded
// instead of slept.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client(), staticToken("tok-123"), testLogger())

	var sleeps []time.Duration

	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	return c, &sleeps
}

func TestDo_SetsAuthAndUserAgent(t *testing.T) {
	var gotAuth, gotUA string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))

	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, userAgent, gotUA)
}

func TestDo_RequestIDStableAcrossRetries(t *testing.T) {
	var ids []string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Client-Request-Id"))
		if len(ids) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	resp, err := c.Do(context.Background(), http.MethodGet, "/flaky", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1], "retries reuse the same client request id")
}

func TestDo_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	resp, err := c.Do(context.Background(), http.MethodGet, "/flaky", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.EqualValues(t, 3, calls.Load())
	assert.Len(t, *sleeps, 2)
}

func TestDo_HonorsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int32

	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	resp, err := c.Do(context.Background(), http.MethodGet, "/limited", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, *sleeps, 1)
	assert.Equal(t, 7*time.Second, (*sleeps)[0], "Retry-After overrides computed backoff")
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("request-id", "req-42")
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Do(context.Background(), http.MethodGet, "/secret", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, *sleeps)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "req-42", apiErr.RequestID)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Do(context.Background(), http.MethodGet, "/down", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Len(t, *sleeps, maxRetries)
}

func TestDo_RetryResendsFullBody(t *testing.T) {
	var (
		calls  atomic.Int32
		bodies []string
	)

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"records":[{"localUuid":"cal-1"}]}`)

	resp, err := c.Do(context.Background(), http.MethodPost, "/calendars/batch", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1], "a retried request resends the full payload")
	assert.Equal(t, string(body), bodies[1])
}

func TestDo_TokenFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request should reach the server without a token")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), failingToken{}, testLogger())
	c.sleepFunc = func(context.Context, time.Duration) error { return nil }

	_, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token on disk")
}

func TestDo_CanceledContextNotRetried(t *testing.T) {
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, http.MethodGet, "/ping", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *sleeps)
}

func TestCalcBackoffStaysWithinJitterBounds(t *testing.T) {
	c := NewClient("http://localhost", nil, staticToken("t"), testLogger())

	for attempt := 0; attempt < 8; attempt++ {
		got := c.calcBackoff(attempt)

		assert.Greater(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

func TestErrorStringIncludesRequestID(t *testing.T) {
	withID := &Error{StatusCode: 503, RequestID: "req-1", Message: "overloaded", Err: ErrServerError}
	assert.Contains(t, withID.Error(), "req-1")
	assert.Contains(t, withID.Error(), "503")

	withoutID := &Error{StatusCode: 400, Message: "bad", Err: ErrBadRequest}
	assert.NotContains(t, withoutID.Error(), "request-id")
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusInternalServerError, ErrServerError},
		{http.StatusBadGateway, ErrServerError},
		{http.StatusOK, nil},
	}

	for _, tc := range cases {
		assert.ErrorIs(t, classifyStatus(tc.code), tc.want)
	}
}
