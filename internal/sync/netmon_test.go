package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMonitor_StartsOptimistic(t *testing.T) {
	m := NewProbeMonitor("http://127.0.0.1:1/health", 0, nil, testLogger())

	assert.True(t, m.Online(), "a device starting offline should still attempt its first sync")
}

func TestProbeMonitor_SetIntervalFloorsAtDefault(t *testing.T) {
	m := NewProbeMonitor("http://127.0.0.1:1/health", time.Minute, nil, testLogger())

	m.SetInterval(5 * time.Second)
	assert.Equal(t, int64(5*time.Second), m.interval.Load())

	m.SetInterval(0)
	assert.Equal(t, int64(defaultProbeInterval), m.interval.Load())
}

func TestProbeMonitor_DetectsOutageAndRecovery(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewProbeMonitor(srv.URL+"/health", 0, srv.Client(), testLogger())
	ctx := context.Background()

	m.probe(ctx)
	assert.True(t, m.Online())

	healthy.Store(false)
	m.probe(ctx)
	assert.False(t, m.Online())

	select {
	case online := <-m.Events():
		assert.False(t, online)
	default:
		t.Fatal("expected an offline transition event")
	}

	healthy.Store(true)
	m.probe(ctx)
	assert.True(t, m.Online())

	select {
	case online := <-m.Events():
		assert.True(t, online)
	default:
		t.Fatal("expected an online transition event")
	}
}

func TestProbeMonitor_SteadyStateNotRedelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewProbeMonitor(srv.URL, 0, srv.Client(), testLogger())
	ctx := context.Background()

	m.probe(ctx)
	m.probe(ctx)
	m.probe(ctx)

	select {
	case <-m.Events():
		t.Fatal("healthy probes from a healthy start must not produce events")
	default:
	}
}

func TestProbeMonitor_ClientSideErrorMeansReachable(t *testing.T) {
	// 4xx proves the service answered; only connection failures and 5xx
	// count as an outage.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewProbeMonitor(srv.URL, 0, srv.Client(), testLogger())

	m.probe(context.Background())

	require.True(t, m.Online())
}
