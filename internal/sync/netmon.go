package sync

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	defaultProbeInterval = 30 * time.Second
	probeTimeout         = 5 * time.Second
)

// ProbeMonitor watches connectivity to the sync service by probing its
// health endpoint. It starts optimistic (online) so the first sync attempt
// is not blocked waiting for a probe; a failed attempt flips the state soon
// enough.
type ProbeMonitor struct {
	probeURL   string
	interval   atomic.Int64 // nanoseconds, mutable through SetInterval
	httpClient *http.Client
	logger     *slog.Logger

	online atomic.Bool
	events chan bool
}

// NewProbeMonitor creates a ProbeMonitor against the given health URL. An
// interval <= 0 selects the default.
func NewProbeMonitor(probeURL string, interval time.Duration, httpClient *http.Client, logger *slog.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: probeTimeout}
	}

	m := &ProbeMonitor{
		probeURL:   probeURL,
		httpClient: httpClient,
		logger:     logger,
		events:     make(chan bool, 4),
	}

	m.interval.Store(int64(interval))
	m.online.Store(true)

	return m
}

// SetInterval changes the probe cadence, applied after the next probe. An
// interval <= 0 selects the default.
func (m *ProbeMonitor) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	m.interval.Store(int64(interval))
}

// Online reports the last probed connectivity state.
func (m *ProbeMonitor) Online() bool {
	return m.online.Load()
}

// Events returns a channel delivering connectivity transitions: true when
// the service became reachable, false when it stopped being reachable.
// Steady states are not re-delivered.
func (m *ProbeMonitor) Events() <-chan bool {
	return m.events
}

// Run probes until ctx is cancelled. The first probe fires immediately so
// a device starting offline finds out before the first scheduled sync.
func (m *ProbeMonitor) Run(ctx context.Context) {
	m.probe(ctx)

	current := time.Duration(m.interval.Load())

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)

			if next := time.Duration(m.interval.Load()); next != current {
				current = next
				ticker.Reset(current)
			}
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		m.transition(false)
		return
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.transition(false)
		return
	}

	resp.Body.Close()

	m.transition(resp.StatusCode < http.StatusInternalServerError)
}

func (m *ProbeMonitor) transition(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	if online {
		m.logger.Info("network restored")
	} else {
		m.logger.Warn("network unavailable")
	}

	// Non-blocking: a full channel means the consumer is behind, and the
	// latest state is always readable through Online.
	select {
	case m.events <- online:
	default:
	}
}
