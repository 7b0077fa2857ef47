package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetwork satisfies NetworkMonitor.
type fakeNetwork struct {
	online bool
	events chan bool
}

func (f *fakeNetwork) Online() bool        { return f.online }
func (f *fakeNetwork) Events() <-chan bool { return f.events }

// scriptedSyncer records invocations and returns a scripted result.
type scriptedSyncer struct {
	entityType string
	result     Result
	mu         sync.Mutex
	calls      int
	order      *[]string
	block      chan struct{}
}

func (s *scriptedSyncer) EntityType() string { return s.entityType }

func (s *scriptedSyncer) Sync(context.Context, string) Result {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	s.calls++

	if s.order != nil {
		*s.order = append(*s.order, s.entityType)
	}
	s.mu.Unlock()

	return s.result
}

func newTestOrchestrator(syncers []EntitySyncer, online bool) *Orchestrator {
	return NewOrchestrator(syncers, signedInProvider(), &fakeNetwork{online: online},
		fixedClock(1000), time.Minute, testLogger())
}

func TestOrchestrator_RunsSyncersInDependencyOrder(t *testing.T) {
	var order []string

	syncers := []EntitySyncer{
		&scriptedSyncer{entityType: "calendars", order: &order},
		&scriptedSyncer{entityType: "habits", order: &order},
		&scriptedSyncer{entityType: "activity_days", order: &order},
		&scriptedSyncer{entityType: "completions", order: &order},
	}

	o := newTestOrchestrator(syncers, true)

	require.NoError(t, o.FullSync(context.Background()))

	assert.Equal(t, []string{"calendars", "habits", "activity_days", "completions"}, order)
	assert.Equal(t, StateSynced, o.Status().State)
	assert.False(t, o.Status().LastSync.IsZero())
}

func TestOrchestrator_OfflineFailsFast(t *testing.T) {
	called := &scriptedSyncer{entityType: "calendars"}

	o := newTestOrchestrator([]EntitySyncer{called}, false)

	err := o.FullSync(context.Background())

	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.Equal(t, StateOffline, o.Status().State)
	assert.Zero(t, called.calls)
}

func TestOrchestrator_NotSignedInFailsFast(t *testing.T) {
	o := NewOrchestrator(nil, &fakeProvider{}, &fakeNetwork{online: true},
		fixedClock(1000), time.Minute, testLogger())

	assert.ErrorIs(t, o.FullSync(context.Background()), ErrAuthNotReady)
}

func TestOrchestrator_SingleFlight(t *testing.T) {
	block := make(chan struct{})
	slow := &scriptedSyncer{entityType: "calendars", block: block}

	o := newTestOrchestrator([]EntitySyncer{slow}, true)

	done := make(chan error, 1)

	go func() { done <- o.FullSync(context.Background()) }()

	// Wait until the first cycle is in flight, then try to start another.
	require.Eventually(t, func() bool {
		return o.Status().InProgress
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, o.FullSync(context.Background()), ErrAlreadySyncing)

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, slow.calls)
}

func TestOrchestrator_WaitTimeoutDoesNotAbortCycle(t *testing.T) {
	block := make(chan struct{})
	slow := &scriptedSyncer{entityType: "calendars", block: block}

	o := NewOrchestrator([]EntitySyncer{slow}, signedInProvider(), &fakeNetwork{online: true},
		fixedClock(1000), 20*time.Millisecond, testLogger())

	err := o.FullSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncWaitTimeout)
	assert.True(t, o.Status().InProgress, "the cycle keeps running after the caller stops waiting")

	close(block)

	require.Eventually(t, func() bool {
		return !o.Status().InProgress
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, slow.calls)
	assert.Equal(t, StateSynced, o.Status().State)
}

func TestOrchestrator_PartialFailureDoesNotStopLaterTypes(t *testing.T) {
	failing := &scriptedSyncer{
		entityType: "habits",
		result:     Result{Status: ResultPartial, Reasons: []string{"page 3 timed out"}},
	}
	after := &scriptedSyncer{entityType: "completions"}

	o := newTestOrchestrator([]EntitySyncer{failing, after}, true)

	require.NoError(t, o.FullSync(context.Background()))

	assert.Equal(t, 1, after.calls, "types after a failing one still sync")

	status := o.Status()
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "page 3 timed out", status.LastError)
	assert.True(t, status.LastSync.IsZero(), "an error cycle does not count as a successful sync")
}

func TestOrchestrator_TriggerCoalescesBurst(t *testing.T) {
	block := make(chan struct{})
	slow := &scriptedSyncer{entityType: "calendars", block: block}

	o := newTestOrchestrator([]EntitySyncer{slow}, true)

	ctx := context.Background()

	o.TriggerSync(ctx)

	require.Eventually(t, func() bool {
		return o.Status().InProgress
	}, time.Second, time.Millisecond)

	// A burst of triggers during the active cycle folds into one re-run.
	o.TriggerSync(ctx)
	o.TriggerSync(ctx)
	o.TriggerSync(ctx)

	block <- struct{}{} // release first cycle
	block <- struct{}{} // release the coalesced re-run

	require.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()

		return slow.calls == 2 && !o.Status().InProgress
	}, time.Second, time.Millisecond)
}
