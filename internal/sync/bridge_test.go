package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/auth"
)

// fakeAuthSource scripts the auth provider: a fixed current identity plus an
// event channel the test feeds and then closes to end Run.
type fakeAuthSource struct {
	identity *auth.Identity
	events   chan auth.Event
}

func newFakeAuthSource(identity *auth.Identity) *fakeAuthSource {
	return &fakeAuthSource{identity: identity, events: make(chan auth.Event, 8)}
}

func (f *fakeAuthSource) CurrentUser() (*auth.Identity, bool) {
	return f.identity, f.identity != nil
}

func (f *fakeAuthSource) Events() <-chan auth.Event { return f.events }

type recordingEnsurer struct {
	users []api.User
	err   error
}

func (r *recordingEnsurer) EnsureUser(_ context.Context, user api.User) error {
	r.users = append(r.users, user)
	return r.err
}

type recordingClearer struct {
	cleared []string
}

func (r *recordingClearer) ClearOwnedRecords(_ context.Context, ownerID string) error {
	r.cleared = append(r.cleared, ownerID)
	return nil
}

// bridgeFixture wires a Bridge over a real store and orchestrator with
// recording fakes at the edges.
type bridgeFixture struct {
	bridge  *Bridge
	source  *fakeAuthSource
	ensurer *recordingEnsurer
	clearer *recordingClearer
	syncer  *scriptedSyncer
	done    chan struct{}
}

func newBridgeFixture(t *testing.T, identity *auth.Identity) *bridgeFixture {
	t.Helper()

	st := openTestStore(t)
	seedAnonymousData(t, st)

	source := newFakeAuthSource(identity)
	ensurer := &recordingEnsurer{}
	clearer := &recordingClearer{}
	syncer := &scriptedSyncer{entityType: "calendars"}

	orchestrator := NewOrchestrator([]EntitySyncer{syncer},
		signedInProvider(), &fakeNetwork{online: true},
		fixedClock(9000), time.Minute, testLogger())

	migrator := NewMigrator(st, fixedClock(9000), testLogger())

	return &bridgeFixture{
		bridge:  NewBridge(source, ensurer, clearer, migrator, orchestrator, testLogger()),
		source:  source,
		ensurer: ensurer,
		clearer: clearer,
		syncer:  syncer,
		done:    make(chan struct{}),
	}
}

// run starts the bridge and returns after it has drained all queued events.
func (f *bridgeFixture) run(t *testing.T) {
	t.Helper()

	go func() {
		f.bridge.Run(context.Background())
		close(f.done)
	}()

	close(f.source.events)

	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not finish")
	}
}

func TestBridge_PrimingDoesNotReactToExistingSignIn(t *testing.T) {
	f := newBridgeFixture(t, &auth.Identity{UserID: "user-1"})

	// The session was already signed in at process start; a duplicate
	// sign-in event for the same user must not re-run the sequence.
	f.source.events <- auth.Event{Type: auth.SignedIn, Identity: &auth.Identity{UserID: "user-1"}}
	f.run(t)

	assert.Empty(t, f.ensurer.users, "no registration on launch")
	assert.Zero(t, f.syncer.calls, "no sync triggered by a duplicate sign-in")
}

func TestBridge_FreshSignInRegistersMigratesAndSyncs(t *testing.T) {
	f := newBridgeFixture(t, nil)

	f.source.events <- auth.Event{Type: auth.SignedIn, Identity: &auth.Identity{
		UserID: "user-1", Email: "u@example.com", DisplayName: "U",
	}}
	f.run(t)

	require.Len(t, f.ensurer.users, 1)
	assert.Equal(t, "user-1", f.ensurer.users[0].ID)
	assert.Equal(t, "u@example.com", f.ensurer.users[0].Email)

	assert.Equal(t, 1, f.syncer.calls, "sign-in ends with a full sync")
}

func TestBridge_SignInMigratesAnonymousData(t *testing.T) {
	st := openTestStore(t)
	seedAnonymousData(t, st)

	source := newFakeAuthSource(nil)
	orchestrator := NewOrchestrator(nil, signedInProvider(), &fakeNetwork{online: true},
		fixedClock(9000), time.Minute, testLogger())

	b := NewBridge(source, &recordingEnsurer{}, &recordingClearer{},
		NewMigrator(st, fixedClock(9000), testLogger()), orchestrator, testLogger())

	b.prime()
	b.handle(context.Background(), auth.Event{
		Type: auth.SignedIn, Identity: &auth.Identity{UserID: "user-1"},
	})

	anon, err := st.ListAnonymousCalendars(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anon, "anonymous records belong to the new owner after sign-in")

	owned, err := st.ListCalendarsByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestBridge_RegistrationFailureSkipsMigrationAndSync(t *testing.T) {
	f := newBridgeFixture(t, nil)
	f.ensurer.err = errors.New("service unavailable")

	f.source.events <- auth.Event{Type: auth.SignedIn, Identity: &auth.Identity{UserID: "user-1"}}
	f.run(t)

	assert.Zero(t, f.syncer.calls, "no sync against an unregistered user")
}

func TestBridge_SignInWithoutIdentityIgnored(t *testing.T) {
	f := newBridgeFixture(t, nil)

	f.source.events <- auth.Event{Type: auth.SignedIn}
	f.run(t)

	assert.Empty(t, f.ensurer.users)
	assert.Zero(t, f.syncer.calls)
}

func TestBridge_SignOutClearsOwnedData(t *testing.T) {
	f := newBridgeFixture(t, &auth.Identity{UserID: "user-1"})

	f.source.events <- auth.Event{Type: auth.SignedOut}
	f.run(t)

	assert.Equal(t, []string{"user-1"}, f.clearer.cleared)
}

func TestBridge_SignOutWhileSignedOutIgnored(t *testing.T) {
	f := newBridgeFixture(t, nil)

	f.source.events <- auth.Event{Type: auth.SignedOut}
	f.run(t)

	assert.Empty(t, f.clearer.cleared)
}
