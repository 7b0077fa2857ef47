package auth

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/oauth2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "token.json")

	identity := &Identity{UserID: "user-1", Email: "u@example.com", DisplayName: "U"}
	tok := testToken()

	require.NoError(t, saveTokenFile(path, tok, identity))

	loadedTok, loadedIdentity, err := loadTokenFile(path)
	require.NoError(t, err)

	assert.Equal(t, tok.AccessToken, loadedTok.AccessToken)
	assert.Equal(t, tok.RefreshToken, loadedTok.RefreshToken)
	assert.WithinDuration(t, tok.Expiry, loadedTok.Expiry, time.Second)
	assert.Equal(t, identity, loadedIdentity)
}

func TestTokenFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, saveTokenFile(path, testToken(), nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm(),
		"token files are owner-only")
}

func TestLoadTokenFileMissingIsNotAnError(t *testing.T) {
	tok, identity, err := loadTokenFile(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Nil(t, identity)
}

func TestLoadTokenFileRejectsCorruptContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), FilePerms))

	_, _, err := loadTokenFile(path)
	assert.Error(t, err)
}

func TestLoadTokenFileRejectsMissingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"identity":{"userId":"u"}}`), FilePerms))

	_, _, err := loadTokenFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-login required")
}

func newTestProvider(t *testing.T, tokenPath string) *Provider {
	t.Helper()

	p, err := NewProvider(Config{
		TokenPath: tokenPath,
		ClientID:  "habistat-cli",
		AuthURL:   "https://auth.example.com/authorize",
		TokenURL:  "https://auth.example.com/token",
		DeviceURL: "https://auth.example.com/device",
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	return p
}

func TestProviderStartsSignedOutWithoutTokenFile(t *testing.T) {
	p := newTestProvider(t, filepath.Join(t.TempDir(), "token.json"))

	assert.False(t, p.Ready())

	_, ok := p.CurrentUser()
	assert.False(t, ok)

	_, err := p.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestProviderPrimesFromSavedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	identity := &Identity{UserID: "user-1", Email: "u@example.com"}
	require.NoError(t, saveTokenFile(path, testToken(), identity))

	p := newTestProvider(t, path)

	assert.True(t, p.Ready())

	got, ok := p.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)

	// A non-expired saved token is served without any refresh round trip.
	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-abc", tok)
}

func TestCurrentUserReturnsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, saveTokenFile(path, testToken(), &Identity{UserID: "user-1"}))

	p := newTestProvider(t, path)

	first, ok := p.CurrentUser()
	require.True(t, ok)

	first.UserID = "tampered"

	second, ok := p.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "user-1", second.UserID)
}

func TestLogoutRemovesTokenAndEmitsEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, saveTokenFile(path, testToken(), &Identity{UserID: "user-1"}))

	p := newTestProvider(t, path)
	events := p.Events()

	require.NoError(t, p.Logout())

	assert.False(t, p.Ready())
	assert.NoFileExists(t, path)

	select {
	case ev := <-events:
		assert.Equal(t, SignedOut, ev.Type)
	default:
		t.Fatal("expected a SignedOut event")
	}
}

func TestLogoutWhileSignedOutIsQuiet(t *testing.T) {
	p := newTestProvider(t, filepath.Join(t.TempDir(), "token.json"))
	events := p.Events()

	require.NoError(t, p.Logout())

	select {
	case <-events:
		t.Fatal("logout without a session must not emit an event")
	default:
	}
}

func TestEventsDeliveredToAllSubscribers(t *testing.T) {
	p := newTestProvider(t, filepath.Join(t.TempDir(), "token.json"))

	a := p.Events()
	b := p.Events()

	identity := &Identity{UserID: "user-1"}
	p.emit(Event{Type: SignedIn, Identity: identity})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, SignedIn, ev.Type)
			assert.Equal(t, "user-1", ev.Identity.UserID)
		default:
			t.Fatal("expected the event on every subscription")
		}
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "signed_in", SignedIn.String())
	assert.Equal(t, "signed_out", SignedOut.String())
}
