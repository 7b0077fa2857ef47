// Package auth implements the identity provider for habistat-go: OAuth2
// device-code login against the habistat auth service, token persistence
// with auto-refresh, and a sign-in/sign-out event stream the sync engine
// subscribes to.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned when no valid credential is available.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// Identity describes the authenticated user.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// EventType distinguishes sign-in from sign-out transitions.
type EventType int

const (
	SignedOut EventType = iota
	SignedIn
)

func (t EventType) String() string {
	if t == SignedIn {
		return "signed_in"
	}

	return "signed_out"
}

// Event is a sign-in or sign-out transition. Identity is set for SignedIn.
type Event struct {
	Type     EventType
	Identity *Identity
}

// DeviceAuth holds the device code response fields the CLI shows the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Provider is the identity provider. It owns the token file, refreshes
// tokens on demand, and fans sign-in/sign-out events out to subscribers.
type Provider struct {
	tokenPath   string
	oauthCfg    *oauth2.Config
	identityURL string // whoami endpoint, queried once at login
	httpClient  *http.Client
	logger      *slog.Logger

	mu       sync.Mutex
	src      oauth2.TokenSource
	identity *Identity
	subs     []chan Event
}

// Config holds the inputs for creating a Provider.
type Config struct {
	TokenPath   string
	ClientID    string
	AuthURL     string // authorization endpoint
	TokenURL    string // token endpoint
	DeviceURL   string // device authorization endpoint
	IdentityURL string // whoami endpoint
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// NewProvider creates a Provider and primes it from the saved token file if
// one exists. No network I/O happens here.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Provider{
		tokenPath: cfg.TokenPath,
		oauthCfg: &oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   []string{"offline_access", "sync"},
			Endpoint: oauth2.Endpoint{
				AuthURL:       cfg.AuthURL,
				TokenURL:      cfg.TokenURL,
				DeviceAuthURL: cfg.DeviceURL,
			},
		},
		identityURL: cfg.IdentityURL,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}

	tok, identity, err := loadTokenFile(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	if tok != nil {
		expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
		cfg.Logger.Info("loaded saved token",
			slog.String("path", cfg.TokenPath),
			slog.Time("expiry", tok.Expiry),
			slog.Bool("expired", expired),
		)

		// ctx must outlive the token source; refresh happens lazily on
		// Token() calls, so bind to Background.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.HTTPClient)
		p.src = p.oauthCfg.TokenSource(ctx, tok)
		p.identity = identity
	}

	return p, nil
}

// CurrentUser returns the authenticated identity, or (nil, false) when
// signed out.
func (p *Provider) CurrentUser() (*Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identity == nil {
		return nil, false
	}

	ident := *p.identity

	return &ident, true
}

// Token returns a valid bearer token, refreshing if needed. Implements the
// api.TokenSource interface. Returns ErrNotLoggedIn when signed out.
func (p *Provider) Token() (string, error) {
	p.mu.Lock()
	src := p.src
	p.mu.Unlock()

	if src == nil {
		return "", ErrNotLoggedIn
	}

	tok, err := src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	return tok.AccessToken, nil
}

// Ready reports whether a non-expired credential is available without
// performing a refresh.
func (p *Provider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.src != nil && p.identity != nil
}

// Login performs the device code OAuth2 flow:
//  1. Requests a device code
//  2. Calls display so the CLI can show the user code and verification URL
//  3. Polls until the user authorizes (blocking, respects ctx cancellation)
//  4. Resolves the user identity from the whoami endpoint
//  5. Saves the token to disk and emits a SignedIn event
func (p *Provider) Login(ctx context.Context, display func(DeviceAuth)) (*Identity, error) {
	p.logger.Info("starting device code auth flow", slog.String("path", p.tokenPath))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	da, err := p.oauthCfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	p.logger.Info("device code received, waiting for user authorization")

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := p.oauthCfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	identity, err := p.fetchIdentity(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := saveTokenFile(p.tokenPath, tok, identity); err != nil {
		return nil, fmt.Errorf("auth: saving token: %w", err)
	}

	p.logger.Info("login successful",
		slog.String("user_id", identity.UserID),
		slog.Time("expiry", tok.Expiry),
	)

	srcCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)

	p.mu.Lock()
	p.src = p.oauthCfg.TokenSource(srcCtx, tok)
	p.identity = identity
	p.mu.Unlock()

	p.emit(Event{Type: SignedIn, Identity: identity})

	return identity, nil
}

// Logout removes the saved token file and emits a SignedOut event.
// Returns nil if already logged out.
func (p *Provider) Logout() error {
	err := os.Remove(p.tokenPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("auth: removing token file: %w", err)
	}

	p.mu.Lock()
	wasSignedIn := p.identity != nil
	p.src = nil
	p.identity = nil
	p.mu.Unlock()

	p.logger.Info("logged out", slog.String("path", p.tokenPath))

	if wasSignedIn {
		p.emit(Event{Type: SignedOut})
	}

	return nil
}

// Events returns a channel of sign-in/sign-out transitions. The first
// element is NOT a snapshot of the current state; only transitions after
// the subscription are delivered. Callers read promptly; slow subscribers
// drop events rather than blocking login/logout.
func (p *Provider) Events() <-chan Event {
	ch := make(chan Event, 4)

	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()

	return ch
}

func (p *Provider) emit(ev Event) {
	p.mu.Lock()
	subs := make([]chan Event, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("dropping auth event for slow subscriber",
				slog.String("type", ev.Type.String()))
		}
	}
}

// fetchIdentity resolves the user identity from the whoami endpoint using a
// freshly-issued access token.
func (p *Provider) fetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.identityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: creating whoami request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: whoami request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: whoami returned HTTP %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("auth: decoding whoami response: %w", err)
	}

	if identity.UserID == "" {
		return nil, errors.New("auth: whoami response missing userId")
	}

	return &identity, nil
}
