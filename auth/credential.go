package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/oauth2"
)

// ErrSignInFailed is returned when the device flow is rejected or the user does not sign in in time.
var ErrSignInFailed = errors.New("device code sign-in failed")

// PromptFunc shows the user where to sign in.
type PromptFunc func(da *oauth2.DeviceAuthResponse)

// cacheEntry is the serialized token cache.
type cacheEntry struct {
	User   string        `json:"user"`
	Scopes []string      `json:"scopes"`
	Token  *oauth2.Token `json:"token"`
}

// Credential is an oauth2.TokenSource backed by a token cache. Cached tokens are refreshed
// silently; otherwise the user is sent through the device code flow.
type Credential struct {
	config     Config
	store      CacheStore
	logger     log.Logger
	prompt     PromptFunc
	httpClient *http.Client

	mu     sync.Mutex
	scopes *Scopes
	// granted is the scope set source was issued for.
	granted *Scopes
	source  oauth2.TokenSource
	saved   *oauth2.Token
}

// NewCredential validates config and prepares a credential with the offline_access scope.
func NewCredential(config Config, store CacheStore, logger log.Logger) (*Credential, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Credential{
		config: config,
		store:  store,
		logger: logger,
		scopes: NewScopes(OfflineAccess),
	}
	c.prompt = c.logPrompt
	return c, nil
}

// WithPrompt replaces the sign-in instructions printer.
func (c *Credential) WithPrompt(prompt PromptFunc) *Credential {
	c.prompt = prompt
	return c
}

// WithHTTPClient sets the client used for identity platform calls.
func (c *Credential) WithHTTPClient(client *http.Client) *Credential {
	c.httpClient = client
	return c
}

// Require adds scopes to the next token request. A scope outside the current grant forces a new sign-in.
func (c *Credential) Require(scopes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scopes.Add(scopes...) && c.granted != nil && !c.granted.Covers(scopes) {
		c.logger.Debugf("New scopes requested, the current token must be replaced")
		c.source = nil
	}
}

// Scopes returns the accumulated scope list.
func (c *Credential) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopes.List()
}

// Token returns a valid access token, signing in when nothing usable is cached.
func (c *Credential) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := c.context()

	if c.source == nil {
		if err := c.restore(ctx); err != nil {
			return nil, err
		}
	}

	token, err := c.source.Token()
	if err != nil {
		c.logger.Warnf("Token refresh failed, signing in again: %s", err)
		if err := c.signIn(ctx); err != nil {
			return nil, err
		}
		if token, err = c.source.Token(); err != nil {
			return nil, err
		}
	}

	if c.saved == nil || c.saved.AccessToken != token.AccessToken {
		c.persist(ctx, token)
	}
	return token, nil
}

// restore picks up a cached token for the configured user when it covers the requested scopes.
func (c *Credential) restore(ctx context.Context) error {
	data, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, ErrCacheMiss):
		c.logger.Debugf("No token cache found")
		return c.signIn(ctx)
	case err != nil:
		c.logger.Warnf("Failed to load token cache: %s", err)
		return c.signIn(ctx)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Token == nil {
		c.logger.Warnf("Ignoring unreadable token cache")
		return c.signIn(ctx)
	}
	if entry.User != c.config.User {
		c.logger.Debugf("Token cache belongs to %s", entry.User)
		return c.signIn(ctx)
	}

	granted := NewScopes(entry.Scopes...)
	if !granted.Covers(c.scopes.List()) {
		c.logger.Debugf("Cached token lacks requested scopes")
		return c.signIn(ctx)
	}

	c.granted = granted
	c.saved = entry.Token
	c.source = c.oauthConfig().TokenSource(ctx, entry.Token)
	return nil
}

func (c *Credential) signIn(ctx context.Context) error {
	cfg := c.oauthConfig()

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignInFailed, err)
	}
	c.prompt(da)

	signInCtx, cancel := context.WithTimeout(ctx, c.config.SignInTimeout)
	defer cancel()

	token, err := cfg.DeviceAccessToken(signInCtx, da)
	if err != nil {
		return fmt.Errorf("%w (%s limit): %w", ErrSignInFailed, c.config.SignInTimeout, err)
	}

	c.logger.Donef("Signed in as %s", c.config.User)
	c.granted = NewScopes(cfg.Scopes...)
	c.saved = nil
	c.source = cfg.TokenSource(ctx, token)
	return nil
}

// persist writes the cache back. The token stays usable when that fails.
func (c *Credential) persist(ctx context.Context, token *oauth2.Token) {
	data, err := json.Marshal(cacheEntry{
		User:   c.config.User,
		Scopes: c.granted.List(),
		Token:  token,
	})
	if err != nil {
		c.logger.Warnf("Failed to encode token cache: %s", err)
		return
	}
	if err := c.store.Save(ctx, data); err != nil {
		c.logger.Warnf("Failed to save token cache: %s", err)
		return
	}
	c.saved = token
}

func (c *Credential) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.config.ClientID,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.config.deviceAuthURL(),
			TokenURL:      c.config.tokenURL(),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
		Scopes: c.scopes.List(),
	}
}

func (c *Credential) context() context.Context {
	ctx := context.Background()
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}

func (c *Credential) logPrompt(da *oauth2.DeviceAuthResponse) {
	uri := da.VerificationURIComplete
	if uri == "" {
		uri = da.VerificationURI
	}
	c.logger.Println()
	c.logger.Infof("To sign in as %s, open %s and enter the code %s", c.config.User, uri, da.UserCode)
}
