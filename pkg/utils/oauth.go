package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/overlap/internal/config"
)

const (
	AuthPort       = 3000
	authTimeout    = 5 * time.Minute
	callbackPath   = "/oauth/callback"
	tokenDirName   = ".overlap/tokens"
	tokenFilePerms = 0600
	tokenDirPerms  = 0700
	tokenInfoURL   = "https://oauth2.googleapis.com/tokeninfo"
)

// OAuth scopes for the Google integrations: publishing suggestions to a
// sheet and emailing invites
const (
	ScopeSheets    = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
)

func RequiredScopes() []string {
	return []string{ScopeSheets, ScopeGmailSend}
}

// GetOAuthConfig creates an OAuth2 config from the OAuth client file, with
// the redirect pointed at the local callback server
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	oauthConfigJSON, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(oauthConfigJSON, RequiredScopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)
	return googleConfig, nil
}

// TokenSource hands out a Google token for one environment, caching it in
// memory and on disk under ~/.overlap/tokens. Safe for concurrent use; at
// most one browser flow runs at a time.
type TokenSource struct {
	oauthConfig *oauth2.Config
	env         string
	dir         string
	logger      *zap.Logger

	mu     sync.Mutex
	cached *oauth2.Token

	// Overridable in tests
	checkScopes func(ctx context.Context, token *oauth2.Token) error
	runFlow     func(ctx context.Context) (*oauth2.Token, error)
}

// NewTokenSource returns a TokenSource storing tokens in the default
// directory under the user's home
func NewTokenSource(oauthConfig *oauth2.Config, env string, logger *zap.Logger) (*TokenSource, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewTokenSourceInDir(oauthConfig, env, filepath.Join(homeDir, tokenDirName), logger), nil
}

func NewTokenSourceInDir(oauthConfig *oauth2.Config, env, dir string, logger *zap.Logger) *TokenSource {
	ts := &TokenSource{
		oauthConfig: oauthConfig,
		env:         env,
		dir:         dir,
		logger:      logger,
	}
	ts.checkScopes = validateTokenScopes
	ts.runFlow = ts.browserFlow
	return ts
}

// Token returns a valid token, trying memory, then disk (refreshing when
// expired), then the interactive browser flow
func (ts *TokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.cached != nil && ts.cached.Valid() {
		return ts.cached, nil
	}

	if token := ts.fromDisk(ctx); token != nil {
		ts.cached = token
		return token, nil
	}

	token, err := ts.runFlow(ctx)
	if err != nil {
		return nil, err
	}
	if err := ts.save(token); err != nil {
		ts.logger.Warn("Failed to save token", zap.Error(err))
	}
	ts.cached = token
	return token, nil
}

// Clear forgets the cached token and removes the token file
func (ts *TokenSource) Clear() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.cached = nil
	if err := os.Remove(ts.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

func (ts *TokenSource) fromDisk(ctx context.Context) *oauth2.Token {
	token, err := ts.load()
	if err != nil {
		ts.logger.Warn("Failed to load token from file", zap.Error(err))
		return nil
	}
	if token == nil {
		return nil
	}

	if !token.Valid() {
		if token.RefreshToken == "" {
			return nil
		}
		refreshed, err := ts.oauthConfig.TokenSource(ctx, token).Token()
		if err != nil {
			ts.logger.Info("Token refresh failed, starting a new OAuth flow", zap.Error(err))
			return nil
		}
		if err := ts.save(refreshed); err != nil {
			ts.logger.Warn("Failed to save refreshed token", zap.Error(err))
		}
		token = refreshed
	}

	if err := ts.checkScopes(ctx, token); err != nil {
		ts.logger.Info("Saved token lacks required scopes, starting a new OAuth flow", zap.Error(err))
		_ = os.Remove(ts.path())
		return nil
	}
	return token
}

func (ts *TokenSource) path() string {
	name := "token.json"
	if ts.env != "" {
		name = fmt.Sprintf("token.%s.json", ts.env)
	}
	return filepath.Join(ts.dir, name)
}

func (ts *TokenSource) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(ts.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

func (ts *TokenSource) save(token *oauth2.Token) error {
	if err := os.MkdirAll(ts.dir, tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(ts.path(), data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// browserFlow prints the consent URL and waits for Google to redirect back
// to the local callback server
func (ts *TokenSource) browserFlow(ctx context.Context) (*oauth2.Token, error) {
	state := fmt.Sprintf("overlap-%d", time.Now().UnixNano())
	authURL := ts.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(os.Stderr, "Open this link in your browser to authorise overlap:\n\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx, state)
	if err != nil {
		return nil, err
	}

	token, err := ts.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	ts.logger.Info("OAuth flow completed", zap.String("env", ts.env))
	return token, nil
}

func listenForAuthCallback(ctx context.Context, state string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("oauth state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("oauth callback had no code")
			return
		}
		fmt.Fprintln(w, "Authorisation complete. You can close this window.")
		codeCh <- code
	})

	server := &http.Server{Addr: fmt.Sprintf("localhost:%d", AuthPort), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()
	defer server.Shutdown(context.WithoutCancel(ctx))

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out waiting for authorisation: %w", ctx.Err())
	}
}

// validateTokenScopes asks Google's tokeninfo endpoint which scopes the
// token carries and reports any that are missing
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	return missingScopes(strings.Fields(tokenInfo.Scope))
}

func missingScopes(granted []string) error {
	var missing []string
	for _, required := range RequiredScopes() {
		if !slices.Contains(granted, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("token is missing required scopes: %v", missing)
	}
	return nil
}
