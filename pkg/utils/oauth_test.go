package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func newTestTokenSource(t *testing.T, flowToken *oauth2.Token) (*TokenSource, *int) {
	t.Helper()
	flows := 0
	ts := NewTokenSourceInDir(&oauth2.Config{}, "test", t.TempDir(), zap.NewNop())
	ts.checkScopes = func(context.Context, *oauth2.Token) error { return nil }
	ts.runFlow = func(context.Context) (*oauth2.Token, error) {
		flows++
		if flowToken == nil {
			return nil, errors.New("no browser")
		}
		return flowToken, nil
	}
	return ts, &flows
}

func validToken(access string) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, Expiry: time.Now().Add(time.Hour)}
}

func TestTokenSource_FlowThenCache(t *testing.T) {
	ts, flows := newTestTokenSource(t, validToken("fresh"))

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, *flows, "second call served from memory")

	_, err = os.Stat(filepath.Join(ts.dir, "token.test.json"))
	assert.NoError(t, err, "token persisted to disk")
}

func TestTokenSource_LoadsFromDisk(t *testing.T) {
	ts, flows := newTestTokenSource(t, nil)
	require.NoError(t, ts.save(validToken("saved")))

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "saved", tok.AccessToken)
	assert.Zero(t, *flows)
}

func TestTokenSource_MissingScopesRestartsFlow(t *testing.T) {
	ts, flows := newTestTokenSource(t, validToken("regranted"))
	ts.checkScopes = func(context.Context, *oauth2.Token) error { return errors.New("missing gmail") }
	require.NoError(t, ts.save(validToken("narrow")))

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "regranted", tok.AccessToken)
	assert.Equal(t, 1, *flows)
}

func TestTokenSource_Clear(t *testing.T) {
	ts, flows := newTestTokenSource(t, validToken("one"))
	_, err := ts.Token(context.Background())
	require.NoError(t, err)

	require.NoError(t, ts.Clear())
	require.NoError(t, ts.Clear(), "clearing twice is fine")

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *flows)
}

func TestMissingScopes(t *testing.T) {
	assert.NoError(t, missingScopes([]string{ScopeGmailSend, "openid", ScopeSheets}))

	err := missingScopes([]string{ScopeSheets})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ScopeGmailSend)
}
