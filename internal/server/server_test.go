package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/infrastructure/config"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Profile.Dir = t.TempDir()
	cfg.Vault.FetchIcons = false

	srv, err := NewServer(cfg, nil, logging.NewNop())
	require.NoError(t, err)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "adblock")
}

func TestServicesEndpointListsBothProviders(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"credentials"`)
	assert.Contains(t, body, `"adblock"`)
}

func TestExecuteEndpoint(t *testing.T) {
	srv := newTestServer(t)

	body := `{"tool_id":"adblock.check","params":{"url":"https://doubleclick.net/ads/x.js","page_url":"https://news.example/"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/services/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"block":true`)
}

func TestInjectEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inject/formagent?tab_id=tab-1", nil)
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tab-1")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/inject/formagent", nil)
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/inject/cosmetic", nil)
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "display:none")
}

func TestChallengeAuthenticatorRoundTrip(t *testing.T) {
	bus := events.NewBus()
	auth := NewChallengeAuthenticator(bus)

	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan credentials.AuthOutcome, 1)
	go func() {
		outcome, _ := auth.Authenticate(context.Background())
		done <- outcome
	}()

	var challengeID string
	select {
	case ev := <-ch:
		require.Equal(t, events.AuthChallenge, ev.Type)
		challengeID = ev.Data["challenge_id"].(string)
	case <-time.After(2 * time.Second):
		t.Fatal("no challenge published")
	}

	assert.True(t, auth.Resolve(challengeID, credentials.AuthSuccess))
	select {
	case outcome := <-done:
		assert.Equal(t, credentials.AuthSuccess, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("authenticate did not return")
	}

	// Replays are ignored.
	assert.False(t, auth.Resolve(challengeID, credentials.AuthFailed))
}

func TestChallengeAuthenticatorCancellation(t *testing.T) {
	auth := NewChallengeAuthenticator(events.NewBus())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := auth.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, credentials.AuthCancelled, outcome)
}

func TestScriptFillerEncodesArguments(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	filler := NewScriptFiller(bus)
	require.NoError(t, filler.Fill(context.Background(), "tab-1", `al"ice`, "p\\1"))

	select {
	case ev := <-ch:
		require.Equal(t, events.ScriptExec, ev.Type)
		script := ev.Data["script"].(string)
		assert.Contains(t, script, `window.__velaAutofill("al\"ice", "p\\1");`)
		assert.Equal(t, "tab-1", ev.Data["tab_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no script event published")
	}
}
