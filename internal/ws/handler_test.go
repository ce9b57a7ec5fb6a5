package ws

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
	"github.com/velabrowser/vela/backend/internal/providers/credentials/envelope"
)

func newTestStack(t *testing.T) (*Handler, *events.Bus) {
	t.Helper()
	dir := t.TempDir()
	log := logging.NewNop()
	env := envelope.New(nil, filepath.Join(dir, "vault.key"), log)
	store := credentials.NewStore(env, filepath.Join(dir, "credentials.bin"), filepath.Join(dir, "never-save.json"), log)
	bus := events.NewBus()
	ctrl := credentials.NewController(store, bus, nil, nil, credentials.ControllerConfig{
		PromptTimeout: time.Second,
	}, log)
	h := NewHandler(ctrl, bus, nil, RateConfig{MessagesPerSecond: 50, Burst: 100, Enabled: true}, log)
	return h, bus
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/page", h.HandlePageConnection)
	r.GET("/ws/ui", h.HandleUIConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPageMessageRoutesToController(t *testing.T) {
	h, bus := newTestStack(t)
	srv := newTestServer(t, h)

	ch, cancel := bus.Subscribe()
	defer cancel()

	conn := dial(t, srv, "/ws/page")
	submit := `{"tag":"credential-submit","tab_id":"tab-1","url":"https://example.com/login","username":"alice","secret":"p1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(submit)); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if ev.Type != events.SavePromptShown {
			t.Errorf("event = %s, want save-prompt-shown", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt event after submission")
	}
}

func TestMalformedPageMessageDropped(t *testing.T) {
	h, _ := newTestStack(t)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "/ws/page")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	// Connection survives: a later well-formed message still routes.
	valid := `{"tag":"login-form-detected","tab_id":"tab-1","url":"https://example.com/","form_count":1}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(valid)); err != nil {
		t.Fatal("connection closed after malformed message:", err)
	}
}

func TestUIFeedDeliversEvents(t *testing.T) {
	h, bus := newTestStack(t)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "/ws/ui")

	// Welcome frame first.
	var welcome map[string]interface{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatal(err)
	}
	if welcome["type"] != "system" {
		t.Errorf("first frame = %v", welcome)
	}

	// Give the subscription a moment to attach before publishing.
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(events.AdBlocked, map[string]interface{}{"url": "https://doubleclick.net/a.js"})

	var frame map[string]interface{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame["type"] != "ad-blocked" {
		t.Errorf("frame = %v", frame)
	}
}
