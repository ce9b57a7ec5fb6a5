package adblock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/logging"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(filepath.Join(t.TempDir(), "adblock-state.json"), true, events.NewBus(), nil, logging.NewNop())
}

func TestDomainBlocklistHit(t *testing.T) {
	e := newTestEngine(t)

	if !e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://news.example/", "tab-1", false) {
		t.Error("doubleclick subresource not blocked")
	}
	if e.ShouldBlock("https://news.example/article.js", "https://news.example/", "tab-1", false) {
		t.Error("clean first-party script blocked")
	}
}

func TestPatternHit(t *testing.T) {
	e := newTestEngine(t)

	cases := []string{
		"https://cdn.example/static/ads/loader.js",
		"https://cdn.example/pagead/show.js",
		"https://cdn.example/banner3.png",
		"https://cdn.example/track.gif",
	}
	for _, url := range cases {
		if !e.ShouldBlock(url, "https://news.example/", "", false) {
			t.Errorf("pattern miss for %s", url)
		}
	}
}

func TestVideoHostHeuristic(t *testing.T) {
	e := newTestEngine(t)

	if !e.ShouldBlock("https://www.youtube.com/api/stats/ads?ver=2", "https://www.youtube.com/watch?v=abc", "", false) {
		t.Error("video ad endpoint not blocked")
	}
	// Regular player traffic on the same host stays allowed.
	if e.ShouldBlock("https://rr3---sn-example.googlevideo.com/videoplayback?expire=123", "https://www.youtube.com/watch?v=abc", "", false) {
		t.Error("videoplayback blocked")
	}
}

func TestDisabledAllowsEverything(t *testing.T) {
	e := newTestEngine(t)

	if e.Toggle() { // now disabled
		t.Fatal("expected Toggle to return false")
	}
	if e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://news.example/", "", false) {
		t.Error("blocked while disabled")
	}

	if !e.Toggle() {
		t.Fatal("expected Toggle to return true")
	}
	if !e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://news.example/", "", false) {
		t.Error("not blocked after re-enable")
	}
}

func TestWhitelistBypass(t *testing.T) {
	e := newTestEngine(t)
	e.WhitelistAdd("news.example")

	if e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://news.example/", "", false) {
		t.Error("whitelisted page still blocked")
	}
	// Other pages keep blocking.
	if !e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://other.example/", "", false) {
		t.Error("non-whitelisted page not blocked")
	}

	e.WhitelistRemove("news.example")
	if !e.ShouldBlock("https://doubleclick.net/ads/x.js", "https://news.example/", "", false) {
		t.Error("removal did not restore blocking")
	}
}

func TestTopLevelNavigationNeverBlocked(t *testing.T) {
	e := newTestEngine(t)

	if e.ShouldBlock("https://doubleclick.net/landing", "", "tab-1", true) {
		t.Error("top-level navigation blocked")
	}
}

func TestDecideIsDeterministicAndPure(t *testing.T) {
	e := newTestEngine(t)

	url, page := "https://doubleclick.net/ads/x.js", "https://news.example/"
	first, rule := e.Decide(url, page, false)
	for i := 0; i < 10; i++ {
		got, r := e.Decide(url, page, false)
		if got != first || r != rule {
			t.Fatal("Decide not deterministic")
		}
	}

	// Decide must not touch counters.
	stats := e.Stats()
	if stats["total_blocked"].(int64) != 0 {
		t.Error("Decide incremented counters")
	}
}

func TestCounters(t *testing.T) {
	e := newTestEngine(t)

	e.ShouldBlock("https://doubleclick.net/a.js", "https://x.example/", "tab-1", false)
	e.ShouldBlock("https://doubleclick.net/b.js", "https://x.example/", "tab-1", false)
	e.ShouldBlock("https://doubleclick.net/c.js", "https://x.example/", "tab-2", false)
	e.ShouldBlock("https://x.example/ok.js", "https://x.example/", "tab-1", false)

	stats := e.Stats()
	if stats["session_blocked"].(int64) != 3 || stats["total_blocked"].(int64) != 3 {
		t.Errorf("stats = %+v", stats)
	}
	perTab := stats["per_tab"].(map[string]int64)
	if perTab["tab-1"] != 2 || perTab["tab-2"] != 1 {
		t.Errorf("per_tab = %+v", perTab)
	}

	e.TabClosed("tab-1")
	perTab = e.Stats()["per_tab"].(map[string]int64)
	if _, ok := perTab["tab-1"]; ok {
		t.Error("closed tab counter retained")
	}
}

func TestToggleDoesNotResetCounters(t *testing.T) {
	e := newTestEngine(t)

	e.ShouldBlock("https://doubleclick.net/a.js", "https://x.example/", "", false)
	e.Toggle()
	e.Toggle()

	if e.Stats()["total_blocked"].(int64) != 1 {
		t.Error("toggle reset counters")
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "adblock-state.json")

	first := NewEngine(statePath, true, nil, nil, logging.NewNop())
	first.WhitelistAdd("news.example")
	first.ShouldBlock("https://doubleclick.net/a.js", "https://x.example/", "", false)
	first.Toggle() // disabled

	second := NewEngine(statePath, true, nil, nil, logging.NewNop())
	if second.Enabled() {
		t.Error("enabled flag not persisted")
	}
	if got := second.Whitelist(); len(got) != 1 || got[0] != "news.example" {
		t.Errorf("whitelist = %v", got)
	}
	// totalBlocked persists; session counter starts fresh.
	stats := second.Stats()
	if stats["total_blocked"].(int64) != 1 {
		t.Errorf("total_blocked = %v", stats["total_blocked"])
	}
	if stats["session_blocked"].(int64) != 0 {
		t.Errorf("session_blocked = %v", stats["session_blocked"])
	}
}

func TestMalformedStateFileDefaults(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "adblock-state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(statePath, true, nil, nil, logging.NewNop())
	if !e.Enabled() {
		t.Error("malformed state did not fall back to default enabled")
	}
}
