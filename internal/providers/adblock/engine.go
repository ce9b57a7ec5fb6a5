package adblock

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/infrastructure/monitoring"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/shared/origin"
	"go.uber.org/zap"
)

// persistedState is the on-disk shape. Session and per-tab counters are
// process-lifetime only and deliberately absent.
type persistedState struct {
	Enabled      bool     `json:"enabled"`
	Whitelist    []string `json:"whitelist"`
	TotalBlocked int64    `json:"total_blocked"`
}

// Engine is the request-level block decision engine: static rule matching
// plus enable/whitelist state and per-tab counters.
type Engine struct {
	statePath string
	log       *logging.Logger
	bus       *events.Bus
	metrics   *monitoring.Metrics

	mu             sync.Mutex
	enabled        bool
	whitelist      map[string]struct{}
	sessionBlocked int64
	totalBlocked   int64
	perTab         map[string]int64
}

// NewEngine creates the engine and loads persisted state. A malformed state
// file falls back to defaults; load failures are never fatal.
func NewEngine(statePath string, enabledDefault bool, bus *events.Bus, metrics *monitoring.Metrics, log *logging.Logger) *Engine {
	e := &Engine{
		statePath: statePath,
		log:       log,
		bus:       bus,
		metrics:   metrics,
		enabled:   enabledDefault,
		whitelist: make(map[string]struct{}),
		perTab:    make(map[string]int64),
	}
	e.load()
	e.setGauge(e.enabled)
	return e
}

func (e *Engine) load() {
	data, err := os.ReadFile(e.statePath)
	if err != nil {
		return
	}
	var st persistedState
	if err := sonic.Unmarshal(data, &st); err != nil {
		e.log.Warn("adblock state malformed, using defaults", zap.Error(err))
		return
	}
	e.enabled = st.Enabled
	e.totalBlocked = st.TotalBlocked
	for _, host := range st.Whitelist {
		e.whitelist[strings.ToLower(host)] = struct{}{}
	}
}

// flush persists state. Caller holds the lock.
func (e *Engine) flush() {
	st := persistedState{
		Enabled:      e.enabled,
		Whitelist:    make([]string, 0, len(e.whitelist)),
		TotalBlocked: e.totalBlocked,
	}
	for host := range e.whitelist {
		st.Whitelist = append(st.Whitelist, host)
	}
	sort.Strings(st.Whitelist)

	data, err := sonic.Marshal(st)
	if err != nil {
		e.log.Error("adblock state encode failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(e.statePath, data, 0o600); err != nil {
		e.log.Error("adblock state write failed", zap.Error(err))
	}
}

// Decide is the pure block decision: identical inputs and state yield
// identical outputs, with no side effects. Returns the matched rule class
// for diagnostics.
func (e *Engine) Decide(requestURL, pageURL string, topLevel bool) (bool, string) {
	// Top-level navigations are never blocked. Hard rule: blocking a
	// navigation breaks the page load itself.
	if topLevel {
		return false, ""
	}

	e.mu.Lock()
	enabled := e.enabled
	_, whitelisted := e.whitelist[origin.Hostname(pageURL)]
	e.mu.Unlock()

	if !enabled || whitelisted {
		return false, ""
	}

	lower := strings.ToLower(requestURL)
	for _, domain := range blockedDomains {
		if strings.Contains(lower, domain) {
			return true, "domain"
		}
	}
	for _, pat := range blockedPatterns {
		if pat.MatchString(requestURL) {
			return true, "pattern"
		}
	}
	if onVideoHost(lower) {
		for _, pat := range videoAdPatterns {
			if pat.MatchString(requestURL) {
				return true, "video"
			}
		}
	}
	return false, ""
}

func onVideoHost(lowerURL string) bool {
	for _, host := range videoHosts {
		if strings.Contains(lowerURL, host) {
			return true
		}
	}
	return false
}

// ShouldBlock makes the decision for one outbound subresource request and,
// on block, applies the counter side effects and emits the ad-blocked
// event. tabID keys the per-tab counter and may be empty.
func (e *Engine) ShouldBlock(requestURL, pageURL, tabID string, topLevel bool) bool {
	if e.metrics != nil {
		e.metrics.RequestsChecked.Inc()
	}

	blocked, rule := e.Decide(requestURL, pageURL, topLevel)
	if !blocked {
		return false
	}

	e.mu.Lock()
	e.sessionBlocked++
	e.totalBlocked++
	if tabID != "" {
		e.perTab[tabID]++
	}
	session := e.sessionBlocked
	total := e.totalBlocked
	tab := e.perTab[tabID]
	e.flush()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RequestsBlocked.WithLabelValues(rule).Inc()
	}
	if e.bus != nil {
		e.bus.Publish(events.AdBlocked, map[string]interface{}{
			"url":             requestURL,
			"page_url":        pageURL,
			"tab_id":          tabID,
			"rule":            rule,
			"session_blocked": session,
			"total_blocked":   total,
			"tab_blocked":     tab,
		})
	}
	return true
}

// Enabled reports whether blocking is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Toggle flips the enabled flag, persists it, and returns the new state.
// Counters are not reset by toggling.
func (e *Engine) Toggle() bool {
	e.mu.Lock()
	e.enabled = !e.enabled
	state := e.enabled
	e.flush()
	e.mu.Unlock()

	e.setGauge(state)
	if e.bus != nil {
		e.bus.Publish(events.BlockStateChanged, map[string]interface{}{
			"enabled": state,
		})
	}
	return state
}

func (e *Engine) setGauge(enabled bool) {
	if e.metrics == nil {
		return
	}
	if enabled {
		e.metrics.BlockState.Set(1)
	} else {
		e.metrics.BlockState.Set(0)
	}
}

// WhitelistAdd exempts a hostname, persisted immediately.
func (e *Engine) WhitelistAdd(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}

	e.mu.Lock()
	e.whitelist[host] = struct{}{}
	e.flush()
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.WhitelistChanged, map[string]interface{}{
			"host": host, "added": true,
		})
	}
}

// WhitelistRemove drops a hostname exemption, persisted immediately.
func (e *Engine) WhitelistRemove(host string) {
	host = strings.ToLower(strings.TrimSpace(host))

	e.mu.Lock()
	delete(e.whitelist, host)
	e.flush()
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.WhitelistChanged, map[string]interface{}{
			"host": host, "added": false,
		})
	}
}

// Whitelist returns the exempted hostnames, sorted.
func (e *Engine) Whitelist() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.whitelist))
	for host := range e.whitelist {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

// Stats reports aggregate counters.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	perTab := make(map[string]int64, len(e.perTab))
	for tab, n := range e.perTab {
		perTab[tab] = n
	}
	return map[string]interface{}{
		"enabled":         e.enabled,
		"session_blocked": e.sessionBlocked,
		"total_blocked":   e.totalBlocked,
		"per_tab":         perTab,
	}
}

// TabClosed discards the per-tab counter for a closed tab.
func (e *Engine) TabClosed(tabID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.perTab, tabID)
}

// TabNavigated resets the per-tab counter on a new top-level navigation.
func (e *Engine) TabNavigated(tabID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perTab[tabID] = 0
}
