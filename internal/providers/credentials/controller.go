package credentials

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/shared/origin"
	"github.com/velabrowser/vela/backend/internal/shared/types"
	"go.uber.org/zap"
)

// AuthOutcome is the result of the platform re-authentication primitive.
type AuthOutcome int

const (
	AuthSuccess AuthOutcome = iota
	AuthFailed
	AuthCancelled
)

// Authenticator is the platform-supplied re-authentication primitive
// (biometric, OS password prompt, or password re-entry) gating autofill.
type Authenticator interface {
	Authenticate(ctx context.Context) (AuthOutcome, error)
}

// Filler delivers a fill instruction into a tab's page context through the
// embedder's script injection point.
type Filler interface {
	Fill(ctx context.Context, tabID, username, secret string) error
}

// FillerFunc adapts a function to the Filler interface.
type FillerFunc func(ctx context.Context, tabID, username, secret string) error

func (f FillerFunc) Fill(ctx context.Context, tabID, username, secret string) error {
	return f(ctx, tabID, username, secret)
}

// PromptKind distinguishes the two prompt flavors.
type PromptKind string

const (
	PromptSave   PromptKind = "save"
	PromptUpdate PromptKind = "update"
)

// PromptAction is a UI response to a pending prompt.
type PromptAction string

const (
	ActionSave    PromptAction = "save"
	ActionNever   PromptAction = "never"
	ActionDismiss PromptAction = "dismiss"
)

// pendingPrompt holds one in-flight save/update prompt.
type pendingPrompt struct {
	id       string
	kind     PromptKind
	origin   string
	username string
	secret   string
	timer    *time.Timer
}

// pendingAutofill is the transient context for a focused password field.
// Cleared on blur or on selection; never persisted.
type pendingAutofill struct {
	tabID   string
	origin  string
	url     string
	field   *types.FieldRect
	cancel  context.CancelFunc // non-nil while re-auth is in flight
	inAuth  bool
	created time.Time
}

// Controller orchestrates FormAgent messages: decides whether to prompt
// save/update and gates autofill behind re-authentication. It renders no UI
// itself; prompts and dropdowns are events consumed by the shell.
type Controller struct {
	store  *Store
	bus    *events.Bus
	auth   Authenticator
	filler Filler
	log    *logging.Logger

	promptTimeout  time.Duration
	obfuscateChars int
	sanitizer      *bluemonday.Policy

	mu      sync.Mutex
	pending *pendingPrompt
	focus   *pendingAutofill
}

// ControllerConfig tunes the controller.
type ControllerConfig struct {
	PromptTimeout  time.Duration
	ObfuscateChars int
}

// NewController wires the controller to its collaborators.
func NewController(store *Store, bus *events.Bus, auth Authenticator, filler Filler, cfg ControllerConfig, log *logging.Logger) *Controller {
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = 15 * time.Second
	}
	if cfg.ObfuscateChars <= 0 {
		cfg.ObfuscateChars = 3
	}
	return &Controller{
		store:          store,
		bus:            bus,
		auth:           auth,
		filler:         filler,
		log:            log,
		promptTimeout:  cfg.PromptTimeout,
		obfuscateChars: cfg.ObfuscateChars,
		sanitizer:      bluemonday.StrictPolicy(),
	}
}

// State reports the controller's current phase, for diagnostics and tests.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return "prompt:" + string(c.pending.kind)
	}
	if c.focus != nil {
		return "autofill-pending"
	}
	return "idle"
}

// HandlePageMessage routes one tagged page->host message. Unknown tags are
// logged and dropped; a page can never make this fail.
func (c *Controller) HandlePageMessage(msg types.PageMessage) {
	switch msg.Tag {
	case types.TagCredentialSubmit:
		c.handleSubmission(msg)
	case types.TagLoginFormDetected:
		c.log.Debug("login form detected",
			zap.String("url", msg.URL),
			zap.Bool("virtual", msg.Virtual),
			zap.Int("forms", msg.FormCount))
	case types.TagAutofillFocus:
		c.handleFocus(msg)
	case types.TagAutofillBlur:
		c.handleBlur(msg)
	default:
		c.log.Warn("unknown page message tag", zap.String("tag", string(msg.Tag)))
	}
}

func (c *Controller) handleSubmission(msg types.PageMessage) {
	org, err := origin.FromURL(msg.URL)
	if err != nil {
		c.log.Warn("credential submit with unparseable URL", zap.String("url", msg.URL))
		return
	}

	username := strings.TrimSpace(c.sanitizer.Sanitize(msg.Username))
	secret := msg.Secret
	if username == "" || secret == "" {
		return
	}

	if !c.store.ShouldPrompt(org) {
		return
	}

	switch c.store.CheckExisting(org, username, secret) {
	case MatchSame:
		return // already stored, nothing to do
	case MatchNone:
		c.openPrompt(PromptSave, org, username, secret)
	case MatchDifferent:
		c.openPrompt(PromptUpdate, org, username, secret)
	}
}

func (c *Controller) openPrompt(kind PromptKind, org, username, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer submission replaces any prompt still on screen.
	if c.pending != nil {
		c.pending.timer.Stop()
	}

	id := uuid.NewString()
	p := &pendingPrompt{
		id:       id,
		kind:     kind,
		origin:   org,
		username: username,
		secret:   secret,
	}
	p.timer = time.AfterFunc(c.promptTimeout, func() {
		c.expirePrompt(id)
	})
	c.pending = p

	eventType := events.SavePromptShown
	if kind == PromptUpdate {
		eventType = events.UpdatePromptShown
	}
	c.bus.Publish(eventType, map[string]interface{}{
		"prompt_id": id,
		"origin":    org,
		"username":  username,
	})
}

func (c *Controller) expirePrompt(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.id != id {
		return
	}
	c.pending = nil
	c.bus.Publish(events.PromptDismissed, map[string]interface{}{
		"prompt_id": id,
		"reason":    "timeout",
	})
}

// ResolvePrompt applies a UI action to the pending prompt. Save/Never end
// the prompt with a side effect; Dismiss ends it silently and the next
// submission may prompt again.
func (c *Controller) ResolvePrompt(promptID string, action PromptAction) error {
	c.mu.Lock()
	p := c.pending
	if p == nil || p.id != promptID {
		c.mu.Unlock()
		return nil // stale response, prompt already gone
	}
	p.timer.Stop()
	c.pending = nil
	c.mu.Unlock()

	switch action {
	case ActionSave:
		if err := c.store.Save(p.origin, p.username, p.secret); err != nil {
			return err
		}
		c.bus.Publish(events.CredentialSaved, map[string]interface{}{
			"origin":   p.origin,
			"username": p.username,
		})
		c.bus.Publish(events.CredentialListChange, nil)
	case ActionNever:
		if err := c.store.MarkNeverSave(p.origin); err != nil {
			return err
		}
	case ActionDismiss:
		// No state change.
	}
	return nil
}

func (c *Controller) handleFocus(msg types.PageMessage) {
	org, err := origin.FromURL(msg.URL)
	if err != nil {
		return
	}

	candidates := c.store.GetForAutofill(org)
	if len(candidates) == 0 {
		return
	}

	c.mu.Lock()
	c.focus = &pendingAutofill{
		tabID:   msg.TabID,
		origin:  org,
		url:     msg.URL,
		field:   msg.Field,
		created: time.Now(),
	}
	c.mu.Unlock()

	// The dropdown shows the obfuscated form; the full username is the
	// selection key and stays inside the trusted shell.
	display := make([]map[string]string, 0, len(candidates))
	for _, cand := range candidates {
		display = append(display, map[string]string{
			"username": cand.Username,
			"display":  Obfuscate(cand.Username, c.obfuscateChars),
		})
	}

	data := map[string]interface{}{
		"tab_id":     msg.TabID,
		"origin":     org,
		"candidates": display,
	}
	if msg.Field != nil {
		data["field"] = msg.Field
	}
	c.bus.Publish(events.AutofillDropdownShow, data)
}

func (c *Controller) handleBlur(msg types.PageMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.focus == nil || c.focus.tabID != msg.TabID {
		return
	}
	// The page applies its own grace delay before reporting blur, so a
	// blur that arrives while re-auth is running means the user moved on.
	if c.focus.cancel != nil {
		c.focus.cancel()
	}
	c.focus = nil
	c.bus.Publish(events.AutofillDropdownHide, map[string]interface{}{
		"tab_id": msg.TabID,
	})
}

// RequestAutofill is called when the user picks a dropdown entry. It runs
// the re-authentication primitive and, on success, relays the one matching
// secret into the page. Cancellation aborts silently; failure emits a
// transient notification. Every path returns the controller to idle.
func (c *Controller) RequestAutofill(ctx context.Context, tabID, username string) error {
	c.mu.Lock()
	focus := c.focus
	if focus == nil || focus.tabID != tabID {
		c.mu.Unlock()
		return nil
	}
	if focus.inAuth {
		c.mu.Unlock()
		return nil // one outstanding attempt at a time
	}
	authCtx, cancel := context.WithCancel(ctx)
	focus.inAuth = true
	focus.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.focus == focus {
			c.focus = nil
		}
		c.mu.Unlock()
		c.bus.Publish(events.AutofillDropdownHide, map[string]interface{}{
			"tab_id": tabID,
		})
	}()

	outcome, err := c.auth.Authenticate(authCtx)
	if err != nil || outcome == AuthCancelled {
		return nil // silent
	}
	if outcome == AuthFailed {
		c.bus.Publish(events.Notification, map[string]interface{}{
			"level":   "warn",
			"message": "Authentication failed",
		})
		return nil
	}

	for _, cand := range c.store.GetForAutofill(focus.origin) {
		if cand.Username != username {
			continue
		}
		if err := c.filler.Fill(ctx, tabID, cand.Username, cand.Secret); err != nil {
			c.log.Warn("autofill delivery failed", zap.String("tab", tabID), zap.Error(err))
		}
		return nil
	}

	c.log.Debug("autofill selection no longer present", zap.String("origin", focus.origin))
	return nil
}

// PendingPromptID exposes the current prompt ID, if any, for the UI surface.
func (c *Controller) PendingPromptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ""
	}
	return c.pending.id
}

// Obfuscate masks a username to its first n characters plus a fixed mask,
// the display form required before a secret is revealed.
func Obfuscate(username string, n int) string {
	runes := []rune(username)
	if len(runes) <= n {
		return username
	}
	return string(runes[:n]) + "•••"
}
