// Package events provides the typed event bus connecting the credential and
// adblock subsystems to UI collaborators. Events are fan-out only: the core
// never waits on a subscriber, and slow subscribers drop events rather than
// stall a mutation path.
package events

import (
	"sync"
	"time"
)

// Type identifies an event published to UI collaborators.
type Type string

const (
	SavePromptShown      Type = "save-prompt-shown"
	UpdatePromptShown    Type = "update-prompt-shown"
	PromptDismissed      Type = "prompt-dismissed"
	CredentialSaved      Type = "credential-saved"
	CredentialListChange Type = "credential-list-changed"
	AdBlocked            Type = "ad-blocked"
	BlockStateChanged    Type = "block-state-changed"
	WhitelistChanged     Type = "whitelist-changed"
	AutofillDropdownShow Type = "autofill-dropdown-show"
	AutofillDropdownHide Type = "autofill-dropdown-hide"
	AuthChallenge        Type = "auth-challenge"
	ScriptExec           Type = "script-exec"
	Notification         Type = "notification"
)

// Event is the unit published on the bus.
type Event struct {
	Type Type                   `json:"type"`
	Time time.Time              `json:"time"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Bus is a process-local publish/subscribe hub.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered; events are dropped for
// subscribers that fall behind.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Bus) Publish(t Type, data map[string]interface{}) {
	ev := Event{Type: t, Time: time.Now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are attached.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
