package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/velabrowser/vela/backend/internal/events"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
)

// ChallengeAuthenticator implements the re-authentication primitive by
// delegating to the shell: each attempt publishes an auth-challenge event,
// the shell runs the platform prompt (biometric where available, password
// re-entry otherwise) and reports the outcome back through Resolve.
type ChallengeAuthenticator struct {
	bus *events.Bus

	mu      sync.Mutex
	waiters map[string]chan credentials.AuthOutcome
}

// NewChallengeAuthenticator creates the authenticator.
func NewChallengeAuthenticator(bus *events.Bus) *ChallengeAuthenticator {
	return &ChallengeAuthenticator{
		bus:     bus,
		waiters: make(map[string]chan credentials.AuthOutcome),
	}
}

// Authenticate blocks until the shell resolves the challenge or the context
// is cancelled. Cancellation counts as user cancellation, never as failure.
func (a *ChallengeAuthenticator) Authenticate(ctx context.Context) (credentials.AuthOutcome, error) {
	id := uuid.NewString()
	ch := make(chan credentials.AuthOutcome, 1)

	a.mu.Lock()
	a.waiters[id] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.waiters, id)
		a.mu.Unlock()
	}()

	a.bus.Publish(events.AuthChallenge, map[string]interface{}{
		"challenge_id": id,
	})

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		return credentials.AuthCancelled, nil
	}
}

// Resolve reports the shell's outcome for a pending challenge. Unknown or
// already-resolved IDs are ignored.
func (a *ChallengeAuthenticator) Resolve(challengeID string, outcome credentials.AuthOutcome) bool {
	a.mu.Lock()
	ch, ok := a.waiters[challengeID]
	if ok {
		delete(a.waiters, challengeID)
	}
	a.mu.Unlock()

	if !ok {
		return false
	}
	ch <- outcome
	return true
}
