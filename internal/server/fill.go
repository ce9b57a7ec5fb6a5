package server

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/velabrowser/vela/backend/internal/events"
)

// ScriptFiller delivers an autofill instruction by handing the shell a
// one-off script to execute in the target tab's page context, where the
// injected form agent exposes the fill entry point.
type ScriptFiller struct {
	bus *events.Bus
}

// NewScriptFiller creates the filler.
func NewScriptFiller(bus *events.Bus) *ScriptFiller {
	return &ScriptFiller{bus: bus}
}

// Fill renders the fill call and publishes it for the tab. Arguments are
// JSON-encoded so credential bytes can never break out of the call.
func (f *ScriptFiller) Fill(ctx context.Context, tabID, username, secret string) error {
	u, err := sonic.Marshal(username)
	if err != nil {
		return fmt.Errorf("encode username: %w", err)
	}
	s, err := sonic.Marshal(secret)
	if err != nil {
		return fmt.Errorf("encode secret: %w", err)
	}

	f.bus.Publish(events.ScriptExec, map[string]interface{}{
		"tab_id": tabID,
		"script": fmt.Sprintf("window.__velaAutofill(%s, %s);", u, s),
	})
	return nil
}
