package service

import (
	"context"
	"testing"

	"github.com/velabrowser/vela/backend/internal/shared/types"
)

type fakeProvider struct {
	id     string
	called string
}

func (f *fakeProvider) Definition() types.Service {
	return types.Service{
		ID:       f.id,
		Name:     "Fake",
		Category: types.CategorySystem,
		Tools:    []types.Tool{{ID: f.id + ".ping"}},
	}
}

func (f *fakeProvider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	f.called = toolID
	return types.Success(map[string]interface{}{"tool": toolID})
}

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{id: "fake"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	result, err := r.Execute(context.Background(), "fake.ping", nil, nil)
	if err != nil || !result.Success {
		t.Fatalf("execute: %+v, %v", result, err)
	}
	if p.called != "fake.ping" {
		t.Errorf("provider saw %q", p.called)
	}
}

func TestExecuteRejectsMalformedToolID(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Execute(context.Background(), "noseparator", nil, nil); err == nil {
		t.Error("expected error for undotted tool ID")
	}
	if _, err := r.Execute(context.Background(), "missing.tool", nil, nil); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestRegisterRequiresID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeProvider{id: ""}); err == nil {
		t.Error("expected error for empty service ID")
	}
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{id: "a"})
	r.Register(&fakeProvider{id: "b"})

	stats := r.Stats()
	if stats["total_services"] != 2 || stats["total_tools"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
