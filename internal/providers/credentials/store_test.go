package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/providers/credentials/envelope"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	env := envelope.New(nil, filepath.Join(dir, "vault.key"), logging.NewNop())
	store := NewStore(env, filepath.Join(dir, "credentials.bin"), filepath.Join(dir, "never-save.json"), logging.NewNop())
	return store, dir
}

func TestSaveAndAutofillRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Save("https://example.com", "alice", "p1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := store.GetForAutofill("https://example.com")
	if len(got) != 1 || got[0].Username != "alice" || got[0].Secret != "p1" {
		t.Fatalf("GetForAutofill = %+v", got)
	}
}

func TestCheckExisting(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Save("https://example.com", "alice", "p1"); err != nil {
		t.Fatal(err)
	}

	if m := store.CheckExisting("https://example.com", "alice", "p1"); m != MatchSame {
		t.Errorf("same secret: got %q", m)
	}
	if m := store.CheckExisting("https://example.com", "alice", "p2"); m != MatchDifferent {
		t.Errorf("different secret: got %q", m)
	}
	if m := store.CheckExisting("https://example.com", "bob", "p1"); m != MatchNone {
		t.Errorf("unknown user: got %q", m)
	}
	if m := store.CheckExisting("https://other.com", "alice", "p1"); m != MatchNone {
		t.Errorf("unknown origin: got %q", m)
	}
}

func TestSaveOverwriteKeepsOneRecord(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Save("https://example.com", "alice", "p1"); err != nil {
		t.Fatal(err)
	}
	created := store.List()[0].CreatedAt

	if err := store.Save("https://example.com", "alice", "p2"); err != nil {
		t.Fatal(err)
	}

	got := store.GetForAutofill("https://example.com")
	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(got))
	}
	if got[0].Secret != "p2" {
		t.Errorf("secret = %q, want p2", got[0].Secret)
	}

	summary := store.List()[0]
	if !summary.CreatedAt.Equal(created) {
		t.Error("overwrite must preserve CreatedAt")
	}
	if !summary.UpdatedAt.After(created) && !summary.UpdatedAt.Equal(created) {
		t.Error("overwrite must bump UpdatedAt")
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Save("https://example.com", "", "p1"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("empty username: got %v", err)
	}
	if err := store.Save("https://example.com", "alice", ""); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("empty secret: got %v", err)
	}
}

func TestListOrderAndNoSecrets(t *testing.T) {
	store, _ := newTestStore(t)

	store.Save("https://a.com", "first", "s1")
	store.Save("https://b.com", "second", "s2")
	store.Save("https://a.com", "first", "s1-updated")

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	// Most recently updated first.
	if list[0].Username != "first" || list[1].Username != "second" {
		t.Errorf("order = %s, %s", list[0].Username, list[1].Username)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)

	store.Save("https://example.com", "alice", "p1")
	store.Save("https://example.com", "bob", "p2")

	removed, err := store.Delete("https://example.com", "alice")
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if got := store.GetForAutofill("https://example.com"); len(got) != 1 || got[0].Username != "bob" {
		t.Errorf("remaining = %+v", got)
	}

	removed, _ = store.Delete("https://example.com", "nobody")
	if removed {
		t.Error("deleting unknown user reported true")
	}

	n, err := store.DeleteOrigin("https://example.com")
	if err != nil || n != 1 {
		t.Fatalf("DeleteOrigin = %d, %v", n, err)
	}
	if store.Count() != 0 {
		t.Errorf("Count = %d after DeleteOrigin", store.Count())
	}
}

func TestNeverSaveGating(t *testing.T) {
	store, _ := newTestStore(t)
	origin := "https://example.com"

	store.Save(origin, "alice", "p1")

	if err := store.MarkNeverSave(origin); err != nil {
		t.Fatal(err)
	}
	if store.ShouldPrompt(origin) {
		t.Error("ShouldPrompt true after MarkNeverSave")
	}
	// Existing credentials are untouched.
	if got := store.GetForAutofill(origin); len(got) != 1 {
		t.Errorf("never-save removed existing records: %+v", got)
	}

	if err := store.AllowSave(origin); err != nil {
		t.Fatal(err)
	}
	if !store.ShouldPrompt(origin) {
		t.Error("ShouldPrompt false after AllowSave")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	env := envelope.New(nil, filepath.Join(dir, "vault.key"), logging.NewNop())
	blobPath := filepath.Join(dir, "credentials.bin")
	neverPath := filepath.Join(dir, "never-save.json")

	first := NewStore(env, blobPath, neverPath, logging.NewNop())
	first.Save("https://example.com", "alice", "p1")
	first.MarkNeverSave("https://ads.example")

	second := NewStore(env, blobPath, neverPath, logging.NewNop())
	if got := second.GetForAutofill("https://example.com"); len(got) != 1 || got[0].Secret != "p1" {
		t.Errorf("reloaded records = %+v", got)
	}
	if second.ShouldPrompt("https://ads.example") {
		t.Error("never-save set not reloaded")
	}
}

func TestCorruptBlobLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	env := envelope.New(nil, filepath.Join(dir, "vault.key"), logging.NewNop())
	blobPath := filepath.Join(dir, "credentials.bin")

	if err := os.WriteFile(blobPath, []byte("definitely not a valid blob"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewStore(env, blobPath, filepath.Join(dir, "never-save.json"), logging.NewNop())
	if store.Count() != 0 {
		t.Errorf("corrupt blob produced %d records", store.Count())
	}
	// Store still works after the degraded load.
	if err := store.Save("https://example.com", "alice", "p1"); err != nil {
		t.Fatalf("Save after corrupt load: %v", err)
	}
}
