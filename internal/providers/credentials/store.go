package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/providers/credentials/envelope"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredential rejects saves with an empty username or secret.
	ErrInvalidCredential = errors.New("credentials: empty username or secret")
	// ErrPersistence signals a failed disk write. In-memory state stays
	// authoritative until the next successful write.
	ErrPersistence = errors.New("credentials: persistence failed")
)

// Record is a stored credential. Secrets never leave the host process
// unencrypted except through GetForAutofill.
type Record struct {
	Username  string    `json:"username"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a listing entry; it carries no secret.
type Summary struct {
	Origin    string    `json:"origin"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate pairs a username with its cleartext secret for autofill.
type Candidate struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// Match classifies a candidate secret against stored state.
type Match string

const (
	MatchNone      Match = "none"
	MatchSame      Match = "same"
	MatchDifferent Match = "different"
)

// Store is the credential store: a map from origin to records, persisted as
// one encrypted blob, plus the never-save origin set. Every mutation
// re-encrypts and rewrites the whole blob.
type Store struct {
	mu  sync.Mutex
	env envelope.Envelope
	log *logging.Logger

	blobPath      string
	neverSavePath string

	creds     map[string][]Record
	neverSave map[string]struct{}
}

// NewStore creates the store and loads persisted state. A corrupt or
// undecryptable blob degrades to an empty cache with a logged warning; it
// never fails construction.
func NewStore(env envelope.Envelope, blobPath, neverSavePath string, log *logging.Logger) *Store {
	s := &Store{
		env:           env,
		log:           log,
		blobPath:      blobPath,
		neverSavePath: neverSavePath,
		creds:         make(map[string][]Record),
		neverSave:     make(map[string]struct{}),
	}
	s.load()
	s.loadNeverSave()
	return s
}

func (s *Store) load() {
	blob, err := os.ReadFile(s.blobPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("credential blob unreadable, starting empty", zap.Error(err))
		}
		return
	}

	plain, err := s.env.Decrypt(blob)
	if err != nil {
		s.log.Warn("credential blob failed to decrypt, starting empty", zap.Error(err))
		return
	}

	var creds map[string][]Record
	if err := sonic.UnmarshalString(plain, &creds); err != nil {
		s.log.Warn("credential blob malformed, starting empty", zap.Error(err))
		return
	}
	s.creds = creds
}

func (s *Store) loadNeverSave() {
	data, err := os.ReadFile(s.neverSavePath)
	if err != nil {
		return
	}
	var origins []string
	if err := sonic.Unmarshal(data, &origins); err != nil {
		s.log.Warn("never-save list malformed, starting empty", zap.Error(err))
		return
	}
	for _, o := range origins {
		s.neverSave[o] = struct{}{}
	}
}

// flush re-encrypts and rewrites the whole blob. Caller holds the lock.
func (s *Store) flush() error {
	plain, err := sonic.MarshalString(s.creds)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	blob, err := s.env.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(s.blobPath, blob, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Store) flushNeverSave() error {
	origins := make([]string, 0, len(s.neverSave))
	for o := range s.neverSave {
		origins = append(origins, o)
	}
	sort.Strings(origins)

	data, err := sonic.Marshal(origins)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(s.neverSavePath, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// CheckExisting classifies a candidate secret for (origin, username).
func (s *Store) CheckExisting(origin, username, secret string) Match {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.creds[origin] {
		if rec.Username != username {
			continue
		}
		if rec.Secret == secret {
			return MatchSame
		}
		return MatchDifferent
	}
	return MatchNone
}

// Save inserts or overwrites the record for (origin, username). Overwrites
// keep the original CreatedAt and bump UpdatedAt.
func (s *Store) Save(origin, username, secret string) error {
	if username == "" || secret == "" {
		return ErrInvalidCredential
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	records := s.creds[origin]
	replaced := false
	for i, rec := range records {
		if rec.Username == username {
			records[i].Secret = secret
			records[i].UpdatedAt = now
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, Record{
			Username:  username,
			Secret:    secret,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	s.creds[origin] = records

	if err := s.flush(); err != nil {
		s.log.Error("credential save not persisted", zap.String("origin", origin), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes the record for (origin, username). Removing the last
// record for an origin removes the origin key entirely.
func (s *Store) Delete(origin, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.creds[origin]
	for i, rec := range records {
		if rec.Username != username {
			continue
		}
		records = append(records[:i], records[i+1:]...)
		if len(records) == 0 {
			delete(s.creds, origin)
		} else {
			s.creds[origin] = records
		}
		return true, s.flush()
	}
	return false, nil
}

// DeleteOrigin removes all records for an origin.
func (s *Store) DeleteOrigin(origin string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.creds[origin])
	if n == 0 {
		return 0, nil
	}
	delete(s.creds, origin)
	return n, s.flush()
}

// List returns all records without secrets, most recently updated first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for origin, records := range s.creds {
		for _, rec := range records {
			out = append(out, Summary{
				Origin:    origin,
				Username:  rec.Username,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetForAutofill returns cleartext candidates for an origin. The one
// operation that reveals secrets; callers gate it behind re-authentication
// before a secret reaches a page.
func (s *Store) GetForAutofill(origin string) []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.creds[origin]
	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		out = append(out, Candidate{Username: rec.Username, Secret: rec.Secret})
	}
	return out
}

// Count reports the total number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, records := range s.creds {
		n += len(records)
	}
	return n
}

// MarkNeverSave suppresses save prompts for an origin. Existing records for
// the origin are untouched.
func (s *Store) MarkNeverSave(origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.neverSave[origin] = struct{}{}
	return s.flushNeverSave()
}

// AllowSave re-enables save prompts for an origin.
func (s *Store) AllowSave(origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.neverSave, origin)
	return s.flushNeverSave()
}

// IsNeverSave reports whether an origin is in the never-save set.
func (s *Store) IsNeverSave(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.neverSave[origin]
	return ok
}

// NeverSaveList returns the never-save origins, sorted.
func (s *Store) NeverSaveList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.neverSave))
	for o := range s.neverSave {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// ShouldPrompt is false exactly when the origin is never-save.
func (s *Store) ShouldPrompt(origin string) bool {
	return !s.IsNeverSave(origin)
}
