// Package paths provides standardized filesystem paths for the browser
// profile so every component resolves persisted files the same way.
package paths

import (
	"os"
	"path/filepath"
)

// File names inside the profile directory. All persistence is whole-file
// overwrite; these files are exclusively owned by their writing component.
const (
	CredentialsFile = "credentials.bin"
	VaultKeyFile    = "vault.key"
	NeverSaveFile   = "never-save-sites.json"
	BlockStateFile  = "adblock-state.json"
)

// Profile resolves paths under a single browser profile directory.
type Profile struct {
	Dir string
}

// DefaultProfile places the profile under the user config directory,
// falling back to the working directory when it cannot be resolved.
func DefaultProfile() Profile {
	base, err := os.UserConfigDir()
	if err != nil {
		return Profile{Dir: ".vela"}
	}
	return Profile{Dir: filepath.Join(base, "vela")}
}

// Ensure creates the profile directory if missing.
func (p Profile) Ensure() error {
	return os.MkdirAll(p.Dir, 0o700)
}

func (p Profile) Credentials() string { return filepath.Join(p.Dir, CredentialsFile) }
func (p Profile) VaultKey() string    { return filepath.Join(p.Dir, VaultKeyFile) }
func (p Profile) NeverSave() string   { return filepath.Join(p.Dir, NeverSaveFile) }
func (p Profile) BlockState() string  { return filepath.Join(p.Dir, BlockStateFile) }
