package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the state directory.
const DirPerms = 0o700

// tokenFile is the on-disk format. It stores the OAuth token alongside the
// identity resolved at login so the engine can answer CurrentUser without a
// network round trip.
type tokenFile struct {
	Token    *oauth2.Token `json:"token"`
	Identity *Identity     `json:"identity,omitempty"`
}

// loadTokenFile reads a saved token file from disk.
// Returns (nil, nil, nil) if the file does not exist.
func loadTokenFile(path string) (*oauth2.Token, *Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("auth: reading %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("auth: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("auth: %s missing token field (re-login required)", path)
	}

	return tf.Token, tf.Identity, nil
}

// saveTokenFile writes a token file to disk atomically (write-to-temp +
// rename) with 0600 permissions. Never logs token values.
func saveTokenFile(path string, tok *oauth2.Token, identity *Identity) error {
	data, err := json.MarshalIndent(tokenFile{Token: tok, Identity: identity}, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encoding token file: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("auth: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("auth: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave an empty or partial
	// token file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("auth: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("auth: renaming: %w", err)
	}

	success = true

	return nil
}
