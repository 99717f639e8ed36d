package vault

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Keekuk/notesnook/internal/infrastructure/database"
)

const (
	fileVersion       = 1
	filePermissions   = 0600
	dirPermissions    = 0750
	minPassphraseLen  = 8
	vaultTempFileName = ".vault-*"
)

// Executor runs a statement on the database connection.
// *database.Connection satisfies it.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) (*database.QueryResult, error)
}

// file is the on-disk vault format.
type file struct {
	Version   int       `json:"version"`
	KeySalt   string    `json:"key_salt"`
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// Vault guards the database key of one database file.
type Vault struct {
	path   string
	params Params

	mu   sync.Mutex
	data *file
}

// Open loads the vault file at path. A missing file is not an error:
// the vault reports Initialized() == false until Initialize runs.
func Open(path string) (*Vault, error) {
	v := &Vault{path: path, params: DefaultParams}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading vault file: %w", err)
	}

	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptVault, err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptVault, f.Version)
	}
	if _, err := base64.RawStdEncoding.DecodeString(f.KeySalt); err != nil {
		return nil, fmt.Errorf("%w: decoding key salt: %w", ErrCorruptVault, err)
	}
	if _, _, _, err := decodePHC(f.Verifier); err != nil {
		return nil, err
	}

	v.data = &f
	return v, nil
}

// Path returns the vault file location.
func (v *Vault) Path() string {
	return v.path
}

// Initialized reports whether a vault file has been written.
func (v *Vault) Initialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data != nil
}

// Initialize creates the vault file for a new passphrase.
func (v *Vault) Initialize(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initializeLocked(passphrase)
}

func (v *Vault) initializeLocked(passphrase string) error {
	if v.data != nil {
		return ErrAlreadyInitialized
	}
	if utf8.RuneCountInString(passphrase) < minPassphraseLen {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassphrase, minPassphraseLen)
	}

	salt, err := newSalt()
	if err != nil {
		return err
	}
	verifier, err := hashVerifier(passphrase, v.params)
	if err != nil {
		return err
	}

	f := &file{
		Version:   fileVersion,
		KeySalt:   base64.RawStdEncoding.EncodeToString(salt),
		Verifier:  verifier,
		CreatedAt: time.Now().UTC(),
	}
	if err := writeFile(v.path, f); err != nil {
		return err
	}

	v.data = f
	return nil
}

// DeriveKey verifies passphrase and returns the 32-byte database key.
func (v *Vault) DeriveKey(passphrase string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deriveKeyLocked(passphrase)
}

func (v *Vault) deriveKeyLocked(passphrase string) ([]byte, error) {
	if v.data == nil {
		return nil, ErrNotInitialized
	}

	ok, p, err := checkVerifier(passphrase, v.data.Verifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongPassphrase
	}

	salt, err := base64.RawStdEncoding.DecodeString(v.data.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding key salt: %w", ErrCorruptVault, err)
	}
	return deriveKey(passphrase, salt, p), nil
}

// Unlock applies the key for passphrase to the database through exec.
// An uninitialized vault is initialized with passphrase first.
func (v *Vault) Unlock(ctx context.Context, passphrase string, exec Executor) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.data == nil {
		if err := v.initializeLocked(passphrase); err != nil {
			return err
		}
	}

	key, err := v.deriveKeyLocked(passphrase)
	if err != nil {
		return err
	}

	// The key is a raw hex blob, so no passphrase text reaches SQL.
	if _, err := exec.Execute(ctx, keyPragma(key)); err != nil {
		return fmt.Errorf("applying database key: %w", err)
	}
	return nil
}

// keyPragma builds the raw-key form of PRAGMA key.
func keyPragma(key []byte) string {
	return `PRAGMA key = "x'` + hex.EncodeToString(key) + `'"`
}

// writeFile stores f at path via a temporary file and rename.
func writeFile(path string, f *file) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vault file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, vaultTempFileName)
	if err != nil {
		return fmt.Errorf("creating vault file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after a successful rename

	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("setting vault file permissions: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("writing vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing vault file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("installing vault file: %w", err)
	}
	return nil
}
