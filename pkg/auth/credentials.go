package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// DefaultProfile is the profile used when none is named
const DefaultProfile = "default"

// Credential is a stored Thingiverse API token
type Credential struct {
	Profile      string    `json:"profile"`
	Token        string    `json:"token"`
	LastModified time.Time `json:"last_modified"`
	// Source names the store the credential was read from. It is not persisted.
	Source string `json:"-"`
}

// CredentialStore is the interface for storing and retrieving tokens
type CredentialStore interface {
	// Name identifies the store in listings
	Name() string

	// Store saves the credential under its profile
	Store(cred *Credential) error

	// Retrieve gets the credential of a profile
	Retrieve(profile string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential of a profile
	Delete(profile string) error

	// Exists checks if a profile has a credential
	Exists(profile string) bool
}

// Manager handles token storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager backed by the system keyring when available,
// an encrypted file, and the environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over the given stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the credential in the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("token is required")
	}
	if cred.Profile == "" {
		cred.Profile = DefaultProfile
	}
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the credential of a profile from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			cred.Source = store.Name()
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// Token returns the token of a profile, or the empty string when none is
// stored anywhere.
func (m *Manager) Token(profile string) string {
	cred, err := m.Retrieve(profile)
	if err != nil {
		return ""
	}
	return cred.Token
}

// List returns every profile known to any store, keeping the most recently
// modified credential per profile, sorted by profile.
func (m *Manager) List() ([]*Credential, error) {
	byProfile := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			cred.Source = store.Name()
			if existing, ok := byProfile[cred.Profile]; !ok || cred.LastModified.After(existing.LastModified) {
				byProfile[cred.Profile] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byProfile))
	for _, cred := range byProfile {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Profile < result[j].Profile })
	return result, nil
}

// Delete removes the profile from all stores
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "thingmirror")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "thingmirror")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "thingmirror")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "thingmirror")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize returns a copy of the credential with the token masked
func Sanitize(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	out.Token = MaskToken(cred.Token)
	return &out
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
