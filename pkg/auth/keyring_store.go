package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "thingmirror"
	keyringPrefix  = "token_"
	// keyringIndex lists stored profiles, since keyrings cannot be enumerated
	keyringIndex = "profiles"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a keyring store if the system keyring is usable
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("%w: keyring: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Name implements CredentialStore
func (k *KeyringStore) Name() string { return "keyring" }

// Store saves the credential to the system keychain
func (k *KeyringStore) Store(cred *Credential) error {
	if cred == nil || cred.Profile == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+cred.Profile, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return k.updateIndex(func(profiles map[string]bool) { profiles[cred.Profile] = true })
}

// Retrieve gets the credential of a profile from the system keychain
func (k *KeyringStore) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+profile)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// List returns the credentials named in the profile index
func (k *KeyringStore) List() ([]*Credential, error) {
	k.mu.Lock()
	profiles, err := k.readIndex()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	creds := make([]*Credential, 0, len(names))
	for _, name := range names {
		cred, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Delete removes the credential of a profile from the system keychain
func (k *KeyringStore) Delete(profile string) error {
	if profile == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(keyringService, keyringPrefix+profile); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateIndex(func(profiles map[string]bool) { delete(profiles, profile) })
}

// Exists checks if a profile has a credential in the keychain
func (k *KeyringStore) Exists(profile string) bool {
	if profile == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+profile)
	return err == nil
}

func (k *KeyringStore) readIndex() (map[string]bool, error) {
	profiles := make(map[string]bool)
	data, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return profiles, nil
		}
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	for _, name := range names {
		profiles[name] = true
	}
	return profiles, nil
}

// updateIndex must be called with k.mu held
func (k *KeyringStore) updateIndex(change func(map[string]bool)) error {
	profiles, err := k.readIndex()
	if err != nil {
		return err
	}
	change(profiles)

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
