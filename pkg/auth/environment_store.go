package auth

import (
	"os"
	"time"
)

// TokenEnv is the environment variable holding an API token
const TokenEnv = "THINGMIRROR_TOKEN"

// EnvironmentStore is a read-only CredentialStore over TokenEnv. It only
// ever holds the default profile.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Name implements CredentialStore
func (e *EnvironmentStore) Name() string { return "environment" }

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the token from the environment for the default profile
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	token := os.Getenv(TokenEnv)
	if token == "" || (profile != "" && profile != DefaultProfile) {
		return nil, ErrCredentialsNotFound
	}

	return &Credential{
		Profile:      DefaultProfile,
		Token:        token,
		LastModified: time.Now(),
	}, nil
}

// List returns the environment credential if one is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve(DefaultProfile)
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment holds a token for profile
func (e *EnvironmentStore) Exists(profile string) bool {
	_, err := e.Retrieve(profile)
	return err == nil
}
