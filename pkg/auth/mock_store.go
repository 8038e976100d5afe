package auth

import (
	"sync"
)

// MockStore implements CredentialStore in memory for tests
type MockStore struct {
	creds map[string]*Credential
	mu    sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{
		creds: make(map[string]*Credential),
	}
}

// Name implements CredentialStore
func (m *MockStore) Name() string { return "mock" }

// Store saves a copy of the credential
func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if cred == nil || cred.Profile == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *cred
	m.creds[cred.Profile] = &c
	return nil
}

// Retrieve returns a copy of the stored credential
func (m *MockStore) Retrieve(profile string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if profile == "" {
		return nil, ErrInvalidCredentials
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.creds[profile]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	c := *cred
	return &c, nil
}

// List returns copies of all stored credentials
func (m *MockStore) List() ([]*Credential, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		c := *cred
		out = append(out, &c)
	}
	return out, nil
}

// Delete removes a profile
func (m *MockStore) Delete(profile string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if profile == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.creds[profile]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, profile)
	return nil
}

// Exists checks if a profile is stored
func (m *MockStore) Exists(profile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.creds[profile]
	return ok
}

// Count returns the number of stored profiles
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.creds)
}

// NewMockManager creates a Manager over a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
