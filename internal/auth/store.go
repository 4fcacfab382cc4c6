package auth

import "sync"

// Credentials is the token pair issued by the backend.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Store persists the current token pair.
//
// Implementations must be safe for concurrent use: the broker client and
// the REST client read credentials from different goroutines while the
// refresh coordinator replaces them.
type Store interface {
	// Get returns the current credentials, or ErrNoCredentials if none
	// are stored.
	Get() (Credentials, error)

	// Set replaces the stored credentials.
	Set(creds Credentials) error

	// Clear removes the stored credentials. Subsequent Get calls return
	// ErrNoCredentials until Set is called again.
	Clear() error
}

// MemoryStore is an in-memory Store implementation.
//
// Production deployments wrap the platform keychain behind the Store
// interface; MemoryStore serves tests and development wiring.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
	set   bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored credentials.
func (s *MemoryStore) Get() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

// Set replaces the stored credentials.
func (s *MemoryStore) Set(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = creds
	s.set = true
	return nil
}

// Clear removes the stored credentials.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = Credentials{}
	s.set = false
	return nil
}
