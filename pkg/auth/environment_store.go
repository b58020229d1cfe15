package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvRefreshToken = "PIXIVCRAWL_REFRESH_TOKEN"
	EnvAccount      = "PIXIVCRAWL_ACCOUNT"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. An empty username matches it,
// otherwise the username must equal PIXIVCRAWL_ACCOUNT when that is set.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	token := os.Getenv(EnvRefreshToken)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	name := os.Getenv(EnvAccount)
	if name == "" {
		name = "default"
	}
	if username != "" && username != name {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     name,
		RefreshToken: token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the environment carries a token
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
