package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvSessionID = "IGMONITOR_SESSION_ID"
	EnvCSRFToken = "IGMONITOR_CSRF_TOKEN"
	EnvUserID    = "IGMONITOR_USER_ID"
	EnvAccount   = "IGMONITOR_ACCOUNT"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment. A username that does
// not match IGMONITOR_ACCOUNT, when that is set, finds nothing.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	sessionID := os.Getenv(EnvSessionID)
	csrfToken := os.Getenv(EnvCSRFToken)
	if sessionID == "" || csrfToken == "" {
		return nil, ErrCredentialsNotFound
	}

	name := os.Getenv(EnvAccount)
	switch {
	case username == "" && name == "":
		name = "default"
	case username == "":
	case name == "":
		name = username
	case name != username:
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     name,
		SessionID:    sessionID,
		CSRFToken:    csrfToken,
		UserID:       os.Getenv(EnvUserID),
		LastModified: time.Now().UTC(),
	}, nil
}

// List returns a single account if environment variables are set
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
