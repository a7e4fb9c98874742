package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/instagram"
	"igmonitor/pkg/logger"
)

// Account is the web session used to authenticate source requests
type Account struct {
	Username     string    `json:"username"`
	SessionID    string    `json:"session_id"`
	CSRFToken    string    `json:"csrf_token"`
	UserID       string    `json:"user_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Session converts the account for the source client
func (a *Account) Session() *instagram.Session {
	if a == nil {
		return nil
	}
	return &instagram.Session{
		Username:  a.Username,
		SessionID: a.SessionID,
		CSRFToken: a.CSRFToken,
		UserID:    a.UserID,
	}
}

// Validate reports every missing field at once
func (a *Account) Validate() error {
	if a == nil {
		return ErrInvalidCredentials
	}
	var problems []error
	if a.Username == "" {
		problems = append(problems, errors.New("username is required"))
	}
	if a.SessionID == "" {
		problems = append(problems, errors.New("session ID is required"))
	}
	if a.CSRFToken == "" {
		problems = append(problems, errors.New("CSRF token is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return errs.Validation("store credentials", err)
	}
	return nil
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Name identifies the store in status output
	Name() string

	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific username
	Retrieve(username string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific username
	Delete(username string) error
}

// Manager tries its stores in order: the first store that accepts a write
// wins, and reads fall through to later stores.
type Manager struct {
	stores []CredentialStore
	logger logger.Logger
}

// NewManager builds the default chain: the system keyring when it is
// usable, an encrypted file under dir, then the environment
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}

	var stores []CredentialStore
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	} else {
		log.WithError(err).Debug("system keyring unavailable, using encrypted file")
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return NewManagerWithStores(log, stores...), nil
}

// NewManagerWithStores uses exactly the given stores
func NewManagerWithStores(log logger.Logger, stores ...CredentialStore) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{stores: stores, logger: log.WithField("component", "auth")}
}

// Stores returns the names of the configured stores in order
func (m *Manager) Stores() []string {
	names := make([]string, 0, len(m.stores))
	for _, s := range m.stores {
		names = append(names, s.Name())
	}
	return names
}

// Store saves credentials using the first store that accepts them and
// returns that store's name
func (m *Manager) Store(account *Account) (string, error) {
	if err := account.Validate(); err != nil {
		return "", err
	}
	account.LastModified = time.Now().UTC()

	var failures []error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			m.logger.InfoWithFields("credentials stored", map[string]interface{}{
				"account": account.Username,
				"store":   store.Name(),
			})
			return store.Name(), nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", store.Name(), err))
	}

	if len(failures) == 0 {
		return "", ErrStoreUnavailable
	}
	return "", fmt.Errorf("failed to store credentials: %w", errors.Join(failures...))
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the named account, or the environment session,
// or the most recently modified stored account
func (m *Manager) RetrieveDefault(username string) (*Account, error) {
	if username != "" {
		return m.Retrieve(username)
	}

	for _, store := range m.stores {
		if env, ok := store.(*EnvironmentStore); ok {
			if account, err := env.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}
	return nil, ErrCredentialsNotFound
}

// List returns every stored account, newest first. An account held by
// several stores is reported once, in its most recent version.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			m.logger.WithError(err).WarnWithFields("credential store unreadable", map[string]interface{}{
				"store": store.Name(),
			})
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Username]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Username] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastModified.Equal(result[j].LastModified) {
			return result[i].LastModified.After(result[j].LastModified)
		}
		return result[i].Username < result[j].Username
	})
	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(username)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// DefaultDir is where credential files live when no directory is given
func DefaultDir() (string, error) {
	dir := filepath.Join(config.DefaultDataDir(), "auth")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount creates a copy of the account with sensitive data masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Username:     account.Username,
		SessionID:    maskString(account.SessionID),
		CSRFToken:    maskString(account.CSRFToken),
		UserID:       account.UserID,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
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
