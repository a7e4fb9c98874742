package auth

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

// memStore is an in-memory CredentialStore with error injection
type memStore struct {
	name     string
	mu       sync.Mutex
	accounts map[string]*Account
	storeErr error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, accounts: make(map[string]*Account)}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Store(account *Account) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.accounts[account.Username] = &cp
	return nil
}

func (m *memStore) Retrieve(username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[username]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrCredentialsNotFound
}

func (m *memStore) List() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

func testAccount(name string) *Account {
	return &Account{
		Username:  name,
		SessionID: "12345678%3Aabcdefgh%3A1",
		CSRFToken: "YTQHujAgMhyveLvvuwCfw9CPI8ROAHoy",
		UserID:    "12345678",
	}
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	primary, fallback := newMemStore("primary"), newMemStore("fallback")
	m := NewManagerWithStores(logger.NewNopLogger(), primary, fallback)

	name, err := m.Store(testAccount("alice"))
	require.NoError(t, err)
	assert.Equal(t, "primary", name)
	assert.Empty(t, fallback.accounts)

	got, err := m.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got.UserID)
	assert.False(t, got.LastModified.IsZero())

	_, err = m.Retrieve("bob")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerFallsBackOnStoreFailure(t *testing.T) {
	primary, fallback := newMemStore("primary"), newMemStore("fallback")
	primary.storeErr = errors.New("locked")
	m := NewManagerWithStores(logger.NewNopLogger(), primary, fallback)

	name, err := m.Store(testAccount("alice"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", name)
	assert.Equal(t, []string{"primary", "fallback"}, m.Stores())

	fallback.storeErr = errors.New("disk full")
	_, err = m.Store(testAccount("bob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary: locked")
	assert.Contains(t, err.Error(), "fallback: disk full")
}

func TestManagerValidation(t *testing.T) {
	m := NewManagerWithStores(logger.NewNopLogger(), newMemStore("mem"))

	_, err := m.Store(&Account{Username: "alice"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Contains(t, err.Error(), "session ID is required")
	assert.Contains(t, err.Error(), "CSRF token is required")
}

func TestManagerListNewestFirst(t *testing.T) {
	a, b := newMemStore("a"), newMemStore("b")
	m := NewManagerWithStores(logger.NewNopLogger(), a, b)

	old := testAccount("alice")
	old.LastModified = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testAccount("alice")
	newer.CSRFToken = "fresh"
	newer.LastModified = old.LastModified.Add(time.Hour)
	bob := testAccount("bob")
	bob.LastModified = old.LastModified.Add(time.Minute)

	require.NoError(t, a.Store(old))
	require.NoError(t, b.Store(newer))
	require.NoError(t, b.Store(bob))

	accounts, err := m.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "fresh", accounts[0].CSRFToken)
	assert.Equal(t, "bob", accounts[1].Username)

	def, err := m.RetrieveDefault("")
	require.NoError(t, err)
	assert.Equal(t, "alice", def.Username)
}

func TestManagerDelete(t *testing.T) {
	a, b := newMemStore("a"), newMemStore("b")
	m := NewManagerWithStores(logger.NewNopLogger(), a, b, NewEnvironmentStore())
	require.NoError(t, a.Store(testAccount("alice")))
	require.NoError(t, b.Store(testAccount("alice")))

	require.NoError(t, m.Delete("alice"))
	assert.Empty(t, a.accounts)
	assert.Empty(t, b.accounts)

	assert.ErrorIs(t, m.Delete("alice"), ErrCredentialsNotFound)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(EnvPassphrase, "correct horse battery staple")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "encrypted-file", store.Name())

	require.NoError(t, store.Store(testAccount("alice")))
	require.NoError(t, store.Store(testAccount("bob")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abcdefgh")

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, testAccount("alice").SessionID, got.SessionID)

	accounts, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, reopened.Delete("alice"))
	_, err = reopened.Retrieve("alice")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, reopened.Delete("bob"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file removed with its last account")
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(EnvPassphrase, "one")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("alice")))

	t.Setenv(EnvPassphrase, "two")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("alice")))

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = again.Retrieve("alice")
	assert.NoError(t, err)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(EnvSessionID, "")
	t.Setenv(EnvCSRFToken, "")
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(EnvSessionID, "sess")
	t.Setenv(EnvCSRFToken, "csrf")
	t.Setenv(EnvUserID, "99")
	t.Setenv(EnvAccount, "")

	got, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Username)
	assert.Equal(t, "99", got.UserID)

	t.Setenv(EnvAccount, "alice")
	got, err = store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	_, err = store.Retrieve("bob")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(testAccount("x")), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvSessionID, "sess")
	t.Setenv(EnvCSRFToken, "csrf")
	t.Setenv(EnvAccount, "envuser")

	mem := newMemStore("mem")
	require.NoError(t, mem.Store(testAccount("alice")))
	m := NewManagerWithStores(logger.NewNopLogger(), mem, NewEnvironmentStore())

	got, err := m.RetrieveDefault("")
	require.NoError(t, err)
	assert.Equal(t, "envuser", got.Username)

	got, err = m.RetrieveDefault("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("alice")))
	require.NoError(t, store.Store(testAccount("bob")))

	got, err := store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got.UserID)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete("alice"))
	assert.ErrorIs(t, store.Delete("alice"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "bob", accounts[0].Username)
}

func TestParseCookieHeader(t *testing.T) {
	acc := ParseCookieHeader(`Cookie: mid=abc; csrftoken=tok123; ds_user_id=42; sessionid="42%3Axyz%3A9"; rur=x`)
	require.NotNil(t, acc)
	assert.Equal(t, "42%3Axyz%3A9", acc.SessionID)
	assert.Equal(t, "tok123", acc.CSRFToken)
	assert.Equal(t, "42", acc.UserID)

	assert.Nil(t, ParseCookieHeader("csrftoken=tok"))
	assert.Nil(t, ParseCookieHeader(""))
}

func TestUserIDFromSession(t *testing.T) {
	assert.Equal(t, "12345678", UserIDFromSession("12345678%3Aabcdefgh%3A1"))
	assert.Equal(t, "42", UserIDFromSession("42:xyz"))
	assert.Equal(t, "", UserIDFromSession("nocolon"))
	assert.Equal(t, "", UserIDFromSession("ab12:xyz"))
}

func TestSanitizeAndSession(t *testing.T) {
	acc := testAccount("alice")
	clean := SanitizeAccount(acc)
	assert.Equal(t, "1234...%3A1", clean.SessionID)
	assert.Equal(t, "YTQH...AHoy", clean.CSRFToken)
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeAccount(nil))

	s := acc.Session()
	assert.Equal(t, acc.SessionID, s.SessionID)
	assert.Equal(t, acc.UserID, s.UserID)
	assert.Nil(t, (*Account)(nil).Session())
}
