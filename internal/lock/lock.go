// Package lock guards collection runs per (subject, kind).
//
// A key is held in-process through a keyed mutex and across processes
// through an exclusive lock file under the data directory. The holder touches
// its lock file on a heartbeat; a file whose modification time is older than
// the stale threshold is assumed to belong to a crashed process and is taken
// over.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/EagleChen/mapmutex"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

// Dir is the lock directory inside the data directory
const Dir = ".locks"

const (
	defaultHeartbeat  = 30 * time.Second
	defaultStaleAfter = 5 * time.Minute
)

// Manager hands out keyed locks
type Manager struct {
	keys       *mapmutex.Mutex
	dir        string
	heartbeat  time.Duration
	staleAfter time.Duration
	logger     logger.Logger
}

// New creates a manager keeping lock files under dataDir/.locks. An empty
// dataDir disables inter-process locking.
func New(dataDir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	m := &Manager{
		// few quick retries: a busy key should fail fast, not queue
		keys:       mapmutex.NewCustomizedMapMutex(3, 1000000, 10, 1.1, 0.2),
		heartbeat:  defaultHeartbeat,
		staleAfter: defaultStaleAfter,
		logger:     log.WithField("component", "lock"),
	}
	if dataDir != "" {
		m.dir = filepath.Join(dataDir, Dir)
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}
	return m, nil
}

// TryLock acquires key or fails with a conflict error. The returned function
// releases the lock and is safe to call more than once.
func (m *Manager) TryLock(key string) (func(), error) {
	if !m.keys.TryLock(key) {
		return nil, errs.Conflict("lock", fmt.Sprintf("a collection for %s is already running in this process", key))
	}

	var release func()
	if m.dir != "" {
		var err error
		release, err = m.lockFile(key)
		if err != nil {
			m.keys.Unlock(key)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if release != nil {
				release()
			}
			m.keys.Unlock(key)
		})
	}, nil
}

func (m *Manager) path(key string) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(key)
	return filepath.Join(m.dir, name+".lock")
}

func (m *Manager) lockFile(key string) (func(), error) {
	path := m.path(key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) && m.stale(path) {
		m.logger.WarnWithFields("taking over stale lock", map[string]interface{}{"key": key, "path": path})
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, errs.Storage("lock", rerr)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	}
	if errors.Is(err, os.ErrExist) {
		return nil, errs.Conflict("lock", fmt.Sprintf("a collection for %s is already running in another process", key))
	}
	if err != nil {
		return nil, errs.Storage("lock", err)
	}

	fmt.Fprintf(f, "pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	f.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				if err := os.Chtimes(path, t, t); err != nil {
					m.logger.WithError(err).Warn("failed to refresh lock file")
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).Warn("failed to remove lock file")
		}
	}, nil
}

func (m *Manager) stale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// vanished in the meantime; the retry decides
		return os.IsNotExist(err)
	}
	return time.Since(info.ModTime()) > m.staleAfter
}
