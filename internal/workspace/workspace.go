package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// Manager maps device identities to workspace directories.
type Manager struct {
	root   string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewManager creates a manager rooted at root. Workspaces are named prefix+identity.
func NewManager(root, prefix string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	return &Manager{
		root:   root,
		prefix: prefix,
		now:    time.Now,
		locks:  make(map[string]*keyLock),
	}
}

// Root returns the directory holding all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the workspace directory for identity. It has no side effects.
func (m *Manager) Path(identity string) string {
	return filepath.Join(m.root, m.prefix+identity)
}

// Reset recreates the workspace for identity. A failure to remove the previous
// contents is returned as warning and does not stop the reset; err is only set
// when the directory cannot be created.
func (m *Manager) Reset(identity string) (path string, warning error, err error) {
	path = m.Path(identity)

	if _, statErr := os.Stat(path); statErr == nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			warning = ferrors.FileSystemError("failed to clean previous workspace").
				WithCause(rmErr).
				Warning().
				WithContext("path", path).
				Build()
			slog.Warn("Workspace cleanup failed, continuing", logfields.Path(path), logfields.Error(rmErr))
		} else {
			slog.Debug("Removed previous workspace", logfields.Path(path))
		}
	}

	if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
		return "", warning, ferrors.FileSystemError("failed to create workspace directory").
			WithCause(mkErr).
			Fatal().
			WithContext("path", path).
			Build()
	}
	slog.Info("Workspace ready", logfields.Path(path))
	return path, warning, nil
}

// Lock blocks until the workspace for identity is free or ctx is done.
// The returned function releases the lock and is safe to call more than once.
func (m *Manager) Lock(ctx context.Context, identity string) (func(), error) {
	kl := m.acquire(identity)
	select {
	case kl.ch <- struct{}{}:
		return m.unlocker(identity, kl), nil
	case <-ctx.Done():
		m.release(identity, kl)
		return nil, ctx.Err()
	}
}

// TryLock takes the lock for identity only if it is immediately available.
func (m *Manager) TryLock(identity string) (func(), bool) {
	kl := m.acquire(identity)
	select {
	case kl.ch <- struct{}{}:
		return m.unlocker(identity, kl), true
	default:
		m.release(identity, kl)
		return nil, false
	}
}

func (m *Manager) acquire(identity string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl, ok := m.locks[identity]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[identity] = kl
	}
	kl.refs++
	return kl
}

func (m *Manager) release(identity string, kl *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, identity)
	}
}

func (m *Manager) unlocker(identity string, kl *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			m.release(identity, kl)
		})
	}
}

// Prune removes workspaces whose modification time is older than olderThan.
// Workspaces with a build in progress are skipped. It returns the removed paths.
func (m *Manager) Prune(olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), m.prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		identity := strings.TrimPrefix(e.Name(), m.prefix)
		unlock, ok := m.TryLock(identity)
		if !ok {
			slog.Debug("Skipping busy workspace", logfields.Device(identity))
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		} else {
			removed = append(removed, path)
		}
		unlock()
	}
	return removed, errors.Join(errs...)
}
