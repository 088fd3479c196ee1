package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStaleTimeout is the age after which a lock from another host is considered stale
const DefaultStaleTimeout = 6 * time.Hour

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Target    string    `json:"target"`
	Token     string    `json:"token"`
}

// FileLock serializes chunked copies per destination. Every target gets its
// own lock file in the lock directory, so copies to different destinations
// never contend.
type FileLock struct {
	dir          string
	staleTimeout time.Duration

	mu   sync.Mutex
	held map[string]*LockInfo
}

// NewFileLock creates a lock manager storing its files in lockDir.
// An empty lockDir uses the user cache directory.
func NewFileLock(lockDir string) (*FileLock, error) {
	if lockDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache dir: %w", err)
		}
		lockDir = filepath.Join(cacheDir, "ferry", "locks")
	}

	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		dir:          lockDir,
		staleTimeout: DefaultStaleTimeout,
		held:         make(map[string]*LockInfo),
	}, nil
}

// SetStaleTimeout sets the duration after which a foreign lock is considered stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// PathFor returns the lock file used for target
func (l *FileLock) PathFor(target string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(target))
	return filepath.Join(l.dir, id.String()+".lock")
}

// Acquire takes the lock for target.
// Returns a *LockError if another process or copy holds it.
func (l *FileLock) Acquire(target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[target]; ok {
		return &LockError{Target: target, Reason: "a copy to this destination is already running"}
	}

	lockPath := l.PathFor(target)
	if existing, err := readLockInfo(lockPath); err == nil {
		if !l.isStale(existing) {
			return &LockError{Holder: existing, Target: target, Reason: "lock is held by another process"}
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Target:    target,
		Token:     uuid.NewString(),
	}

	// O_EXCL makes creation atomic across processes
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			existing, readErr := readLockInfo(lockPath)
			if readErr != nil {
				return fmt.Errorf("lock acquisition race condition: %w", err)
			}
			return &LockError{Holder: existing, Target: target, Reason: "lock acquired by another process during acquisition"}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.held[target] = info
	return nil
}

// Release releases the lock for target. Releasing a lock that is not held is a no-op.
func (l *FileLock) Release(target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.held[target]
	if !ok {
		return nil
	}
	delete(l.held, target)

	lockPath := l.PathFor(target)
	existing, err := readLockInfo(lockPath)
	if err != nil {
		return nil // lock file already gone
	}
	if existing.Token != info.Token {
		return fmt.Errorf("lock for %s was stolen by another process", target)
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked checks if a live lock exists for target
func (l *FileLock) IsLocked(target string) bool {
	info, err := readLockInfo(l.PathFor(target))
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns information about the current holder of target
func (l *FileLock) GetHolder(target string) (*LockInfo, error) {
	info, err := readLockInfo(l.PathFor(target))
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, errors.New("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file of target regardless of its holder.
// Use only when the holder is known to have crashed.
func (l *FileLock) ForceRelease(target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, target)
	if err := os.Remove(l.PathFor(target)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	return nil
}

func readLockInfo(lockPath string) (*LockInfo, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &info, nil
}

func writeLockInfo(lockPath string, info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(lockPath, data, 0644)
}

// isStale reports whether the holder is gone. On the same host that means
// the process is dead; for other hosts only the timeout can tell.
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	if info.Hostname == hostname {
		return !processAlive(info.PID)
	}
	return time.Since(info.StartTime) > l.staleTimeout
}

// LockError represents an error when lock cannot be acquired
type LockError struct {
	Holder *LockInfo
	Target string
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot lock %s: %s (held by PID %d on %s since %s)",
			e.Target,
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
		)
	}
	return fmt.Sprintf("cannot lock %s: %s", e.Target, e.Reason)
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}
