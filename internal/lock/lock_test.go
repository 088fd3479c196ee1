package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/ferry/internal/testutil"
)

const target = "hdfs:///vc1/data/big.bin"

func newTestLock(t *testing.T) *FileLock {
	t.Helper()
	lock, err := NewFileLock(testutil.TempDir(t))
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}
	return lock
}

func TestNewFileLock(t *testing.T) {
	dir := filepath.Join(testutil.TempDir(t), "nested", "locks")

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("lock directory not created: %v", err)
	}
	if lock.staleTimeout != DefaultStaleTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultStaleTimeout, lock.staleTimeout)
	}
}

func TestPathFor(t *testing.T) {
	lock := newTestLock(t)

	a := lock.PathFor(target)
	if a != lock.PathFor(target) {
		t.Error("lock path must be stable for a target")
	}
	if a == lock.PathFor(target+".other") {
		t.Error("different targets must not share a lock file")
	}
	if !strings.HasSuffix(a, ".lock") || filepath.Dir(a) != lock.dir {
		t.Errorf("unexpected lock path %s", a)
	}
}

func TestAcquireRelease(t *testing.T) {
	lock := newTestLock(t)

	if err := lock.Acquire(target); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !lock.IsLocked(target) {
		t.Error("lock should be held")
	}

	holder, err := lock.GetHolder(target)
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.PID != os.Getpid() || holder.Target != target || holder.Token == "" {
		t.Errorf("unexpected holder: %+v", holder)
	}

	if err := lock.Release(target); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if lock.IsLocked(target) {
		t.Error("lock should be released")
	}
	if _, err := os.Stat(lock.PathFor(target)); !os.IsNotExist(err) {
		t.Error("lock file should be removed")
	}

	// releasing again is a no-op
	if err := lock.Release(target); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireTwice_SameTarget(t *testing.T) {
	lock := newTestLock(t)

	if err := lock.Acquire(target); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release(target)

	err := lock.Acquire(target)
	if !IsLockError(err) {
		t.Fatalf("expected LockError, got %v", err)
	}
}

func TestAcquire_IndependentTargets(t *testing.T) {
	lock := newTestLock(t)

	for i := 0; i < 3; i++ {
		if err := lock.Acquire(fmt.Sprintf("%s.%d", target, i)); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := lock.Release(fmt.Sprintf("%s.%d", target, i)); err != nil {
			t.Errorf("Release %d failed: %v", i, err)
		}
	}
}

func TestConcurrentAcquire(t *testing.T) {
	dir := testutil.TempDir(t)

	const goroutines = 10
	var wg sync.WaitGroup
	acquired := make([]bool, goroutines)
	errs := make([]error, goroutines)

	// separate instances behave like separate processes
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			lock, err := NewFileLock(dir)
			if err != nil {
				errs[idx] = err
				return
			}
			if err := lock.Acquire(target); err != nil {
				errs[idx] = err
				return
			}
			acquired[idx] = true
		}(i)
	}
	wg.Wait()

	acquireCount, lockErrorCount := 0, 0
	for i := 0; i < goroutines; i++ {
		if acquired[i] {
			acquireCount++
		}
		if IsLockError(errs[i]) {
			lockErrorCount++
		}
	}
	if acquireCount != 1 {
		t.Errorf("expected exactly 1 acquire, got %d", acquireCount)
	}
	if lockErrorCount != goroutines-1 {
		t.Errorf("expected %d lock errors, got %d", goroutines-1, lockErrorCount)
	}
}

func TestStaleDetection_ProcessDead(t *testing.T) {
	lock := newTestLock(t)

	hostname, _ := os.Hostname()
	stale := &LockInfo{
		PID:       999999, // unlikely to exist
		Hostname:  hostname,
		StartTime: time.Now().Add(-time.Hour),
		Target:    target,
		Token:     "old",
	}
	if err := writeLockInfo(lock.PathFor(target), stale); err != nil {
		t.Fatalf("failed to write stale lock: %v", err)
	}

	if err := lock.Acquire(target); err != nil {
		t.Fatalf("should acquire stale lock: %v", err)
	}
	defer lock.Release(target)

	holder, err := lock.GetHolder(target)
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.PID != os.Getpid() {
		t.Error("expected current process to be holder")
	}
}

func TestStaleDetection_LiveProcess(t *testing.T) {
	lock := newTestLock(t)
	lock.SetStaleTimeout(time.Millisecond)

	hostname, _ := os.Hostname()
	live := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now().Add(-time.Hour),
		Target:    target,
		Token:     "other-copy",
	}
	if err := writeLockInfo(lock.PathFor(target), live); err != nil {
		t.Fatalf("failed to write lock: %v", err)
	}

	// the timeout only applies to foreign hosts
	err := lock.Acquire(target)
	if !IsLockError(err) {
		t.Fatalf("expected LockError, got %v", err)
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) || lockErr.Holder == nil || lockErr.Holder.Token != "other-copy" {
		t.Errorf("LockError should carry the holder: %v", err)
	}
}

func TestStaleDetection_DifferentHost(t *testing.T) {
	lock := newTestLock(t)
	lock.SetStaleTimeout(100 * time.Millisecond)

	foreign := &LockInfo{
		PID:       12345,
		Hostname:  "foreign-host.invalid",
		StartTime: time.Now().Add(-time.Hour),
		Target:    target,
	}
	if err := writeLockInfo(lock.PathFor(target), foreign); err != nil {
		t.Fatalf("failed to write foreign lock: %v", err)
	}

	if err := lock.Acquire(target); err != nil {
		t.Fatalf("should acquire stale foreign lock: %v", err)
	}
	lock.Release(target)
}

func TestRelease_Stolen(t *testing.T) {
	lock := newTestLock(t)
	if err := lock.Acquire(target); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	thief := &LockInfo{PID: os.Getpid(), Token: "thief", Target: target}
	if err := writeLockInfo(lock.PathFor(target), thief); err != nil {
		t.Fatalf("failed to overwrite lock: %v", err)
	}

	if err := lock.Release(target); err == nil || !strings.Contains(err.Error(), "stolen") {
		t.Errorf("expected stolen error, got %v", err)
	}
	if _, err := os.Stat(lock.PathFor(target)); err != nil {
		t.Error("a stolen lock file must be left in place")
	}
}

func TestForceRelease(t *testing.T) {
	lock := newTestLock(t)
	if err := lock.Acquire(target); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := lock.ForceRelease(target); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if lock.IsLocked(target) {
		t.Error("lock should be gone")
	}
	if err := lock.Acquire(target); err != nil {
		t.Errorf("Acquire after ForceRelease failed: %v", err)
	}
	lock.Release(target)
}

func TestLockError(t *testing.T) {
	err := &LockError{
		Holder: &LockInfo{PID: 42, Hostname: "edge01", StartTime: time.Unix(0, 0).UTC()},
		Target: target,
		Reason: "lock is held by another process",
	}
	msg := err.Error()
	for _, want := range []string{"PID 42", "edge01", target} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}

	wrapped := fmt.Errorf("copy: %w", err)
	if !IsLockError(wrapped) {
		t.Error("IsLockError should see through wrapping")
	}
	if IsLockError(errors.New("other")) {
		t.Error("plain error is not a LockError")
	}
}
