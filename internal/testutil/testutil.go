package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// TempDir creates a temporary directory removed when the test ends.
// The returned path is slash separated and symlink free so that it compares
// equal to paths reported by the local adapter.
func TempDir(t *testing.T) string {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}
	return filepath.ToSlash(dir)
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(filepath.FromSlash(dir), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return filepath.ToSlash(path)
}

// RandomBytes returns size bytes from a seeded generator so failures are
// reproducible
func RandomBytes(size int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, size)
	r.Read(buf)
	return buf
}

// CreateTestFileWithSize creates a test file with random content of the given size
func CreateTestFileWithSize(t *testing.T, dir, name string, size int) (string, []byte) {
	t.Helper()

	content := RandomBytes(size, int64(size))
	return CreateTestFile(t, dir, name, content), content
}

// ReadFile reads a slash path and fails the test on error
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}
