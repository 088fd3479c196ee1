package transfer

import (
	"fmt"
	"path"
	"strings"

	"github.com/Ning0612/ferry/internal/domain"
)

// chunkMarker separates the destination name from the chunk index
const chunkMarker = ".__chunk__"

// Join appends a relative suffix to base. Backslashes are treated as
// separators; an absolute suffix is refused.
func Join(base, suffix string) (string, error) {
	suffix = strings.ReplaceAll(suffix, "\\", "/")
	if strings.HasPrefix(suffix, "/") {
		return "", fmt.Errorf("%w: %q is not a relative path", domain.ErrInvalidPath, suffix)
	}
	return domain.CleanPath(path.Join(strings.ReplaceAll(base, "\\", "/"), suffix)), nil
}

// SplitDirBase splits p on its last slash after dropping a trailing one.
// An empty directory part maps to the root.
func SplitDirBase(p string) (dir, base string) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "/", p
	}
	dir, base = p[:i], p[i+1:]
	if dir == "" {
		dir = "/"
	}
	return dir, base
}

// ChunkPath names the side file holding chunk i of dst
func ChunkPath(dst string, i int) string {
	return fmt.Sprintf("%s%s%d", dst, chunkMarker, i)
}

// IsChunkPath reports whether p is a chunk side file
func IsChunkPath(p string) bool {
	return strings.Contains(path.Base(p), chunkMarker)
}

// ChunkCount returns how many windows of chunkSize cover size bytes
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// window returns the byte range of chunk i
func window(i int, size, chunkSize int64) (offset, length int64) {
	offset = int64(i) * chunkSize
	length = min(chunkSize, size-offset)
	return offset, length
}

// relPath returns p relative to root, "" for root itself
func relPath(root, p string) string {
	if root == "/" {
		return strings.TrimPrefix(p, "/")
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
}
