package domain

import (
	"path"
	"strings"
	"time"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
)

// String returns the short name used in listings
func (t FileType) String() string {
	switch t {
	case FileTypeDirectory:
		return "dir"
	case FileTypeSymlink:
		return "link"
	default:
		return "file"
	}
}

// TimeFloor is the earliest timestamp a descriptor will report.
// Some backends hand out zero or near-zero times for freshly created entries.
var TimeFloor = time.Unix(24*60*60, 0).UTC()

// FileInfo describes one entry on a backend
type FileInfo struct {
	// Path is the absolute, slash separated path on the backend
	Path string

	// Name is the base name of Path
	Name string

	// Type indicates if this is a file, directory, or symlink
	Type FileType

	// Exists is false for destinations that have not been created yet
	Exists bool

	// Size in bytes (0 for directories)
	Size int64

	// ChildCount is the number of children for directories, 1 otherwise
	ChildCount int

	ModTime    time.Time
	AccessTime time.Time

	Owner      string
	Group      string
	Permission string

	// Replication is reported by the remote backend only
	Replication int
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// Normalize returns a copy with the descriptor invariants enforced:
// canonical path, derived name, clamped timestamps and child count.
func (f FileInfo) Normalize() FileInfo {
	f.Path = CleanPath(f.Path)
	if f.Name == "" {
		f.Name = BaseName(f.Path)
	}
	if f.IsDir() {
		f.Size = 0
	} else if f.ChildCount == 0 {
		f.ChildCount = 1
	}
	f.ModTime = ClampTime(f.ModTime)
	f.AccessTime = ClampTime(f.AccessTime)
	return f
}

// Missing returns the descriptor of a path the backend has no record of
func Missing(p string) FileInfo {
	p = CleanPath(p)
	return FileInfo{
		Path:       p,
		Name:       BaseName(p),
		Type:       FileTypeRegular,
		ChildCount: 1,
		ModTime:    TimeFloor,
		AccessTime: TimeFloor,
	}
}

// ClampTime raises timestamps below TimeFloor to the floor
func ClampTime(t time.Time) time.Time {
	if t.Before(TimeFloor) {
		return TimeFloor
	}
	return t
}

// CleanPath returns the canonical form of an absolute slash path.
// Only the root keeps a trailing slash.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// BaseName returns the last element of a slash path, "/" for the root
func BaseName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
