// Package memfs is an in-memory adapter.Backend for tests. It records every
// primitive call and can be told to fail calls or refuse paths.
package memfs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/domain"
)

type node struct {
	dir   bool
	data  []byte
	mtime time.Time
}

type failure struct {
	after int
	times int
	err   error
}

// FS is an in-memory filesystem
type FS struct {
	scheme string
	concat bool

	mu        sync.Mutex
	nodes     map[string]*node
	forbidden map[string]bool
	failures  map[string]*failure
	calls     map[string]int
	concats   [][]string
	clock     time.Time
}

// New creates an empty filesystem. Without concat support, Concat
// answers domain.ErrUnsupported like the local disk does.
func New(scheme string, concat bool) *FS {
	return &FS{
		scheme:    scheme,
		concat:    concat,
		nodes:     map[string]*node{"/": {dir: true}},
		forbidden: map[string]bool{},
		failures:  map[string]*failure{},
		calls:     map[string]int{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so every write gets a later mtime
func (fs *FS) tick() time.Time {
	fs.clock = fs.clock.Add(time.Second)
	return fs.clock
}

// PutFile stores a file, creating parents
func (fs *FS) PutFile(p string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirs(path.Dir(p))
	fs.nodes[p] = &node{data: append([]byte{}, data...), mtime: fs.tick()}
}

// PutDir creates a directory and its parents
func (fs *FS) PutDir(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirs(p)
}

// SetModTime overrides the mtime of p
func (fs *FS) SetModTime(p string, t time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n, ok := fs.nodes[p]; ok {
		n.mtime = t
	}
}

// File returns the content of p
func (fs *FS) File(p string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.nodes[p]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte{}, n.data...), true
}

// Exists reports whether p is present
func (fs *FS) Exists(p string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.nodes[p]
	return ok
}

// Paths returns every path, sorted
func (fs *FS) Paths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, 0, len(fs.nodes))
	for p := range fs.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Forbid makes every call on p and below answer domain.ErrUnauthorized
func (fs *FS) Forbid(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.forbidden[p] = true
}

// Fail makes op fail with err, times times, after letting the next after calls through
func (fs *FS) Fail(op string, err error, after, times int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failures[op] = &failure{after: after, times: times, err: err}
}

// Calls returns how many times op was called
func (fs *FS) Calls(op string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls[op]
}

// MutatingCalls returns the number of calls that could change state
func (fs *FS) MutatingCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	total := 0
	for _, op := range []string{"Mkdir", "Touch", "Truncate", "Delete", "Append", "Rename", "Concat", "CopyWithin"} {
		total += fs.calls[op]
	}
	return total
}

// Concats returns the source lists of every successful Concat
func (fs *FS) Concats() [][]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([][]string{}, fs.concats...)
}

// enter records a call and applies injected failures and forbidden paths.
// The caller must hold fs.mu.
func (fs *FS) enter(op string, paths ...string) error {
	fs.calls[op]++
	for _, p := range paths {
		for f := range fs.forbidden {
			if p == f || strings.HasPrefix(p, f+"/") {
				return fmt.Errorf("%w: %s", domain.ErrUnauthorized, p)
			}
		}
	}
	if f, ok := fs.failures[op]; ok {
		if f.after > 0 {
			f.after--
			return nil
		}
		if f.times > 0 {
			f.times--
			return f.err
		}
	}
	return nil
}

func (fs *FS) mkdirs(p string) {
	for cur := p; ; cur = path.Dir(cur) {
		if _, ok := fs.nodes[cur]; !ok {
			fs.nodes[cur] = &node{dir: true, mtime: fs.clock}
		}
		if cur == "/" {
			return
		}
	}
}

func (fs *FS) children(p string) []string {
	prefix := strings.TrimSuffix(p, "/") + "/"
	var out []string
	for k := range fs.nodes {
		if k != "/" && strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], "/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (fs *FS) info(p string, n *node) domain.FileInfo {
	info := domain.FileInfo{
		Path:       p,
		Type:       domain.FileTypeRegular,
		Exists:     true,
		Size:       int64(len(n.data)),
		ModTime:    n.mtime,
		AccessTime: n.mtime,
		Owner:      "tester",
		Group:      "tester",
		Permission: "644",
	}
	if n.dir {
		info.Type = domain.FileTypeDirectory
		info.ChildCount = len(fs.children(p))
		info.Permission = "755"
	}
	return info.Normalize()
}

func (fs *FS) lookup(p string) (*node, error) {
	n, ok := fs.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
	}
	return n, nil
}

func (fs *FS) Scheme() string { return fs.scheme }

func (fs *FS) Stat(ctx context.Context, p string) (domain.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Stat", p); err != nil {
		return domain.FileInfo{}, err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return domain.FileInfo{}, err
	}
	return fs.info(p, n), nil
}

func (fs *FS) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("List", p); err != nil {
		return nil, err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return []domain.FileInfo{fs.info(p, n)}, nil
	}
	var out []domain.FileInfo
	for _, c := range fs.children(p) {
		out = append(out, fs.info(c, fs.nodes[c]))
	}
	return out, nil
}

func (fs *FS) Mkdir(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Mkdir", p); err != nil {
		return err
	}
	if n, ok := fs.nodes[p]; ok && !n.dir {
		return fmt.Errorf("%w: %s is a file", domain.ErrBackend, p)
	}
	fs.mkdirs(p)
	return nil
}

func (fs *FS) Touch(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Touch", p); err != nil {
		return err
	}
	if n, ok := fs.nodes[p]; ok {
		n.mtime = fs.tick()
		return nil
	}
	if parent, ok := fs.nodes[path.Dir(p)]; !ok || !parent.dir {
		return fmt.Errorf("%w: parent of %s", domain.ErrNotFound, p)
	}
	fs.nodes[p] = &node{mtime: fs.tick()}
	return nil
}

func (fs *FS) Truncate(ctx context.Context, p string, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Truncate", p); err != nil {
		return err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return err
	}
	if size < int64(len(n.data)) {
		n.data = n.data[:size]
	}
	n.mtime = fs.tick()
	return nil
}

func (fs *FS) Delete(ctx context.Context, p string, recursive bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Delete", p); err != nil {
		return err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return err
	}
	if n.dir && len(fs.children(p)) > 0 && !recursive {
		return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, p)
	}
	for k := range fs.nodes {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(fs.nodes, k)
		}
	}
	return nil
}

func (fs *FS) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("ReadRange", p); err != nil {
		return nil, err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, fmt.Errorf("%w: %s", domain.ErrIsDirectory, p)
	}
	size := int64(len(n.data))
	if offset >= size || length <= 0 {
		return []byte{}, nil
	}
	end := min(offset+length, size)
	return append([]byte{}, n.data[offset:end]...), nil
}

func (fs *FS) Append(ctx context.Context, p string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if err := fs.enter("Append", p); err != nil {
		return err
	}
	n, err := fs.lookup(p)
	if err != nil {
		return err
	}
	n.data = append(n.data, data...)
	n.mtime = fs.tick()
	return nil
}

func (fs *FS) Rename(ctx context.Context, src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	src, dst = domain.CleanPath(src), domain.CleanPath(dst)
	if err := fs.enter("Rename", src, dst); err != nil {
		return err
	}
	if _, err := fs.lookup(src); err != nil {
		return err
	}
	moved := map[string]*node{}
	for k, n := range fs.nodes {
		if k == src || strings.HasPrefix(k, src+"/") {
			moved[dst+strings.TrimPrefix(k, src)] = n
			delete(fs.nodes, k)
		}
	}
	fs.mkdirs(path.Dir(dst))
	for k, n := range moved {
		fs.nodes[k] = n
	}
	return nil
}

func (fs *FS) Concat(ctx context.Context, p string, sources []string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = domain.CleanPath(p)
	if !fs.concat {
		fs.calls["Concat"]++
		return fmt.Errorf("%w: concat", domain.ErrUnsupported)
	}
	if err := fs.enter("Concat", append([]string{p}, sources...)...); err != nil {
		return err
	}
	target, err := fs.lookup(p)
	if err != nil {
		return err
	}
	for _, s := range sources {
		if _, err := fs.lookup(s); err != nil {
			return err
		}
	}
	for _, s := range sources {
		target.data = append(target.data, fs.nodes[s].data...)
		delete(fs.nodes, s)
	}
	target.mtime = fs.tick()
	fs.concats = append(fs.concats, append([]string{}, sources...))
	return nil
}

func (fs *FS) CopyWithin(ctx context.Context, src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	src, dst = domain.CleanPath(src), domain.CleanPath(dst)
	if err := fs.enter("CopyWithin", src, dst); err != nil {
		return err
	}
	n, err := fs.lookup(src)
	if err != nil {
		return err
	}
	fs.nodes[dst] = &node{data: append([]byte{}, n.data...), mtime: fs.tick()}
	return nil
}

func (fs *FS) Close() error { return nil }

var _ adapter.Backend = (*FS)(nil)
