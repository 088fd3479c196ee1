package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/Ning0612/ferry/internal/adapter/memfs"
	"github.com/Ning0612/ferry/internal/domain"
)

func buildTree(fs *memfs.FS) {
	fs.PutFile("/data/top.txt", []byte("top"))
	fs.PutFile("/data/a/one.txt", []byte("one"))
	fs.PutFile("/data/a/deep/two.txt", []byte("two"))
	fs.PutFile("/data/b/three.txt", []byte("three"))
	fs.PutDir("/data/empty")
}

func TestWalk_BreadthFirst(t *testing.T) {
	fs := memfs.New("hdfs", true)
	buildTree(fs)
	e := newTestEngine(64, 64)

	var dirs []string
	files := map[string]int{}
	for step, err := range e.Walk(context.Background(), fs, "/data") {
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		dirs = append(dirs, step.Dir.Path)
		files[step.Dir.Path] = len(step.Files)
	}

	want := []string{"/data", "/data/a", "/data/b", "/data/empty", "/data/a/deep"}
	if fmt.Sprint(dirs) != fmt.Sprint(want) {
		t.Errorf("visit order = %v, want %v", dirs, want)
	}
	if files["/data"] != 1 || files["/data/a"] != 1 || files["/data/a/deep"] != 1 || files["/data/empty"] != 0 {
		t.Errorf("files per dir = %v", files)
	}
}

func TestWalk_StopsWhenConsumerBreaks(t *testing.T) {
	fs := memfs.New("hdfs", true)
	buildTree(fs)
	e := newTestEngine(64, 64)

	for range e.Walk(context.Background(), fs, "/data") {
		break
	}
	if got := fs.Calls("List"); got != 1 {
		t.Errorf("List calls = %d, want 1", got)
	}
}

func TestWalk_UnauthorizedSubdirectory(t *testing.T) {
	fs := memfs.New("hdfs", true)
	buildTree(fs)
	fs.Forbid("/data/a")
	e := newTestEngine(64, 64)

	var visited []string
	var errs []error
	for step, err := range e.Walk(context.Background(), fs, "/data") {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		visited = append(visited, step.Dir.Path)
	}

	if len(errs) != 1 || !errors.Is(errs[0], domain.ErrUnauthorized) {
		t.Fatalf("errors = %v, want one ErrUnauthorized", errs)
	}
	if fmt.Sprint(visited) != "[/data /data/b /data/empty]" {
		t.Errorf("visited = %v", visited)
	}
	if skipped := e.Skipped(); len(skipped) != 1 || skipped[0] != "/data/a" {
		t.Errorf("Skipped() = %v", skipped)
	}
}

func TestWalk_RootErrors(t *testing.T) {
	fs := memfs.New("hdfs", true)
	fs.PutFile("/file.txt", []byte("x"))
	fs.PutDir("/locked/inner")
	e := newTestEngine(64, 64)
	ctx := context.Background()

	count := 0
	for _, err := range e.Walk(ctx, fs, "/missing") {
		count++
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	}
	if count != 1 {
		t.Errorf("missing root yielded %d steps", count)
	}

	for step, err := range e.Walk(ctx, fs, "/file.txt") {
		if err != nil || len(step.Files) != 1 || step.Files[0].Path != "/file.txt" {
			t.Errorf("file root step = %+v, %v", step, err)
		}
	}

	fs.Forbid("/locked")
	for _, err := range e.Walk(ctx, fs, "/locked") {
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	}
	if len(e.Skipped()) != 0 {
		t.Error("an unreadable root is an error, not a skip")
	}
}

func TestCopyTree(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		dstExists bool
		flatten   bool
		prefix    string
	}{
		{"into new directory", false, false, "/backup"},
		{"into existing directory", true, false, "/backup/data"},
		{"flatten into existing directory", true, true, "/backup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := memfs.New("file", false)
			dst := memfs.New("hdfs", true)
			buildTree(src)
			if tt.dstExists {
				dst.PutDir("/backup")
			}
			e := newTestEngine(64, 64)

			report, err := e.CopyTree(ctx, endpoint(t, e, src, "/data"), endpoint(t, e, dst, "/backup"), TreeOptions{Flatten: tt.flatten})
			if err != nil {
				t.Fatalf("CopyTree() error = %v", err)
			}
			if report.Files != 4 || report.Dirs != 5 || report.Bytes != 14 {
				t.Errorf("report = %+v", report)
			}
			for _, f := range []string{"/top.txt", "/a/one.txt", "/a/deep/two.txt", "/b/three.txt"} {
				if !dst.Exists(tt.prefix + f) {
					t.Errorf("missing %s; have %v", tt.prefix+f, dst.Paths())
				}
			}
			if !dst.Exists(tt.prefix + "/empty") {
				t.Error("empty directory not mirrored")
			}
		})
	}
}

// orderBackend records the order in which directories and files appear
type orderBackend struct {
	*memfs.FS
	mu    sync.Mutex
	order []string
}

func (b *orderBackend) Mkdir(ctx context.Context, p string) error {
	b.mu.Lock()
	b.order = append(b.order, "mkdir "+p)
	b.mu.Unlock()
	return b.FS.Mkdir(ctx, p)
}

func (b *orderBackend) Touch(ctx context.Context, p string) error {
	b.mu.Lock()
	b.order = append(b.order, "touch "+p)
	b.mu.Unlock()
	return b.FS.Touch(ctx, p)
}

func TestCopyTree_ParentBeforeChildren(t *testing.T) {
	src := memfs.New("file", false)
	dst := &orderBackend{FS: memfs.New("hdfs", true)}
	buildTree(src)
	e := newTestEngine(64, 64)

	if _, err := e.CopyTree(context.Background(), endpoint(t, e, src, "/data"), endpoint(t, e, dst, "/out"), TreeOptions{}); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	seen := map[string]int{}
	for i, op := range dst.order {
		seen[op] = i
	}
	pairs := [][2]string{
		{"mkdir /out", "touch /out/top.txt"},
		{"mkdir /out/a", "touch /out/a/one.txt"},
		{"mkdir /out/a/deep", "touch /out/a/deep/two.txt"},
		// files of a directory are copied before deeper directories are listed
		{"touch /out/top.txt", "mkdir /out/a/deep"},
	}
	for _, p := range pairs {
		before, ok1 := seen[p[0]]
		after, ok2 := seen[p[1]]
		if !ok1 || !ok2 || before > after {
			t.Errorf("%q should precede %q; order = %v", p[0], p[1], dst.order)
		}
	}
}

func TestCopyTree_Parallel(t *testing.T) {
	src := memfs.New("file", false)
	dst := memfs.New("hdfs", true)
	for i := range 12 {
		src.PutFile(fmt.Sprintf("/many/f%02d", i), pattern(i+1))
	}
	e := newTestEngine(64, 64)

	var mu sync.Mutex
	var seen []string
	report, err := e.CopyTree(context.Background(), endpoint(t, e, src, "/many"), endpoint(t, e, dst, "/copy"), TreeOptions{
		Parallel: 4,
		OnFile: func(p string, res Result, err error) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if report.Files != 12 || len(seen) != 12 {
		t.Errorf("report = %+v, callbacks = %d", report, len(seen))
	}
	if c := e.Counters(); c.Files != 12 || c.BytesCopied != 78 {
		t.Errorf("counters = %+v", c)
	}
	sort.Strings(seen)
	if seen[0] != "/many/f00" {
		t.Errorf("callbacks = %v", seen)
	}
}

func TestCopyTree_PartialFailure(t *testing.T) {
	src := memfs.New("file", false)
	dst := memfs.New("hdfs", true)
	buildTree(src)
	src.Forbid("/data/a")
	e := newTestEngine(64, 64)

	var failed []string
	report, err := e.CopyTree(context.Background(), endpoint(t, e, src, "/data"), endpoint(t, e, dst, "/out"), TreeOptions{
		OnError: func(p string, err error) { failed = append(failed, p) },
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if fmt.Sprint(failed) != "[/data/a]" {
		t.Errorf("OnError paths = %v", failed)
	}
	if report.Files != 2 {
		t.Errorf("report = %+v, want the readable files copied", report)
	}
	if !dst.Exists("/out/b/three.txt") || dst.Exists("/out/a/one.txt") {
		t.Errorf("unexpected tree: %v", dst.Paths())
	}
}

func TestCopyTree_SkipsChunkFiles(t *testing.T) {
	src := memfs.New("hdfs", true)
	dst := memfs.New("file", false)
	src.PutFile("/d/real.bin", []byte("x"))
	src.PutFile("/d/real.bin.__chunk__0", []byte("y"))
	e := newTestEngine(64, 64)

	if _, err := e.CopyTree(context.Background(), endpoint(t, e, src, "/d"), endpoint(t, e, dst, "/d"), TreeOptions{}); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if dst.Exists("/d/real.bin.__chunk__0") {
		t.Error("leftover chunk files are not part of the tree")
	}
}

func TestCopyTree_DestinationIsFile(t *testing.T) {
	src := memfs.New("file", false)
	dst := memfs.New("hdfs", true)
	buildTree(src)
	dst.PutFile("/out", []byte("x"))
	e := newTestEngine(64, 64)

	_, err := e.CopyTree(context.Background(), endpoint(t, e, src, "/data"), endpoint(t, e, dst, "/out"), TreeOptions{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
