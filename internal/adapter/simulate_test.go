package adapter_test

import (
	"context"
	"errors"
	"path"
	"testing"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/adapter/local"
	"github.com/Ning0612/ferry/internal/adapter/memfs"
	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/logger"
	"github.com/Ning0612/ferry/internal/testutil"
)

func TestSimulate_LeavesBackendUntouched(t *testing.T) {
	dir := testutil.TempDir(t)
	file := testutil.CreateTestFile(t, dir, "keep.txt", []byte("original"))

	inner, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	sim := adapter.Simulate(inner, &logger.NullLogger{})
	ctx := context.Background()

	mutations := []struct {
		name string
		fn   func() error
	}{
		{"mkdir", func() error { return sim.Mkdir(ctx, path.Join(dir, "newdir")) }},
		{"touch", func() error { return sim.Touch(ctx, path.Join(dir, "new.txt")) }},
		{"append", func() error { return sim.Append(ctx, file, []byte("more")) }},
		{"truncate", func() error { return sim.Truncate(ctx, file, 0) }},
		{"rename", func() error { return sim.Rename(ctx, file, path.Join(dir, "moved.txt")) }},
		{"concat", func() error { return sim.Concat(ctx, file, []string{file}) }},
		{"copy", func() error { return sim.CopyWithin(ctx, file, path.Join(dir, "copy.txt")) }},
		{"delete", func() error { return sim.Delete(ctx, file, true) }},
	}

	for _, m := range mutations {
		if err := m.fn(); err != nil {
			t.Errorf("%s: error = %v", m.name, err)
		}
	}

	if got := string(testutil.ReadFile(t, file)); got != "original" {
		t.Errorf("content = %q, want original", got)
	}
	entries, err := sim.List(ctx, dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dry run created entries: %+v", entries)
	}
}

func TestSimulate_ReadsPassThrough(t *testing.T) {
	dir := testutil.TempDir(t)
	file := testutil.CreateTestFile(t, dir, "data.txt", []byte("0123456789"))

	inner, _ := local.New(dir)
	sim := adapter.Simulate(inner, nil)

	if sim.Scheme() != inner.Scheme() {
		t.Errorf("Scheme() = %q", sim.Scheme())
	}
	info, err := sim.Stat(context.Background(), file)
	if err != nil || info.Size != 10 {
		t.Errorf("Stat() = %+v, %v", info, err)
	}
	data, err := sim.ReadRange(context.Background(), file, 2, 3)
	if err != nil || string(data) != "234" {
		t.Errorf("ReadRange() = %q, %v", data, err)
	}
	if sim.Inner() != adapter.Backend(inner) {
		t.Error("Inner() should return the wrapped backend")
	}
}

func TestSimulate_DeleteChecksTarget(t *testing.T) {
	inner := memfs.New("hdfs", true)
	inner.PutFile("/data/dir/f", []byte("x"))
	inner.PutDir("/data/empty")
	sim := adapter.Simulate(inner, &logger.NullLogger{})
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		recursive bool
		want      error
	}{
		{"missing", "/data/gone", false, domain.ErrNotFound},
		{"non-empty without recursive", "/data/dir", false, domain.ErrPathNotEmpty},
		{"non-empty recursive", "/data/dir", true, nil},
		{"empty dir", "/data/empty", false, nil},
		{"file", "/data/dir/f", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sim.Delete(ctx, tt.path, tt.recursive)
			if tt.want == nil && err != nil {
				t.Errorf("Delete() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Delete() error = %v, want %v", err, tt.want)
			}
		})
	}

	if inner.Calls("Delete") != 0 || !inner.Exists("/data/dir/f") {
		t.Error("dry run delete reached the backend")
	}
}

// refusing stands in for a backend without server side copies
type refusing struct {
	*memfs.FS
}

func (refusing) CanCopyWithin() bool { return false }

func TestSimulate_CopyWithinFollowsInner(t *testing.T) {
	ctx := context.Background()

	plain := memfs.New("file", false)
	if !adapter.CanCopyWithin(plain) || !adapter.Simulate(plain, nil).CanCopyWithin() {
		t.Error("backends without an opinion should copy within")
	}

	inner := refusing{memfs.New("hdfs", true)}
	inner.PutFile("/a", []byte("x"))
	sim := adapter.Simulate(inner, &logger.NullLogger{})
	if sim.CanCopyWithin() {
		t.Error("CanCopyWithin() should follow the wrapped backend")
	}
	err := sim.CopyWithin(ctx, "/a", "/b")
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("CopyWithin() error = %v, want ErrUnsupported", err)
	}
	if inner.Exists("/b") {
		t.Error("dry run copy created the destination")
	}
}
