package transfer

import (
	"errors"
	"testing"

	"github.com/Ning0612/ferry/internal/domain"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		base    string
		suffix  string
		want    string
		wantErr bool
	}{
		{"/data", "a.txt", "/data/a.txt", false},
		{"/data/", "sub/a.txt", "/data/sub/a.txt", false},
		{"/data", `sub\a.txt`, "/data/sub/a.txt", false},
		{"/", "a", "/a", false},
		{"/data", "", "/data", false},
		{"/data", "/etc/passwd", "", true},
		{"/data", `\etc`, "", true},
	}

	for _, tt := range tests {
		got, err := Join(tt.base, tt.suffix)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrInvalidPath) {
				t.Errorf("Join(%q, %q) err = %v, want ErrInvalidPath", tt.base, tt.suffix, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Join(%q, %q) = %q, %v; want %q", tt.base, tt.suffix, got, err, tt.want)
		}
	}
}

func TestSplitDirBase(t *testing.T) {
	tests := []struct {
		input    string
		wantDir  string
		wantBase string
	}{
		{"/data/a.txt", "/data", "a.txt"},
		{"/data/sub/", "/data", "sub"},
		{"/a", "/", "a"},
		{"a", "/", "a"},
		{"/", "/", ""},
		{`\data\a.txt`, "/data", "a.txt"},
	}

	for _, tt := range tests {
		dir, base := SplitDirBase(tt.input)
		if dir != tt.wantDir || base != tt.wantBase {
			t.Errorf("SplitDirBase(%q) = (%q, %q), want (%q, %q)", tt.input, dir, base, tt.wantDir, tt.wantBase)
		}
	}
}

func TestChunkHelpers(t *testing.T) {
	if got := ChunkPath("/data/big.bin", 3); got != "/data/big.bin.__chunk__3" {
		t.Errorf("ChunkPath() = %q", got)
	}
	if !IsChunkPath("/data/big.bin.__chunk__0") || IsChunkPath("/data/big.bin") {
		t.Error("IsChunkPath() misclassifies")
	}

	counts := []struct {
		size, chunk int64
		want        int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{30, 10, 3},
	}
	for _, tt := range counts {
		if got := ChunkCount(tt.size, tt.chunk); got != tt.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", tt.size, tt.chunk, got, tt.want)
		}
	}

	if off, n := window(2, 25, 10); off != 20 || n != 5 {
		t.Errorf("window(2, 25, 10) = %d, %d", off, n)
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct{ root, p, want string }{
		{"/data", "/data", ""},
		{"/data", "/data/a/b", "a/b"},
		{"/", "/a/b", "a/b"},
	}
	for _, tt := range tests {
		if got := relPath(tt.root, tt.p); got != tt.want {
			t.Errorf("relPath(%q, %q) = %q, want %q", tt.root, tt.p, got, tt.want)
		}
	}
}
