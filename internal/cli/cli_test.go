package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/ferry/internal/adapter/webhdfs/webhdfstest"
	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/testutil"
)

type envOptions struct {
	chunkSize  int64
	readBuffer int64
	root       string
	noRemote   bool
}

// testEnv is a local scratch directory plus a fake namenode, wired
// together through a config file
type testEnv struct {
	t      *testing.T
	dir    string
	server *webhdfstest.Server
	cfg    string
	state  string
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, envOptions{})
}

func newEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if opts.chunkSize == 0 {
		opts.chunkSize = 1 << 20
	}
	if opts.readBuffer == 0 {
		opts.readBuffer = 64 << 10
	}
	if opts.root == "" {
		opts.root = "/"
	}

	server := webhdfstest.NewServer()
	t.Cleanup(server.Close)
	host, port := server.HostPort()
	if opts.noRemote {
		host = ""
	}

	state := testutil.TempDir(t)
	cfg := testutil.CreateTestFile(t, state, "config.yaml", []byte(fmt.Sprintf(`remote:
  host: "%s"
  port: %d
  user: tester
  root: %s
  timeout: 5s
transfer:
  chunk_size: %d
  read_buffer: %d
  retry:
    describe: {attempts: 2, delay: 0s}
    chunk_copy: {attempts: 2, delay: 0s}
    concat: {attempts: 2, delay: 0s}
log:
  level: error
history:
  file: %s
`, host, port, opts.root, opts.chunkSize, opts.readBuffer, filepath.Join(state, "history.db"))))

	return &testEnv{
		t:      t,
		dir:    testutil.TempDir(t),
		server: server,
		cfg:    cfg,
		state:  state,
	}
}

func (e *testEnv) run(args ...string) (int, string, string) {
	return e.runWithInput("", args...)
}

func (e *testEnv) runWithInput(input string, args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), Options{
		Args:      append([]string{"--config", e.cfg, "--no-progress"}, args...),
		In:        strings.NewReader(input),
		Out:       &stdout,
		Err:       &stderr,
		StorePath: filepath.Join(e.state, "settings.yaml"),
		LockDir:   filepath.Join(e.state, "locks"),
	})
	return code, stdout.String(), stderr.String()
}

func (e *testEnv) local(name string) string {
	return filepath.Join(e.dir, filepath.FromSlash(name))
}

func (e *testEnv) exists(name string) bool {
	_, err := os.Stat(e.local(name))
	return err == nil
}

func TestCp_SmallLocalToRemote(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "a.txt", []byte("0123456789"))
	env.server.PutDir("/data")

	code, _, stderr := env.run("cp", src, "hdfs:///data/a.txt")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}

	data, ok := env.server.File("/data/a.txt")
	if !ok || string(data) != "0123456789" {
		t.Errorf("remote file = %q, %v", data, ok)
	}
	if c, a := env.server.Calls("CREATE"), env.server.Calls("APPEND"); c != 1 || a != 1 {
		t.Errorf("CREATE = %d, APPEND = %d, want 1 and 1", c, a)
	}
	if !strings.Contains(stderr, "copied 1 file(s)") {
		t.Errorf("missing counters epilogue: %q", stderr)
	}
}

func TestCp_BigFileIsChunked(t *testing.T) {
	env := newEnvWith(t, envOptions{chunkSize: 4, readBuffer: 4})
	src := testutil.CreateTestFile(t, env.dir, "big.bin", []byte("0123456789"))
	env.server.PutDir("/data")

	code, _, stderr := env.run("cp", src, "hdfs:///data/")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}

	data, _ := env.server.File("/data/big.bin")
	if string(data) != "0123456789" {
		t.Errorf("remote file = %q", data)
	}
	concats := env.server.Concats()
	if len(concats) != 1 || len(concats[0]) != 3 {
		t.Fatalf("concats = %v, want one call with 3 chunks", concats)
	}
	if concats[0][0] != "/data/big.bin.__chunk__0" || concats[0][2] != "/data/big.bin.__chunk__2" {
		t.Errorf("chunk order = %v", concats[0])
	}
	if env.server.Exists("/data/big.bin.__chunk__1") {
		t.Error("chunk files should be merged away")
	}
}

func TestCp_BigFileResume(t *testing.T) {
	env := newEnvWith(t, envOptions{chunkSize: 4, readBuffer: 4})
	src := testutil.CreateTestFile(t, env.dir, "big.bin", []byte("0123456789"))
	future := time.Now().Add(time.Hour)
	env.server.PutFile("/data/big.bin.__chunk__0", []byte("0123"), future)
	env.server.PutFile("/data/big.bin.__chunk__1", []byte("4567"), future)

	code, _, stderr := env.run("cp", src, "hdfs:///data/big.bin")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	// only chunk 2 is transferred
	if got := env.server.Calls("APPEND"); got != 1 {
		t.Errorf("APPEND calls = %d, want 1", got)
	}
	if concats := env.server.Concats(); len(concats) != 1 || len(concats[0]) != 3 {
		t.Errorf("concats = %v", concats)
	}
	data, _ := env.server.File("/data/big.bin")
	if string(data) != "0123456789" {
		t.Errorf("remote file = %q", data)
	}
}

func TestCp_ExistingDestination(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "a.txt", []byte("new"))
	env.server.PutFile("/a.txt", []byte("old"), time.Now())

	code, _, stderr := env.run("cp", src, "hdfs:///a.txt")
	if code != domain.ExitOK || !strings.Contains(stderr, "use -f") {
		t.Errorf("exit = %d, stderr = %q", code, stderr)
	}
	if data, _ := env.server.File("/a.txt"); string(data) != "old" {
		t.Errorf("existing file overwritten without -f: %q", data)
	}

	code, _, stderr = env.run("cp", "-f", src, "hdfs:///a.txt")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if data, _ := env.server.File("/a.txt"); string(data) != "new" {
		t.Errorf("remote file = %q", data)
	}
}

func TestCp_Tree(t *testing.T) {
	env := newEnv(t)
	testutil.CreateTestFile(t, env.dir, "tree/a.txt", []byte("a"))
	testutil.CreateTestFile(t, env.dir, "tree/sub/b.txt", []byte("bb"))
	env.server.PutDir("/backup")

	code, _, stderr := env.run("cp", env.local("tree"), "hdfs:///backup")
	if code != domain.ExitInvalid {
		t.Errorf("directory without -r: exit = %d, want %d", code, domain.ExitInvalid)
	}

	code, _, stderr = env.run("cp", "-r", env.local("tree"), "hdfs:///backup")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !env.server.Exists("/backup/tree/a.txt") || !env.server.Exists("/backup/tree/sub/b.txt") {
		t.Error("tree not copied under the existing destination")
	}

	code, _, stderr = env.run("cp", "-r", env.local("tree")+"/*", "hdfs:///flat")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !env.server.Exists("/flat/a.txt") || env.server.Exists("/flat/tree") {
		t.Error("trailing * should copy the contents only")
	}
}

func TestCp_TreePartialFailure(t *testing.T) {
	env := newEnv(t)
	env.server.PutFile("/src/ok.txt", []byte("ok"), time.Now())
	env.server.PutFile("/src/locked/x.txt", []byte("x"), time.Now())
	env.server.Forbid("/src/locked")

	code, _, stderr := env.run("cp", "-r", "hdfs:///src", env.local("out"))
	if code != domain.ExitUnauthorized {
		t.Errorf("exit = %d, want %d; stderr = %s", code, domain.ExitUnauthorized, stderr)
	}
	if !env.exists("out/ok.txt") {
		t.Error("readable files should still be copied")
	}
	if strings.Count(stderr, "ferry cp:") != 1 || !strings.Contains(stderr, "locked") {
		t.Errorf("failure should be reported once: %q", stderr)
	}
}

func TestCp_WithinRemoteUnsupported(t *testing.T) {
	env := newEnv(t)
	env.server.PutFile("/data/a", []byte("x"), time.Now())

	code, _, stderr := env.run("cp", "hdfs:///data/a", "hdfs:///data/b")
	if code != domain.ExitUnsupported {
		t.Errorf("exit = %d, want %d", code, domain.ExitUnsupported)
	}
	if !strings.Contains(stderr, "symlink") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCp_OntoItself(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "self.txt", []byte("keep me"))

	for _, dst := range []string{src, env.dir} {
		code, _, stderr := env.run("cp", "-f", src, dst)
		if code != domain.ExitInvalid {
			t.Errorf("cp -f %s %s: exit = %d, want %d, stderr = %s", src, dst, code, domain.ExitInvalid, stderr)
		}
		if got := testutil.ReadFile(t, src); string(got) != "keep me" {
			t.Fatalf("source content = %q after cp onto itself", got)
		}
	}

	env.server.PutFile("/data/a", []byte("x"), time.Now())
	for _, dst := range []string{"hdfs:///data/a", "hdfs:///data"} {
		code, _, _ := env.run("cp", "-f", "hdfs:///data/a", dst)
		if code != domain.ExitUnsupported {
			t.Errorf("cp -f hdfs:///data/a %s: exit = %d, want %d", dst, code, domain.ExitUnsupported)
		}
	}
	if !env.server.Exists("/data/a") || env.server.Calls("DELETE") != 0 {
		t.Error("remote source was touched")
	}
}

func TestDryRun(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "a.txt", []byte("0123456789"))
	env.server.PutFile("/data/old.txt", []byte("x"), time.Now())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"cp", []string{"cp", src, "hdfs:///data/a.txt"}, "[dry-run] copy"},
		{"mkdir", []string{"mkdir", "hdfs:///data/new"}, "[dry-run] create"},
		{"rm", []string{"rm", "hdfs:///data/old.txt"}, "[dry-run] delete"},
		{"touch", []string{"touch", "hdfs:///data/t"}, "[dry-run] touch"},
		{"mv", []string{"mv", src, "hdfs:///data/m.txt"}, "[dry-run] move"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := env.run(append([]string{"--dry-run"}, tt.args...)...)
			if code != domain.ExitOK {
				t.Fatalf("exit = %d, stderr = %s", code, stderr)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Errorf("stdout = %q, want %q", stdout, tt.want)
			}
		})
	}

	env.server.PutFile("/data/full/f", []byte("x"), time.Now())
	failing := []struct {
		name string
		args []string
		code int
	}{
		{"rm non-empty dir", []string{"rm", "hdfs:///data/full"}, domain.ExitNotEmpty},
		{"rm missing", []string{"rm", "hdfs:///data/gone"}, domain.ExitNotFound},
		{"cp within remote", []string{"cp", "hdfs:///data/old.txt", "hdfs:///data/copy.txt"}, domain.ExitUnsupported},
		{"cp onto itself", []string{"cp", "-f", src, src}, domain.ExitInvalid},
	}

	for _, tt := range failing {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := env.run(append([]string{"--dry-run"}, tt.args...)...)
			if code != tt.code {
				t.Errorf("exit = %d, want %d, stderr = %s", code, tt.code, stderr)
			}
			if strings.Contains(stdout, "[dry-run]") {
				t.Errorf("refused operation still reported: %q", stdout)
			}
		})
	}

	for _, op := range []string{"CREATE", "APPEND", "MKDIRS", "DELETE", "CONCAT", "RENAME", "SETTIMES"} {
		if n := env.server.Calls(op); n != 0 {
			t.Errorf("%s called %d times during dry runs", op, n)
		}
	}
	if !env.server.Exists("/data/old.txt") || !env.server.Exists("/data/full/f") || !env.exists("a.txt") {
		t.Error("dry run changed state")
	}
	if env.server.Calls("GETFILESTATUS") == 0 {
		t.Error("dry runs still read real metadata")
	}
}

func TestMv(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "m.txt", []byte("move me"))
	env.server.PutDir("/data")

	code, _, stderr := env.run("mv", src, "hdfs:///data")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if data, _ := env.server.File("/data/m.txt"); string(data) != "move me" {
		t.Errorf("remote file = %q", data)
	}
	if env.exists("m.txt") {
		t.Error("source should be removed after a verified copy")
	}

	code, _, _ = env.run("mv", "hdfs:///data/m.txt", "hdfs:///data/renamed.txt")
	if code != domain.ExitOK || !env.server.Exists("/data/renamed.txt") || env.server.Exists("/data/m.txt") {
		t.Errorf("rename within remote: exit = %d", code)
	}

	if code, _, _ := env.run("mv", "hdfs:///data/renamed.txt"); code != domain.ExitInvalid {
		t.Errorf("one argument: exit = %d, want %d", code, domain.ExitInvalid)
	}
}

func TestRm(t *testing.T) {
	env := newEnv(t)

	t.Run("non-empty directory without recursion", func(t *testing.T) {
		env.server.PutFile("/data/dir/f", []byte("x"), time.Now())
		code, _, _ := env.run("rm", "hdfs:///data/dir")
		if code != domain.ExitNotEmpty {
			t.Errorf("exit = %d, want %d", code, domain.ExitNotEmpty)
		}
		if !env.server.Exists("/data/dir/f") {
			t.Error("directory should be untouched")
		}
	})

	t.Run("recursive asks first", func(t *testing.T) {
		env.server.PutFile("/data/tree/f", []byte("x"), time.Now())

		code, _, stderr := env.runWithInput("n\n", "rm", "-r", "hdfs:///data/tree")
		if code != domain.ExitOK || !strings.Contains(stderr, "[y/N]") {
			t.Errorf("exit = %d, stderr = %q", code, stderr)
		}
		if !env.server.Exists("/data/tree/f") {
			t.Error("declined delete removed the tree")
		}

		code, _, _ = env.runWithInput("y\n", "rm", "-r", "hdfs:///data/tree")
		if code != domain.ExitOK || env.server.Exists("/data/tree") {
			t.Errorf("confirmed delete: exit = %d", code)
		}
	})

	t.Run("force skips the prompt", func(t *testing.T) {
		env.server.PutFile("/data/forced/f", []byte("x"), time.Now())
		code, _, stderr := env.run("rm", "-rf", "hdfs:///data/forced", "hdfs:///data/never-existed")
		if code != domain.ExitOK || strings.Contains(stderr, "[y/N]") {
			t.Errorf("exit = %d, stderr = %q", code, stderr)
		}
		if env.server.Exists("/data/forced") {
			t.Error("forced delete kept the tree")
		}
	})

	t.Run("continues after a missing path", func(t *testing.T) {
		a := testutil.CreateTestFile(t, env.dir, "a", []byte("a"))
		c := testutil.CreateTestFile(t, env.dir, "c", []byte("c"))
		code, _, stderr := env.run("rm", a, env.local("b"), c)
		if code != domain.ExitNotFound {
			t.Errorf("exit = %d, want %d", code, domain.ExitNotFound)
		}
		if env.exists("a") || env.exists("c") {
			t.Error("remaining arguments should still be processed")
		}
		if !strings.Contains(stderr, "ferry rm: "+env.local("b")) {
			t.Errorf("stderr = %q", stderr)
		}
	})
}

func TestLs(t *testing.T) {
	env := newEnv(t)
	env.server.PutFile("/data/top.txt", []byte("top"), time.Now())
	env.server.PutFile("/data/open/inner.txt", []byte("in"), time.Now())
	env.server.PutFile("/data/secret/hidden.txt", []byte("no"), time.Now())
	env.server.Forbid("/data/secret")

	code, stdout, _ := env.run("ls", "hdfs:///data")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	for _, want := range []string{"open/", "secret/", "top.txt", "-rw-r--r--", "drwxr-xr-x"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("ls output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, stderr := env.run("ls", "-r", "hdfs:///data")
	if code != domain.ExitUnauthorized {
		t.Errorf("exit = %d, want %d", code, domain.ExitUnauthorized)
	}
	if !strings.Contains(stdout, "top.txt") || !strings.Contains(stdout, "inner.txt") {
		t.Errorf("readable directories should be listed:\n%s", stdout)
	}
	if strings.Contains(stdout, "hidden.txt") || !strings.Contains(stderr, "secret") {
		t.Errorf("stdout = %q, stderr = %q", stdout, stderr)
	}

	if code, _, _ := env.run("ls", "hdfs:///missing"); code != domain.ExitNotFound {
		t.Errorf("missing path: exit = %d, want %d", code, domain.ExitNotFound)
	}
}

func TestMkdirTouchStat(t *testing.T) {
	env := newEnv(t)

	for range 2 {
		if code, _, stderr := env.run("mkdir", "hdfs:///data/new/deep", env.local("x/y")); code != domain.ExitOK {
			t.Fatalf("mkdir exit = %d, stderr = %s", code, stderr)
		}
	}
	if !env.server.Exists("/data/new/deep") || !env.exists("x/y") {
		t.Error("directories not created")
	}

	if code, _, stderr := env.run("touch", "hdfs:///data/new/empty"); code != domain.ExitOK {
		t.Fatalf("touch exit = %d, stderr = %s", code, stderr)
	}
	if data, ok := env.server.File("/data/new/empty"); !ok || len(data) != 0 {
		t.Error("touch should create an empty file")
	}

	if code, _, _ := env.run("mkdir", "hdfs:///data/new/empty"); code != domain.ExitInvalid {
		t.Errorf("mkdir over a file: exit = %d, want %d", code, domain.ExitInvalid)
	}

	code, stdout, _ := env.run("stat", "hdfs:///data/new/empty")
	if code != domain.ExitOK {
		t.Fatalf("stat exit = %d", code)
	}
	for _, want := range []string{"type:        file", "size:        0", "owner:       hdfs", "replication: 3"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stat output missing %q:\n%s", want, stdout)
		}
	}
}

func TestHash(t *testing.T) {
	env := newEnvWith(t, envOptions{chunkSize: 5, readBuffer: 5})
	src := testutil.CreateTestFile(t, env.dir, "hello", []byte("hello world"))
	env.server.PutFile("/hello", []byte("hello world"), time.Now())

	code, stdout, stderr := env.run("hash", src, "hdfs:///hello")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", stdout)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "9709b6eb343e68a2107d29c4f6a91d2acfbf1d73  ") {
			t.Errorf("line = %q", line)
		}
	}

	_, stdout, _ = env.run("hash", "-a", "SHA256", "hdfs:///hello")
	if !strings.HasPrefix(stdout, "c482ef5b4b98de6fb1854bd44d6dc382371872f71fa1d5110cc5add9be3b1833  ") {
		t.Errorf("sha256 output = %q", stdout)
	}

	if code, _, _ := env.run("hash", env.dir); code != domain.ExitInvalid {
		t.Errorf("directory: exit = %d, want %d", code, domain.ExitInvalid)
	}
	if code, _, _ := env.run("hash", "-a", "crc32", src); code != domain.ExitInvalid {
		t.Errorf("unknown algorithm: exit = %d, want %d", code, domain.ExitInvalid)
	}
}

func TestConfig(t *testing.T) {
	env := newEnv(t)

	if code, _, stderr := env.run("config", "remote.user=alice", "transfer.parallel=4"); code != domain.ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	code, stdout, _ := env.run("config")
	if code != domain.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	for _, want := range []string{"remote.user = alice", "transfer.parallel = 4", "transfer.concat_fan_in = 20"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("config output missing %q:\n%s", want, stdout)
		}
	}

	if code, _, _ := env.run("config", "remote.colour=blue"); code != domain.ExitInvalid {
		t.Errorf("unknown key: exit = %d, want %d", code, domain.ExitInvalid)
	}
	if code, _, _ := env.run("config", "remote.user"); code != domain.ExitInvalid {
		t.Errorf("missing value: exit = %d, want %d", code, domain.ExitInvalid)
	}
}

func TestHistory(t *testing.T) {
	env := newEnv(t)
	src := testutil.CreateTestFile(t, env.dir, "a.txt", []byte("0123456789"))
	env.server.PutDir("/data")

	if code, _, stderr := env.run("cp", src, "hdfs:///data/a.txt"); code != domain.ExitOK {
		t.Fatalf("cp: exit = %d, stderr = %s", code, stderr)
	}
	if code, _, _ := env.run("rm", env.local("missing")); code != domain.ExitNotFound {
		t.Fatalf("rm: exit = %d, want %d", code, domain.ExitNotFound)
	}
	// dry runs and read-only commands are not journaled
	env.run("-n", "cp", src, "hdfs:///data/b.txt")
	env.run("ls", "hdfs:///data")

	code, stdout, stderr := env.run("history")
	if code != domain.ExitOK {
		t.Fatalf("history: exit = %d, stderr = %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("history output:\n%s", stdout)
	}
	if !strings.Contains(lines[0], "rm  failed") || !strings.Contains(lines[1], "missing") {
		t.Errorf("rm session = %q / %q", lines[0], lines[1])
	}
	if !strings.Contains(lines[2], "cp  success") || !strings.Contains(lines[2], "10 B") {
		t.Errorf("cp session = %q", lines[2])
	}

	_, stdout, _ = env.run("history", "--command", "cp", "-l", "5")
	if n := strings.Count(stdout, "\n"); n != 1 {
		t.Errorf("filtered history has %d lines:\n%s", n, stdout)
	}

	if code, _, _ := env.run("history", "-l", "0"); code != domain.ExitInvalid {
		t.Errorf("zero limit: exit = %d, want %d", code, domain.ExitInvalid)
	}
}

func TestRemoteAddressing(t *testing.T) {
	env := newEnvWith(t, envOptions{root: "/vc1"})
	env.server.PutFile("/vc1/a", []byte("a"), time.Now())
	env.server.PutFile("/other/b", []byte("b"), time.Now())

	if code, _, stderr := env.run("ls", "hdfs:///vc1/a"); code != domain.ExitOK {
		t.Errorf("inside root: exit = %d, stderr = %s", code, stderr)
	}
	if code, _, _ := env.run("ls", "hdfs:///other/b"); code != domain.ExitInvalid {
		t.Errorf("outside root: exit = %d, want %d", code, domain.ExitInvalid)
	}

	unconfigured := newEnvWith(t, envOptions{noRemote: true})
	code, _, stderr := unconfigured.run("ls", "hdfs:///x")
	if code != domain.ExitInvalid || !strings.Contains(stderr, "remote.host") {
		t.Errorf("no host: exit = %d, stderr = %q", code, stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"ls", "--bogus", "/"}},
		{"missing arguments", []string{"cp", "/only-one"}},
		{"bad log level", []string{"--log-level", "loud", "ls", "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := env.run(tt.args...); code != domain.ExitInvalid {
				t.Errorf("exit = %d, want %d", code, domain.ExitInvalid)
			}
		})
	}

	missing := Run(context.Background(), Options{Args: []string{"--config", filepath.Join(env.state, "nope.yaml"), "ls", "/"}})
	if missing != domain.ExitInvalid {
		t.Errorf("missing config file: exit = %d, want %d", missing, domain.ExitInvalid)
	}
}
