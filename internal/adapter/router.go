package adapter

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Ning0612/ferry/internal/domain"
)

// RemoteFactory builds the remote backend on first use
type RemoteFactory func() (Backend, error)

// Router maps command line arguments to a backend and a backend path.
// Arguments starting with the remote prefix go to the remote backend;
// everything else is a local path.
type Router struct {
	local   Backend
	prefix  string
	factory RemoteFactory
	wrap    func(Backend) Backend

	mu     sync.Mutex
	remote Backend
}

// NewRouter creates a router. wrap, if non-nil, decorates every backend
// handed out (dry-run mode).
func NewRouter(local Backend, remotePrefix string, factory RemoteFactory, wrap func(Backend) Backend) *Router {
	if wrap == nil {
		wrap = func(b Backend) Backend { return b }
	}
	return &Router{
		local:   wrap(local),
		prefix:  remotePrefix,
		factory: factory,
		wrap:    wrap,
	}
}

// IsRemote reports whether arg addresses the remote backend
func (r *Router) IsRemote(arg string) bool {
	return r.prefix != "" && strings.HasPrefix(arg, r.prefix)
}

// Resolve returns the backend for arg and the path within it
func (r *Router) Resolve(arg string) (Backend, string, error) {
	if arg == "" {
		return nil, "", fmt.Errorf("%w: empty path", domain.ErrInvalidArgument)
	}

	if !r.IsRemote(arg) {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidPath, arg, err)
		}
		return r.local, filepath.ToSlash(abs), nil
	}

	remote, err := r.remoteBackend()
	if err != nil {
		return nil, "", err
	}
	p := strings.TrimPrefix(arg, r.prefix)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return remote, p, nil
}

// Display renders a backend path the way the user would type it.
// A prefix ending in "//" keeps the leading slash, as in hdfs:///data.
func (r *Router) Display(b Backend, p string) string {
	if b.Scheme() == r.local.Scheme() {
		return p
	}
	if strings.HasSuffix(r.prefix, "/") {
		return r.prefix + p
	}
	return r.prefix + strings.TrimPrefix(p, "/")
}

func (r *Router) remoteBackend() (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.remote != nil {
		return r.remote, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: no remote backend configured", domain.ErrInvalidArgument)
	}
	b, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.remote = r.wrap(b)
	return r.remote, nil
}

// Close closes every backend created so far
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	if err := r.local.Close(); err != nil {
		lastErr = err
	}
	if r.remote != nil {
		if err := r.remote.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
