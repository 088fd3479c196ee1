package webhdfs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/Ning0612/ferry/internal/domain"
)

// Scheme is the scheme reported by the WebHDFS adapter
const Scheme = "hdfs"

// Adapter implements adapter.Backend on top of the WebHDFS REST API.
// Every path must live under root, the virtual cluster prefix the adapter
// is allowed to touch.
type Adapter struct {
	client *Client
	root   string
	now    func() time.Time
}

// New creates a WebHDFS adapter restricted to root
func New(client *Client, root string) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("webhdfs: client is required")
	}
	return &Adapter{
		client: client,
		root:   normalizeRoot(root),
		now:    time.Now,
	}, nil
}

// normalizeRoot normalizes the root path
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return "/"
	}
	return domain.CleanPath(root)
}

// Scheme implements adapter.Backend
func (a *Adapter) Scheme() string {
	return Scheme
}

// Root returns the virtual cluster prefix of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// checkPath canonicalizes p and verifies it lives under root
func (a *Adapter) checkPath(p string) (string, error) {
	if strings.Contains(p, ",") {
		// CONCAT takes a comma separated source list
		return "", fmt.Errorf("%w: %s: commas are not allowed in hdfs paths", domain.ErrInvalidPath, p)
	}

	clean := domain.CleanPath(p)
	if a.root == "/" || clean == a.root || strings.HasPrefix(clean, a.root+"/") {
		return clean, nil
	}
	return "", fmt.Errorf("%w: %s is outside virtual cluster %s", domain.ErrInvalidPath, p, a.root)
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, p string) (domain.FileInfo, error) {
	clean, err := a.checkPath(p)
	if err != nil {
		return domain.FileInfo{}, err
	}

	status, err := a.client.GetFileStatus(ctx, clean)
	if err != nil {
		return domain.FileInfo{}, mapError(clean, err)
	}
	return fileInfoFromStatus(clean, status), nil
}

// List returns the children of a directory from a single LISTSTATUS call
func (a *Adapter) List(ctx context.Context, p string) ([]domain.FileInfo, error) {
	clean, err := a.checkPath(p)
	if err != nil {
		return nil, err
	}

	statuses, err := a.client.ListStatus(ctx, clean)
	if err != nil {
		return nil, mapError(clean, err)
	}

	result := make([]domain.FileInfo, 0, len(statuses))
	for _, st := range statuses {
		// listing a file yields the file itself with an empty suffix
		childPath := clean
		if st.PathSuffix != "" {
			childPath = path.Join(clean, st.PathSuffix)
		}
		result = append(result, fileInfoFromStatus(childPath, st))
	}
	return result, nil
}

// Mkdir creates a directory and any necessary parents
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}

	ok, err := a.client.Mkdirs(ctx, clean)
	if err != nil {
		return mapError(clean, err)
	}
	if !ok {
		return fmt.Errorf("%w: mkdirs %s refused", domain.ErrBackend, clean)
	}
	return nil
}

// Touch creates an empty file, or bumps the mtime of an existing one
func (a *Adapter) Touch(ctx context.Context, p string) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}

	_, err = a.client.GetFileStatus(ctx, clean)
	if err == nil {
		return mapError(clean, a.client.SetTimes(ctx, clean, a.now()))
	}
	if mapped := mapError(clean, err); !errors.Is(mapped, domain.ErrNotFound) {
		return mapped
	}
	return mapError(clean, a.client.Create(ctx, clean, []byte{}, false))
}

// Truncate shrinks a file to size bytes. A false answer only means the
// namenode finishes block recovery in the background.
func (a *Adapter) Truncate(ctx context.Context, p string, size int64) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}
	_, err = a.client.Truncate(ctx, clean, size)
	return mapError(clean, err)
}

// Delete removes a path. A non-empty directory needs recursive.
func (a *Adapter) Delete(ctx context.Context, p string, recursive bool) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}
	if clean == a.root {
		return fmt.Errorf("%w: refusing to delete virtual cluster root %s", domain.ErrInvalidPath, clean)
	}

	status, err := a.client.GetFileStatus(ctx, clean)
	if err != nil {
		return mapError(clean, err)
	}
	if !recursive && status.Type == "DIRECTORY" && status.ChildrenNum > 0 {
		return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, clean)
	}

	ok, err := a.client.Delete(ctx, clean, recursive)
	if err != nil {
		return mapError(clean, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, clean)
	}
	return nil
}

// ReadRange returns up to length bytes starting at offset.
// The namenode rejects offsets past the end; those read as empty.
func (a *Adapter) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	clean, err := a.checkPath(p)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return []byte{}, nil
	}

	data, err := a.client.Open(ctx, clean, offset, length)
	if err == nil {
		return data, nil
	}

	mapped := mapError(clean, err)
	var remote *RemoteError
	if errors.As(err, &remote) && errors.Is(mapped, domain.ErrBackend) {
		if status, statErr := a.client.GetFileStatus(ctx, clean); statErr == nil && offset >= status.Length {
			return []byte{}, nil
		}
	}
	return nil, mapped
}

// Append writes data at the end of an existing file
func (a *Adapter) Append(ctx context.Context, p string, data []byte) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}
	return mapError(clean, a.client.Append(ctx, clean, data))
}

// Rename moves a path within the cluster
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	cleanSrc, err := a.checkPath(src)
	if err != nil {
		return err
	}
	cleanDst, err := a.checkPath(dst)
	if err != nil {
		return err
	}

	ok, err := a.client.Rename(ctx, cleanSrc, cleanDst)
	if err != nil {
		return mapError(cleanSrc, err)
	}
	if !ok {
		// RENAME only answers false; find out whether the source is gone
		if _, statErr := a.client.GetFileStatus(ctx, cleanSrc); statErr != nil {
			return mapError(cleanSrc, statErr)
		}
		return fmt.Errorf("%w: rename %s to %s refused", domain.ErrBackend, cleanSrc, cleanDst)
	}
	return nil
}

// Concat appends the sources, in order, onto p
func (a *Adapter) Concat(ctx context.Context, p string, sources []string) error {
	clean, err := a.checkPath(p)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	cleanSources := make([]string, len(sources))
	for i, s := range sources {
		if cleanSources[i], err = a.checkPath(s); err != nil {
			return err
		}
	}
	return mapError(clean, a.client.Concat(ctx, clean, cleanSources))
}

// CopyWithin is refused: HDFS has no server side copy
func (a *Adapter) CopyWithin(ctx context.Context, src, dst string) error {
	return fmt.Errorf("%w: copy within hdfs is not supported, use a symlink once available", domain.ErrUnsupported)
}

// CanCopyWithin is false so callers can refuse before touching anything
func (a *Adapter) CanCopyWithin() bool {
	return false
}

// Close releases idle connections
func (a *Adapter) Close() error {
	a.client.http.CloseIdleConnections()
	return nil
}

// fileInfoFromStatus converts a WebHDFS FileStatus to domain.FileInfo
func fileInfoFromStatus(p string, st FileStatus) domain.FileInfo {
	fileType := domain.FileTypeRegular
	switch st.Type {
	case "DIRECTORY":
		fileType = domain.FileTypeDirectory
	case "SYMLINK":
		fileType = domain.FileTypeSymlink
	}

	return domain.FileInfo{
		Path:        p,
		Type:        fileType,
		Exists:      true,
		Size:        st.Length,
		ChildCount:  st.ChildrenNum,
		ModTime:     time.UnixMilli(st.ModificationTime).UTC(),
		AccessTime:  time.UnixMilli(st.AccessTime).UTC(),
		Owner:       st.Owner,
		Group:       st.Group,
		Permission:  st.Permission,
		Replication: st.Replication,
	}.Normalize()
}

// mapError converts WebHDFS and transport errors to domain errors
func mapError(p string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		switch {
		case remote.StatusCode == 404 || remote.Exception == "FileNotFoundException":
			return fmt.Errorf("%w: %s", domain.ErrNotFound, p)
		case remote.StatusCode == 401 || isAuthException(remote.Exception) ||
			(remote.StatusCode == 403 && remote.Exception == ""):
			return fmt.Errorf("%w: %s: %s", domain.ErrUnauthorized, p, remote.Message)
		case remote.Exception == "PathIsNotEmptyDirectoryException":
			return fmt.Errorf("%w: %s", domain.ErrPathNotEmpty, p)
		case remote.StatusCode == 502 || remote.StatusCode == 503 || remote.StatusCode == 504:
			return fmt.Errorf("%w: %s: %v", domain.ErrConnection, p, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrBackend, p, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrConnection, p, err)
	}

	return fmt.Errorf("%w: %s: %v", domain.ErrBackend, p, err)
}

// isAuthException reports the exception classes WebHDFS uses for refused access.
// A bare 403 is not enough: the namenode answers plain IOExceptions with 403 too.
func isAuthException(name string) bool {
	switch name {
	case "AccessControlException", "SecurityException", "AuthorizationException":
		return true
	}
	return false
}
