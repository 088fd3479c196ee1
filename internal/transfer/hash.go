package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/Ning0612/ferry/internal/adapter"
	"github.com/Ning0612/ferry/internal/core/checksum"
	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/retry"
)

// ComputeHash fingerprints the file at p: a SHA-1 per chunk window, then a
// SHA-1 over the concatenated hex digests. The chunk size is part of the
// result; two engines only agree when they use the same one.
func (e *Engine) ComputeHash(ctx context.Context, b adapter.Backend, p string) (string, error) {
	return e.ComputeHashWith(ctx, b, p, checksum.SHA1)
}

// ComputeHashWith is ComputeHash with another digest algorithm
func (e *Engine) ComputeHashWith(ctx context.Context, b adapter.Backend, p string, algo checksum.Algorithm) (string, error) {
	fp, err := checksum.NewFingerprint(algo, int(e.opts.ReadBuffer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	info, err := e.Describe(ctx, b, p)
	if err != nil {
		return "", err
	}
	if !info.Exists {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, p)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: cannot hash %s", domain.ErrIsDirectory, p)
	}

	count := ChunkCount(info.Size, e.opts.ChunkSize)
	for i := range count {
		offset, length := window(i, info.Size, e.opts.ChunkSize)
		r := &rangeReader{
			ctx:    ctx,
			b:      b,
			path:   info.Path,
			off:    offset,
			end:    offset + length,
			policy: e.opts.CopyRetry,
		}
		digest, err := fp.AddChunk(ctx, r)
		if err != nil {
			return "", err
		}
		e.log.Debug("chunk hashed", "path", info.Path, "chunk", i, "algorithm", algo, "digest", digest)
	}

	return fp.Sum(), nil
}

// rangeReader reads [off, end) of a backend file, one ReadRange per Read
type rangeReader struct {
	ctx    context.Context
	b      adapter.Backend
	path   string
	off    int64
	end    int64
	policy retry.Policy
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.off >= r.end {
		return 0, io.EOF
	}
	want := min(int64(len(p)), r.end-r.off)
	data, err := retry.Value(r.ctx, r.policy, func(ctx context.Context) ([]byte, error) {
		return r.b.ReadRange(ctx, r.path, r.off, want)
	})
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("%s: %w at offset %d", r.path, io.ErrUnexpectedEOF, r.off)
	}
	n := copy(p, data)
	r.off += int64(n)
	return n, nil
}
