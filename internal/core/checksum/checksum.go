// Package checksum computes chunked file fingerprints: one digest per chunk
// window, then a digest over the concatenated hex digests.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm names a digest
type Algorithm string

const (
	// SHA1 is the fingerprint digest HDFS tooling expects
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// DefaultBufferSize is the read size used when none is given
const DefaultBufferSize = 32 * 1024

// Algorithms lists the supported digests
func Algorithms() []Algorithm {
	return []Algorithm{SHA1, SHA256, MD5}
}

// ParseAlgorithm accepts an algorithm name in any case
func ParseAlgorithm(name string) (Algorithm, error) {
	algo := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if !IsSupported(algo) {
		return "", fmt.Errorf("unsupported algorithm: %q", name)
	}
	return algo, nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case SHA1, SHA256, MD5:
		return true
	default:
		return false
	}
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %q", algo)
	}
}

// Fingerprint accumulates chunk digests in order
type Fingerprint struct {
	algo    Algorithm
	buf     []byte
	digests []string
}

// NewFingerprint creates an empty fingerprint. bufferSize is the size of a
// single read from the chunk readers.
func NewFingerprint(algo Algorithm, bufferSize int) (*Fingerprint, error) {
	if !IsSupported(algo) {
		return nil, fmt.Errorf("unsupported algorithm: %q", algo)
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Fingerprint{algo: algo, buf: make([]byte, bufferSize)}, nil
}

// AddChunk digests r until EOF and appends the digest
func (f *Fingerprint) AddChunk(ctx context.Context, r io.Reader) (string, error) {
	h, _ := newHash(f.algo)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.Read(f.buf)
		if n > 0 {
			h.Write(f.buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read chunk %d: %w", len(f.digests), err)
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	f.digests = append(f.digests, digest)
	return digest, nil
}

// Chunks returns the number of chunks added so far
func (f *Fingerprint) Chunks() int {
	return len(f.digests)
}

// Sum returns the digest of the concatenated chunk digests
func (f *Fingerprint) Sum() string {
	h, _ := newHash(f.algo)
	for _, d := range f.digests {
		io.WriteString(h, d)
	}
	return hex.EncodeToString(h.Sum(nil))
}
