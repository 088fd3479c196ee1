//go:build !linux

package local

import (
	"os"
	"time"
)

// ownership is not resolved outside Linux; access time falls back to mtime
func ownership(info os.FileInfo) (string, string, time.Time) {
	return "", "", info.ModTime()
}
