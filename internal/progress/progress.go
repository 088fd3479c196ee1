package progress

import (
	"fmt"
	"sync"
	"time"
)

// Reporter receives copy progress. Calls are keyed by destination path so a
// single reporter can serve files copied concurrently.
type Reporter interface {
	// Start begins tracking a new file transfer
	Start(path string, totalBytes int64)
	// Update reports the bytes transferred so far for path
	Update(path string, bytesTransferred int64)
	// Complete marks the transfer of path as complete
	Complete(path string)
	// Error reports a failed transfer
	Error(path string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentFile    string
	CurrentBytes   int64
	CurrentTotal   int64
	FilesCompleted int
	BytesCompleted int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

type transfer struct {
	total   int64
	current int64
	started time.Time
}

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback Callback
	now      func() time.Time

	mu             sync.Mutex
	active         map[string]*transfer
	filesCompleted int
	bytesCompleted int64
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		now:      time.Now,
		active:   make(map[string]*transfer),
	}
}

// Start begins tracking a new file transfer
func (r *CallbackReporter) Start(path string, totalBytes int64) {
	r.mu.Lock()
	r.active[path] = &transfer{total: totalBytes, started: r.now()}
	update := Update{
		Type:           UpdateStart,
		CurrentFile:    path,
		CurrentTotal:   totalBytes,
		FilesCompleted: r.filesCompleted,
		BytesCompleted: r.bytesCompleted,
	}
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	r.emit(update)
}

// Update reports progress on a transfer
func (r *CallbackReporter) Update(path string, bytesTransferred int64) {
	r.mu.Lock()
	t, ok := r.active[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	t.current = bytesTransferred

	var bytesPerSecond float64
	if elapsed := r.now().Sub(t.started).Seconds(); elapsed > 0 {
		bytesPerSecond = float64(bytesTransferred) / elapsed
	}

	update := Update{
		Type:           UpdateProgress,
		CurrentFile:    path,
		CurrentBytes:   bytesTransferred,
		CurrentTotal:   t.total,
		FilesCompleted: r.filesCompleted,
		BytesCompleted: r.bytesCompleted + bytesTransferred,
		BytesPerSecond: bytesPerSecond,
	}
	r.mu.Unlock()

	r.emit(update)
}

// Complete marks a transfer as complete
func (r *CallbackReporter) Complete(path string) {
	r.mu.Lock()
	t, ok := r.active[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.active, path)
	r.filesCompleted++
	r.bytesCompleted += t.total

	update := Update{
		Type:           UpdateComplete,
		CurrentFile:    path,
		CurrentBytes:   t.total,
		CurrentTotal:   t.total,
		FilesCompleted: r.filesCompleted,
		BytesCompleted: r.bytesCompleted,
	}
	r.mu.Unlock()

	r.emit(update)
}

// Error reports an error on a transfer
func (r *CallbackReporter) Error(path string, err error) {
	r.mu.Lock()
	delete(r.active, path)
	update := Update{
		Type:           UpdateError,
		CurrentFile:    path,
		FilesCompleted: r.filesCompleted,
		BytesCompleted: r.bytesCompleted,
		Error:          err,
	}
	r.mu.Unlock()

	r.emit(update)
}

func (r *CallbackReporter) emit(u Update) {
	if r.callback != nil {
		r.callback(u)
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(path string, totalBytes int64)        {}
func (NullReporter) Update(path string, bytesTransferred int64) {}
func (NullReporter) Complete(path string)                       {}
func (NullReporter) Error(path string, err error)               {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
