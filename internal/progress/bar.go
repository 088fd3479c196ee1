package progress

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

const barTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`

// BarReporter draws a terminal progress bar per file. Only one bar is drawn
// at a time; files started while another bar is active are not drawn.
type BarReporter struct {
	out io.Writer

	mu      sync.Mutex
	owner   string
	current *pb.ProgressBar
}

// NewBarReporter creates a reporter drawing on out
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{out: out}
}

// Start begins tracking a new file transfer
func (r *BarReporter) Start(path string, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return
	}
	bar := pb.ProgressBarTemplate(barTemplate).New(0)
	bar.SetTotal(totalBytes)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", shorten(path, 40))
	bar.SetWriter(r.out)
	r.current = bar.Start()
	r.owner = path
}

// Update moves the bar of path
func (r *BarReporter) Update(path string, bytesTransferred int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.owner == path {
		r.current.SetCurrent(bytesTransferred)
	}
}

// Complete finishes the bar of path
func (r *BarReporter) Complete(path string) {
	r.finish(path, nil)
}

// Error finishes the bar of path with an error
func (r *BarReporter) Error(path string, err error) {
	r.finish(path, err)
}

func (r *BarReporter) finish(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.owner != path {
		return
	}
	if err != nil {
		r.current.SetErr(err)
	} else {
		r.current.SetCurrent(r.current.Total())
	}
	r.current.Finish()
	r.current = nil
	r.owner = ""
}

// shorten keeps the tail of long paths
func shorten(p string, max int) string {
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-max+3:]
}
