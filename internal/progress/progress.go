// Package progress reports long-running step progress (archiving,
// checksum computation) to an external observer such as a host GUI.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter handles progress reporting for long-running operations.
type Reporter interface {
	// Start begins tracking a new item
	Start(name string, totalBytes int64)
	// Update reports progress on the current item
	Update(bytesProcessed int64)
	// Complete marks the current item as done
	Complete()
	// Error reports an error on the current item
	Error(err error)
	// SetTotal sets the expected totals for the whole operation
	SetTotal(totalItems int, totalBytes int64)
}

// Callback receives progress updates.
type Callback func(update Update)

// UpdateType indicates the type of progress update.
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

// Update is one progress event.
type Update struct {
	Type           UpdateType
	CurrentItem    string
	CurrentBytes   int64
	CurrentTotal   int64
	ItemsCompleted int
	ItemsTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// CallbackReporter implements Reporter with a callback function.
type CallbackReporter struct {
	callback Callback

	mu             sync.Mutex
	currentItem    string
	currentTotal   int64
	itemsTotal     int
	bytesTotal     int64
	itemsCompleted int
	bytesCompleted int64
	startTime      time.Time
}

// NewCallbackReporter creates a CallbackReporter.
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback}
}

// SetTotal sets the expected totals.
func (r *CallbackReporter) SetTotal(totalItems int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsTotal = totalItems
	r.bytesTotal = totalBytes
}

// Start begins tracking a new item.
func (r *CallbackReporter) Start(name string, totalBytes int64) {
	r.mu.Lock()
	r.currentItem = name
	r.currentTotal = totalBytes
	r.startTime = time.Now()

	update := Update{
		Type:           UpdateStart,
		CurrentItem:    name,
		CurrentTotal:   totalBytes,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
	callback := r.callback
	r.mu.Unlock()

	// Callbacks run outside the lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// Update reports progress on the current item.
func (r *CallbackReporter) Update(bytesProcessed int64) {
	r.mu.Lock()
	var rate float64
	if elapsed := time.Since(r.startTime).Seconds(); elapsed > 0 {
		rate = float64(bytesProcessed) / elapsed
	}

	update := Update{
		Type:           UpdateProgress,
		CurrentItem:    r.currentItem,
		CurrentBytes:   bytesProcessed,
		CurrentTotal:   r.currentTotal,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted + bytesProcessed,
		BytesTotal:     r.bytesTotal,
		BytesPerSecond: rate,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Complete marks the current item as done.
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	r.itemsCompleted++
	r.bytesCompleted += r.currentTotal

	update := Update{
		Type:           UpdateComplete,
		CurrentItem:    r.currentItem,
		CurrentBytes:   r.currentTotal,
		CurrentTotal:   r.currentTotal,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error reports an error on the current item.
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := Update{
		Type:           UpdateError,
		CurrentItem:    r.currentItem,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
		Error:          err,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// ProgressReader wraps an io.Reader to track read progress.
type ProgressReader struct {
	reader    io.Reader
	reporter  Reporter
	processed int64
}

// NewProgressReader creates a progress-tracking reader.
func NewProgressReader(r io.Reader, reporter Reporter) *ProgressReader {
	return &ProgressReader{reader: r, reporter: reporter}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.processed += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.processed)
		}
	}
	return n, err
}

// NullReporter is a no-op reporter.
type NullReporter struct{}

func (NullReporter) Start(name string, totalBytes int64) {}
func (NullReporter) Update(bytesProcessed int64)         {}
func (NullReporter) Complete()                           {}
func (NullReporter) Error(err error)                     {}
func (NullReporter) SetTotal(totalItems int, totalBytes int64) {
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
