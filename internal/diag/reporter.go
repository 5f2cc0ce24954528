// Package diag collects system facts, persists structured error
// reports, and derives heuristic recovery suggestions.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/logger"
)

const (
	// historyCap bounds the durable report history; oldest evicted first
	historyCap = 100

	// maxSuggestions caps SuggestRecovery output
	maxSuggestions = 8

	historyFileName = "history.json"
)

// Statistics summarizes the retained report history.
type Statistics struct {
	TotalErrors int
	ByKind      map[domain.ErrorKind]int
	RecentCount int // reports from the last 24 hours
}

// Reporter builds and persists error reports.
type Reporter struct {
	fs        afero.Fs
	reportDir string

	mu      sync.Mutex
	history []domain.ErrorReport
}

// NewReporter creates a reporter writing under reportDir. Existing
// history is loaded so Statistics survives restarts.
func NewReporter(fs afero.Fs, reportDir string) (*Reporter, error) {
	if reportDir == "" {
		return nil, fmt.Errorf("report directory cannot be empty")
	}
	if err := fs.MkdirAll(reportDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create report directory: %v", domain.ErrResource, err)
	}

	r := &Reporter{fs: fs, reportDir: reportDir}
	r.loadHistory()
	return r, nil
}

// Report builds an ErrorReport for err without persisting it.
func (r *Reporter) Report(err error, context map[string]string) *domain.ErrorReport {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	report := &domain.ErrorReport{
		ErrorID:             uuid.NewString(),
		Timestamp:           time.Now(),
		ErrorKind:           classifyKind(err),
		Message:             msg,
		StackTrace:          string(debug.Stack()),
		SystemInfo:          collectSystemInfo(),
		Context:             context,
		RecoverySuggestions: r.SuggestRecovery(msg, context),
	}
	return report
}

// Log builds a report, appends it to the per-day report log and the
// bounded durable history, and returns it.
func (r *Reporter) Log(err error, context map[string]string) *domain.ErrorReport {
	report := r.Report(err, context)
	report.LogFilePath = r.dailyLogPath()

	if werr := r.appendDailyLog(report); werr != nil {
		logger.Get().Warn("failed to write daily report log", "error", werr)
	}

	r.mu.Lock()
	r.history = append(r.history, *report)
	if len(r.history) > historyCap {
		r.history = r.history[len(r.history)-historyCap:]
	}
	snapshot := make([]domain.ErrorReport, len(r.history))
	copy(snapshot, r.history)
	r.mu.Unlock()

	if werr := r.saveHistory(snapshot); werr != nil {
		logger.Get().Warn("failed to persist report history", "error", werr)
	}

	logger.Get().Error("error report logged",
		"error_id", report.ErrorID,
		"kind", string(report.ErrorKind),
		"message", report.Message,
	)
	return report
}

// SuggestRecovery applies the ordered rule table to the lower-cased
// message and unions the matches, capped at maxSuggestions.
// Context-derived suggestions are prepended: they are the most
// specific advice available.
func (r *Reporter) SuggestRecovery(message string, context map[string]string) []string {
	var suggestions []string
	seen := make(map[string]bool)

	add := func(s string) {
		if !seen[s] && len(suggestions) < maxSuggestions {
			seen[s] = true
			suggestions = append(suggestions, s)
		}
	}

	if context["backup_id"] != "" {
		add("Restore the installation from the most recent backup.")
	}
	if context["manual_plan"] != "" {
		add("Follow the generated manual recovery plan.")
	}

	msg := strings.ToLower(message)
	for _, rule := range suggestionRules {
		if rule.matches(msg) {
			for _, s := range rule.suggestions {
				add(s)
			}
		}
	}

	if len(suggestions) == 0 {
		add("Retry the operation; if it fails again, contact support with the diagnostic log.")
	}
	return suggestions
}

// Statistics summarizes the retained history.
func (r *Reporter) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{
		TotalErrors: len(r.history),
		ByKind:      make(map[domain.ErrorKind]int),
	}
	dayAgo := time.Now().Add(-24 * time.Hour)
	for _, report := range r.history {
		stats.ByKind[report.ErrorKind]++
		if report.Timestamp.After(dayAgo) {
			stats.RecentCount++
		}
	}
	return stats
}

func (r *Reporter) dailyLogPath() string {
	return filepath.Join(r.reportDir, "reports-"+time.Now().Format("2006-01-02")+".log")
}

// appendDailyLog writes the report as one JSON line to the per-day log.
func (r *Reporter) appendDailyLog(report *domain.ErrorReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}

	f, err := r.fs.OpenFile(r.dailyLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (r *Reporter) historyPath() string {
	return filepath.Join(r.reportDir, historyFileName)
}

func (r *Reporter) loadHistory() {
	data, err := afero.ReadFile(r.fs, r.historyPath())
	if err != nil {
		return
	}
	var history []domain.ErrorReport
	if err := json.Unmarshal(data, &history); err != nil {
		logger.Get().Warn("discarding unreadable report history", "error", err)
		return
	}
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	r.history = history
}

func (r *Reporter) saveHistory(history []domain.ErrorReport) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(r.fs, r.historyPath(), data, 0644)
}

// classifyKind maps sentinel errors from the taxonomy to report kinds.
func classifyKind(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.KindUnexpected
	case errors.Is(err, domain.ErrPermission):
		return domain.KindPermission
	case errors.Is(err, domain.ErrIntegrity), errors.Is(err, domain.ErrRestoreFailed):
		return domain.KindIntegrity
	case errors.Is(err, domain.ErrApply):
		return domain.KindApply
	case errors.Is(err, domain.ErrResource):
		return domain.KindResource
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrFileNotFound),
		errors.Is(err, domain.ErrChecksumMismatch),
		errors.Is(err, domain.ErrDependencyMissing):
		return domain.KindValidation
	case os.IsPermission(err):
		return domain.KindPermission
	default:
		return domain.KindUnexpected
	}
}

func collectSystemInfo() map[string]string {
	hostname, _ := os.Hostname()
	wd, _ := os.Getwd()
	return map[string]string{
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"runtime":   runtime.Version(),
		"cpus":      fmt.Sprintf("%d", runtime.NumCPU()),
		"hostname":  hostname,
		"workdir":   wd,
		"pid":       fmt.Sprintf("%d", os.Getpid()),
		"timestamp": time.Now().Format(time.RFC3339),
	}
}
