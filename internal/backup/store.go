// Package backup creates, verifies, restores, and prunes versioned
// backup archives of the installation tree.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/integrity"
	"github.com/updateguard/updateguard/internal/logger"
	"github.com/updateguard/updateguard/internal/progress"
)

const (
	archiveSuffix = ".tar.gz"
	sidecarSuffix = ".json"
	partialSuffix = ".partial"
)

// Options configures the retention policy.
type Options struct {
	// MaxBackups is the maximum number of records kept
	MaxBackups int

	// MaxAgeDays discards records older than this many days
	MaxAgeDays int
}

// Store manages the backup root directory.
type Store struct {
	fs        afero.Fs
	backupDir string
	opts      Options
	notify    domain.Notifier
	reporter  progress.Reporter

	mu     sync.Mutex
	pinned map[string]bool // backup IDs that Cleanup must never remove
}

// NewStore creates a backup store rooted at backupDir.
func NewStore(fs afero.Fs, backupDir string, opts Options) (*Store, error) {
	if backupDir == "" {
		return nil, fmt.Errorf("backup directory cannot be empty")
	}
	if err := fs.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create backup directory: %v", domain.ErrResource, err)
	}

	return &Store{
		fs:        fs,
		backupDir: backupDir,
		opts:      opts,
		notify:    domain.NullNotifier,
		pinned:    make(map[string]bool),
	}, nil
}

// SetNotifier installs the host notification callback.
func (s *Store) SetNotifier(n domain.Notifier) {
	if n != nil {
		s.notify = n
	}
}

// SetProgressReporter installs the progress reporter used while
// archiving large trees.
func (s *Store) SetProgressReporter(r progress.Reporter) {
	s.reporter = r
}

// Pin protects a backup from Cleanup while a session references it.
func (s *Store) Pin(backupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[backupID] = true
}

// Unpin releases Cleanup protection.
func (s *Store) Unpin(backupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pinned, backupID)
}

func (s *Store) isPinned(backupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned[backupID]
}

// Create archives the entire source tree into a single compressed
// artifact tagged with the source version and a timestamp-derived id.
// The artifact is verified before the record is returned.
func (s *Store) Create(ctx context.Context, version, sourceDir string) (*domain.BackupRecord, error) {
	info, err := s.fs.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: source directory: %v", domain.ErrResource, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source is not a directory: %s", domain.ErrResource, sourceDir)
	}

	now := time.Now()
	backupID := fmt.Sprintf("%s-%s-%s", sanitizeVersion(version), now.Format("20060102T150405"), uuid.NewString()[:8])
	archivePath := filepath.Join(s.backupDir, backupID+archiveSuffix)
	partialPath := archivePath + partialSuffix

	s.notify("creating backup", domain.SeverityInfo, map[string]string{
		"backup_id": backupID,
		"source":    sourceDir,
	})

	f, err := s.fs.OpenFile(partialPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create archive: %v", domain.ErrResource, err)
	}

	if err := packTree(s.fs, sourceDir, f, s.reporter); err != nil {
		f.Close()
		s.fs.Remove(partialPath)
		return nil, fmt.Errorf("%w: pack tree: %v", domain.ErrResource, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(partialPath)
		return nil, fmt.Errorf("%w: close archive: %v", domain.ErrResource, err)
	}

	// Self-test before the artifact becomes visible under its final name
	if err := verifyArchive(s.fs, partialPath); err != nil {
		s.fs.Remove(partialPath)
		return nil, fmt.Errorf("%w: new archive failed self-test: %v", domain.ErrIntegrity, err)
	}

	if err := s.fs.Rename(partialPath, archivePath); err != nil {
		s.fs.Remove(partialPath)
		return nil, fmt.Errorf("%w: finalize archive: %v", domain.ErrResource, err)
	}

	checksum, size, err := s.hashArchive(ctx, archivePath)
	if err != nil {
		return nil, err
	}

	record := &domain.BackupRecord{
		BackupID:      backupID,
		SourceVersion: version,
		CreatedAt:     now,
		ArchivePath:   archivePath,
		Checksum:      checksum,
		SizeBytes:     size,
	}

	if err := s.writeSidecar(record); err != nil {
		return nil, err
	}

	logger.Get().Info("backup created",
		"backup_id", backupID,
		"version", version,
		"size_bytes", size,
	)
	return record, nil
}

func (s *Store) hashArchive(ctx context.Context, archivePath string) (string, int64, error) {
	f, err := s.fs.Open(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: open archive for hashing: %v", domain.ErrResource, err)
	}
	defer f.Close()

	checksum, err := integrity.Checksum(ctx, f, integrity.DefaultChecksumOptions())
	if err != nil {
		return "", 0, fmt.Errorf("%w: hash archive: %v", domain.ErrResource, err)
	}

	info, err := s.fs.Stat(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: stat archive: %v", domain.ErrResource, err)
	}
	return checksum, info.Size(), nil
}

func (s *Store) writeSidecar(record *domain.BackupRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup record: %w", err)
	}
	sidecarPath := filepath.Join(s.backupDir, record.BackupID+sidecarSuffix)
	if err := afero.WriteFile(s.fs, sidecarPath, data, 0644); err != nil {
		return fmt.Errorf("%w: write backup record: %v", domain.ErrResource, err)
	}
	return nil
}

// VerifyIntegrity is idempotent and side-effect-free: it tests the
// archive structure and, when a record exists, the recorded checksum.
func (s *Store) VerifyIntegrity(ctx context.Context, archivePath string) bool {
	if err := verifyArchive(s.fs, archivePath); err != nil {
		logger.Get().Warn("backup failed verification", "archive", archivePath, "error", err)
		return false
	}

	record, err := s.recordForArchive(archivePath)
	if err != nil {
		// No sidecar: structural verification is the best we can do
		return true
	}

	checksum, _, err := s.hashArchive(ctx, archivePath)
	if err != nil {
		return false
	}
	if checksum != record.Checksum {
		logger.Get().Warn("backup checksum mismatch",
			"archive", archivePath,
			"expected", record.Checksum,
			"actual", checksum,
		)
		return false
	}
	return true
}

func (s *Store) recordForArchive(archivePath string) (*domain.BackupRecord, error) {
	sidecarPath := strings.TrimSuffix(archivePath, archiveSuffix) + sidecarSuffix
	data, err := afero.ReadFile(s.fs, sidecarPath)
	if err != nil {
		return nil, err
	}
	var record domain.BackupRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("invalid backup record: %w", err)
	}
	return &record, nil
}

// Restore extracts the archive into a staging directory, verifies it
// there, and swaps it into place with renames. The target tree is
// never left half-overwritten: on any failure before the final swap
// the original is untouched.
func (s *Store) Restore(ctx context.Context, archivePath, targetDir string) error {
	if ok, err := afero.Exists(s.fs, archivePath); err != nil || !ok {
		return fmt.Errorf("%w: %s", domain.ErrBackupNotFound, archivePath)
	}

	if !s.VerifyIntegrity(ctx, archivePath) {
		return fmt.Errorf("%w: archive failed verification before restore: %s", domain.ErrIntegrity, archivePath)
	}

	parent := filepath.Dir(filepath.Clean(targetDir))
	stamp := time.Now().Format("20060102T150405")
	stagingDir := filepath.Join(parent, filepath.Base(targetDir)+".staging-"+stamp)
	retiredDir := filepath.Join(parent, filepath.Base(targetDir)+".retired-"+stamp)

	if err := s.fs.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("%w: create staging directory: %v", domain.ErrResource, err)
	}

	cleanupStaging := func() { s.fs.RemoveAll(stagingDir) }

	f, err := s.fs.Open(archivePath)
	if err != nil {
		cleanupStaging()
		return fmt.Errorf("%w: open archive: %v", domain.ErrResource, err)
	}
	err = unpackTree(s.fs, f, stagingDir)
	f.Close()
	if err != nil {
		cleanupStaging()
		return fmt.Errorf("%w: extract to staging: %v", domain.ErrRestoreFailed, err)
	}

	// Verify the staged tree is non-empty before committing
	entries, err := afero.ReadDir(s.fs, stagingDir)
	if err != nil || len(entries) == 0 {
		cleanupStaging()
		return fmt.Errorf("%w: staged tree is empty", domain.ErrRestoreFailed)
	}

	s.notify("restoring from backup", domain.SeverityWarning, map[string]string{
		"archive": archivePath,
		"target":  targetDir,
	})

	// Swap: retire the current tree, move staging into place. A crash
	// between the renames leaves either the old or the new tree whole.
	targetExists, _ := afero.DirExists(s.fs, targetDir)
	if targetExists {
		if err := s.fs.Rename(targetDir, retiredDir); err != nil {
			cleanupStaging()
			return fmt.Errorf("%w: retire current tree: %v", domain.ErrRestoreFailed, err)
		}
	}

	if err := s.fs.Rename(stagingDir, targetDir); err != nil {
		// Roll the retired tree back into place
		if targetExists {
			if rbErr := s.fs.Rename(retiredDir, targetDir); rbErr != nil {
				return fmt.Errorf("%w: swap failed and rollback of original failed: %v (rollback: %v)",
					domain.ErrRestoreFailed, err, rbErr)
			}
		}
		cleanupStaging()
		return fmt.Errorf("%w: move staged tree into place: %v", domain.ErrRestoreFailed, err)
	}

	if targetExists {
		if err := s.fs.RemoveAll(retiredDir); err != nil {
			logger.Get().Warn("failed to remove retired tree", "path", retiredDir, "error", err)
		}
	}

	logger.Get().Info("restore complete", "archive", archivePath, "target", targetDir)
	return nil
}

// List returns all backup records, newest first.
func (s *Store) List() ([]domain.BackupRecord, error) {
	entries, err := afero.ReadDir(s.fs, s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read backup directory: %v", domain.ErrResource, err)
	}

	var records []domain.BackupRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sidecarSuffix) {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.backupDir, entry.Name()))
		if err != nil {
			continue
		}
		var record domain.BackupRecord
		if err := json.Unmarshal(data, &record); err != nil {
			logger.Get().Warn("skipping unreadable backup record", "file", entry.Name(), "error", err)
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Find returns the record with the given backup id.
func (s *Store) Find(backupID string) (*domain.BackupRecord, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].BackupID == backupID {
			return &records[i], nil
		}
	}
	return nil, domain.ErrBackupNotFound
}

// Cleanup enforces the dual retention policy: keep at most MaxBackups
// newest records and discard anything older than MaxAgeDays. The
// newest MaxBackups records form a floor the age rule may not cross,
// so cleanup never drops the count below min(MaxBackups, total).
// Pinned backups are never removed.
func (s *Store) Cleanup() error {
	records, err := s.List()
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -s.opts.MaxAgeDays)
	removed := 0

	for i, record := range records {
		if s.opts.MaxBackups > 0 && i < s.opts.MaxBackups {
			continue
		}
		tooMany := s.opts.MaxBackups > 0
		tooOld := s.opts.MaxAgeDays > 0 && record.CreatedAt.Before(cutoff)
		if !tooMany && !tooOld {
			continue
		}
		if s.isPinned(record.BackupID) {
			logger.Get().Debug("skipping pinned backup during cleanup", "backup_id", record.BackupID)
			continue
		}

		if err := s.fs.Remove(record.ArchivePath); err != nil && !os.IsNotExist(err) {
			logger.Get().Warn("failed to remove backup archive", "backup_id", record.BackupID, "error", err)
			continue
		}
		sidecarPath := filepath.Join(s.backupDir, record.BackupID+sidecarSuffix)
		if err := s.fs.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
			logger.Get().Warn("failed to remove backup record", "backup_id", record.BackupID, "error", err)
		}
		removed++
	}

	if removed > 0 {
		logger.Get().Info("backup cleanup complete", "removed", removed)
	}
	return nil
}

// Statistics summarizes the store contents.
func (s *Store) Statistics() (domain.BackupStatistics, error) {
	records, err := s.List()
	if err != nil {
		return domain.BackupStatistics{}, err
	}

	stats := domain.BackupStatistics{Count: len(records)}
	for _, r := range records {
		stats.TotalBytes += r.SizeBytes
		if stats.Oldest.IsZero() || r.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = r.CreatedAt
		}
		if r.CreatedAt.After(stats.Newest) {
			stats.Newest = r.CreatedAt
		}
	}
	return stats, nil
}

func sanitizeVersion(version string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	v := replacer.Replace(version)
	if v == "" {
		v = "unknown"
	}
	return v
}
