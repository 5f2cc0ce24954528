// Package preserve protects user-owned data through a risky update:
// files are classified, copied into an isolated holding area before
// the operation, and restored with integrity re-verification after.
// Originals are never deleted; preservation is a safety net, not the
// source of truth.
package preserve

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/integrity"
	"github.com/updateguard/updateguard/internal/logger"
)

// Preserver manages one preserve/restore cycle of user data files.
type Preserver struct {
	fs afero.Fs

	// useNativeFs routes SQLite hot copies through the real filesystem;
	// tests running on a memory fs disable it
	useNativeFs bool
}

// NewPreserver creates a preserver over the given filesystem. When fs
// is the OS filesystem, SQLite databases are snapshotted with the
// engine-native hot copy.
func NewPreserver(fs afero.Fs) *Preserver {
	_, isOs := fs.(*afero.OsFs)
	return &Preserver{fs: fs, useNativeFs: isOs}
}

// Identify walks the directory and classifies every file that matches
// a data-category rule.
func (p *Preserver) Identify(directory string) ([]domain.DataFile, error) {
	var files []domain.DataFile

	err := afero.Walk(p.fs, directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if info.IsDir() {
			return nil
		}
		category, critical, ok := classify(info.Name())
		if !ok {
			return nil
		}
		files = append(files, domain.DataFile{
			Path:       path,
			Category:   category,
			IsCritical: critical,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: identify data files: %v", domain.ErrResource, err)
	}

	logger.Get().Debug("data files identified", "directory", directory, "count", len(files))
	return files, nil
}

// Preserve copies each file into holdingDir and records a fresh
// checksum per copy. BackupPath is set on an entry if and only if its
// preservation succeeded. Name collisions in the holding directory are
// resolved with a counter suffix, never by overwriting.
func (p *Preserver) Preserve(ctx context.Context, files []domain.DataFile, holdingDir string) ([]domain.DataFile, error) {
	if err := p.fs.MkdirAll(holdingDir, 0755); err != nil {
		return files, fmt.Errorf("%w: create holding directory: %v", domain.ErrResource, err)
	}

	var failed []string
	for i := range files {
		dst := p.collisionFreePath(holdingDir, filepath.Base(files[i].Path))

		if err := p.copyForCategory(&files[i], dst); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", files[i].Path, err))
			logger.Get().Warn("failed to preserve data file", "path", files[i].Path, "error", err)
			continue
		}

		checksum, err := p.fileChecksum(ctx, dst)
		if err != nil {
			p.fs.Remove(dst)
			failed = append(failed, fmt.Sprintf("%s: checksum: %v", files[i].Path, err))
			continue
		}

		files[i].BackupPath = dst
		files[i].Checksum = checksum
	}

	if len(failed) > 0 {
		return files, fmt.Errorf("%w: %d file(s) could not be preserved: %v", domain.ErrResource, len(failed), failed)
	}
	return files, nil
}

// copyForCategory uses the database-native hot copy for recognized
// database formats, falling back to a plain copy when the native path
// is unavailable.
func (p *Preserver) copyForCategory(file *domain.DataFile, dst string) error {
	if file.Category == domain.CategoryDatabase && p.useNativeFs {
		if err := hotCopySQLite(file.Path, dst); err == nil {
			return nil
		} else {
			logger.Get().Warn("native database copy failed, falling back to plain copy",
				"path", file.Path, "error", err)
		}
	}
	return p.copyFile(file.Path, dst)
}

// collisionFreePath appends .1, .2, ... until the name is unused.
func (p *Preserver) collisionFreePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	for counter := 1; ; counter++ {
		exists, _ := afero.Exists(p.fs, candidate)
		if !exists {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s.%d", name, counter))
	}
}

// Restore copies preserved files back to their original locations and
// re-validates each: databases get a structural consistency check,
// everything else a checksum comparison. Files that fail are reported
// in the returned error, never silently accepted.
func (p *Preserver) Restore(ctx context.Context, files []domain.DataFile) error {
	var failed []string

	for _, file := range files {
		if !file.Preserved() {
			continue
		}

		if err := p.fs.MkdirAll(filepath.Dir(file.Path), 0755); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", file.Path, err))
			continue
		}
		if err := p.copyFile(file.BackupPath, file.Path); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", file.Path, err))
			continue
		}

		if err := p.verifyRestored(ctx, file); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", file.Path, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %d file(s) failed restore verification: %v", domain.ErrIntegrity, len(failed), failed)
	}
	return nil
}

func (p *Preserver) verifyRestored(ctx context.Context, file domain.DataFile) error {
	if file.Category == domain.CategoryDatabase && p.useNativeFs {
		return checkSQLiteIntegrity(file.Path)
	}

	checksum, err := p.fileChecksum(ctx, file.Path)
	if err != nil {
		return err
	}
	if checksum != file.Checksum {
		return fmt.Errorf("restored content differs from preserved copy")
	}
	return nil
}

// ValidateIntegrity compares each preserved copy against its recorded
// checksum. The result maps original path to pass/fail.
func (p *Preserver) ValidateIntegrity(ctx context.Context, files []domain.DataFile) map[string]bool {
	results := make(map[string]bool, len(files))

	for _, file := range files {
		if !file.Preserved() {
			results[file.Path] = false
			continue
		}
		checksum, err := p.fileChecksum(ctx, file.BackupPath)
		results[file.Path] = err == nil && checksum == file.Checksum
	}

	return results
}

// DiscardHolding removes the holding directory after a confirmed
// successful session. On failure it is retained for forensic recovery.
func (p *Preserver) DiscardHolding(holdingDir string) error {
	return p.fs.RemoveAll(holdingDir)
}

func (p *Preserver) fileChecksum(ctx context.Context, path string) (string, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return integrity.Checksum(ctx, f, integrity.DefaultChecksumOptions())
}

func (p *Preserver) copyFile(src, dst string) error {
	in, err := p.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := p.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		p.fs.Remove(dst)
		return err
	}
	return out.Close()
}
