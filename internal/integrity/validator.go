// Package integrity validates files and runtime dependencies before
// and after an update is applied. Checks are deterministic and
// side-effect-free: the same unmodified file always yields the same
// checksum and the same error/warning sets.
package integrity

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/logger"
	"github.com/updateguard/updateguard/internal/paths"
)

// minSaneSize: files smaller than this are suspicious but not invalid.
const minSaneSize = 10

// Validator checks file integrity and dependency availability.
type Validator struct {
	fs       afero.Fs
	resolver *paths.Resolver

	// expected maps base filename to its registered SHA-256 digest
	expected map[string]string

	opts ChecksumOptions
}

// NewValidator creates a validator. expectedChecksums may be nil.
func NewValidator(fs afero.Fs, resolver *paths.Resolver, expectedChecksums map[string]string) *Validator {
	expected := make(map[string]string, len(expectedChecksums))
	for name, sum := range expectedChecksums {
		expected[name] = strings.ToLower(sum)
	}
	return &Validator{
		fs:       fs,
		resolver: resolver,
		expected: expected,
		opts:     DefaultChecksumOptions(),
	}
}

// RegisterChecksum records the expected digest for a filename.
func (v *Validator) RegisterChecksum(filename, sha256hex string) {
	v.expected[filename] = strings.ToLower(sha256hex)
}

// CheckFile stats the file, computes its SHA-256, derives permissions,
// and applies format-specific well-formedness checks.
func (v *Validator) CheckFile(ctx context.Context, path string) domain.ValidationOutcome {
	outcome := domain.ValidationOutcome{IsValid: true}

	info, err := v.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			outcome.AddError(fmt.Sprintf("file does not exist: %s", path))
		} else if os.IsPermission(err) {
			outcome.AddError(fmt.Sprintf("permission denied: %s", path))
		} else {
			outcome.AddError(fmt.Sprintf("cannot stat file: %v", err))
		}
		return outcome
	}
	if info.IsDir() {
		outcome.AddError(fmt.Sprintf("expected a file but found a directory: %s", path))
		return outcome
	}

	record := &domain.FileRecord{
		Path:         path,
		SizeBytes:    info.Size(),
		ModifiedTime: info.ModTime(),
		Permissions:  info.Mode().Perm(),
		IsExecutable: info.Mode().Perm()&0111 != 0,
	}

	if record.SizeBytes == 0 {
		outcome.AddError("file is empty")
	} else if record.SizeBytes < minSaneSize {
		outcome.AddWarning(fmt.Sprintf("file is suspiciously small (%d bytes)", record.SizeBytes))
	}

	f, err := v.fs.Open(path)
	if err != nil {
		outcome.AddError(fmt.Sprintf("cannot read file: %v", err))
		outcome.Record = record
		return outcome
	}
	defer f.Close()

	// Hash in streamed chunks so large archives never load whole
	sum, err := Checksum(ctx, f, v.opts)
	if err != nil {
		outcome.AddError(fmt.Sprintf("checksum failed: %v", err))
		outcome.Record = record
		return outcome
	}
	record.Checksum = sum

	if expected, ok := v.expected[baseName(path)]; ok && expected != sum {
		outcome.AddError(fmt.Sprintf("checksum mismatch: expected %s, got %s", expected, sum))
	}

	if record.SizeBytes > 0 {
		for _, msg := range checkFormat(path, f, record.SizeBytes) {
			outcome.AddError(msg)
		}
	}

	outcome.Record = record
	return outcome
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	return path[idx+1:]
}

// CheckPermissions reports whether the path is writable by this
// process. Directories are probed with a throwaway file.
func (v *Validator) CheckPermissions(path string) bool {
	info, err := v.fs.Stat(path)
	if err != nil {
		return false
	}

	if info.IsDir() {
		probe := path + string(os.PathSeparator) + ".updateguard-probe"
		f, err := v.fs.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return false
		}
		f.Close()
		v.fs.Remove(probe)
		return true
	}

	f, err := v.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// ValidateDependencies checks every spec and returns one status per
// entry. It never short-circuits: callers need the complete picture
// to choose between automatic fallback and manual intervention.
func (v *Validator) ValidateDependencies(specs []domain.DependencySpec) []domain.DependencyStatus {
	statuses := make([]domain.DependencyStatus, 0, len(specs))

	for _, spec := range specs {
		status := domain.DependencyStatus{
			Name:     spec.Name,
			Required: spec.Required,
		}

		switch spec.Kind {
		case domain.DependencyFile, domain.DependencyModule:
			if path, ok := v.resolver.FindFile(spec.Name); ok {
				status.Found = true
				status.ResolvedPath = path
			} else {
				status.Issues = append(status.Issues, fmt.Sprintf("%s not found on any search path", spec.Name))
			}
		case domain.DependencyPlatform:
			v.checkPlatform(spec, &status)
		default:
			status.Issues = append(status.Issues, fmt.Sprintf("unknown dependency kind: %s", spec.Kind))
		}

		statuses = append(statuses, status)
	}

	return statuses
}

// checkPlatform verifies platform facts such as the minimum runtime
// version or the host OS.
func (v *Validator) checkPlatform(spec domain.DependencySpec, status *domain.DependencyStatus) {
	switch spec.Name {
	case "runtime":
		version := strings.TrimPrefix(runtime.Version(), "go")
		status.Version = version
		status.Found = true
		if spec.MinVersion != "" && compareVersions(version, spec.MinVersion) < 0 {
			status.Found = false
			status.Issues = append(status.Issues,
				fmt.Sprintf("runtime %s is older than required %s", version, spec.MinVersion))
		}
	case "os":
		status.Version = runtime.GOOS
		status.Found = spec.MinVersion == "" || spec.MinVersion == runtime.GOOS
		if !status.Found {
			status.Issues = append(status.Issues,
				fmt.Sprintf("running on %s, expected %s", runtime.GOOS, spec.MinVersion))
		}
	default:
		status.Issues = append(status.Issues, fmt.Sprintf("unknown platform fact: %s", spec.Name))
	}
}

// Summarize aggregates dependency statuses into a ValidationSummary.
func Summarize(statuses []domain.DependencyStatus) domain.ValidationSummary {
	summary := domain.ValidationSummary{TotalChecked: len(statuses)}

	for _, s := range statuses {
		if s.Found {
			summary.Found++
			continue
		}
		if s.Required {
			summary.MissingRequired++
			for _, issue := range s.Issues {
				summary.CriticalIssues = append(summary.CriticalIssues, fmt.Sprintf("%s: %s", s.Name, issue))
			}
		} else {
			summary.MissingOptional++
			for _, issue := range s.Issues {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %s", s.Name, issue))
			}
		}
	}

	logger.Get().Debug("dependency validation complete",
		"checked", summary.TotalChecked,
		"found", summary.Found,
		"missing_required", summary.MissingRequired,
	)

	return summary
}

// compareVersions compares dotted numeric versions: -1, 0, or 1.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		var ai, bi int
		if i < len(as) {
			ai, _ = strconv.Atoi(strings.TrimFunc(as[i], func(r rune) bool { return r < '0' || r > '9' }))
		}
		if i < len(bs) {
			bi, _ = strconv.Atoi(strings.TrimFunc(bs[i], func(r rune) bool { return r < '0' || r > '9' }))
		}
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	return 0
}
