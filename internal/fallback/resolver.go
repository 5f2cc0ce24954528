// Package fallback proposes and executes ranked alternative-location
// strategies for critical files that are missing or fail validation.
package fallback

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
	"github.com/updateguard/updateguard/internal/paths"
)

// envVars are the environment variables whose values are treated as
// candidate directories for relocated installs.
var envVars = []string{"UPDATEGUARD_HOME", "APP_HOME", "XDG_DATA_HOME"}

// tempWalkDepth bounds the recursive search of temp/download dirs.
const tempWalkDepth = 3

// Resolver discovers verified alternative copies of critical files.
type Resolver struct {
	fs        afero.Fs
	resolver  *paths.Resolver
	validator *integrity.Validator
}

// NewResolver creates a fallback resolver.
func NewResolver(fs afero.Fs, pathResolver *paths.Resolver, validator *integrity.Validator) *Resolver {
	return &Resolver{
		fs:        fs,
		resolver:  pathResolver,
		validator: validator,
	}
}

// FindAlternative returns the best verified candidate for filename,
// or nil when no strategy produced a valid copy.
func (r *Resolver) FindAlternative(ctx context.Context, filename string) *domain.FallbackOption {
	options := r.discover(ctx, filename)
	if len(options) == 0 {
		return nil
	}
	return &options[0]
}

// CreateRecoveryPlan gathers verified options for every missing file,
// ordered by rank (cheaper, more certain methods first).
func (r *Resolver) CreateRecoveryPlan(ctx context.Context, contextLabel string, missingFiles []string) domain.RecoveryPlan {
	plan := domain.RecoveryPlan{Context: contextLabel}
	for _, name := range missingFiles {
		plan.Options = append(plan.Options, r.discover(ctx, name)...)
	}
	return plan
}

// discover runs the strategies in trust order and validates each
// candidate before it is offered. Invalid candidates are discarded.
func (r *Resolver) discover(ctx context.Context, filename string) []domain.FallbackOption {
	type candidate struct {
		path   string
		method domain.DiscoveryMethod
	}

	var candidates []candidate

	// 1. Exact-name matches along the search paths. Every hit becomes
	// a candidate: an invalid copy early in the order must not mask a
	// healthy copy later in it.
	for _, dir := range r.resolver.SearchPaths() {
		p := filepath.Join(dir, filename)
		if info, err := r.fs.Stat(p); err == nil && !info.IsDir() {
			candidates = append(candidates, candidate{p, domain.DiscoverySearchPath})
		}
	}

	// 2. OS installation-registry records
	for _, dir := range registryInstallDirs() {
		p := filepath.Join(dir, filename)
		if info, err := r.fs.Stat(p); err == nil && !info.IsDir() {
			candidates = append(candidates, candidate{p, domain.DiscoveryRegistry})
		}
	}

	// 3. Environment-variable-derived paths
	for _, env := range envVars {
		dir := os.Getenv(env)
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, filename)
		if info, err := r.fs.Stat(p); err == nil && !info.IsDir() {
			candidates = append(candidates, candidate{p, domain.DiscoveryEnvironment})
		}
	}

	// 4. Bounded recursive search of temp and download directories
	for _, root := range tempSearchRoots() {
		if p, ok := r.walkFor(root, filename); ok {
			candidates = append(candidates, candidate{p, domain.DiscoveryRecursive})
		}
	}

	var options []domain.FallbackOption
	seen := make(map[string]bool)
	rank := 0
	for _, c := range candidates {
		if seen[c.path] {
			continue
		}
		seen[c.path] = true

		outcome := r.validator.CheckFile(ctx, c.path)
		if !outcome.IsValid {
			logger.Get().Debug("discarding invalid fallback candidate",
				"file", filename,
				"candidate", c.path,
				"errors", fmt.Sprintf("%v", outcome.Errors),
			)
			continue
		}

		options = append(options, domain.FallbackOption{
			TargetFile:      filename,
			CandidatePath:   c.path,
			DiscoveryMethod: c.method,
			Rank:            rank,
		})
		rank++
	}

	return options
}

func (r *Resolver) walkFor(root, filename string) (string, bool) {
	var found string
	cleanRoot := filepath.Clean(root)

	afero.Walk(r.fs, cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(cleanRoot, path)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			if rel != "." && pathDepth(rel) > tempWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == filename {
			found = path
			return filepath.SkipAll
		}
		return nil
	})

	if found == "" {
		return "", false
	}
	return found, true
}

func pathDepth(rel string) int {
	depth := 1
	for _, c := range rel {
		if c == '/' || c == os.PathSeparator {
			depth++
		}
	}
	return depth
}

func tempSearchRoots() []string {
	roots := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, "Downloads"))
		roots = append(roots, filepath.Join(home, "Desktop"))
	}
	return roots
}

// ExecuteOption copies the candidate to the expected location and
// re-validates the copy. An unverifiable copy is a failure: the copy
// is removed and an error returned.
func (r *Resolver) ExecuteOption(ctx context.Context, option domain.FallbackOption, targetPath string) error {
	if err := r.fs.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("%w: create target directory: %v", domain.ErrResource, err)
	}

	if err := r.copyFile(option.CandidatePath, targetPath); err != nil {
		return fmt.Errorf("%w: copy fallback: %v", domain.ErrResource, err)
	}

	outcome := r.validator.CheckFile(ctx, targetPath)
	if !outcome.IsValid {
		r.fs.Remove(targetPath)
		return fmt.Errorf("%w: fallback copy failed validation: %v", domain.ErrIntegrity, outcome.Errors)
	}

	logger.Get().Info("fallback applied",
		"file", option.TargetFile,
		"source", option.CandidatePath,
		"method", string(option.DiscoveryMethod),
	)
	return nil
}

func (r *Resolver) copyFile(src, dst string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := r.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		r.fs.Remove(dst)
		return err
	}
	return out.Close()
}
