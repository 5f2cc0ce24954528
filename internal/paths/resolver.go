// Package paths locates the application installation directory and
// resolves critical files across ambiguous install layouts.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/logger"
)

// maxWalkDepth bounds the recursive fallback search so pathological
// trees cannot blow up resolution time.
const maxWalkDepth = 3

// Resolver resolves files against an ordered search-path list built
// once per process. Absence is an expected, recoverable outcome:
// lookups return ("", false) rather than an error.
type Resolver struct {
	fs     afero.Fs
	layout domain.InstallationLayout
}

// New builds a resolver whose search list starts at the executable
// directory and fans out to the conventional install locations.
func New(fs afero.Fs) *Resolver {
	execDir := executableDir()
	r := &Resolver{
		fs: fs,
		layout: domain.InstallationLayout{
			ExecutableDir: execDir,
			SearchPaths:   buildSearchPaths(execDir),
		},
	}
	return r
}

// NewWithLayout builds a resolver with an explicit layout, used when
// the host supplies the installation directory.
func NewWithLayout(fs afero.Fs, layout domain.InstallationLayout) *Resolver {
	if len(layout.SearchPaths) == 0 {
		layout.SearchPaths = buildSearchPaths(layout.ExecutableDir)
	}
	return &Resolver{fs: fs, layout: layout}
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(exe)
}

// buildSearchPaths assembles the ordered candidate list: executable
// directory first, then the working directory, platform install
// roots, user profile locations, and directories derived relative to
// the executable.
func buildSearchPaths(execDir string) []string {
	var paths []string
	seen := make(map[string]bool)

	add := func(p string) {
		if p == "" {
			return
		}
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	add(execDir)

	if wd, err := os.Getwd(); err == nil {
		add(wd)
	}

	for _, p := range platformInstallDirs() {
		add(p)
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		add(filepath.Join(configDir, "updateguard"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(homeDir, ".local", "share", "updateguard"))
	}

	// Relative to the executable: parent and common payload dirs
	add(filepath.Dir(execDir))
	for _, sub := range []string{"lib", "libs", "resources"} {
		add(filepath.Join(execDir, sub))
	}

	return paths
}

func platformInstallDirs() []string {
	if runtime.GOOS == "windows" {
		var dirs []string
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LOCALAPPDATA"} {
			if v := os.Getenv(env); v != "" {
				dirs = append(dirs, v)
			}
		}
		return dirs
	}
	return []string{"/usr/local/lib", "/usr/lib", "/opt"}
}

// ExecutableDirectory returns the resolved executable directory.
func (r *Resolver) ExecutableDirectory() string {
	return r.layout.ExecutableDir
}

// SearchPaths returns a copy of the ordered search-path list.
func (r *Resolver) SearchPaths() []string {
	out := make([]string, len(r.layout.SearchPaths))
	copy(out, r.layout.SearchPaths)
	return out
}

// AddSearchPath appends a directory to the search list if new.
func (r *Resolver) AddSearchPath(path string) {
	path = filepath.Clean(path)
	for _, p := range r.layout.SearchPaths {
		if p == path {
			return
		}
	}
	r.layout.SearchPaths = append(r.layout.SearchPaths, path)
}

// FindFile scans the search paths for an exact filename match.
func (r *Resolver) FindFile(name string) (string, bool) {
	for _, dir := range r.layout.SearchPaths {
		candidate := filepath.Join(dir, name)
		if info, err := r.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// FindCriticalFile resolves the first of the accepted filename aliases
// found on the search paths, then falls back to a bounded recursive
// walk rooted at the executable directory, its parent, and the working
// directory.
func (r *Resolver) FindCriticalFile(candidateNames []string) (string, bool) {
	for _, name := range candidateNames {
		if path, ok := r.FindFile(name); ok {
			return path, true
		}
	}

	roots := []string{r.layout.ExecutableDir, filepath.Dir(r.layout.ExecutableDir)}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}

	for _, root := range roots {
		for _, name := range candidateNames {
			if path, ok := r.walkFor(root, name); ok {
				return path, true
			}
		}
	}

	logger.Get().Debug("critical file not found", "candidates", candidateNames)
	return "", false
}

// walkFor performs a depth-bounded search for name under root.
func (r *Resolver) walkFor(root, name string) (string, bool) {
	var found string

	cleanRoot := filepath.Clean(root)
	// SkipAll surfaces as the Walk error here, so success is judged by
	// found alone.
	afero.Walk(r.fs, cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(cleanRoot, path)
		if relErr != nil {
			return nil
		}
		depth := 0
		if rel != "." {
			depth = len(splitPath(rel))
		}
		if info.IsDir() {
			if depth > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == name {
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

func splitPath(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}

// expectedArtifacts is the checklist used by ValidateLayout. The set
// mirrors what an installed tree is expected to carry at top level.
var expectedArtifacts = []string{
	"lib",
	"resources",
	"config.yaml",
	"VERSION",
	"data",
	"LICENSE",
}

// ValidateLayout reports whether path looks like an installation tree:
// at least threshold of the expected top-level artifacts must exist.
// This is a heuristic, not a guarantee.
func (r *Resolver) ValidateLayout(path string, threshold float64) bool {
	if threshold <= 0 {
		threshold = 0.5
	}

	info, err := r.fs.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	present := 0
	for _, artifact := range expectedArtifacts {
		if _, err := r.fs.Stat(filepath.Join(path, artifact)); err == nil {
			present++
		}
	}

	return float64(present) >= threshold*float64(len(expectedArtifacts))
}

// SortByPreference orders candidate paths so entries earlier in the
// search list win ties.
func (r *Resolver) SortByPreference(paths []string) {
	rank := make(map[string]int, len(r.layout.SearchPaths))
	for i, p := range r.layout.SearchPaths {
		rank[p] = i
	}
	sort.SliceStable(paths, func(i, j int) bool {
		ri, iok := rank[filepath.Dir(paths[i])]
		rj, jok := rank[filepath.Dir(paths[j])]
		if iok && jok {
			return ri < rj
		}
		return iok
	})
}
