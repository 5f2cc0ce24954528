//go:build !windows

package fallback

import (
	"os"
	"path/filepath"
)

// registryInstallDirs returns directories recorded by the platform
// package manager or installer as application install roots. On Unix
// there is no central registry, so the conventional package payload
// roots are consulted instead.
func registryInstallDirs() []string {
	roots := []string{
		"/usr/share/updateguard",
		"/usr/lib/updateguard",
		"/usr/local/share/updateguard",
		"/opt/updateguard",
	}

	var dirs []string
	for _, root := range roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			dirs = append(dirs, root)
			// one level of versioned subdirectories
			if entries, err := os.ReadDir(root); err == nil {
				for _, e := range entries {
					if e.IsDir() {
						dirs = append(dirs, filepath.Join(root, e.Name()))
					}
				}
			}
		}
	}
	return dirs
}
