//go:build windows

package fallback

import (
	"golang.org/x/sys/windows/registry"
)

// uninstallKey is where installers record per-application metadata.
const uninstallKey = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

// registryInstallDirs reads InstallLocation values from the Windows
// uninstall registry, covering both machine-wide and per-user installs.
func registryInstallDirs() []string {
	var dirs []string
	for _, root := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
		dirs = append(dirs, readInstallLocations(root)...)
	}
	return dirs
}

func readInstallLocations(root registry.Key) []string {
	key, err := registry.OpenKey(root, uninstallKey, registry.READ)
	if err != nil {
		return nil
	}
	defer key.Close()

	names, err := key.ReadSubKeyNames(-1)
	if err != nil {
		return nil
	}

	var dirs []string
	for _, name := range names {
		sub, err := registry.OpenKey(key, name, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		if loc, _, err := sub.GetStringValue("InstallLocation"); err == nil && loc != "" {
			dirs = append(dirs, loc)
		}
		sub.Close()
	}
	return dirs
}
