package hooks

import (
	"os"
	"path/filepath"
)

// ConfigPaths returns the hooks.json locations to load, in priority
// order: project-local before home/global, .ccode before .claude
// within each. Entries fire in the order their source file appears
// here, so this ordering is also the dispatch ordering.
func ConfigPaths(projectDir, homeDir string) []string {
	var paths []string
	if projectDir != "" {
		paths = append(paths,
			filepath.Join(projectDir, ".ccode", "hooks", "hooks.json"),
			filepath.Join(projectDir, ".claude", "hooks", "hooks.json"),
		)
	}
	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".ccode", "hooks", "hooks.json"),
			filepath.Join(homeDir, ".claude", "hooks", "hooks.json"),
		)
	}
	return paths
}

// DefaultConfigPaths resolves ConfigPaths using the current working
// directory as the project root and the invoking user's home directory.
func DefaultConfigPaths(projectDir string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return ConfigPaths(projectDir, home)
}
