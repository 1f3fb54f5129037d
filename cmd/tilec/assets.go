package main

import (
	"os"
	"path/filepath"
	"sync"

	"tilec/internal/pipeline"
)

var (
	installedLibOnce sync.Once
	installedLib     string
)

// libraryPath picks the library location: the --lib flag, then
// $TILEC_LIB_DIR, then a lib directory installed next to the binary. The
// empty result selects the library built into the binary.
func libraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(pipeline.LibraryEnv); env != "" {
		return env
	}
	return installedLibrary()
}

func installedLibrary() string {
	installedLibOnce.Do(func() {
		dir := executableDir()
		if dir == "" {
			return
		}
		candidate := filepath.Join(dir, "lib")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			installedLib = candidate
		}
	})
	return installedLib
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
