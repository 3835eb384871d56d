package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests,
// so we walk up until the module root is found and fall back to the current directory.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// StringPtr returns a pointer to a trimmed copy of s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
