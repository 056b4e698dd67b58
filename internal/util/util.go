// Package util collects small helpers shared across
// omni's command layer: interactive confirmation, path existence checks,
// and the handful of slice/formatting utilities that don't deserve their
// own package.
package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// AskYN prompts the user for yes/no confirmation on stdin, returning
// defaultYes when the user presses enter without typing anything.
func AskYN(prompt string, defaultYes bool) bool {
	if defaultYes {
		fmt.Printf("%s [Y/n]: ", prompt)
	} else {
		fmt.Printf("%s [y/N]: ", prompt)
	}

	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnsureDir creates path (and any missing parents) if it doesn't already
// exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Contains reports whether slice holds value.
func Contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}

// FormatBytes formats n as a human-readable size (e.g. "4.2 MB"), for
// `omni status`/`omni cleanup` reporting on install sizes.
func FormatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

// FormatDuration formats d as a human-readable relative duration (e.g.
// "3 hours"), for reporting how long ago an EnvVersion or install last saw
// use.
func FormatDuration(d time.Duration) string {
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")
}
