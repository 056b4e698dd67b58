package logging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sinkNames is the fixed set of files a MultiLogger writes, for callers
// that list, tail or grep "a log" by name (ListLogs, Tail, Grep).
var sinkNames = []string{"up.log", "history.log", "arbiter.log", "debug.log"}

// ListLogs returns the names of the log files present under dir.
func ListLogs(dir string) []string {
	var present []string
	for _, name := range sinkNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			present = append(present, name)
		}
	}
	return present
}

// Tail returns the last n lines of dir/logName.
func Tail(dir, logName string, n int) ([]string, error) {
	lines, err := readLines(dir, logName)
	if err != nil {
		return nil, err
	}
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	return lines[start:], nil
}

// Grep returns every line of dir/logName containing pattern, 1-indexed.
func Grep(dir, logName, pattern string) ([]string, error) {
	lines, err := readLines(dir, logName)
	if err != nil {
		return nil, err
	}
	var matches []string
	for i, line := range lines {
		if strings.Contains(line, pattern) {
			matches = append(matches, fmt.Sprintf("%d: %s", i+1, line))
		}
	}
	return matches, nil
}

func readLines(dir, logName string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, logName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
