// Package version reports the lightforge release.
package version

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
)

// version is overridable at link time:
//
//	go build -ldflags "-X lightforge/internal/version.version=0.2.0"
var version = "0.1.0" //nolint:gochecknoglobals

// ErrNotFound is returned by Find when no version assignment exists.
var ErrNotFound = errors.New("unable to find version string")

// Matches `Version = "1.2.3"`, `const Version = "1.2.3"` and
// `__version__ = '1.2.3'` at the start of a line.
var assignRegexp = regexp.MustCompile(`^\s*(?:const\s+|var\s+)?(?:Version|__version__)\s*=\s*(?:"([^"']+)"|'([^"']+)')`)

// String returns the build version.
func String() string { return version }

// Find scans the file at path for the first version assignment and
// returns the quoted value.
func Find(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open version source: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := assignRegexp.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if m[1] != "" {
			return m[1], nil
		}
		return m[2], nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read version source: %w", err)
	}
	return "", fmt.Errorf("%s: %w", path, ErrNotFound)
}
