package secret

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// NormalizePath trims surrounding slashes and validates the result.
// A valid path is non-empty, has no empty, "." or ".." segments and no
// control characters.
func NormalizePath(path string) (string, error) {
	p := strings.Trim(strings.TrimSpace(path), "/")
	if p == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	if err := checkSegments(p); err != nil {
		return "", err
	}
	return p, nil
}

// NormalizePrefix is like NormalizePath but accepts the empty prefix, which
// addresses the root of the namespace.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return "", nil
	}
	if err := checkSegments(p); err != nil {
		return "", err
	}
	return p, nil
}

func checkSegments(p string) error {
	for _, r := range p {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character in %q", ErrInvalidPath, p)
		}
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, p)
		case ".", "..":
			return fmt.Errorf("%w: relative segment in %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// ChildKeys returns the immediate children of prefix among paths, in the
// shape of a vault LIST response: leaf names as-is, intermediate directories
// with a trailing "/". The result is sorted and free of duplicates.
func ChildKeys(paths []string, prefix string) []string {
	prefix = strings.Trim(prefix, "/")

	seen := make(map[string]struct{})
	for _, p := range paths {
		rest := p
		if prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rest = p[len(prefix)+1:]
		}
		if rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			rest = rest[:idx+1]
		}
		seen[rest] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
