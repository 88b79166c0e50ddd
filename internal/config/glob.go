package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StoreGlob matches store files inside a directory argument.
const StoreGlob = "*.sqlite3"

// ExpandStorePaths turns merge arguments into a sorted unique list of files.
// An argument may name a file, a glob pattern, or a directory, in which case
// every StoreGlob file directly inside it is used. A pattern or directory
// that yields nothing is an error so that a typo never merges zero sources
// silently.
func ExpandStorePaths(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no store paths provided")
	}

	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		files = append(files, clean)
	}

	for _, arg := range args {
		if hasGlobMeta(arg) {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no matches for pattern %q", arg)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(arg, StoreGlob))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no %s files in %s", StoreGlob, arg)
		}
		for _, m := range matches {
			add(m)
		}
	}

	sort.Strings(files)
	return files, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
