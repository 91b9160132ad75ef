package versiontree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Version is one version of a library on disk: its label and one version
// tree file per root package.
type Version struct {
	Label string
	Files []string
}

// Library groups the versions found for one library, oldest first.
type Library struct {
	Name     string
	Dir      string
	Versions []Version
}

// Packages returns the root package names that appear in any version, in
// sorted order.
func (l *Library) Packages() []string {
	seen := make(map[string]bool)
	for _, v := range l.Versions {
		for _, f := range v.Files {
			seen[PackageName(f)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PackageName derives the root package name from a version tree file path.
func PackageName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// Discover scans dir for the layout <dir>/<library>/<version>/<package>.json.
func Discover(dir string) ([]Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	var libs []Library
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		lib, err := DiscoverLibrary(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(lib.Versions) > 0 {
			libs = append(libs, *lib)
		}
	}
	return libs, nil
}

// DiscoverLibrary scans one library directory.
func DiscoverLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover library: %w", err)
	}
	lib := &Library{Name: filepath.Base(dir), Dir: dir}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, e.Name(), "*.json"))
		if err != nil {
			return nil, fmt.Errorf("discover library: %w", err)
		}
		if len(files) == 0 {
			continue
		}
		sort.Strings(files)
		lib.Versions = append(lib.Versions, Version{Label: e.Name(), Files: files})
	}
	sort.SliceStable(lib.Versions, func(i, j int) bool {
		return CompareVersions(lib.Versions[i].Label, lib.Versions[j].Label) < 0
	})
	return lib, nil
}
