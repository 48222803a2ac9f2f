package tle

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxCatalogBytes bounds a single catalog file.
const maxCatalogBytes = 50 << 20

// Source reads catalogs from a file, or from the newest *.tle / *.txt file
// in a directory.
type Source struct {
	path string
}

// NewSource creates a Source for path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Path returns the configured path.
func (s *Source) Path() string {
	return s.path
}

// Load resolves the current catalog file and parses it. A file holding no
// valid entries is an error.
func (s *Source) Load(logger *slog.Logger) (*Catalog, error) {
	file, err := s.resolve()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("stat catalog file: %w", err)
	}
	if info.Size() > maxCatalogBytes {
		return nil, fmt.Errorf("catalog file %s exceeds %d byte limit", file, maxCatalogBytes)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog file %s has no valid entries", file)
	}
	return NewCatalog(file, time.Now(), entries), nil
}

type catalogFile struct {
	name    string
	modTime time.Time
}

func (s *Source) resolve() (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", fmt.Errorf("catalog path: %w", err)
	}
	if !info.IsDir() {
		return s.path, nil
	}

	dirEntries, err := os.ReadDir(s.path)
	if err != nil {
		return "", fmt.Errorf("listing catalog dir: %w", err)
	}

	var files []catalogFile
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".tle") && !strings.HasSuffix(name, ".txt") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, catalogFile{name: name, modTime: fi.ModTime()})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no catalog files in %s", s.path)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name < files[j].name
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	return filepath.Join(s.path, files[len(files)-1].name), nil
}
