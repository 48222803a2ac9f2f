package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Parse reads a catalog of element sets from r. Entries may be plain two-line
// sets or three-line sets led by a name line (optionally prefixed "0 ").
// Invalid entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i < len(lines); {
		var name string
		if !strings.HasPrefix(lines[i], "1 ") {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i], "1 ") || !strings.HasPrefix(lines[i+1], "2 ") {
			logger.Warn("skipping incomplete TLE entry", "line_index", i, "name", name)
			if i < len(lines) && strings.HasPrefix(lines[i], "1 ") {
				i++
			}
			continue
		}

		el, err := ParseElements(lines[i], lines[i+1])
		i += 2
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", name, "error", err)
			continue
		}
		entries = append(entries, Entry{Name: name, Elements: el})
	}

	return entries, nil
}
