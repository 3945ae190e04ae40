package m3u

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const unknownTitle = "Unknown"

// Decode reads an extended M3U playlist and returns its entries in order.
// Each #EXTINF line is paired with the next non-comment line, which becomes the URI.
// Directives other than #EXTINF are skipped; an #EXTINF without a following URI is dropped.
func Decode(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	// Long #EXTINF lines with logos exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var current *Entry

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "#EXTINF:") {
			current = parseExtInf(line)
			continue
		}

		if current == nil || line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		current.URI = line
		if current.Title != "" {
			entries = append(entries, *current)
		}
		current = nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read M3U playlist: %w", err)
	}

	return entries, nil
}

func parseExtInf(line string) *Entry {
	entry := &Entry{
		Title: unknownTitle,
		TVGTags: &TVGTags{
			ID:         attribute(line, "tvg-id"),
			Name:       attribute(line, "tvg-name"),
			Logo:       attribute(line, "tvg-logo"),
			GroupTitle: attribute(line, "group-title"),
		},
	}

	if comma := strings.LastIndex(line, ","); comma != -1 {
		entry.Title = strings.TrimSpace(line[comma+1:])
	}

	header := strings.TrimPrefix(line, "#EXTINF:")
	if end := strings.IndexAny(header, " ,"); end > 0 {
		if d, err := strconv.ParseFloat(header[:end], 64); err == nil {
			entry.Duration = d
		}
	}

	return entry
}
