package m3u

import (
	"fmt"
	"io"
	"strings"
)

// Encoder collects playlist entries and writes them as an extended M3U document.
type Encoder struct {
	guideURLs []string
	entries   []*Entry
}

// NewEncoder creates an Encoder. guideURLs, when set, are advertised in the
// header as url-tvg.
func NewEncoder(guideURLs []string) *Encoder {
	return &Encoder{guideURLs: guideURLs}
}

func (e *Encoder) AddEntry(entry *Entry) {
	e.entries = append(e.entries, entry)
}

// Len returns the number of entries added so far.
func (e *Encoder) Len() int {
	return len(e.entries)
}

func (e *Encoder) Encode(w io.Writer) error {
	header := "#EXTM3U"
	if len(e.guideURLs) > 0 {
		header += fmt.Sprintf(" url-tvg=%q", strings.Join(e.guideURLs, ","))
	}
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return err
	}

	for _, entry := range e.entries {
		if err := entry.encode(w); err != nil {
			return fmt.Errorf("encode %q: %w", entry.Title, err)
		}
	}
	return nil
}
