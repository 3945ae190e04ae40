package m3u

import (
	"fmt"
	"io"
	"strings"
)

// TVGTags are the tvg-* and group-title attributes of an #EXTINF line.
type TVGTags struct {
	ID         string
	Name       string
	Logo       string
	GroupTitle string
}

func (t *TVGTags) encode(w io.Writer) error {
	pairs := [][2]string{
		{"tvg-id", t.ID},
		{"tvg-name", t.Name},
		{"tvg-logo", t.Logo},
		{"group-title", t.GroupTitle},
	}
	attrs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] != "" {
			attrs = append(attrs, fmt.Sprintf(`%s="%s"`, p[0], p[1]))
		}
	}
	_, err := io.WriteString(w, strings.Join(attrs, " "))
	return err
}

// attribute extracts the quoted value of key="..." from an #EXTINF line.
// The key must start the line or follow a space so that tvg-id does not match xtvg-id.
func attribute(line, key string) string {
	marker := key + `="`
	for offset := 0; offset < len(line); {
		idx := strings.Index(line[offset:], marker)
		if idx < 0 {
			return ""
		}
		idx += offset
		if idx == 0 || line[idx-1] == ' ' || line[idx-1] == ':' {
			start := idx + len(marker)
			end := strings.Index(line[start:], `"`)
			if end < 0 {
				return ""
			}
			return strings.TrimSpace(line[start : start+end])
		}
		offset = idx + len(marker)
	}
	return ""
}
