package driven

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// errMalformedPlaylist marks playlists that downloaded fine but cannot be played.
var errMalformedPlaylist = errors.New("malformed HLS playlist")

// hlsPlaylist is the subset of an HLS playlist needed to start and follow a stream.
// A master playlist has variants; a media playlist has segments.
type hlsPlaylist struct {
	variants       []*url.URL
	segments       []*url.URL
	targetDuration time.Duration
	mediaSequence  int64
	endList        bool
}

func (p *hlsPlaylist) isMaster() bool { return len(p.variants) > 0 }

// lastSequence is the media sequence number of the newest segment.
func (p *hlsPlaylist) lastSequence() int64 {
	return p.mediaSequence + int64(len(p.segments)) - 1
}

// parseHLSPlaylist reads a master or media playlist. Relative URIs are resolved
// against base.
func parseHLSPlaylist(r io.Reader, base *url.URL) (*hlsPlaylist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	p := &hlsPlaylist{}
	sawHeader := false
	pendingVariant := false
	pendingSegment := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawHeader {
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, fmt.Errorf("%w: missing #EXTM3U header", errMalformedPlaylist)
			}
			sawHeader = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pendingVariant = true
		case strings.HasPrefix(line, "#EXTINF:"):
			pendingSegment = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil || secs <= 0 {
				return nil, fmt.Errorf("%w: invalid target duration %q", errMalformedPlaylist, line)
			}
			p.targetDuration = time.Duration(secs * float64(time.Second))
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			seq, err := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid media sequence %q", errMalformedPlaylist, line)
			}
			p.mediaSequence = seq
		case line == "#EXT-X-ENDLIST":
			p.endList = true
		case strings.HasPrefix(line, "#"):
			// other tags are irrelevant for loading
		default:
			ref, err := base.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid URI %q", errMalformedPlaylist, line)
			}
			if pendingVariant {
				p.variants = append(p.variants, ref)
			} else if pendingSegment {
				p.segments = append(p.segments, ref)
			}
			pendingVariant, pendingSegment = false, false
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read HLS playlist: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: empty body", errMalformedPlaylist)
	}
	if len(p.variants) == 0 && len(p.segments) == 0 {
		return nil, fmt.Errorf("%w: no variants or segments", errMalformedPlaylist)
	}
	return p, nil
}
