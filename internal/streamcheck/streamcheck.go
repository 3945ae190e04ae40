// Package streamcheck probes channel streams for reachability and produces
// the blocklist the catalog loads at startup.
package streamcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"

	"github.com/alorle/gazibo/internal/adapter/driven"
	"github.com/alorle/gazibo/internal/channel"
)

const (
	DefaultWorkers = 30
	DefaultTimeout = 8 * time.Second

	// Only the head of each stream is fetched.
	probeBytes = 1024
	userAgent  = "Mozilla/5.0 (X11; Linux x86_64) Gazibo-TV/1.0"
)

// Result is the outcome of probing one channel.
type Result struct {
	Channel channel.Channel
	Working bool
	Status  string
}

// Summary counts results of one country.
type Summary struct {
	Country string `json:"country"`
	Total   int    `json:"total"`
	Working int    `json:"working"`
	Broken  int    `json:"broken"`
}

// Checker probes streams concurrently.
type Checker struct {
	client  *http.Client
	workers int
	logger  *slog.Logger
}

// NewChecker creates a Checker running at most workers probes at once, each
// bounded by timeout.
func NewChecker(workers int, timeout time.Duration, logger *slog.Logger) *Checker {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		client:  &http.Client{Timeout: timeout},
		workers: workers,
		logger:  logger,
	}
}

// Check probes every channel and returns results in input order. progress, if
// non-nil, is called after each probe with the number done so far; calls never
// overlap.
func (c *Checker) Check(ctx context.Context, channels []channel.Channel, progress func(done int)) ([]Result, error) {
	results := make([]Result, len(channels))

	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, ch := range channels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = c.Probe(ctx, ch)
			if !results[i].Working {
				c.logger.Debug("stream failed", "url", ch.URL(), "status", results[i].Status)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Probe fetches the first bytes of a stream. A playlist URL must also look
// like HLS unless the server answered 200 or 206.
func (c *Checker) Probe(ctx context.Context, ch channel.Channel) Result {
	res := Result{Channel: ch}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ch.URL(), nil)
	if err != nil {
		res.Status = "invalid url"
		return res
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", probeBytes-1))

	resp, err := c.client.Do(req)
	if err != nil {
		res.Status = "error: " + truncate(err.Error(), 60)
		return res
	}
	defer resp.Body.Close()

	head, _ := io.ReadAll(io.LimitReader(resp.Body, probeBytes))
	ok := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent

	if strings.Contains(ch.URL(), ".m3u") {
		text := string(head)
		if strings.Contains(text, "#EXTM3U") || strings.Contains(text, "#EXTINF") || strings.Contains(text, "#EXT-X") {
			res.Working = true
			res.Status = fmt.Sprintf("OK (%d, valid HLS)", resp.StatusCode)
			return res
		}
		if ok {
			res.Working = true
			res.Status = fmt.Sprintf("OK (%d)", resp.StatusCode)
			return res
		}
		res.Status = "invalid HLS content"
		return res
	}

	if ok {
		res.Working = true
		res.Status = fmt.Sprintf("OK (%d)", resp.StatusCode)
		return res
	}
	res.Status = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return res
}

// Summarize counts results for one country.
func Summarize(country string, results []Result) Summary {
	s := Summary{Country: strings.ToUpper(country), Total: len(results)}
	for _, r := range results {
		if r.Working {
			s.Working++
		} else {
			s.Broken++
		}
	}
	return s
}

// BrokenURLs returns the distinct URLs of failed results, sorted.
func BrokenURLs(results []Result) []string {
	var urls []string
	for _, r := range results {
		if !r.Working {
			urls = append(urls, r.Channel.URL())
		}
	}
	slices.Sort(urls)
	return slices.Compact(urls)
}

// WriteBlocklist atomically replaces path with a blocklist of urls.
func WriteBlocklist(path string, urls []string, now time.Time) error {
	urls = slices.Compact(slices.Sorted(slices.Values(urls)))
	doc := driven.BlocklistDocument{
		Generated:   now.UTC().Format(time.RFC3339),
		TotalBroken: len(urls),
		URLs:        urls,
	}
	if doc.URLs == nil {
		doc.URLs = []string{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blocklist: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending blocklist file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit blocklist: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
