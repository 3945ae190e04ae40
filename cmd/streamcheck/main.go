package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alorle/gazibo/internal/adapter/driven"
	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/streamcheck"
)

type options struct {
	sourceURL string
	output    string
	workers   int
	timeout   time.Duration
	jsonOut   bool
	verbose   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "streamcheck [country...]",
		Short: "Probe iptv-org channel streams and write a blocklist of dead ones",
		Long: "streamcheck downloads the iptv-org playlist of each country, requests the first\n" +
			"kilobyte of every stream and writes the URLs that failed to a blocklist file\n" +
			"that the gazibo server loads and watches.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"us"}
			}
			return run(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.sourceURL, "source", driven.DefaultSourceBaseURL, "base URL of per-country playlists")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "blocklist.json", "blocklist file to write")
	cmd.Flags().IntVar(&opts.workers, "workers", streamcheck.DefaultWorkers, "parallel stream probes")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", streamcheck.DefaultTimeout, "per-stream timeout")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every failed stream")
	return cmd
}

func run(cmd *cobra.Command, countries []string, opts options) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	source := driven.NewIPTVOrgHTTPSource(opts.sourceURL, nil)
	checker := streamcheck.NewChecker(opts.workers, opts.timeout, logger)

	start := time.Now()
	var summaries []streamcheck.Summary
	var brokenURLs []string

	for _, arg := range countries {
		code, err := channel.NormalizeCountryCode(arg)
		if err != nil {
			return fmt.Errorf("%q: %w", arg, err)
		}

		channels, err := source.Fetch(ctx, code)
		if err != nil {
			logger.Warn("failed to fetch playlist", "country", code, "error", err)
			summaries = append(summaries, streamcheck.Summary{Country: code})
			continue
		}
		if !opts.jsonOut {
			fmt.Fprintf(out, "%s: testing %d channels\n", code, len(channels))
		}

		results, err := checker.Check(ctx, channels, func(done int) {
			if !opts.jsonOut && (done%20 == 0 || done == len(channels)) {
				fmt.Fprintf(out, "  progress: %d/%d\n", done, len(channels))
			}
		})
		if err != nil {
			return err
		}
		summaries = append(summaries, streamcheck.Summarize(code, results))
		brokenURLs = append(brokenURLs, streamcheck.BrokenURLs(results)...)
	}

	if err := streamcheck.WriteBlocklist(opts.output, brokenURLs, time.Now()); err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	fmt.Fprintln(out, "Summary:")
	for _, s := range summaries {
		fmt.Fprintf(out, "  %-4s total %-5d working %-5d broken %d\n", s.Country, s.Total, s.Working, s.Broken)
	}
	fmt.Fprintf(out, "Wrote %s in %s\n", opts.output, time.Since(start).Round(time.Second))
	return nil
}
