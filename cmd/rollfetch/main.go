// Command rollfetch fetches a list of URLs in concurrency-limited windows
// and prints each response body to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rollinghttp/rollingrequests/pkg/logging"
	"github.com/rollinghttp/rollingrequests/pkg/request"
	"github.com/rollinghttp/rollingrequests/pkg/rolling"
)

func main() {
	limit := flag.Int("limit", 2, "maximum simultaneous requests per window")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *pretty,
		Output: os.Stderr,
	})

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rollfetch [flags] URL [URL...]")
		os.Exit(2)
	}

	rr, err := rolling.New(rolling.Config{
		SimultaneousLimit: *limit,
		Timeout:           *timeout,
		AutoAdvance:       true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create executor")
	}

	for _, u := range urls {
		rr.AddRequest(request.New(u, "GET"))
	}

	failed := drain(context.Background(), rr, os.Stdout)
	if failed > 0 {
		logger.Error().Int("failed", failed).Msg("Some requests failed")
		os.Exit(1)
	}
}

// drain executes windows until the queue is empty, writing response bodies
// to out. It returns the number of failed requests.
func drain(ctx context.Context, rr *rolling.RollingRequests, out io.Writer) int {
	logger := logging.NewLogger("rollfetch")
	failed := 0

	for rr.PendingCount() > 0 {
		for _, res := range rr.Execute(ctx) {
			if res.Err != nil {
				logger.Warn().
					Err(res.Err).
					Str("url", res.Request.URL()).
					Msg("Request failed")
				failed++
				continue
			}
			logger.Debug().
				Str("url", res.Request.URL()).
				Int("status", res.Response.StatusCode).
				Msg("Request complete")
			fmt.Fprintln(out, string(res.Response.Body))
		}
	}

	return failed
}
