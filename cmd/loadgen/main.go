// loadgen posts synthetic transactions to a running txsentinel server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/txsentinel/internal/loadgen"
	"github.com/mbd888/txsentinel/internal/logging"
)

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("TXSENTINEL_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	var (
		url        = flag.String("url", apiURL, "txsentinel base url")
		interval   = flag.Duration("interval", 5*time.Second, "delay between submissions")
		count      = flag.Int("count", 0, "stop after this many submissions; 0 runs until interrupted")
		suspicious = flag.Float64("suspicious", loadgen.DefaultSuspiciousRate, "share of large first transfers from new senders")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New(*logLevel, "text")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting load generator", "url", *url, "interval", *interval, "count", *count, "seed", *seed)

	runner := loadgen.NewRunner(loadgen.Config{
		APIURL:   *url,
		Interval: *interval,
		Count:    *count,
	}, loadgen.NewGenerator(*seed, *suspicious), logger)

	sum := runner.Run(ctx)
	logger.Info("load generator stopped",
		"sent", sum.Sent,
		"failed", sum.Failed,
		"by_label", sum.ByLabel,
	)
	if sum.Sent > 0 && sum.Failed == sum.Sent {
		os.Exit(1)
	}
}
