package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config controls a load run.
type Config struct {
	APIURL   string
	Interval time.Duration
	// Count stops the run after this many submissions; 0 runs until ctx ends.
	Count int
}

// Summary tallies the outcome of a run.
type Summary struct {
	Sent     int            `json:"sent"`
	Failed   int            `json:"failed"`
	ByLabel  map[string]int `json:"by_label"`
	ByStatus map[int]int    `json:"by_status"`
}

// Runner posts generated transactions to the predict endpoint on a fixed
// interval.
type Runner struct {
	cfg        Config
	gen        *Generator
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config, gen *Generator, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Runner{
		cfg:        cfg,
		gen:        gen,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Run submits one transaction per tick until ctx is done or Count is
// reached. Individual failures are logged and counted, never fatal.
func (r *Runner) Run(ctx context.Context) Summary {
	sum := Summary{ByLabel: map[string]int{}, ByStatus: map[int]int{}}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		status, label, err := r.submit(ctx)
		sum.Sent++
		if status != 0 {
			sum.ByStatus[status]++
		}
		if err != nil {
			sum.Failed++
			r.logger.Warn("submission failed", "status", status, "error", err)
		} else {
			sum.ByLabel[label]++
		}

		if r.cfg.Count > 0 && sum.Sent >= r.cfg.Count {
			return sum
		}
		select {
		case <-ctx.Done():
			return sum
		case <-ticker.C:
		}
	}
}

func (r *Runner) submit(ctx context.Context) (int, string, error) {
	in := r.gen.Next()
	body, err := json.Marshal(in)
	if err != nil {
		return 0, "", fmt.Errorf("encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.APIURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post predict: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return resp.StatusCode, "", fmt.Errorf("predict returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		TransactionID  string  `json:"transaction_id"`
		PredictedLabel string  `json:"predicted_label"`
		Confidence     float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
	}

	r.logger.Info("transaction classified",
		"transaction_id", out.TransactionID,
		"sender_id", in.SenderID,
		"amount", in.Amount.String(),
		"label", out.PredictedLabel,
		"confidence", out.Confidence,
	)
	return resp.StatusCode, out.PredictedLabel, nil
}
