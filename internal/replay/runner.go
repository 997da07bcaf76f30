package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/larkgate/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Errors returned by Run.
var (
	ErrUnhealthy        = errors.New("gate is not healthy")
	ErrContractViolated = errors.New("ack contract violated")
)

// Run executes a full replay: health check, generation, two send phases
// (originals, then resends) and verification.
func Run(ctx context.Context, cfg *Config) (*Stats, []Result, error) {
	log := logger.Get().Named("replay")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting webhook replay",
		logger.String("url", cfg.BaseURL+cfg.Route),
		logger.Int("events", cfg.NumEvents),
		logger.Int("dup_every", cfg.DupEvery),
		logger.Int("anonymous", cfg.Anonymous),
		logger.Int("workers", cfg.Workers))

	if err := checkHealth(ctx, cfg); err != nil {
		return stats, nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	deliveries := Generate(cfg)
	stats.Generated = len(deliveries)
	if cfg.OutputFile != "" {
		if err := save(cfg.OutputFile, deliveries); err != nil {
			log.Warn(ctx, "failed to save deliveries", logger.String("file", cfg.OutputFile), logger.Error(err))
		}
	}

	var first, resends []Delivery
	for _, d := range deliveries {
		if d.Label == "duplicate" {
			resends = append(resends, d)
			continue
		}
		first = append(first, d)
	}

	s := newSender(cfg)
	results, err := sendAll(ctx, s, cfg, first)
	if err != nil {
		return stats, results, err
	}
	more, err := sendAll(ctx, s, cfg, resends)
	results = append(results, more...)
	if err != nil {
		return stats, results, err
	}

	summarize(stats, results)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report(ctx, stats)

	return stats, results, verify(results)
}

// sendAll posts deliveries with at most cfg.Workers in flight.
func sendAll(ctx context.Context, s *sender, cfg *Config, deliveries []Delivery) ([]Result, error) {
	results := make([]Result, len(deliveries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))

	for i, d := range deliveries {
		g.Go(func() error {
			results[i] = s.send(gctx, d)
			if cfg.Verbose {
				logger.Get().Debug(gctx, "delivery sent",
					logger.String("label", d.Label),
					logger.String("event_id", d.EventID),
					logger.String("outcome", string(results[i].Outcome)),
					logger.Int("status", results[i].Status))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("send deliveries: %w", err)
	}
	return results, nil
}

func save(filename string, deliveries []Delivery) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(deliveries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deliveries: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func report(ctx context.Context, stats *Stats) {
	var rate float64
	if stats.Duration > 0 {
		rate = float64(stats.Sent) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "replay finished",
		logger.Int("generated", stats.Generated),
		logger.Int("sent", stats.Sent),
		logger.Int("ok", stats.OK),
		logger.Int("retried", stats.Retried),
		logger.Int("violations", stats.Violations),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveries_per_second", rate))
}
