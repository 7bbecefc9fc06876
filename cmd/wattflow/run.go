package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/wattflow/internal/adapters/observability"
	"github.com/ghalamif/wattflow/pkg/wattflow"
)

type runOptions struct {
	configPath  string
	instruments string
	duration    time.Duration
	markers     bool
	discover    bool
	metrics     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the collector using the provided config",
		Example: `  wattflow run --config ./data/config.yaml
  wattflow run --config ./data/config.yaml --duration 30s --markers`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCollector(ctx, opts, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "./data/config.yaml", "Path to collector configuration file")
	cmd.Flags().StringVar(&opts.instruments, "instruments", "", "Instrument configuration file applied to matching sensors")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.markers, "markers", false, "Inject every line read from stdin as a marker")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "Also attach every powercap zone found on this host")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", true, "Serve Prometheus metrics on metrics.addr")
	return cmd
}

func runCollector(ctx context.Context, opts runOptions, stdin io.Reader) error {
	cfg, err := wattflow.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	colOpts := []wattflow.Option{wattflow.WithLogger(logger), wattflow.WithRegistry(reg)}
	if opts.discover {
		colOpts = append(colOpts, wattflow.WithDiscovery())
	}
	if opts.instruments != "" {
		entries, err := wattflow.LoadInstruments(opts.instruments)
		if err != nil {
			return fmt.Errorf("load instruments: %w", err)
		}
		colOpts = append(colOpts, wattflow.WithInstruments(entries))
	}

	c, err := wattflow.New(cfg, colOpts...)
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return errors.Join(err, c.Close())
	}
	logger.Info("collector_started",
		zap.Int("sensors", c.Size()),
		zap.String("output", cfg.Output.Kind),
		zap.String("config", opts.configPath))

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.metrics && cfg.Metrics.Addr != "" {
		srv := wattflow.NewMetricsServer(cfg.Metrics.Addr, c.MetricsHandler())
		g.Go(func() error { return wattflow.ServeMetrics(gctx, srv) })
	}
	var lines <-chan string
	if opts.markers {
		lines = readLines(gctx, stdin)
	}
	g.Go(func() error { return forwardMarkers(gctx, c, lines, logger) })

	runErr := g.Wait()
	closeErr := c.Close()
	logger.Info("collector_stopped")
	return errors.Join(runErr, closeErr)
}

type marker interface {
	Marker(text string) error
}

// forwardMarkers returns when ctx is done. A nil lines channel only waits.
// A rejected marker is logged and the run goes on.
func forwardMarkers(ctx context.Context, m marker, lines <-chan string, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := m.Marker(line); err != nil {
				logger.Warn("marker_rejected", zap.String("text", line), zap.Error(err))
			}
		}
	}
}

// readLines stops at EOF or at the first line read after ctx is done. A
// blocked read of stdin cannot be interrupted.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
