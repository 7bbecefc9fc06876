package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ghalamif/wattflow/internal/adapters/sink"
	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
	"github.com/ghalamif/wattflow/pkg/wattflow"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without starting the collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := wattflow.LoadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good: %d sensors, output %s\n",
				configPath, len(cfg.Sensors), cfg.Output.Kind)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./data/config.yaml", "Path to configuration file to validate")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var (
		output  string
		sysRoot string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write a configuration listing every sensor found on this host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := wattflow.MakeConfigurationTemplate(output, wattflow.WithHostRoots(sysRoot, "")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "./wattflow.json", "Where to write the configuration")
	cmd.Flags().StringVar(&sysRoot, "sys-root", "", "sysfs mount point (default /sys)")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the records of an output file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dumpRecords(cmd.OutOrStdout(), file, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "./data/power.log", "Output file written by the collector")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per line")
	return cmd
}

func dumpRecords(w io.Writer, path string, asJSON bool) error {
	bw := bufio.NewWriter(w)
	err := sink.Iterate(path, func(id uint64, r *domain.Record) error {
		if asJSON {
			raw, err := json.Marshal(r)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(bw, "%s\n", raw)
			return err
		}
		var err error
		switch r.Kind {
		case domain.RecordSample:
			_, err = fmt.Fprintf(bw, "%d\t%d%s\tsample\t%s\t#%d\t%.6fW\n", id, r.Timestamp, r.Resolution, r.Sensor, r.Seq, r.Power)
		case domain.RecordMarker:
			_, err = fmt.Fprintf(bw, "%d\t%d%s\tmarker\t%q\n", id, r.Timestamp, r.Resolution, r.Text)
		default:
			_, err = fmt.Fprintf(bw, "%d\t%d%s\t%s\t%s\t%s\n", id, r.Timestamp, r.Resolution, r.Kind, r.Sensor, r.Text)
		}
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func newStatsCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Poll the Prometheus metrics endpoint and print live counters",
		Example: `  wattflow stats --url http://localhost:9100/metrics --interval 1s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if once {
				return printMetricsSnapshot(out, url)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printMetricsSnapshot(out, url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	cmd.Flags().BoolVar(&once, "once", false, "Print a single snapshot and exit")
	return cmd
}

var statsTargets = []string{
	ports.MetricSamplesDelivered,
	ports.MetricSensorErrors,
	ports.MetricMarkers,
	ports.MetricOutputDropped,
	ports.MetricSensorsAttached,
	ports.MetricSensorsDegraded,
	ports.MetricOutputQueueLen,
}

func printMetricsSnapshot(w io.Writer, url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scrapeTargets(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[%s] samples=%g errors=%g markers=%g dropped=%g sensors=%g degraded=%g queue=%g\n",
		time.Now().Format(time.RFC3339),
		values[ports.MetricSamplesDelivered],
		values[ports.MetricSensorErrors],
		values[ports.MetricMarkers],
		values[ports.MetricOutputDropped],
		values[ports.MetricSensorsAttached],
		values[ports.MetricSensorsDegraded],
		values[ports.MetricOutputQueueLen],
	)
	return nil
}

// scrapeTargets sums every series of the tracked metrics, labelled or not.
func scrapeTargets(r io.Reader) (map[string]float64, error) {
	values := make(map[string]float64, len(statsTargets))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		name, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if i := strings.IndexByte(name, '{'); i >= 0 {
			name = name[:i]
			if j := strings.LastIndex(line, "} "); j >= 0 {
				rest = line[j+2:]
			}
		}
		for _, key := range statsTargets {
			if name != key {
				continue
			}
			var v float64
			if _, err := fmt.Sscanf(strings.TrimSpace(rest), "%g", &v); err == nil {
				values[key] += v
			}
		}
	}
	return values, scanner.Err()
}
