package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/frostline"
	"github.com/ghalamif/frostline/internal/adapters/serial"
	"github.com/ghalamif/frostline/internal/mhz19"
	"github.com/ghalamif/frostline/internal/watch"
	base "github.com/ghalamif/frostline/pkg/frostline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "poll":
		err = pollCommand(os.Args[2:])
	case "watch":
		err = watchCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("frostline %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := frostline.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

// pollCommand runs a single poll cycle, prints the reading and optionally
// hands it to the configured sinks.
func pollCommand(args []string) error {
	fs := flag.NewFlagSet("poll", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	send := fs.Bool("send", false, "Deliver the reading to the configured sinks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := frostline.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obs, err := base.NewObservability(cfg)
	if err != nil {
		return err
	}

	hw, closer := base.OpenHardware(cfg, obs)
	defer closer.Close()

	p, err := base.NewPoller(cfg, hw, obs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reading := p.Poll(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reading); err != nil {
		return err
	}
	if !*send {
		return nil
	}

	db, err := base.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	sink, sinks, err := base.BuildSinks(cfg, db, obs)
	if err != nil {
		return err
	}
	defer sinks.Close()

	if err := sink.WriteBatch([]*frostline.Reading{reading}); err != nil {
		return fmt.Errorf("deliver to %s: %w", sink.Name(), err)
	}
	fmt.Fprintf(os.Stderr, "reading %d delivered to %s\n", reading.Seq, sink.Name())
	return nil
}

func watchCommand(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	interval := fs.Duration("interval", watch.DefaultInterval, "Read interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := frostline.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port, err := serial.Open(cfg.CO2.Serial)
	if err != nil {
		return err
	}
	sensor := mhz19.NewSensor(port, cfg.ChecksumPolicy(), cfg.CO2.Settle)
	defer sensor.Close()

	return watch.Run(sensor, cfg.Thresholds, *interval)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := frostline.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var snapshotMetrics = []string{
	"frostline_readings_ingested_total",
	"frostline_co2_ppm",
	"frostline_ammonia_ppm",
	"frostline_h2s_ppm",
	"frostline_items_spoiled_total",
	"frostline_queue_length",
	"frostline_wal_size_bytes",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(snapshotMetrics))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range snapshotMetrics {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] ingested=%.0f co2=%.0f nh3=%.2f h2s=%.2f spoiled=%.0f queue=%.0f wal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["frostline_readings_ingested_total"],
		values["frostline_co2_ppm"],
		values["frostline_ammonia_ppm"],
		values["frostline_h2s_ppm"],
		values["frostline_items_spoiled_total"],
		values["frostline_queue_length"],
		values["frostline_wal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`frostline CLI

Usage:
  frostline <command> [flags]

Commands:
  run        Start the freezer runtime using the provided config
  poll       Run one poll cycle and print the reading (-send delivers it)
  watch      Live CO2 monitor in the terminal
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  frostline run -config ./data/config.yaml
  frostline poll -config ./data/config.yaml -send
  frostline watch -interval 2s
  frostline validate -config ./data/config.yaml
  frostline stats -url http://localhost:9100/metrics -interval 1s
`)
}
