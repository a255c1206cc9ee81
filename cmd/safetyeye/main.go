package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"safetyeye/config"
	"safetyeye/internal/analyzer"
	"safetyeye/internal/association"
	"safetyeye/internal/classify"
	"safetyeye/internal/gate"
	inputredis "safetyeye/internal/input/redis"
	"safetyeye/internal/logger"
	"safetyeye/internal/metrics"
	"safetyeye/internal/notify"
	"safetyeye/internal/output/eventcsv"
	"safetyeye/internal/output/eventjson"
	"safetyeye/internal/output/eventredis"
	"safetyeye/internal/output/eventsqlite"
	"safetyeye/internal/pipeline"
	"safetyeye/internal/replay"
	"safetyeye/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("safetyeye.yml"); err == nil {
		return "safetyeye.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "safetyeye.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "safetyeye.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.SafetyEye.Input.Redis.Addr == "" {
		cfg.SafetyEye.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.SafetyEye.Input.Redis.Key == "" {
		cfg.SafetyEye.Input.Redis.Key = "safetyeye:frames"
	}
	if cfg.SafetyEye.Input.Redis.BlockTimeout == 0 {
		cfg.SafetyEye.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.SafetyEye.Detection.ConfThreshold <= 0 {
		cfg.SafetyEye.Detection.ConfThreshold = classify.DefaultConfThreshold
	}
	if cfg.SafetyEye.Detection.IoUThreshold <= 0 {
		cfg.SafetyEye.Detection.IoUThreshold = association.DefaultIoUThreshold
	}
	if len(cfg.SafetyEye.Detection.Categories) == 0 {
		cfg.SafetyEye.Detection.Categories = classify.DefaultCategories()
	}

	if cfg.SafetyEye.Pipeline.MaxFPS <= 0 {
		cfg.SafetyEye.Pipeline.MaxFPS = gate.DefaultMaxFPS
	}
	if cfg.SafetyEye.Pipeline.LogCooldown <= 0 {
		cfg.SafetyEye.Pipeline.LogCooldown = gate.DefaultLogCooldown
	}
	if cfg.SafetyEye.Pipeline.AlertCooldown <= 0 {
		cfg.SafetyEye.Pipeline.AlertCooldown = gate.DefaultAlertCooldown
	}

	if cfg.SafetyEye.Events.Mode == "" {
		cfg.SafetyEye.Events.Mode = "csv"
	}
	if cfg.SafetyEye.Events.File.Path == "" {
		cfg.SafetyEye.Events.File.Path = "output/events.csv"
	}
	if cfg.SafetyEye.Events.SQLite.Path == "" {
		cfg.SafetyEye.Events.SQLite.Path = "output/events.db"
	}

	if cfg.SafetyEye.Snapshots.Dir == "" {
		cfg.SafetyEye.Snapshots.Dir = "output/snapshots"
	}
	if cfg.SafetyEye.Metrics.Addr == "" {
		cfg.SafetyEye.Metrics.Addr = "127.0.0.1:9109"
	}
	if cfg.SafetyEye.Logging.Level == "" {
		cfg.SafetyEye.Logging.Level = "info"
	}
}

// trackingEnabled defaults to on; identity-stable cooldowns are the normal
// deployment mode.
func trackingEnabled(cfg *config.Config) bool {
	if cfg.SafetyEye.Tracking.Enabled == nil {
		return true
	}
	return *cfg.SafetyEye.Tracking.Enabled
}

func buildEventWriter(cfg *config.Config) (pipeline.EventWriter, error) {
	switch cfg.SafetyEye.Events.Mode {
	case "csv":
		return eventcsv.NewWriter(cfg.SafetyEye.Events.File.Path)
	case "jsonl":
		return eventjson.NewWriter(cfg.SafetyEye.Events.File.Path)
	case "sqlite":
		return eventsqlite.NewStore(cfg.SafetyEye.Events.SQLite.Path)
	case "redis":
		return eventredis.NewStore(eventredis.Config{
			Addr:     cfg.SafetyEye.Events.Redis.Addr,
			Password: cfg.SafetyEye.Events.Redis.Password,
			DB:       cfg.SafetyEye.Events.Redis.DB,
			Key:      cfg.SafetyEye.Events.Redis.Key,
			MaxRows:  cfg.SafetyEye.Events.Redis.MaxRows,
		})
	default:
		return nil, fmt.Errorf("unknown events mode: %s", cfg.SafetyEye.Events.Mode)
	}
}

func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	if !cfg.SafetyEye.Alerts.Enabled {
		return nil, nil
	}
	switch cfg.SafetyEye.Alerts.Mode {
	case "smtp":
		useTLS := true
		if cfg.SafetyEye.Alerts.SMTP.UseTLS != nil {
			useTLS = *cfg.SafetyEye.Alerts.SMTP.UseTLS
		}
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:       cfg.SafetyEye.Alerts.SMTP.Host,
			Port:       cfg.SafetyEye.Alerts.SMTP.Port,
			Username:   cfg.SafetyEye.Alerts.SMTP.Username,
			Password:   cfg.SafetyEye.Alerts.SMTP.Password,
			Recipients: cfg.SafetyEye.Alerts.SMTP.Recipients,
			UseTLS:     useTLS,
		})
	case "webhook":
		return notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.SafetyEye.Alerts.Webhook.URL,
			Timeout: cfg.SafetyEye.Alerts.Webhook.Timeout,
			Headers: cfg.SafetyEye.Alerts.Webhook.Headers,
		})
	default:
		return nil, fmt.Errorf("unknown alerts mode: %s", cfg.SafetyEye.Alerts.Mode)
	}
}

func runMonitor(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.SafetyEye.Logging.Enabled, cfg.SafetyEye.Logging.Level, cfg.SafetyEye.Logging.File, cfg.SafetyEye.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("SafetyEye starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.SafetyEye.Input.Redis.Addr,
		Password:     cfg.SafetyEye.Input.Redis.Password,
		DB:           cfg.SafetyEye.Input.Redis.DB,
		Key:          cfg.SafetyEye.Input.Redis.Key,
		BlockTimeout: cfg.SafetyEye.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	writer, err := buildEventWriter(cfg)
	if err != nil {
		logger.Errorf("Failed to create event writer: %v", err)
		log.Fatalf("Failed to create event writer: %v", err)
	}
	logger.Infof("Event output mode: %s", cfg.SafetyEye.Events.Mode)

	notifier, err := buildNotifier(cfg)
	if err != nil {
		logger.Errorf("Failed to create notifier: %v", err)
		log.Fatalf("Failed to create notifier: %v", err)
	}
	if notifier != nil {
		logger.Infof("Alert mode: %s", cfg.SafetyEye.Alerts.Mode)
	}

	if cfg.SafetyEye.Metrics.Enabled {
		metrics.StartServer(cfg.SafetyEye.Metrics.Addr)
	}

	monitor := pipeline.NewMonitor(consumer, writer, notifier, pipeline.Options{
		ConfThreshold:    cfg.SafetyEye.Detection.ConfThreshold,
		IoUThreshold:     cfg.SafetyEye.Detection.IoUThreshold,
		Categories:       cfg.SafetyEye.Detection.Categories,
		TrackingEnabled:  trackingEnabled(cfg),
		TrackIoU:         cfg.SafetyEye.Tracking.IoUThreshold,
		TrackMaxMisses:   cfg.SafetyEye.Tracking.MaxMisses,
		MaxFPS:           cfg.SafetyEye.Pipeline.MaxFPS,
		LogCooldown:      cfg.SafetyEye.Pipeline.LogCooldown,
		AlertCooldown:    cfg.SafetyEye.Pipeline.AlertCooldown,
		SnapshotsEnabled: cfg.SafetyEye.Snapshots.Enabled,
		SnapshotDir:      cfg.SafetyEye.Snapshots.Dir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := monitor.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Monitor error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := monitor.Close(); err != nil {
		logger.Errorf("Error closing monitor: %v", err)
	}

	logger.Infof("SafetyEye stopped")
}

// frameFinding is one analyzed frame with at least one violation.
type frameFinding struct {
	Frame      int                `json:"frame"`
	FrameID    string             `json:"frame_id,omitempty"`
	People     int                `json:"people"`
	Violations []models.Violation `json:"violations"`
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "output/capture.jsonl", "Frame-packet JSONL input path")
	output := fs.String("output", "output/violations.jsonl", "Violations JSONL output path")
	confThreshold := fs.Float64("conf", classify.DefaultConfThreshold, "Minimum detection confidence")
	iouThreshold := fs.Float64("iou", association.DefaultIoUThreshold, "Minimum person/equipment IoU")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reader, err := replay.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open capture: %v\n", err)
		return 1
	}
	defer reader.Close()

	categories := classify.DefaultCategories()

	var findings []frameFinding
	frames := 0
	for {
		frame, err := reader.Next()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read capture: %v\n", err)
			return 1
		}
		if frame == nil {
			break
		}
		frames++

		assignments := frame.Assignments
		frameID := ""
		if frame.Packet != nil {
			assignments = association.Associate(frame.Packet.Detections, *iouThreshold)
			frameID = frame.Packet.FrameID
		}

		violations, _ := classify.Evaluate(assignments, *confThreshold, categories)
		if len(violations) == 0 {
			continue
		}
		findings = append(findings, frameFinding{
			Frame:      frames,
			FrameID:    frameID,
			People:     len(assignments),
			Violations: violations,
		})
	}

	if err := writeJSONLines(*output, findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write violations: %v\n", err)
		return 1
	}

	fmt.Printf("analyzed frames=%d skipped=%d violating=%d output=%s\n",
		frames, reader.Skipped(), len(findings), *output)
	return 0
}

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	limit := fs.Int("limit", 1000, "Maximum number of recent event rows to aggregate")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadConfig(findConfigFile(*configArg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	applyDefaults(cfg)

	writer, err := buildEventWriter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open event store: %v\n", err)
		return 1
	}
	defer writer.Close()

	reader, ok := writer.(pipeline.EventReader)
	if !ok {
		fmt.Fprintf(os.Stderr, "events mode %q cannot be read back; use csv, sqlite or redis\n", cfg.SafetyEye.Events.Mode)
		return 1
	}

	records, err := reader.ReadRecent(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read event rows: %v\n", err)
		return 1
	}

	fmt.Print(analyzer.Summarize(records).Format())
	return 0
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
Usage: safetyeye <command> [args]

Commands:
  monitor [config]   Run the live monitoring session (default)
  analyze [flags]    Classify violations in a recorded capture
  report  [flags]    Aggregate the persisted event log
`))
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "monitor":
			runMonitor(os.Args[2:])
			return
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		case "report":
			os.Exit(runReport(os.Args[2:]))
		case "help", "-h", "--help":
			usage()
			return
		default:
			// Backward-compatible mode: first arg is config path.
			runMonitor(os.Args[1:])
			return
		}
	}

	runMonitor(nil)
}
