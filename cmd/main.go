package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/receipt"
	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/services"
	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/utils"
)

const appVersion = "1.0.0"

var appInfo = model.AppInfo{
	Name:    "Perfect Menu Print Agent",
	Version: appVersion,
	Author:  "Riboost Studio",
}

// --- Main ---

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", envOr("PRINT_AGENT_CONFIG", "config/config.yaml"), "agent configuration file (YAML)")
	settingsFile := flag.String("settings", "config/settings.json", "persistent settings (selected printer, restaurant id)")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	logFormat := flag.String("log-format", "text", "text or json")
	logFile := flag.String("log-file", "", "also append logs to this file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	printer := flag.String("printer", "", "connect to this printer instead of auto-detecting")
	scan := flag.Bool("scan", false, "list printers found on the local network and exit")
	testPrint := flag.Bool("test-print", false, "print a sample order and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appInfo)
		return nil
	}

	logger, closeLog, err := newLogger(*logLevel, *logFormat, *logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	// 1. Load Configuration
	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	settings, err := utils.OpenSettings(*settingsFile)
	if err != nil {
		return fmt.Errorf("settings error: %w", err)
	}
	if config.RestaurantID != "" && settings.Get(model.SettingRestaurantID) != config.RestaurantID {
		if err := settings.Set(model.SettingRestaurantID, config.RestaurantID); err != nil {
			logger.Warn("failed to save restaurant id", "error", err)
		}
	}
	logger.Info("configuration loaded", "version", appVersion, "ws_url", config.WsURL, "receipt_mode", config.Receipt.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Wire the engine
	renderer, err := newRenderer(config.Receipt, logger)
	if err != nil {
		return err
	}

	var metrics *services.Metrics
	if *metricsAddr != "" {
		metrics = services.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(ctx, *metricsAddr, logger)
	}

	notifier := services.LogNotifier{Logger: logger.With("component", "notify")}
	opener := services.DeviceOpener{Port: config.Printer.ProbePort, ProbeTimeout: time.Second}
	scanner := &services.Scanner{
		Port:      config.Printer.ProbePort,
		Timeout:   config.Printer.ProbeTimeout,
		Ports:     config.Printer.Ports,
		NameHints: config.Printer.NameHints,
		Open:      opener.Open,
		Logger:    logger.With("component", "discovery"),
	}
	engine := services.NewEngine(services.EngineOptions{
		Renderer:            renderer,
		Open:                opener.Open,
		Settings:            settings,
		Scanner:             scanner,
		Notifier:            notifier,
		Metrics:             metrics,
		Logger:              logger.With("component", "dispatch"),
		PrintTimeout:        config.Printer.PrintTimeout,
		RecheckAfterTimeout: config.Printer.RecheckAfterTimeout,
	})

	// 3. One-shot operator commands
	if *scan {
		found, err := engine.Scan(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(found)
	}

	// 4. Printer selection
	if *printer != "" {
		if !engine.Connect(ctx, *printer) {
			logger.Warn("selected printer unavailable, orders will be simulated", "device", *printer)
		}
	} else if !engine.AutoDetect(ctx) {
		logger.Warn("no printer connected, orders will be simulated until one is selected")
	}

	if *testPrint {
		result := engine.TestPrint(ctx)
		if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
			return err
		}
		if !result.Success {
			return errors.New(result.Error)
		}
		return nil
	}

	// 5. Order channel
	client := services.NewChannelClient(services.ChannelOptions{
		URL:            config.WsURL,
		Token:          config.WsSecret,
		RestaurantID:   config.RestaurantID,
		AgentName:      config.AgentName,
		App:            appInfo,
		ReconnectDelay: config.Channel.ReconnectDelay,
		ReadTimeout:    config.Channel.ReadTimeout,
		WriteTimeout:   config.Channel.WriteTimeout,
		PendingAcks:    config.Channel.PendingAcks,
		Engine:         engine,
		Settings:       settings,
		Notifier:       notifier,
		Metrics:        metrics,
		Logger:         logger.With("component", "channel"),
	})

	logger.Info("agent running", "agent", config.AgentName)
	err = client.Run(ctx)

	logger.Info("shutting down")
	if cleared := engine.ClearQueue(); cleared > 0 {
		logger.Warn("dropped queued orders on shutdown", "cleared", cleared)
	}
	engine.Disconnect()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newRenderer(config model.ReceiptConfig, logger *slog.Logger) (receipt.Renderer, error) {
	if config.Mode != "html" {
		return receipt.NewTextRenderer(config.StoreName, config.LineWidth), nil
	}

	renderer, err := receipt.NewHTMLRenderer(config.StoreName, config.PaperWidth, config.Template)
	if err != nil {
		return nil, err
	}
	found, path := utils.CheckChrome()
	if !found {
		return nil, fmt.Errorf("html receipts need Chrome/Chromium: %s", utils.ChromeInstallHint(runtime.GOOS))
	}
	versionCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("using headless Chrome for receipts", "chrome", path, "version", utils.ChromeVersion(versionCtx, path))
	renderer.ChromePath = path
	return renderer, nil
}

func newLogger(level, format, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeLog = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), closeLog, nil
	case "text":
		return slog.New(slog.NewTextHandler(out, opts)), closeLog, nil
	default:
		closeLog()
		return nil, nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
