package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"wifiled-go-home/internal/bulb"
	"wifiled-go-home/internal/coordinator"
	"wifiled-go-home/internal/discovery"
	"wifiled-go-home/internal/store"
	"wifiled-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Bulb struct {
		Port    int    `yaml:"port"`
		Timeout string `yaml:"timeout"`
	} `yaml:"bulb"`
	Discovery struct {
		Window      string `yaml:"window"`
		ReadTimeout string `yaml:"read_timeout"`
	} `yaml:"discovery"`
	Poll struct {
		Interval         string `yaml:"interval"`
		RescanInterval   string `yaml:"rescan_interval"`
		OfflineThreshold int    `yaml:"offline_threshold"`
		CommandTimeout   string `yaml:"command_timeout"`
	} `yaml:"poll"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	} `yaml:"telegram"`
	Exec struct {
		Allowlist []string `yaml:"allowlist"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"exec"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.Bulb.Port < 0 || c.Bulb.Port > 65535 {
		return fmt.Errorf("bulb.port must be 0-65535, got %d", c.Bulb.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	for _, key := range []string{"poll.interval", "poll.rescan_interval", "poll.command_timeout",
		"bulb.timeout", "discovery.window", "discovery.read_timeout"} {
		if _, err := c.duration(key); err != nil {
			return err
		}
	}
	return nil
}

// duration parses the named duration field. Empty values are zero.
func (c *Config) duration(key string) (time.Duration, error) {
	var raw string
	switch key {
	case "poll.interval":
		raw = c.Poll.Interval
	case "poll.rescan_interval":
		raw = c.Poll.RescanInterval
	case "poll.command_timeout":
		raw = c.Poll.CommandTimeout
	case "bulb.timeout":
		raw = c.Bulb.Timeout
	case "discovery.window":
		raw = c.Discovery.Window
	case "discovery.read_timeout":
		raw = c.Discovery.ReadTimeout
	}
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("wifiled-go-home starting", "version", version)

	// Open store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Device client and LAN scanner
	bulbTimeout, _ := cfg.duration("bulb.timeout")
	client := bulb.NewClient(cfg.Bulb.Port, bulbTimeout, logger)

	var scanOpts []discovery.Option
	if d, _ := cfg.duration("discovery.window"); d > 0 {
		scanOpts = append(scanOpts, discovery.WithWindow(d))
	}
	if d, _ := cfg.duration("discovery.read_timeout"); d > 0 {
		scanOpts = append(scanOpts, discovery.WithReadTimeout(d))
	}
	scanner := discovery.NewScanner(logger, scanOpts...)

	// Create coordinator
	pollInterval, _ := cfg.duration("poll.interval")
	rescanInterval, _ := cfg.duration("poll.rescan_interval")
	commandTimeout, _ := cfg.duration("poll.command_timeout")

	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(client, scanner, db, events, coordinator.Config{
		PollInterval:     pollInterval,
		RescanInterval:   rescanInterval,
		OfflineThreshold: cfg.Poll.OfflineThreshold,
		CommandTimeout:   commandTimeout,
	}, logger)

	if err := coord.Start(); err != nil {
		logger.Error("start coordinator", "err", err)
		os.Exit(1)
	}

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(coord, cfg, logger)

	// Start web server
	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(coord, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(coord, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	coord.Stop()

	logger.Info("goodbye")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8090"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "wifiled.db"
	}
	if cfg.Poll.Interval == "" {
		cfg.Poll.Interval = "30s"
	}
	if cfg.Poll.RescanInterval == "" {
		cfg.Poll.RescanInterval = "5m"
	}
	if cfg.Poll.OfflineThreshold == 0 {
		cfg.Poll.OfflineThreshold = 3
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "wifiled"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
