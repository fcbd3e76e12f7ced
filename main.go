package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sentinelids/sentinel/alert"
	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/config"
	sentinelhttp "github.com/sentinelids/sentinel/http"
	"github.com/sentinelids/sentinel/log"
	"github.com/sentinelids/sentinel/metrics"
)

var (
	cfg         = config.NewConfig()
	verboseFlag string
	showVersion bool
	Version     = "dev"
	Commit      = "none"
	Date        = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel IDS session manager",
	Long:  `Sentinel manages live network capture sessions: it bridges a remote capture backend over WebSocket, falls back to synthetic traffic, and serves the dashboard API`,
	RunE:  runSentinel,
}

func init() {
	// Bind all configuration flags
	cfg.BindFlags(rootCmd)

	rootCmd.Flags().StringVar(&verboseFlag, "verbose", "info", "Set verbosity level (debug, trace, info, silent), default: info")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
}

func main() {
	initTimezone()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSentinel(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("Sentinel version: %s (%s) %s\n", Version, Commit, Date)
		return nil
	}

	cfg.ApplyLogLevel(verboseFlag)
	initLogging(&cfg)

	log.Infof("Starting Sentinel session manager")

	if cfg.ConfigPath != "" {
		if err := cfg.LoadFromFile(cfg.ConfigPath); err != nil {
			return log.Errorf("failed to load config: %w", err)
		}
		cfg.SaveToFile(cfg.ConfigPath)
	}

	if cmd.Flags().Changed("verbose") {
		cfg.ApplyLogLevel(verboseFlag)
		log.SetLevel(cfg.Logging.Level)
		log.Infof("Log level set to %s", verboseFlag)
	}

	if err := cfg.Validate(); err != nil {
		return log.Errorf("invalid configuration: %w", err)
	}

	printConfigDefaults(cmd)

	collector := metrics.NewCollector()

	sim := capture.NewSimulator(capture.SimulatorConfig{
		PacketIntervalMin: time.Duration(cfg.Capture.PacketIntervalMinMs) * time.Millisecond,
		PacketIntervalMax: time.Duration(cfg.Capture.PacketIntervalMaxMs) * time.Millisecond,
		StatsInterval:     time.Duration(cfg.Capture.StatsIntervalMs) * time.Millisecond,
	})
	remote := capture.NewRemoteClient(capture.RemoteConfig{
		URL:               cfg.Backend.URL,
		ConnectTimeout:    time.Duration(cfg.Backend.ConnectTimeoutMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Backend.HeartbeatMs) * time.Millisecond,
		ModelInfoTimeout:  time.Duration(cfg.Backend.ModelInfoTimeoutMs) * time.Millisecond,
	})
	session := capture.NewSession(capture.SessionConfig{
		Simulator:  sim,
		Remote:     remote,
		MaxPackets: cfg.Capture.MaxPackets,
		Observer:   collector,
	})

	publisher, err := alert.NewPublisher(alert.Config{
		URL:            cfg.Alerts.NatsURL,
		Subject:        cfg.Alerts.Subject,
		SuppressWindow: time.Duration(cfg.Alerts.SuppressWindowMs) * time.Millisecond,
		CacheSize:      cfg.Alerts.CacheSize,
	}, session)
	if err != nil {
		return log.Errorf("failed to start alert publisher: %w", err)
	}

	session.Start()
	log.Infof("Session started with simulated traffic")

	if cfg.Backend.AutoConnect {
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if session.ConnectRemote(connectCtx, cfg.Backend.URL) {
			log.Infof("Connected to capture backend at %s", cfg.Backend.URL)
		} else {
			log.Infof("Capture backend unavailable, staying on simulated traffic")
		}
		cancel()
	}

	httpServer, err := sentinelhttp.StartServer(&cfg, session, collector)
	if err != nil {
		return log.Errorf("failed to start web server: %w", err)
	}

	log.Infof("Sentinel is running. Press Ctrl+C to stop")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Infof("Received signal: %v, shutting down gracefully", sig)
	return gracefulShutdown(session, publisher, httpServer)
}

func gracefulShutdown(session *capture.Session, publisher *alert.Publisher, httpServer *sentinelhttp.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		log.Infof("Shutting down HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
		} else {
			log.Infof("HTTP server stopped")
		}
	}

	session.Close()
	log.Infof("Capture session closed")

	if publisher != nil {
		publisher.Close()
		log.Infof("Alert publisher drained")
	}

	log.Infof("Sentinel stopped successfully")
	log.Flush()
	return nil
}

func initTimezone() {
	// Load timezone from TZ environment variable, default to UTC
	tzName := os.Getenv("TZ")
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to load timezone %s: %v, using UTC\n", tzName, err)
		loc, _ = time.LoadLocation("UTC")
	}

	time.Local = loc
}

func initLogging(cfg *config.Config) {
	log.Init(os.Stderr, cfg.Logging.Level, cfg.Logging.Instaflush)
}

func printConfigDefaults(cmd *cobra.Command) {
	var all []*pflag.Flag
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	cmd.Flags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	log.Infof("Effective CLI flags:")
	line := ""
	for _, f := range all {
		if line == "" {
			line = fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
		} else {
			line += " " + fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
		}
	}
	log.Infof("  %s", line)
}
