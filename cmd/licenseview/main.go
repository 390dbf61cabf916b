// Package main provides the licensing utilization report generator for Zerto
// Virtual Manager. It authenticates against the management API, collects
// entitlement and consumption data, and renders HTML, CSV, and JSON reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ALastoff/LicenseView/internal/config"
	"github.com/ALastoff/LicenseView/internal/run"
	"github.com/ALastoff/LicenseView/pkg/logger"
)

const toolVersion = "1.0.0"

// Exit codes. Interrupts use the conventional 128+SIGINT value.
const (
	exitOK          = 0
	exitFatal       = 1
	exitConfig      = 3
	exitInterrupted = 130
)

const banner = `
╔════════════════════════════════════════════════════════════╗
║       Zerto Licensing Utilization Report Generator         ║
╚════════════════════════════════════════════════════════════╝
`

// ANSI status colors, keyed by status kind.
var statusColors = map[string]string{
	"success":  "\033[92m",
	"warning":  "\033[93m",
	"error":    "\033[91m",
	"critical": "\033[91m",
	"info":     "\033[94m",
}

var statusPrefixes = map[string]string{
	"success":  "✓",
	"warning":  "⚠",
	"error":    "✗",
	"critical": "✗",
	"info":     "→",
}

// printStatus writes a colorized operator status line to stdout. Colors are
// suppressed when NO_COLOR is set.
func printStatus(message, status string) {
	prefix, ok := statusPrefixes[status]
	if !ok {
		prefix = statusPrefixes["info"]
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		fmt.Printf("%s %s\n", prefix, message)
		return
	}
	color, ok := statusColors[status]
	if !ok {
		color = statusColors["info"]
	}
	fmt.Printf("%s%s %s\033[0m\n", color, prefix, message)
}

func printVersionInfo() {
	fmt.Print(banner)
	fmt.Printf("Tool Version        : %s\n", toolVersion)
	fmt.Printf("Go Version          : %s\n", runtime.Version())
	fmt.Printf("OS                  : %s\n", runtime.GOOS)
	fmt.Println("\nNote: Zerto API version will be detected at runtime.")
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config.yaml (required)")
		outputDir   = flag.String("output-dir", "", "Output directory (overrides config)")
		formats     = flag.String("format", "", "Comma-separated report formats: html,csv,json (overrides config)")
		insecure    = flag.Bool("insecure", false, "Skip TLS certificate validation (emits warning)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		versionInfo = flag.Bool("version-info", false, "Print versions and exit")
	)
	flag.Parse()

	if *versionInfo {
		printVersionInfo()
		os.Exit(exitOK)
	}

	fmt.Print(banner)

	if *configPath == "" {
		printStatus("--config is required", "error")
		flag.Usage()
		os.Exit(exitConfig)
	}

	// Local secrets for ${VAR} substitution; absence is not an error.
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(*configPath)
	if err != nil {
		printStatus(fmt.Sprintf("Configuration error: %v", err), "error")
		os.Exit(exitConfig)
	}
	printStatus(fmt.Sprintf("Config loaded: %s", *configPath), "success")

	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *formats != "" {
		cfg.Output.Formats = strings.Split(*formats, ",")
	}
	if *insecure {
		cfg.VerifyTLS = false
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		printStatus(fmt.Sprintf("Configuration error: %v", err), "error")
		os.Exit(exitConfig)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File, cfg.Logging.MaxSizeMB)

	if !cfg.VerifyTLS {
		printStatus("TLS certificate validation is DISABLED", "warning")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printStatus("Authenticating to Zerto...", "info")
	printStatus("Collecting license and consumption data...", "info")

	result, err := run.Execute(ctx, run.Options{
		Config:      cfg,
		ToolVersion: toolVersion,
		Logger:      log,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printStatus("Operation cancelled by user", "warning")
			os.Exit(exitInterrupted)
		}
		printStatus(fmt.Sprintf("Run failed: %v", err), "error")
		os.Exit(exitFatal)
	}

	printStatus(fmt.Sprintf("Authenticated via %s protocol", result.Protocol), "success")
	printStatus(fmt.Sprintf(
		"Utilization %.1f%%, risk score %d, %d alert(s)",
		result.Payload.Metrics.UtilizationPct,
		result.Payload.Metrics.RiskScore,
		len(result.Payload.Metrics.Alerts),
	), "info")
	for _, alert := range result.Payload.Metrics.Alerts {
		printStatus(alert.Message, string(alert.Severity))
	}

	printStatus("Reports generated successfully!", "success")
	fmt.Printf("Output directory: %s\n\n", cfg.Output.Dir)
	os.Exit(exitOK)
}
