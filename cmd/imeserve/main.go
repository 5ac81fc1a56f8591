/*
Package main implements imeserve, a host process that loads the IME
engine facade directly (Go-level, not through the C-ABI) and keeps it
initialized for local validation and smoke-testing.

The engine itself is exposed as a C-ABI shared library consumed by a
Windows TSF shim and a settings/manager process -- imeserve does not
stand in for either. It exists so a developer or CI job can confirm
that a given data/config directory actually loads, watch the health
probe update as keys are fed in, and catch config/dictionary problems
without building a host shim first.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/maidos/ime-engine/pkg/facade"
)

const (
	Version = "0.1.0"
	AppName = "imeserve"
	gh      = "https://github.com/maidos/ime-engine"
)

// sigHandler installs a SIGINT/SIGTERM handler that shuts the engine
// down cleanly (flushing the user dictionary) before the process exits.
func sigHandler(e *facade.Engine) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nshutting down...\n")
		e.Shutdown()
		os.Exit(0)
	}()
}

func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	configFile := flag.String("config", "config.toml", "Path to config.toml file")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	probeInterval := flag.Duration("probe-interval", 0, "Log a health probe snapshot on this interval (0 disables)")

	flag.Parse()

	if *showVersion {
		printVersionBanner()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	e := facade.New()
	sigHandler(e)

	log.Debugf("loading config from: %s", *configFile)
	if err := e.Init(*configFile); err != nil {
		log.Fatalf("failed to init engine: %v", err)
	}

	showStartupInfo(e)

	if *probeInterval > 0 {
		runHealthProbeLoop(e, *probeInterval)
		return
	}

	select {}
}

// runHealthProbeLoop logs a HealthSnapshot at Debug level on every
// tick, giving an operator the same "is it alive" signal a host would
// pull via ime_health_probe, without leaving the process.
func runHealthProbeLoop(e *facade.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		snap := e.Health()
		log.Debugf("health: initialized=%v scheme=%s llm_history=%v phases=%v",
			snap.Initialized, snap.Scheme, snap.LLMReachableLastN, snap.PhaseP95MS)
	}
}

// showStartupInfo displays basic info about the init process, mirroring
// wordserve's banner for operators tailing stdout.
func showStartupInfo(e *facade.Engine) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("============")
	println(" imeserve ")
	println("============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	scheme, err := e.GetScheme()
	if err == nil {
		log.Infof("active scheme: ( %s )", scheme.String())
	}
	log.Info("status: ready")
	println("============")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}

func printVersionBanner() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[imeserve] loads the IME engine facade for local validation")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use --help to see available options")
	logger.Print("")
	logger.Print("Find out more at", "gh", gh)
}
