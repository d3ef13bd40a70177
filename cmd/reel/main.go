package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/pkg/version"
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage:\n")
	fmt.Fprintf(out, "  reel [flags] input.mp4   transcode one file\n")
	fmt.Fprintf(out, "  reel [flags] serve       run the job API server\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}

func main() {
	var (
		configPath   string
		snapshotPath string
		showVersion  bool
		useDashboard bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&snapshotPath, "snapshot", "", "Write the latest preview frame to this JPEG file")
	flag.BoolVar(&useDashboard, "dashboard", false, "Show the terminal dashboard while transcoding")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	arg := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if snapshotPath != "" {
		cfg.Pipeline.Preview.SnapshotPath = snapshotPath
	}

	base, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	// the dashboard owns the terminal
	if useDashboard && arg != "serve" && (cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr") {
		base.SetOutput(io.Discard)
	}
	log := logger.FromLogrus(base)

	log.WithField("version", version.GetInfo().Short()).Info("Starting reel")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	if arg == "serve" {
		err = serve(ctx, cfg, log)
	} else {
		err = transcode(ctx, cfg, log, arg, useDashboard)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Cancelled")
		} else {
			log.WithError(err).Error("Failed")
		}
		if !useDashboard {
			fmt.Fprintf(os.Stderr, "reel: %v\n", err)
		}
		os.Exit(1)
	}
}
