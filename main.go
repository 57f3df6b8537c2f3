package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Tube/internal"
	"github.com/hbomb79/Tube/pkg/logger"
)

var log = logger.Get("Bootstrap")

// main is the entry point to the program. The configuration is loaded from
// the optional YAML file and environment, and Tube is run until it either
// crashes or the process receives SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	flag.Parse()

	config := internal.TubeConfig{}
	if err := config.Load(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tube, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Tube: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tube.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Tube stopped due to error: %v\n", err)
		stop()
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Tube shutdown complete\n")
}
