package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andremotz/katzenschreck/internal/app"
	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/logger"
	flag "github.com/spf13/pflag"
)

var version = "dev"

func main() {
	configPath := flag.StringP("config", "c", config.DefaultConfigFile, "Path to the key=value configuration file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [output_dir]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("katzenschreck", version)
		return
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flag.NArg() == 1 {
		cfg.OutputDirectory = flag.Arg(0)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to start: %v", err)
		log.Close()
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("Stopped with error: %v", err)
		application.Close()
		log.Close()
		os.Exit(1)
	}
}
