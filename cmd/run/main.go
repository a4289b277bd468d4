package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/config"
	"github.com/wippyai/wasm-hostbridge/engine"
	"github.com/wippyai/wasm-hostbridge/runtime"
)

type flags struct {
	wasm        string
	config      string
	entry       string
	tick        string
	metrics     string
	document    string
	list        bool
	interactive bool
}

func main() {
	var f flags
	flag.StringVar(&f.wasm, "wasm", "", "Path to the guest wasm module")
	flag.StringVar(&f.config, "config", "", "Path to a TOML config file")
	flag.StringVar(&f.entry, "entry", "", "Entry export to run (default main, then _start)")
	flag.StringVar(&f.tick, "tick", "", "Export called once per frame")
	flag.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&f.document, "document", "", "HTML document resolving listener selectors")
	flag.BoolVar(&f.list, "list", false, "List imports and exports and exit")
	flag.BoolVar(&f.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if f.wasm == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <guest.wasm> [-config file.toml] [-entry name] [-tick name]")
		fmt.Fprintln(os.Stderr, "       run -wasm <guest.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <guest.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if f.interactive {
		err = runInteractive(f, cfg)
	} else {
		err = run(f, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.tick != "" {
		cfg.Runtime.TickExport = f.tick
	}
	if f.metrics != "" {
		cfg.Metrics.Listen = f.metrics
	}
	if f.document != "" {
		cfg.Events.Document = f.document
	}
	return cfg, nil
}

func run(f flags, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(f.wasm)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if f.list {
		return list(ctx, data)
	}

	log, err := cfg.Logging.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	rt, err := runtime.New(ctx, cfg, runtime.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	inst, err := rt.LoadWASM(ctx, data)
	if err != nil {
		return fmt.Errorf("load guest: %w", err)
	}

	log.Info("running guest", zap.String("file", f.wasm), zap.String("entry", entryName(f.entry)))
	if err := inst.Main(ctx, f.entry); err != nil {
		return fmt.Errorf("call %s: %w", entryName(f.entry), err)
	}

	if err := rt.Run(ctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

// list prints the guest's imports and exports without running it.
func list(ctx context.Context, data []byte) error {
	e, err := engine.New(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close(ctx) }()

	m, err := e.Compile(ctx, data)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	fmt.Printf("Imports:\n  %s\n", strings.Join(m.Imports(), "\n  "))
	fmt.Printf("Exports:\n  %s\n", strings.Join(m.Exports(), "\n  "))
	return nil
}

func entryName(entry string) string {
	if entry == "" {
		return "main"
	}
	return entry
}
