package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/config"
	"github.com/chaz8081/hm-remote/internal/console"
	"github.com/chaz8081/hm-remote/internal/interrupt"
	"github.com/chaz8081/hm-remote/internal/scan"
)

const usage = `Usage: hm-remote [-config FILE] <command> [arguments]

Commands:
  scan [-v|-verbose] [-f|-filter-unnamed]   list advertising devices until Ctrl+C
  connect ADDRESS                           open an AT console to an HM device
  init-config                               write the default config file

Global flags:
`

// errUsage marks command-line mistakes; usage has already been printed.
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("hm-remote", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to config file (default: ~/.config/hm-remote/config.yaml)")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "scan":
		return runScan(cfg, rest, stdout, stderr)
	case "connect":
		return runConnect(cfg, rest, stdin, stdout, stderr)
	case "init-config":
		return runInitConfig(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return errUsage
	}
}

func runScan(cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&cfg.Scan.Verbose, "verbose", cfg.Scan.Verbose, "also print [UPDATE] lines")
	fs.BoolVar(&cfg.Scan.Verbose, "v", cfg.Scan.Verbose, "shorthand for -verbose")
	fs.BoolVar(&cfg.Scan.FilterUnnamed, "filter-unnamed", cfg.Scan.FilterUnnamed, "report devices only once they have a name")
	fs.BoolVar(&cfg.Scan.FilterUnnamed, "f", cfg.Scan.FilterUnnamed, "shorthand for -filter-unnamed")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(stderr, "scan takes no arguments, got %q\n", fs.Args())
		return errUsage
	}
	if err := setup(cfg); err != nil {
		return err
	}

	sig := interrupt.New()
	stop := interrupt.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter(cfg.Scan.LostTimeout)
	return scan.Run(sig, adapter, scan.Options{
		Verbose:       cfg.Scan.Verbose,
		FilterUnnamed: cfg.Scan.FilterUnnamed,
	}, stdout)
}

func runConnect(cfg *config.Config, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, "Usage: hm-remote connect ADDRESS") }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	target, err := ble.ParseAddress(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := setup(cfg); err != nil {
		return err
	}

	sig := interrupt.New()
	stop := interrupt.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter(cfg.Scan.LostTimeout)
	return console.Connect(sig, adapter, target, stdin, stdout, console.Config{
		Connect: ble.ConnectOptions{
			RetryBackoff:    cfg.Connect.RetryBackoff,
			RetryBackoffMax: cfg.Connect.RetryBackoffMax,
		},
		Session: console.Options{
			FrameSize:  cfg.Console.FrameSize,
			WriteDelay: cfg.Console.WriteDelay,
		},
		Prompt:      cfg.Console.Prompt,
		Interactive: term.IsTerminal(int(stdin.Fd())),
	})
}

func runInitConfig(stdout io.Writer) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(stdout, "Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Fprintf(stdout, "Wrote default config to %s\n", path)
	return nil
}

// setup validates the final config and installs the logger.
func setup(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
