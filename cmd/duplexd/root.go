package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/Zereker/duplex"
	"github.com/Zereker/duplex/internal/config"
	"github.com/Zereker/duplex/internal/zlog"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=1.1.0"
var version = "1.0.0"

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath     string
	logLevel       string
	logFormat      string
	maxMessageSize int
	verbose        bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&c.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.logFormat, "log-format", config.DefaultLogFormat, "Log format (console or json)")
	fs.IntVar(&c.maxMessageSize, "max-message-size", config.DefaultMaxMessageSize, "Largest accepted message in bytes")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "Shorthand for --log-level=debug")
}

// apply loads file and environment settings, then overlays the flags the
// user actually set.
func (c *commonFlags) apply(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if fs.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if fs.Changed("max-message-size") {
		cfg.MaxMessageSize = c.maxMessageSize
	}
	return cfg, cfg.Validate()
}

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "serve":
		return runServe(ctx, args[1:], stdout, stderr)
	case "send":
		return runSend(ctx, args[1:], stdin, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "duplexd %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return errors.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: duplexd <command> [flags]

Commands:
  serve    accept connections and echo (or broadcast) every message
  send     connect, send messages and print the replies
  version  print the version

Run "duplexd <command> --help" for the flags of a command.
`)
}

func newLogger(cfg config.Config, w io.Writer) (duplex.Logger, error) {
	l, err := zlog.New(w, "duplexd", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func connOptions(cfg config.Config, logger duplex.Logger) []duplex.Option {
	return []duplex.Option{
		duplex.LoggerOption(logger),
		duplex.MessageMaxSize(cfg.MaxMessageSize),
		duplex.ReadBufferSizeOption(cfg.ReadBufferSize),
	}
}
