package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/build"
	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/lib/fuzzlog"

	_ "github.com/Kindhearted57/sui-fuzzer/actors"
	_ "github.com/Kindhearted57/sui-fuzzer/runner/actorvm"
	_ "github.com/Kindhearted57/sui-fuzzer/runner/evm"
)

var log = logging.Logger("main")

func init() {
	color.NoColor = os.Getenv("GOLOG_LOG_FMT") != "color" &&
		!isatty.IsTerminal(os.Stdout.Fd()) &&
		!isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func main() {
	fuzzlog.SetupLogLevels()

	local := []*cli.Command{
		runCmd,
		chainsCmd,
		abiCmd,
		configCmd,
	}

	app := &cli.App{
		Name:    "sui-fuzzer",
		Usage:   "Gas-guided stateful fuzzer for smart contracts",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"FUZZER_CONFIG"},
				Usage:   "path to the TOML config file",
				Value:   "fuzzer.toml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"FUZZER_LOG_LEVEL"},
				Usage:   "log level applied to every subsystem",
			},
		},
		Before: func(cctx *cli.Context) error {
			if lvl := cctx.String("log-level"); lvl != "" {
				return logging.SetLogLevel("*", lvl)
			}
			return nil
		},
		Commands: local,
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorw("exit in error", "err", err)
		os.Exit(1)
		return
	}
}

// reqContext returns a context cancelled on SIGINT or SIGTERM.
func reqContext(cctx *cli.Context) context.Context {
	ctx, done := context.WithCancel(cctx.Context)
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	return ctx
}

// loadConfig reads the config file named by --config, applies environment
// overrides and the configured log levels.
func loadConfig(cctx *cli.Context) (*config.Root, error) {
	cfg, err := config.FromFile(cctx.String("config"), config.Default())
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}
	for system, level := range cfg.Logging.SubsystemLevels {
		if err := logging.SetLogLevel(system, level); err != nil {
			return nil, xerrors.Errorf("setting log level for %s: %w", system, err)
		}
	}
	// an explicit flag wins over the file
	if lvl := cctx.String("log-level"); lvl != "" {
		_ = logging.SetLogLevel("*", lvl)
	}
	return cfg, nil
}
