package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner"
	"github.com/Kindhearted57/sui-fuzzer/runner/actorvm"
)

var chainsCmd = &cli.Command{
	Name:  "chains",
	Usage: "List supported chains and their backends",
	Action: func(cctx *cli.Context) error {
		registered := runner.Registered()

		w := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CHAIN\tBACKEND\tTARGETS")
		for _, c := range runner.SupportedChains() {
			status := color.RedString("unsupported")
			targets := ""
			if lo.Contains(registered, c) {
				status = color.GreenString("available")
			}
			if c == runner.Actor {
				targets = strings.Join(actorvm.Actors(), ", ")
			}
			if c == runner.EVM {
				targets = "compiled artifact (.json)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c, status, targets)
		}
		return w.Flush()
	},
}

var abiCmd = &cli.Command{
	Name:      "abi",
	Usage:     "Print the entry points of a target as the fuzzer sees them",
	ArgsUsage: "[contract]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "chain",
			Usage: "chain of the target, overrides the config",
		},
		&cli.StringFlag{
			Name:  "module",
			Usage: "module of the target, overrides the config",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "only list entry points starting with prefix",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := applyTargetFlags(cctx, &cfg.Fuzzer); err != nil {
			return err
		}

		backend, err := runner.Lookup(cfg.Fuzzer.Chain)
		if err != nil {
			return err
		}
		_, sigs, err := backend.Open(reqContext(cctx), runner.Target{Contract: cfg.Fuzzer.Contract, Module: cfg.Fuzzer.Module})
		if err != nil {
			return xerrors.Errorf("opening %s: %w", cfg.Fuzzer.Contract, err)
		}
		fns, err := sigs.FunctionsWithPrefix(cfg.Fuzzer.Module, cctx.String("prefix"))
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		for _, fn := range fns {
			name := fn.Name
			if strings.HasPrefix(name, cfg.Fuzzer.FuzzPrefix) {
				name = color.CyanString(name)
			}
			_, _ = fmt.Fprintf(cctx.App.Writer, "%s %s", name, types.Format(fn.Params))
			if len(fn.Returns) > 0 {
				_, _ = fmt.Fprintf(cctx.App.Writer, " -> %s", bold.Sprint(types.Format(fn.Returns)))
			}
			_, _ = fmt.Fprintln(cctx.App.Writer)
		}
		return nil
	},
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Manage the fuzzer config",
	Subcommands: []*cli.Command{
		{
			Name:  "default",
			Usage: "Print the default config",
			Action: func(cctx *cli.Context) error {
				out, err := config.ConfigComment(config.Default())
				if err != nil {
					return err
				}
				_, err = cctx.App.Writer.Write(out)
				return err
			},
		},
		{
			Name:  "show",
			Usage: "Print the effective config after file and environment overrides",
			Action: func(cctx *cli.Context) error {
				cfg, err := loadConfig(cctx)
				if err != nil {
					return err
				}
				out, err := config.ConfigComment(cfg)
				if err != nil {
					return err
				}
				_, err = cctx.App.Writer.Write(out)
				return err
			},
		},
	},
}
