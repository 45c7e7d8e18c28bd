// sweeper is a command line tool for building, signing and simulating
// delegated sweeps against a sweep engine deployment.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chainid",
		Usage: "Chain id used in the signing domain (overrides the config file)",
	}
	engineFlag = &cli.StringFlag{
		Name:  "engine",
		Usage: "Engine deployment address (overrides the config file)",
	}
	intentFlag = &cli.StringFlag{
		Name:     "intent",
		Usage:    "JSON file holding the sweep intent",
		Required: true,
	}
	keyFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "Hex encoded private key of the intent user",
		Required: true,
	}
	payloadFlag = &cli.StringFlag{
		Name:  "payload",
		Usage: "Hex encoded route payload for routed calls",
	}
	balanceFlag = &cli.StringFlag{
		Name:  "balance",
		Usage: "Account balance in wei used by the simulation",
		Value: "1000000000000000000",
	}
	timeFlag = &cli.Uint64Flag{
		Name:  "time",
		Usage: "Block timestamp used by the simulation (default: intent deadline)",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "sweeper",
		Usage: "delegated sweep tooling",
		Flags: []cli.Flag{configFileFlag, verbosityFlag, chainIDFlag, engineFlag},
		Commands: []*cli.Command{
			digestCommand,
			signCommand,
			simulateCommand,
			boundsCommand,
			dumpConfigCommand,
		},
		Before: func(ctx *cli.Context) error {
			setupLogging(ctx.App.ErrWriter, ctx.Int(verbosityFlag.Name))
			return nil
		},
	}
}

func setupLogging(w io.Writer, verbosity int) {
	if w == nil {
		w = os.Stderr
	}
	usecolor := false
	if f, ok := w.(*os.File); ok {
		usecolor = (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) && os.Getenv("TERM") != "dumb"
		if usecolor {
			w = colorable.NewColorable(f)
		}
	}
	handler := log.NewTerminalHandlerWithLevel(w, log.FromLegacyLevel(verbosity), usecolor)
	log.SetDefault(log.NewLogger(handler))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
