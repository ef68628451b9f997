// Command batchtx simulates and submits router batches from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file; BATCHTX_* environment variables and .env are used when omitted",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	callsFlag = cli.StringFlag{
		Name:     "calls",
		Usage:    "JSON file holding an array of {target, value, data} calls",
		Required: true,
	}
	keyEnvFlag = cli.StringFlag{
		Name:  "key-env",
		Usage: "environment variable holding the hex private key of the sender",
		Value: "BATCHTX_PRIVATE_KEY",
	}
	modeFlag = cli.StringFlag{
		Name:  "mode",
		Usage: "submission protocol: async, sync or realtime",
		Value: "sync",
	}
	gasLimitFlag = cli.Uint64Flag{
		Name:  "gas-limit",
		Usage: "gas limit override (0 estimates)",
	}
	addressFlag = cli.StringFlag{
		Name:     "address",
		Usage:    "account address",
		Required: true,
	}
	tokensFlag = cli.StringSliceFlag{
		Name:     "token",
		Usage:    "token address (repeatable)",
		Required: true,
	}
)

func main() {
	app := &cli.App{
		Name:  "batchtx",
		Usage: "compose several contract calls into one atomic router transaction",
		Flags: []cli.Flag{
			&configFlag,
			&verbosityFlag,
		},
		Before: func(ctx *cli.Context) error {
			handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), true)
			log.SetDefault(log.NewLogger(handler))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "simulate",
				Usage:  "dry-run a batch and report per-call results and the gas estimate",
				Flags:  []cli.Flag{&callsFlag, &keyEnvFlag},
				Action: simulateCmd,
			},
			{
				Name:   "send",
				Usage:  "sign and submit a batch",
				Flags:  []cli.Flag{&callsFlag, &keyEnvFlag, &modeFlag, &gasLimitFlag},
				Action: sendCmd,
			},
			{
				Name:   "nonce",
				Usage:  "print the next nonce the session would issue",
				Flags:  []cli.Flag{&addressFlag},
				Action: nonceCmd,
			},
			{
				Name:   "balances",
				Usage:  "read token balances and metadata in one aggregated request",
				Flags:  []cli.Flag{&addressFlag, &tokensFlag},
				Action: balancesCmd,
			},
			{
				Name:      "decode-revert",
				Usage:     "decode hex revert data offline",
				ArgsUsage: "<0x-data>",
				Action:    decodeRevertCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
