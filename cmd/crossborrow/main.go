// crossborrow deposits collateral on one domain and borrows against it on
// another in a single transaction.
package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/urfave/cli.v1"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
)

var (
	app = cli.NewApp()

	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML or JSON configuration file",
		Value: config.DefaultConfigPath,
	}
	PasswordFlag = cli.StringFlag{
		Name:  "password",
		Usage: "Keystore password, prompted for when empty",
	}
	VerbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

func init() {
	app.Name = "crossborrow"
	app.Usage = "cross-domain collateral deposit and borrow"
	app.HideVersion = true
	app.Flags = []cli.Flag{ConfigFlag, PasswordFlag, VerbosityFlag}
	app.Commands = []cli.Command{
		borrowCommand,
		marketsCommand,
		domainsCommand,
		registryCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Before = func(ctx *cli.Context) error {
		bridgelog.Setup(ctx.GlobalInt(VerbosityFlag.Name))
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		closePrompter() // Resets terminal mode.
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
