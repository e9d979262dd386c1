package main

import (
	"os"

	"github.com/hopnetwork/reconciler/cmd"
	"github.com/hopnetwork/reconciler/common"
	"github.com/hopnetwork/reconciler/config"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/version"
	"github.com/urfave/cli/v2"
)

const appName = "hop-reconciler"

var (
	configFileFlag = cli.StringSliceFlag{
		Name:     config.FlagCfg,
		Aliases:  []string{"c"},
		Usage:    "Configuration file(s)",
		Required: true,
	}
	componentsFlag = cli.StringSliceFlag{
		Name:    config.FlagComponents,
		Aliases: []string{"co"},
		Usage:   "List of components to run",
		Value:   cli.NewStringSlice(common.TRANSFER_SYNC, common.WATCHER, common.EXECUTOR),
	}
	saveConfigFlag = cli.StringFlag{
		Name:    config.FlagSaveConfigPath,
		Aliases: []string{"s"},
		Usage:   "Save the final configuration into the indicated path (name: " + config.SaveConfigFileName + ")",
	}
	formatFlag = cli.StringFlag{
		Name:    config.FlagOutputFormat,
		Aliases: []string{"f"},
		Usage:   "Report output format: table, json or csv",
		Value:   "table",
	}
	fromFlag = cli.StringFlag{
		Name:  config.FlagFrom,
		Usage: "Start of the report window (RFC3339). Defaults to now minus Reconciler.Window",
	}
	toFlag = cli.StringFlag{
		Name:  config.FlagTo,
		Usage: "End of the report window (RFC3339). Defaults to now",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Version = version.Version

	app.Commands = []*cli.Command{
		{
			Name:   "version",
			Usage:  "Application version and build",
			Action: cmd.VersionCmd,
		},
		{
			Name:   "run",
			Usage:  "Run the chain syncers and the selected components",
			Action: cmd.RunCmd,
			Flags:  []cli.Flag{&configFileFlag, &componentsFlag, &saveConfigFlag},
		},
		{
			Name:   "report",
			Usage:  "Reconcile the synced data once and print the report",
			Action: cmd.ReportCmd,
			Flags:  []cli.Flag{&configFileFlag, &formatFlag, &fromFlag, &toFlag},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
