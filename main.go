package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

const version = "0.2.2"

var (
	log = logging.Logger("stackflow_hub")
)

func main() {
	if err := logging.SetLogLevel("*", "info"); err != nil {
		log.Fatal(err)
	}
	app := &cli.App{
		Name:    "stackflow_hub",
		Usage:   "StackFlow payment channel hub",
		Version: version,
		Flags:   []cli.Flag{},
		Commands: []*cli.Command{
			cmdInitDb,
			cmdRun,
			cmdAddress,
			cmdSign,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
