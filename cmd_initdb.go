package main

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/initdb"
	"github.com/rqzrqh/stackflow_hub/util"
)

var cmdInitDb = &cli.Command{
	Name:  "initdb",
	Usage: "Create the hub tables and pin the database to an owner",
	Flags: []cli.Flag{
		dbFlag,
		networkFlag,
		ownerFlag,
		keyFlag,
		contractFlag,
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx)

		cfg, err := loadConfig(cctx, false)
		if err != nil {
			return err
		}

		dsn := cctx.String(dbFlag.Name)
		if dsn == "" {
			return xerrors.New("--db is required")
		}
		db, err := openDatabase(dsn)
		if err != nil {
			return err
		}

		if err := initdb.InitDatabase(ctx, db, cfg); err != nil {
			return err
		}
		log.Infow("database initialized", "owner", cfg.Owner, "network", cfg.Network.Name)
		return nil
	},
}
