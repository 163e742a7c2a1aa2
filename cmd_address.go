package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/signature"
)

var cmdAddress = &cli.Command{
	Name:  "address",
	Usage: "Print the principal of a private key",
	Flags: []cli.Flag{
		networkFlag,
		keyFlag,
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx, true)
		if err != nil {
			return err
		}
		fmt.Println(cfg.Owner)
		return nil
	},
}

var cmdSign = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a channel state with --key",
	ArgsUsage: "<principal-1> <principal-2> <balance-1> <balance-2> <nonce>",
	Flags: []cli.Flag{
		networkFlag,
		keyFlag,
		&cli.StringFlag{Name: "token", Usage: "token contract, native when empty"},
		&cli.StringFlag{Name: "action", Usage: "close, transfer, deposit or withdraw", Value: "transfer"},
		&cli.StringFlag{Name: "actor"},
		&cli.StringFlag{Name: "hashed-secret"},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 5 {
			return xerrors.Errorf("expected 5 arguments, got %d", cctx.NArg())
		}
		cfg, err := loadConfig(cctx, true)
		if err != nil {
			return err
		}

		var amounts [3]common.Uint128
		for i := range amounts {
			amounts[i], err = common.ParseUint128(cctx.Args().Get(2 + i))
			if err != nil {
				return xerrors.Errorf("argument %d: %w", 3+i, err)
			}
		}
		action, err := common.ParseAction(cctx.String("action"))
		if err != nil {
			return err
		}

		msg := &signature.Message{
			Asset:      common.Asset(cctx.String("token")),
			Principal1: cctx.Args().Get(0),
			Principal2: cctx.Args().Get(1),
			Balance1:   amounts[0],
			Balance2:   amounts[1],
			Nonce:      amounts[2],
			Action:     action,
			Actor:      cctx.String("actor"),
		}
		if hs := cctx.String("hashed-secret"); hs != "" {
			if msg.HashedSecret, err = signature.DecodeHex(hs); err != nil {
				return xerrors.Errorf("--hashed-secret: %w", err)
			}
		}

		sig, err := signature.NewCodec(cfg.Network).Sign(cfg.PrivateKey, msg)
		if err != nil {
			return err
		}
		fmt.Println(signature.EncodeHex(sig))
		return nil
	},
}
