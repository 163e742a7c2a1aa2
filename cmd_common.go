package main

import (
	syslog "log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/signature"
)

var (
	networkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "mainnet, testnet or devnet",
		EnvVars: []string{"STACKFLOW_NETWORK"},
		Value:   "mainnet",
	}
	keyFlag = &cli.StringFlag{
		Name:    "key",
		Usage:   "hex encoded owner private key",
		EnvVars: []string{"STACKFLOW_PRIVATE_KEY"},
	}
	ownerFlag = &cli.StringFlag{
		Name:    "owner",
		Usage:   "owner principal, must match --key when both are given",
		EnvVars: []string{"STACKFLOW_OWNER"},
	}
	contractFlag = &cli.StringFlag{
		Name:    "contract",
		Usage:   "stackflow contract id whose events are reconciled",
		EnvVars: []string{"STACKFLOW_CONTRACT"},
	}
	dbFlag = &cli.StringFlag{
		Name:    "db",
		Usage:   "root:123456@tcp(127.0.0.1:3306)/stackflow",
		EnvVars: []string{"STACKFLOW_DB"},
	}
)

// loadConfig builds the hub config. The key is optional only when
// requireKey is false.
func loadConfig(cctx *cli.Context, requireKey bool) (*common.Config, error) {
	network, err := common.NetworkByName(cctx.String(networkFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg := &common.Config{
		Network:  network,
		Owner:    cctx.String(ownerFlag.Name),
		Contract: cctx.String(contractFlag.Name),
	}

	if k := cctx.String(keyFlag.Name); k != "" {
		key, err := signature.ParsePrivateKey(k)
		if err != nil {
			return nil, xerrors.Errorf("--key: %w", err)
		}
		addr := signature.AddressOf(key.PubKey(), network)
		if cfg.Owner != "" && cfg.Owner != addr {
			return nil, xerrors.Errorf("--owner %s does not match key address %s", cfg.Owner, addr)
		}
		cfg.Owner = addr
		cfg.PrivateKey = key
	} else if requireKey {
		return nil, xerrors.New("no owner key, set --key or STACKFLOW_PRIVATE_KEY")
	}

	if cfg.Owner == "" {
		return nil, xerrors.New("no owner, set --owner or --key")
	}
	return cfg, nil
}

func openDatabase(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		syslog.New(os.Stdout, "\r\n", syslog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	log.Info("sql ping success")
	return db, nil
}
