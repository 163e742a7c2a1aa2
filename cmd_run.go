package main

import (
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/porter"
	"github.com/rqzrqh/stackflow_hub/util"

	_ "net/http/pprof"
)

var cmdRun = &cli.Command{
	Name:  "run",
	Usage: "Start the stackflow hub",
	Flags: []cli.Flag{
		networkFlag,
		keyFlag,
		ownerFlag,
		contractFlag,
		dbFlag,
		&cli.StringFlag{
			Name:    "redis",
			Usage:   "127.0.0.1:6379, channel state is kept in memory when empty",
			EnvVars: []string{"STACKFLOW_REDIS"},
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "multiaddr the http api listens on",
			EnvVars: []string{"STACKFLOW_LISTEN"},
			Value:   "/ip4/0.0.0.0/tcp/8888",
		},
		&cli.StringFlag{
			Name:    "chainhook-secret",
			Usage:   "bearer token required on /events",
			EnvVars: []string{"STACKFLOW_CHAINHOOK_SECRET"},
		},
		&cli.DurationFlag{
			Name:  "retry-interval",
			Usage: "dead letter retry period",
			Value: time.Minute,
		},
		&cli.DurationFlag{
			Name:  "metrics-interval",
			Usage: "metrics log period, 0 disables",
			Value: time.Minute,
		},
		&cli.StringFlag{
			Name:  "pprof",
			Usage: "pprof listen address, empty disables",
			Value: ":6060",
		},
		&cli.StringFlag{
			Name:        "log-level",
			DefaultText: "info",
		},
	},
	Action: func(cctx *cli.Context) error {
		if addr := cctx.String("pprof"); addr != "" {
			go func() {
				http.ListenAndServe(addr, nil) //nolint:errcheck
			}()
		}

		ctx := util.ReqContext(cctx)

		if ll := cctx.String("log-level"); ll != "" {
			if err := logging.SetLogLevel("*", ll); err != nil {
				return err
			}
		}

		cfg, err := loadConfig(cctx, true)
		if err != nil {
			return err
		}

		listen, err := util.ListenAddress(cctx.String("listen"))
		if err != nil {
			return err
		}

		var (
			db      *gorm.DB
			backend porter.Backend
		)
		if dsn := cctx.String(dbFlag.Name); dsn != "" {
			db, err = openDatabase(dsn)
			if err != nil {
				return err
			}
			if err := dao.CheckHubConfig(db, cfg); err != nil {
				return err
			}
			backend = dao.NewDao(ctx, db)
		} else {
			log.Warn("no database configured, signature history and dead letters are kept in memory")
			backend = dao.NewMemoryLog()
		}

		var store dao.ChannelStore
		if redisAddr := cctx.String("redis"); redisAddr != "" {
			rds := redis.NewClient(&redis.Options{
				Addr:     redisAddr,
				Password: "",
				DB:       0,
			})
			defer rds.Close()
			pong, err := rds.Ping(ctx).Result()
			if err != nil {
				return err
			}
			log.Info("redis response ", pong)
			store = dao.NewRedisStore(rds)
		} else {
			log.Warn("no redis configured, channel state is kept in memory")
			store = dao.NewMemoryStore()
		}

		log.Infow("starting hub", "owner", cfg.Owner, "network", cfg.Network.Name, "contract", cfg.Contract, "listen", listen)

		p := porter.NewPorter(ctx, cfg, store, backend, db, porter.Options{
			ListenAddr:      listen,
			ChainhookSecret: cctx.String("chainhook-secret"),
			RetryInterval:   cctx.Duration("retry-interval"),
			MetricsInterval: cctx.Duration("metrics-interval"),
		})
		if err := p.Start(); err != nil {
			return err
		}

		<-ctx.Done()

		p.Stop()
		return nil
	},
}
