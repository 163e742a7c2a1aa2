package porter

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"gorm.io/gorm"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/hub"
	"github.com/rqzrqh/stackflow_hub/metrics"
	"github.com/rqzrqh/stackflow_hub/reconciler"
	"github.com/rqzrqh/stackflow_hub/server"
	"github.com/rqzrqh/stackflow_hub/signature"
)

var log = logging.Logger("porter")

// Backend is the durable side of the hub. *dao.Dao and *dao.MemoryLog both
// implement it.
type Backend interface {
	hub.AuditLog
	reconciler.DeadLetters
	reconciler.Disputer
}

type Options struct {
	ListenAddr      string
	ChainhookSecret string
	RetryInterval   time.Duration
	MetricsInterval time.Duration
}

// Porter owns the hub's long running parts: the HTTP server, the dead
// letter retry worker and the metrics exporter.
type Porter struct {
	ctx          context.Context
	opts         Options
	db           *gorm.DB
	hub          *hub.Hub
	reconciler   *reconciler.Reconciler
	server       *server.Server
	retry        *reconciler.RetryWorker
	stopExporter func()
}

// NewPorter wires the components. db may be nil, in which case no database
// lock is taken.
func NewPorter(ctx context.Context, cfg *common.Config, store dao.ChannelStore, backend Backend, db *gorm.DB, opts Options) *Porter {
	codec := signature.NewCodec(cfg.Network)
	h := hub.NewHub(cfg, codec, store, backend)
	rec := reconciler.NewReconciler(cfg, store, backend, backend)

	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Minute
	}

	return &Porter{
		ctx:        ctx,
		opts:       opts,
		db:         db,
		hub:        h,
		reconciler: rec,
		server:     server.NewServer(h, rec, opts.ChainhookSecret),
		retry:      reconciler.NewRetryWorker(ctx, rec, backend, opts.RetryInterval),
	}
}

func (p *Porter) Server() *server.Server {
	return p.server
}

func (p *Porter) Start() error {
	if p.db != nil {
		if err := dao.GetDatabaseLock(p.db); err != nil {
			return err
		}
	}

	if err := metrics.Register(); err != nil {
		return err
	}
	if p.opts.MetricsInterval > 0 {
		p.stopExporter = metrics.StartLogExporter(p.opts.MetricsInterval)
	}

	if p.opts.ChainhookSecret == "" {
		log.Warn("no chainhook secret configured, event ingestion is disabled")
	}

	p.retry.Start()
	p.server.Start(p.opts.ListenAddr)
	return nil
}

func (p *Porter) Stop() {
	p.server.Stop()
	p.retry.Stop()
	if p.stopExporter != nil {
		p.stopExporter()
	}

	applied, deadLettered := p.reconciler.Stats()
	log.Infow("porter stopped", "eventsApplied", applied, "deadLettered", deadLettered)

	if p.db != nil {
		if err := dao.ReleaseDatabaseLock(p.db); err != nil {
			log.Warnw("release database lock", "err", err)
		}
	}
}
