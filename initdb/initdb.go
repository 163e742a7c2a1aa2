package initdb

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/model"
)

var log = logging.Logger("initdb")

func InitDatabase(ctx context.Context, db *gorm.DB, cfg *common.Config) error {

	if checkExist(db) {
		return xerrors.New("database has been initialized")
	}

	if err := createTables(db); err != nil {
		return err
	}

	if err := fillTables(ctx, db, cfg); err != nil {
		return err
	}

	return dao.CheckHubConfig(db, cfg)
}

func checkExist(db *gorm.DB) bool {
	return db.Migrator().HasTable(&model.HubConfig{})
}

func createTables(db *gorm.DB) error {

	startTime := time.Now()
	defer func() {
		log.Infow("createTables", "duration", time.Since(startTime).String())
	}()

	return db.Debug().AutoMigrate(
		&model.SignatureRecord{},
		&model.DeadLetterEvent{},
		&model.DisputeRequest{},
		&model.HubConfig{},
		// PidFile Table is created at the time of program starts
	)
}

func fillTables(ctx context.Context, db *gorm.DB, cfg *common.Config) error {
	if cfg.Owner == "" {
		return xerrors.New("owner is required")
	}

	log.Infow("writing hub config", "network", cfg.Network.Name, "owner", cfg.Owner, "contract", cfg.Contract)

	hubConfig := model.HubConfig{
		Network:  cfg.Network.Name,
		Owner:    cfg.Owner,
		Contract: cfg.Contract,
	}
	return db.WithContext(ctx).Create(&hubConfig).Error
}
