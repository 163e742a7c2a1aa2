package dao

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/model"
)

var log = logging.Logger("dao")

// Dao is the MySQL side of the hub: signature history, dead letters and
// dispute requests.
type Dao struct {
	ctx context.Context
	db  *gorm.DB
}

func NewDao(ctx context.Context, db *gorm.DB) *Dao {
	return &Dao{
		ctx: ctx,
		db:  db,
	}
}

func GetDatabaseLock(db *gorm.DB) error {

	err := db.Migrator().CreateTable(&model.PidFile{})
	if err != nil {
		log.Errorf("GetDatabaseLock failed:%v", err)
	}

	return err
}

func ReleaseDatabaseLock(db *gorm.DB) error {
	err := db.Migrator().DropTable(&model.PidFile{})
	log.Infof("delete pid_file result:%v", err)
	return err
}

// CheckHubConfig fails when the database was initialized for another network
// or owner.
func CheckHubConfig(db *gorm.DB, cfg *common.Config) error {
	var c model.HubConfig
	if err := db.Take(&c).Error; err != nil {
		return xerrors.Errorf("read hub config: %w", err)
	}
	if c.Network != cfg.Network.Name || c.Owner != cfg.Owner {
		return xerrors.Errorf("database belongs to %s on %s", c.Owner, c.Network)
	}
	return nil
}

func (d *Dao) RecordSignature(ctx context.Context, ch *common.Channel, rec *common.SignatureRecord, pending bool) error {
	m := model.SignatureRecord{
		ChannelKey:     rec.Channel,
		Principal1:     ch.Principal1,
		Principal2:     ch.Principal2,
		Token:          string(ch.Token),
		Balance1:       rec.Balance1.Decimal(),
		Balance2:       rec.Balance2.Decimal(),
		Nonce:          rec.Nonce.Decimal(),
		Action:         uint8(rec.Action),
		Actor:          rec.Actor,
		HashedSecret:   rec.HashedSecret,
		Secret:         rec.Secret,
		OwnerSignature: rec.OwnerSignature,
		OtherSignature: rec.OtherSignature,
		DependsOn:      rec.DependsOn,
		Pending:        pending,
		CreatedAt:      rec.CreatedAt,
	}
	return d.db.WithContext(ctx).Create(&m).Error
}

func (d *Dao) PutDeadLetter(ctx context.Context, dl *common.DeadLetter) error {
	m := model.DeadLetterEvent{
		ID:       dl.ID,
		Kind:     dl.Kind,
		Payload:  dl.Payload,
		Reason:   dl.Reason,
		Attempts: dl.Attempts,
	}
	return d.db.WithContext(ctx).Create(&m).Error
}

func (d *Dao) PendingDeadLetters(ctx context.Context, limit int) ([]*common.DeadLetter, error) {
	var rows []model.DeadLetterEvent
	if err := d.db.WithContext(ctx).Where("resolved = ?", false).Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*common.DeadLetter, 0, len(rows))
	for _, r := range rows {
		out = append(out, &common.DeadLetter{
			ID:        r.ID,
			Kind:      r.Kind,
			Payload:   r.Payload,
			Reason:    r.Reason,
			Attempts:  r.Attempts,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (d *Dao) ResolveDeadLetter(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Model(&model.DeadLetterEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resolved":   true,
		"updated_at": time.Now(),
	}).Error
}

func (d *Dao) FailDeadLetter(ctx context.Context, id string, reason string) error {
	return d.db.WithContext(ctx).Model(&model.DeadLetterEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"reason":     reason,
		"updated_at": time.Now(),
	}).Error
}

// SubmitDispute stores the request once per (channel, transaction).
func (d *Dao) SubmitDispute(ctx context.Context, req *common.DisputeRequest) error {
	m := model.DisputeRequest{
		ChannelKey:     req.Channel,
		EventTx:        req.EventTx,
		EventKind:      req.EventKind,
		Token:          string(req.Token),
		Sender:         req.Sender,
		Balance1:       req.Balance1.Decimal(),
		Balance2:       req.Balance2.Decimal(),
		Nonce:          req.Nonce.Decimal(),
		Action:         uint8(req.Action),
		Actor:          req.Actor,
		HashedSecret:   req.HashedSecret,
		Secret:         req.Secret,
		OwnerSignature: req.OwnerSignature,
		OtherSignature: req.OtherSignature,
		CreatedAt:      req.CreatedAt,
	}
	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Debugw("dispute already queued", "channel", req.Channel, "tx", req.EventTx)
	}
	return nil
}
