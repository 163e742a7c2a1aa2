package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisputeRequest is picked up by the external submitter that broadcasts the
// dispute-closure call.
type DisputeRequest struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:true"`
	ChannelKey string `gorm:"uniqueIndex:idx_dispute_event;type:varchar(512)"`
	EventTx    string `gorm:"uniqueIndex:idx_dispute_event;type:varchar(66)"`
	EventKind  string `gorm:"type:varchar(32)"`
	Token      string `gorm:"type:varchar(255)"`
	Sender     string `gorm:"type:varchar(255)"`

	Balance1 decimal.Decimal `gorm:"type:DECIMAL(39,0)"`
	Balance2 decimal.Decimal `gorm:"type:DECIMAL(39,0)"`
	Nonce    decimal.Decimal `gorm:"type:DECIMAL(39,0)"`
	Action   uint8
	Actor    string `gorm:"type:varchar(255)"`

	HashedSecret   string `gorm:"type:varchar(64)"`
	Secret         string `gorm:"type:varchar(64)"`
	OwnerSignature string `gorm:"type:varchar(130)"`
	OtherSignature string `gorm:"type:varchar(130)"`
	Submitted      bool   `gorm:"index"`

	CreatedAt time.Time
}

func (DisputeRequest) TableName() string {
	return "dispute_request"
}
