package model

import "github.com/shopspring/decimal"

// SignatureRecord is the append-only history of countersigned states.
type SignatureRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:true"`
	ChannelKey string `gorm:"index;type:varchar(512)"`
	Principal1 string `gorm:"type:varchar(255)"`
	Principal2 string `gorm:"type:varchar(255)"`
	Token      string `gorm:"type:varchar(255)"`

	Balance1 decimal.Decimal `gorm:"type:DECIMAL(39,0)"`
	Balance2 decimal.Decimal `gorm:"type:DECIMAL(39,0)"`
	Nonce    decimal.Decimal `gorm:"index;type:DECIMAL(39,0)"`
	Action   uint8
	Actor    string `gorm:"type:varchar(255)"`

	HashedSecret   string `gorm:"type:varchar(64)"`
	Secret         string `gorm:"type:varchar(64)"`
	OwnerSignature string `gorm:"type:varchar(130)"`
	OtherSignature string `gorm:"type:varchar(130)"`
	DependsOn      string `gorm:"type:varchar(512)"`
	Pending        bool
	CreatedAt      int64 `gorm:"index"` // unix milliseconds
}

func (SignatureRecord) TableName() string {
	return "signature_record"
}
