package model

// HubConfig pins a database to one owner and network.
type HubConfig struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement:true"`
	Network  string `gorm:"type:varchar(16)"`
	Owner    string `gorm:"type:varchar(255)"`
	Contract string `gorm:"type:varchar(255)"`
}

func (HubConfig) TableName() string {
	return "hub_config"
}
