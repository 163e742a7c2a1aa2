package model

// PidFile exists while a hub process holds the database.
type PidFile struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement:true"`
	Info string
}

func (PidFile) TableName() string {
	return "pid_file"
}
