package model

import "time"

type DeadLetterEvent struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Kind     string `gorm:"index;type:varchar(32)"`
	Payload  []byte `gorm:"type:blob"`
	Reason   string `gorm:"type:text"`
	Attempts int
	Resolved bool `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeadLetterEvent) TableName() string {
	return "dead_letter_event"
}
