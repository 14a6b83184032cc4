package model

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountId   uuid.UUID `gorm:"type:uuid;not null;index"`
	Type        string    `gorm:"type:varchar(20);not null"`
	DisplayName string    `gorm:"type:varchar(255);not null"`
	Phone       *string   `gorm:"type:varchar(50)"`
	Email       *string   `gorm:"type:varchar(255)"`
	Website     *string   `gorm:"type:varchar(255)"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Profile) TableName() string {
	return "profiles"
}
