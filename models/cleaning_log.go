package models

import (
	"time"
)

type CleaningLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CleanerID   uint      `gorm:"not null" json:"cleaner_id"`
	TableNumber int       `gorm:"not null;index" json:"table_number"`
	Status      string    `gorm:"type:varchar(15);not null;default:'done'" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}
