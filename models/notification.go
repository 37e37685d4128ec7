package models

import (
	"time"
)

const (
	NotificationReservationCreated = "reservation_created"
)

type Notification struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Kind          string    `gorm:"type:varchar(50);not null;index" json:"kind"`
	ReservationID *uint     `gorm:"index" json:"reservation_id,omitempty"`
	Recipient     string    `gorm:"type:varchar(255)" json:"recipient,omitempty"`
	Title         *string   `gorm:"type:varchar(100)" json:"title,omitempty"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}
