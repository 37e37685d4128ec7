package models

import "time"

// Status meja
const (
	TableStatusFree     = "free"
	TableStatusReserved = "reserved"
	TableStatusOccupied = "occupied"
	TableStatusCleaning = "cleaning"
)

type Table struct {
	ID                   uint         `gorm:"primaryKey" json:"id"`
	Number               int          `gorm:"uniqueIndex;not null" json:"number"`
	Capacity             int          `gorm:"not null" json:"capacity"`
	CombinableWith       TableNumbers `gorm:"type:varchar(255)" json:"combinable_with"`
	Reservable           bool         `gorm:"not null;default:true" json:"reservable"`
	Status               string       `gorm:"type:varchar(20);not null;default:'free'" json:"status"`
	CurrentReservationID *uint        `gorm:"index" json:"current_reservation_id,omitempty"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

// IsHeld reports whether the table is linked to a live reservation.
func (t *Table) IsHeld() bool {
	return t.CurrentReservationID != nil &&
		(t.Status == TableStatusReserved || t.Status == TableStatusOccupied)
}
