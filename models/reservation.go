package models

import (
	"time"
)

// Status reservasi
const (
	ReservationStatusPending   = "pending"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusSeated    = "seated"
	ReservationStatusCompleted = "completed"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusNoShow    = "no-show"
)

// TerminalReservationStatuses never hold a table.
var TerminalReservationStatuses = []string{
	ReservationStatusCancelled,
	ReservationStatusNoShow,
	ReservationStatusCompleted,
}

type Reservation struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	Code               string       `gorm:"type:varchar(36);uniqueIndex;not null" json:"code"`
	CustomerName       string       `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail      string       `gorm:"type:varchar(255)" json:"customer_email,omitempty"`
	CustomerPhone      string       `gorm:"type:varchar(50);not null" json:"customer_phone"`
	Date               string       `gorm:"type:varchar(10);not null;index:idx_reservation_window" json:"date"`
	Time               string       `gorm:"type:varchar(5);not null" json:"time"`
	TimeInMinutes      int          `gorm:"not null;index:idx_reservation_window" json:"time_in_minutes"`
	Duration           int          `gorm:"not null;default:90" json:"duration"`
	EndTime            string       `gorm:"type:varchar(5);not null" json:"end_time"`
	EndTimeInMinutes   int          `gorm:"not null" json:"end_time_in_minutes"`
	PartySize          int          `gorm:"not null" json:"party_size"`
	TableNumber        int          `gorm:"not null;index" json:"table_number"`
	GroupTables        TableNumbers `gorm:"type:varchar(255)" json:"group_tables,omitempty"`
	IsGroupReservation bool         `gorm:"not null;default:false" json:"is_group_reservation"`
	Status             string       `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SpecialRequests    string       `gorm:"type:text" json:"special_requests,omitempty"`
	Accessibility      string       `gorm:"type:text" json:"accessibility,omitempty"`
	StaffInitiated     bool         `gorm:"not null;default:false" json:"staff_initiated"`
	CreatedBy          *uint        `json:"created_by,omitempty"`
	AutoCompleted      bool         `gorm:"not null;default:false" json:"auto_completed"`
	SeatedAt           *time.Time   `json:"seated_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	CancellationReason string       `gorm:"type:varchar(255)" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

// Tables returns every table the reservation holds, primary first.
func (r *Reservation) Tables() []int {
	if len(r.GroupTables) > 0 {
		out := make([]int, len(r.GroupTables))
		copy(out, r.GroupTables)
		return out
	}
	if r.TableNumber == 0 {
		return nil
	}
	return []int{r.TableNumber}
}

// IsTerminal reports whether the reservation can no longer hold tables.
func (r *Reservation) IsTerminal() bool {
	for _, s := range TerminalReservationStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}
