package models

import (
	"strings"
	"time"
)

// Role user
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleHost    = "host"
	RoleCleaner = "cleaner"
)

// Capability is what a role is allowed to do on the back office.
type Capability string

const (
	CapReservations Capability = "reservations"
	CapTables       Capability = "tables"
	CapCleaning     Capability = "cleaning"
	CapBlacklist    Capability = "blacklist"
	CapUsers        Capability = "users"
	CapSweep        Capability = "sweep"
)

var roleCapabilities = map[string][]Capability{
	RoleAdmin:   {CapReservations, CapTables, CapCleaning, CapBlacklist, CapUsers, CapSweep},
	RoleManager: {CapReservations, CapTables, CapCleaning, CapBlacklist},
	RoleStaff:   {CapReservations, CapTables, CapCleaning},
	RoleHost:    {CapReservations, CapTables},
	RoleCleaner: {CapCleaning},
}

// Can reports whether role holds capability.
func Can(role string, capability Capability) bool {
	for _, c := range roleCapabilities[strings.ToLower(role)] {
		if c == capability {
			return true
		}
	}
	return false
}

// IsKnownRole is used when creating accounts.
func IsKnownRole(role string) bool {
	_, ok := roleCapabilities[strings.ToLower(role)]
	return ok
}

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255); not null" json:"name"`
	Email     string    `gorm:"type:varchar(255); unique;not null" json:"email"`
	Password  string    `gorm:"type:varchar(255); not null" json:"-"`
	Role      string    `gorm:"type:varchar(255); not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
