package models

import "time"

type BlacklistEntry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Email     string     `gorm:"type:varchar(255);index" json:"email,omitempty"`
	Phone     string     `gorm:"type:varchar(50);index" json:"phone,omitempty"`
	Reason    string     `gorm:"type:text" json:"reason"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedBy *uint      `json:"created_by,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

// IsActiveAt reports whether the entry restricts bookings at the given time.
func (b *BlacklistEntry) IsActiveAt(now time.Time) bool {
	return b.Active && (b.ExpiresAt == nil || b.ExpiresAt.After(now))
}
