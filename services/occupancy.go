package services

import (
	"context"
	"fmt"

	"github.com/yeremiapane/restaurant-reservations/models"
	"gorm.io/gorm"
)

// OccupancyIndex answers which tables are committed for a date and window.
type OccupancyIndex struct{}

// OccupiedTables returns the tables referenced by non-terminal reservations on
// date whose window overlaps [start, end). excludeID (0 for none) skips one
// reservation so an update does not collide with itself. db may be a transaction.
func (OccupancyIndex) OccupiedTables(ctx context.Context, db *gorm.DB, date string, start, end int, excludeID uint) (map[int]bool, error) {
	var rows []models.Reservation
	q := db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("id", "table_number", "group_tables").
		Where("date = ?", date).
		Where("status NOT IN ?", models.TerminalReservationStatuses).
		Where("time_in_minutes < ? AND end_time_in_minutes > ?", end, start)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query occupancy for %s: %w", date, err)
	}

	occupied := make(map[int]bool)
	for i := range rows {
		for _, n := range rows[i].Tables() {
			occupied[n] = true
		}
	}
	return occupied, nil
}
