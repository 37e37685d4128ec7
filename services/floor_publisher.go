package services

import (
	"context"

	"github.com/yeremiapane/restaurant-reservations/floor"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

// FloorPublisher pushes committed table and reservation changes to the
// floor screens. Failures are logged only.
type FloorPublisher struct {
	Tables *TableService
}

func NewFloorPublisher(tables *TableService) *FloorPublisher {
	return &FloorPublisher{Tables: tables}
}

// ReservationChanged publishes r plus every table it holds now or held before.
func (p *FloorPublisher) ReservationChanged(ctx context.Context, r models.Reservation, previous []int) {
	floor.BroadcastReservationUpdate(r)
	p.TablesChanged(ctx, union(previous, r.Tables()))
}

func (p *FloorPublisher) ReservationDeleted(ctx context.Context, id uint, tables []int) {
	floor.BroadcastReservationDelete(id)
	p.TablesChanged(ctx, tables)
}

// TablesChanged re-reads the given tables and the dashboard counters.
func (p *FloorPublisher) TablesChanged(ctx context.Context, numbers []int) {
	if p == nil || p.Tables == nil || floor.ClientCount() == 0 {
		return
	}
	for _, n := range numbers {
		table, err := p.Tables.Get(ctx, n)
		if err != nil {
			utils.ErrorLogger.Printf("floor publish: table %d: %v", n, err)
			continue
		}
		floor.BroadcastTableUpdate(*table)
	}

	stats, err := p.Tables.Stats(ctx)
	if err != nil {
		utils.ErrorLogger.Printf("floor publish: stats: %v", err)
		return
	}
	floor.BroadcastDashboardUpdate(stats)
}
