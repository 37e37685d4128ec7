package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/floor"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

// Sweeper runs one auto-completion pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) services.SweepResult
}

type AdminController struct {
	Reservations *services.ReservationService
	Tables       *services.TableService
	Sweeper      Sweeper
}

func NewAdminController(reservations *services.ReservationService, tables *services.TableService, sweeper Sweeper) *AdminController {
	return &AdminController{Reservations: reservations, Tables: tables, Sweeper: sweeper}
}

// GetDashboardStats mengambil statistik untuk dashboard, opsional ?date=
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = ac.Reservations.Today()
	}

	summary, err := ac.Reservations.Summary(c.Request.Context(), date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	tables, err := ac.Tables.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	stats := gin.H{
		"reservations": summary,
		"table_stats":  tables,
	}
	floor.BroadcastDashboardUpdate(stats)
	utils.RespondJSON(c, http.StatusOK, "Dashboard stats retrieved successfully", stats)
}

// RunSweep menjalankan auto-completion sekarang juga
func (ac *AdminController) RunSweep(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result := ac.Sweeper.Sweep(ctx)
	utils.RespondJSON(c, http.StatusOK, "Sweep finished", result)
}
