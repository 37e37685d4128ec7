package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

type CleaningLogController struct {
	Tables *services.TableService
}

func NewCleaningLogController(tables *services.TableService) *CleaningLogController {
	return &CleaningLogController{Tables: tables}
}

// GetAllCleaningLogs, opsional ?table=<number>
func (clc *CleaningLogController) GetAllCleaningLogs(c *gin.Context) {
	number := 0
	if raw := c.Query("table"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid table"))
			return
		}
		number = n
	}

	logs, err := clc.Tables.CleaningLogs(c.Request.Context(), number)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All cleaning logs", logs)
}
