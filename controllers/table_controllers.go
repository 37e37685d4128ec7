package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/middlewares"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

type TableController struct {
	Tables *services.TableService
	Floor  *services.FloorPublisher
}

func NewTableController(tables *services.TableService, floor *services.FloorPublisher) *TableController {
	return &TableController{Tables: tables, Floor: floor}
}

// GetAllTables -> menampilkan seluruh meja, opsional filter ?status=
func (tc *TableController) GetAllTables(c *gin.Context) {
	tables, err := tc.Tables.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

// GetTableByNumber -> detail satu meja
func (tc *TableController) GetTableByNumber(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}
	table, err := tc.Tables.Get(c.Request.Context(), number)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}

// UpdateTableStatus -> hanya cleaning / free; reserved dan occupied mengikuti reservasi
func (tc *TableController) UpdateTableStatus(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	userID, _, _ := middlewares.CurrentUser(c)
	table, err := tc.Tables.SetStatus(c.Request.Context(), number, body.Status, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.Floor.TablesChanged(c.Request.Context(), []int{table.Number})
	utils.RespondJSON(c, http.StatusOK, "Table status updated", table)
}

// MarkTableClean untuk Cleaner menandai meja siap digunakan
func (tc *TableController) MarkTableClean(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}

	userID, _, _ := middlewares.CurrentUser(c)
	table, err := tc.Tables.MarkClean(c.Request.Context(), number, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.Floor.TablesChanged(c.Request.Context(), []int{table.Number})
	utils.RespondJSON(c, http.StatusOK, "Table marked as clean", table)
}
