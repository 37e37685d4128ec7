package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/middlewares"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

type BlacklistController struct {
	Blacklist *services.BlacklistService
}

func NewBlacklistController(blacklist *services.BlacklistService) *BlacklistController {
	return &BlacklistController{Blacklist: blacklist}
}

// GetBlacklist -> ?all=true juga menampilkan entry yang sudah tidak aktif
func (bc *BlacklistController) GetBlacklist(c *gin.Context) {
	entries, err := bc.Blacklist.List(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Blacklist", entries)
}

func (bc *BlacklistController) CreateBlacklistEntry(c *gin.Context) {
	var body struct {
		Email     string     `json:"email" binding:"omitempty,email"`
		Phone     string     `json:"phone"`
		Reason    string     `json:"reason" binding:"required,max=255"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	entry := models.BlacklistEntry{
		Email:     body.Email,
		Phone:     body.Phone,
		Reason:    body.Reason,
		ExpiresAt: body.ExpiresAt,
	}
	if userID, _, ok := middlewares.CurrentUser(c); ok {
		entry.CreatedBy = &userID
	}

	if err := bc.Blacklist.Add(c.Request.Context(), &entry); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("Blacklist entry %d added", entry.ID)
	utils.RespondJSON(c, http.StatusCreated, "Blacklist entry created", entry)
}

func (bc *BlacklistController) DeleteBlacklistEntry(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := bc.Blacklist.Deactivate(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Blacklist entry lifted", gin.H{"id": id})
}
