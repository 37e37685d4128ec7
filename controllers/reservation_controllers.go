package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/middlewares"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

type ReservationController struct {
	Reservations *services.ReservationService
	Floor        *services.FloorPublisher
}

func NewReservationController(reservations *services.ReservationService, floor *services.FloorPublisher) *ReservationController {
	return &ReservationController{Reservations: reservations, Floor: floor}
}

// CreateReservation -> public booking; a staff token makes it staff-initiated
func (rc *ReservationController) CreateReservation(c *gin.Context) {
	var req services.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if middlewares.IsStaff(c) {
		userID, _, _ := middlewares.CurrentUser(c)
		req.StaffInitiated = true
		req.CreatedBy = &userID
	}

	res, err := rc.Reservations.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	rc.Floor.TablesChanged(c.Request.Context(), res.Tables())
	utils.RespondJSON(c, http.StatusCreated, "Reservation confirmed", res)
}

// GetAvailability -> preview kandidat meja tanpa membuat reservasi
func (rc *ReservationController) GetAvailability(c *gin.Context) {
	partySize, err := strconv.Atoi(c.Query("party_size"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("party_size must be a number"))
		return
	}

	availability, err := rc.Reservations.Availability(c.Request.Context(), c.Query("date"), c.Query("time"), partySize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Availability", availability)
}

func (rc *ReservationController) GetReservationByCode(c *gin.Context) {
	res, err := rc.Reservations.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation detail", res)
}

// CancelReservationByCode -> pembatalan oleh customer
func (rc *ReservationController) CancelReservationByCode(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	res, err := rc.Reservations.CancelByCode(c.Request.Context(), c.Param("code"), reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	rc.Floor.ReservationChanged(c.Request.Context(), *res, nil)
	utils.RespondJSON(c, http.StatusOK, "Reservation cancelled", res)
}

func (rc *ReservationController) GetAllReservations(c *gin.Context) {
	list, err := rc.Reservations.List(c.Request.Context(), services.ReservationFilter{
		Date:   c.Query("date"),
		Status: c.Query("status"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of reservations", list)
}

func (rc *ReservationController) GetReservationByID(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := rc.Reservations.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation detail", res)
}

// UpdateReservation -> partial update oleh staff
func (rc *ReservationController) UpdateReservation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	before, err := rc.Reservations.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	res, err := rc.Reservations.Update(c.Request.Context(), id, req, middlewares.IsStaff(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	rc.Floor.ReservationChanged(c.Request.Context(), *res, before.Tables())
	utils.RespondJSON(c, http.StatusOK, "Reservation updated", res)
}

func (rc *ReservationController) CancelReservation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	rc.transition(c, "Reservation cancelled", func() (*models.Reservation, error) {
		return rc.Reservations.Cancel(c.Request.Context(), id, reason)
	})
}

func (rc *ReservationController) MarkNoShow(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rc.transition(c, "Reservation marked as no-show", func() (*models.Reservation, error) {
		return rc.Reservations.MarkNoShow(c.Request.Context(), id)
	})
}

func (rc *ReservationController) SeatReservation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rc.transition(c, "Guests seated", func() (*models.Reservation, error) {
		return rc.Reservations.Seat(c.Request.Context(), id)
	})
}

func (rc *ReservationController) CompleteReservation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rc.transition(c, "Reservation completed", func() (*models.Reservation, error) {
		return rc.Reservations.Complete(c.Request.Context(), id)
	})
}

func (rc *ReservationController) DeleteReservation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := rc.Reservations.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := rc.Reservations.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	rc.Floor.ReservationDeleted(c.Request.Context(), id, res.Tables())
	utils.RespondJSON(c, http.StatusOK, "Reservation deleted", gin.H{"id": id})
}

func (rc *ReservationController) transition(c *gin.Context, message string, apply func() (*models.Reservation, error)) {
	res, err := apply()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	rc.Floor.ReservationChanged(c.Request.Context(), *res, nil)
	utils.RespondJSON(c, http.StatusOK, message, res)
}

// bindReason reads an optional {"reason": "..."} body.
func bindReason(c *gin.Context) (string, bool) {
	var body struct {
		Reason string `json:"reason" binding:"max=255"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(c, http.StatusBadRequest, err)
		return "", false
	}
	return body.Reason, true
}
