package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:        http.StatusBadRequest,
	services.KindLeadTime:          http.StatusUnprocessableEntity,
	services.KindBlacklisted:       http.StatusForbidden,
	services.KindManualContact:     http.StatusUnprocessableEntity,
	services.KindNoAvailability:    http.StatusConflict,
	services.KindNotFound:          http.StatusNotFound,
	services.KindConcurrent:        http.StatusConflict,
	services.KindInvalidTransition: http.StatusConflict,
}

// respondServiceError maps a service error onto the JSON envelope; the error
// kind goes into data so clients can branch on it.
func respondServiceError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	code, ok := kindStatus[kind]
	if !ok {
		utils.ErrorLogger.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
		utils.RespondError(c, http.StatusInternalServerError, errors.New("internal server error"))
		return
	}
	utils.RespondErrorData(c, code, err, gin.H{"error": kind})
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return uint(n), true
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n <= 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return n, true
}
