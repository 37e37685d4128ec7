package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/controllers"
	"github.com/yeremiapane/restaurant-reservations/middlewares"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/services"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	DB           *gorm.DB
	Reservations *services.ReservationService
	Tables       *services.TableService
	Blacklist    *services.BlacklistService
	Sweeper      controllers.Sweeper
	CORSOrigin   string
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(deps.CORSOrigin))

	floorPublisher := services.NewFloorPublisher(deps.Tables)

	userController := controllers.NewUserController(deps.DB)
	reservationController := controllers.NewReservationController(deps.Reservations, floorPublisher)
	tableController := controllers.NewTableController(deps.Tables, floorPublisher)
	cleaningLogController := controllers.NewCleaningLogController(deps.Tables)
	blacklistController := controllers.NewBlacklistController(deps.Blacklist)
	notificationController := controllers.NewNotificationController(deps.DB)
	adminController := controllers.NewAdminController(deps.Reservations, deps.Tables, deps.Sweeper)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/login", middlewares.NewStrictRateLimiter(), userController.Login)

	// Public reservation endpoints
	publicLimiter := middlewares.NewRateLimiter(60, time.Minute)
	public := r.Group("/reservations", publicLimiter.RateLimit())
	{
		public.POST("", middlewares.OptionalAuth(), reservationController.CreateReservation)
		public.GET("/availability", reservationController.GetAvailability)
		public.GET("/code/:code", reservationController.GetReservationByCode)
		public.POST("/code/:code/cancel", reservationController.CancelReservationByCode)
	}

	// Floor screens
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), controllers.FloorHandler)

	admin := r.Group("/admin", middlewares.AuthMiddleware())
	{
		admin.GET("/profile", userController.GetProfile)

		reservations := admin.Group("/reservations", middlewares.RequireCapability(models.CapReservations))
		{
			reservations.GET("", reservationController.GetAllReservations)
			reservations.POST("", reservationController.CreateReservation)
			reservations.GET("/:id", reservationController.GetReservationByID)
			reservations.PATCH("/:id", reservationController.UpdateReservation)
			reservations.DELETE("/:id", reservationController.DeleteReservation)
			reservations.POST("/:id/cancel", reservationController.CancelReservation)
			reservations.POST("/:id/no-show", reservationController.MarkNoShow)
			reservations.POST("/:id/seat", reservationController.SeatReservation)
			reservations.POST("/:id/complete", reservationController.CompleteReservation)
		}

		tables := admin.Group("/tables")
		{
			tables.GET("", middlewares.RequireCapability(models.CapCleaning), tableController.GetAllTables)
			tables.GET("/cleaning-logs", middlewares.RequireCapability(models.CapCleaning), cleaningLogController.GetAllCleaningLogs)
			tables.GET("/:number", middlewares.RequireCapability(models.CapCleaning), tableController.GetTableByNumber)
			tables.PATCH("/:number", middlewares.RequireCapability(models.CapTables), tableController.UpdateTableStatus)
			tables.PATCH("/:number/clean", middlewares.RequireCapability(models.CapCleaning), tableController.MarkTableClean)
		}

		blacklist := admin.Group("/blacklist", middlewares.RequireCapability(models.CapBlacklist))
		{
			blacklist.GET("", blacklistController.GetBlacklist)
			blacklist.POST("", blacklistController.CreateBlacklistEntry)
			blacklist.DELETE("/:id", blacklistController.DeleteBlacklistEntry)
		}

		notifications := admin.Group("/notifications", middlewares.RequireCapability(models.CapReservations))
		{
			notifications.GET("", notificationController.GetAllNotifications)
			notifications.GET("/:id", notificationController.GetNotificationByID)
			notifications.DELETE("/:id", notificationController.DeleteNotification)
		}

		admin.GET("/dashboard", middlewares.RequireCapability(models.CapTables), adminController.GetDashboardStats)
		admin.POST("/sweep", middlewares.RequireCapability(models.CapSweep), adminController.RunSweep)

		users := admin.Group("/users", middlewares.RequireCapability(models.CapUsers))
		{
			users.GET("", userController.GetAllUsers)
			users.POST("", userController.Register)
		}
	}

	return r
}
