package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/yeremiapane/restaurant-reservations/config"
	"github.com/yeremiapane/restaurant-reservations/database"
	"github.com/yeremiapane/restaurant-reservations/router"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

func main() {
	utils.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load config: %v", err)
	}
	utils.SetLevel(cfg.LogLevel)
	utils.SetJWTSecret(cfg.JWTSecret)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Floor plan
	plan := services.DefaultFloorPlan()
	if cfg.FloorPlanPath != "" {
		if plan, err = services.LoadFloorPlan(cfg.FloorPlanPath); err != nil {
			utils.ErrorLogger.Fatalf("Failed to load floor plan: %v", err)
		}
	}
	registry, err := services.NewTableRegistry(plan)
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid floor plan: %v", err)
	}
	if cfg.MaxPartySize < registry.MaxAutoPartySize() {
		utils.ErrorLogger.Fatalf("MAX_PARTY_SIZE (%d) is below the largest tier (%d)", cfg.MaxPartySize, registry.MaxAutoPartySize())
	}

	// Initialize DB
	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate: %v", err)
	}
	if err := database.SeedTables(db, registry); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed tables: %v", err)
	}
	if err := database.SeedAdmin(db, "Administrator", cfg.AdminEmail, cfg.AdminPassword); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed admin: %v", err)
	}

	clock := services.SystemClock{}

	// Blacklist, optionally cached in redis
	var cache services.BlacklistCache
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			utils.ErrorLogger.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		cache = services.NewRedisBlacklistCache(rdb, cfg.BlacklistCacheTTL)
		utils.InfoLogger.Println("Blacklist cache: redis")
	}
	blacklist := services.NewBlacklistService(db, clock, cache)

	// Notifications
	notifier := services.MultiNotifier{
		services.NewNotificationLog(db),
		services.FloorNotifier{},
	}
	if cfg.KafkaBroker != "" {
		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBroker),
			Topic:    cfg.KafkaTopic,
			Balancer: &kafka.Hash{},
		}
		defer writer.Close()
		notifier = append(notifier, services.NewKafkaNotifier(writer))
		utils.InfoLogger.Printf("Reservation events: kafka topic %s", cfg.KafkaTopic)
	}

	reservations := services.NewReservationService(db, registry, blacklist, notifier, clock, services.ReservationSettings{
		Duration:     cfg.ReservationDuration,
		MinLeadTime:  cfg.MinLeadTime,
		MaxPartySize: cfg.MaxPartySize,
		Location:     cfg.Location,
	})
	tables := services.NewTableService(db)
	floorPublisher := services.NewFloorPublisher(tables)

	completer := services.NewAutoCompleter(reservations, cfg.SweepInterval)
	completer.OnCompleted = func(id uint) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := reservations.Get(ctx, id)
		if err != nil {
			utils.ErrorLogger.Printf("auto-completion publish %d: %v", id, err)
			return
		}
		floorPublisher.ReservationChanged(ctx, *res, nil)
	}
	if err := completer.Start(); err != nil {
		utils.ErrorLogger.Fatalf("Failed to start auto-completion: %v", err)
	}

	r := router.SetupRouter(router.Deps{
		DB:           db,
		Reservations: reservations,
		Tables:       tables,
		Blacklist:    blacklist,
		Sweeper:      completer,
		CORSOrigin:   cfg.CORSOrigin,
	})
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		utils.ErrorLogger.Printf("Set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.InfoLogger.Println("Shutting down...")

	if err := completer.Stop(); err != nil {
		utils.ErrorLogger.Printf("Stop auto-completion: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Printf("HTTP shutdown: %v", err)
	}
	reservations.Wait()
	utils.InfoLogger.Println("Server stopped")
}
