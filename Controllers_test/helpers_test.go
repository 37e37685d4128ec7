package Controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/restaurant-reservations/database"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/router"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

const (
	testDate      = "2025-07-15"
	adminEmail    = "admin@example.com"
	adminPassword = "supersecret"
)

// 2025-07-15 10:00 UTC
var testNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	DB           *gorm.DB
	Router       *gin.Engine
	Reservations *services.ReservationService
	Clock        *services.FixedClock
}

// setupTestDB menggunakan SQLite in-memory, satu database per test
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// setupServer wires the full router the way main does, with a fixed clock.
func setupServer(t *testing.T) *testServer {
	t.Helper()
	utils.InitLogger()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	registry, err := services.NewTableRegistry(services.DefaultFloorPlan())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedTables(db, registry))
	require.NoError(t, database.SeedAdmin(db, "Administrator", adminEmail, adminPassword))

	clock := &services.FixedClock{T: testNow}
	blacklist := services.NewBlacklistService(db, clock, nil)
	reservations := services.NewReservationService(db, registry, blacklist,
		services.MultiNotifier{services.NewNotificationLog(db)}, clock,
		services.ReservationSettings{Location: time.UTC})
	t.Cleanup(reservations.Wait)
	tables := services.NewTableService(db)

	r := router.SetupRouter(router.Deps{
		DB:           db,
		Reservations: reservations,
		Tables:       tables,
		Blacklist:    blacklist,
		Sweeper:      services.NewAutoCompleter(reservations, time.Minute),
	})
	return &testServer{DB: db, Router: r, Reservations: reservations, Clock: clock}
}

// tokenFor creates a user with the given role and returns a bearer token.
func (s *testServer) tokenFor(t *testing.T, role string) string {
	t.Helper()
	user := models.User{
		Name:     role + " user",
		Email:    role + "-" + uuid.NewString()[:8] + "@example.com",
		Password: "not-used",
		Role:     role,
	}
	require.NoError(t, s.DB.Create(&user).Error)
	token, err := utils.GenerateToken(user.ID, role)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errorKind reads the kind the service error mapper puts in data.
func (r apiResponse) errorKind(t *testing.T) string {
	t.Helper()
	var data struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	return data.Error
}

func (r apiResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func bookingPayload(partySize int, date, hhmm string) map[string]interface{} {
	return map[string]interface{}{
		"name":       "Dewi Lestari",
		"email":      "dewi@example.com",
		"phone":      "+62 812 0000 1111",
		"date":       date,
		"time":       hhmm,
		"party_size": partySize,
	}
}

func (s *testServer) table(t *testing.T, number int) models.Table {
	t.Helper()
	var table models.Table
	require.NoError(t, s.DB.Where("number = ?", number).First(&table).Error)
	return table
}
