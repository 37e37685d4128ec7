package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory sqlite database with the floor plan seeded.
func newTestDB(t *testing.T, registry *TableRegistry) *gorm.DB {
	t.Helper()
	utils.InitLogger()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Table{},
		&models.Reservation{},
		&models.BlacklistEntry{},
		&models.Notification{},
		&models.CleaningLog{},
	))

	for _, spec := range registry.Tables() {
		require.NoError(t, db.Create(&models.Table{
			Number:         spec.Number,
			Capacity:       spec.Capacity,
			CombinableWith: models.TableNumbers(registry.CombinableWith(spec.Number)),
			Reservable:     !spec.WalkInOnly,
			Status:         models.TableStatusFree,
		}).Error)
	}
	return db
}

func defaultRegistry(t *testing.T) *TableRegistry {
	t.Helper()
	registry, err := NewTableRegistry(DefaultFloorPlan())
	require.NoError(t, err)
	return registry
}

// testClock is a settable Clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingNotifier collects every notification it receives.
type recordingNotifier struct {
	mu   sync.Mutex
	got  []models.Reservation
	fail bool
}

func (n *recordingNotifier) NotifyReservationCreated(_ context.Context, r models.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type stubGate struct {
	blocked bool
	err     error
}

func (g stubGate) IsBlacklisted(context.Context, string, string) (bool, error) {
	return g.blocked, g.err
}

type fixture struct {
	db       *gorm.DB
	registry *TableRegistry
	clock    *testClock
	notifier *recordingNotifier
	svc      *ReservationService
}

// 2025-07-15 10:00 UTC
var baseTime = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, gate BlacklistGate) *fixture {
	t.Helper()
	registry := defaultRegistry(t)
	db := newTestDB(t, registry)
	clock := newTestClock(baseTime)
	notifier := &recordingNotifier{}
	svc := NewReservationService(db, registry, gate, notifier, clock, ReservationSettings{
		Duration:     90 * time.Minute,
		MinLeadTime:  30 * time.Minute,
		MaxPartySize: 30,
		Location:     time.UTC,
	})
	t.Cleanup(svc.Wait)
	return &fixture{db: db, registry: registry, clock: clock, notifier: notifier, svc: svc}
}

func customerRequest(partySize int, date, hhmm string) CreateReservationRequest {
	return CreateReservationRequest{
		Name:      "Dewi Lestari",
		Email:     "dewi@example.com",
		Phone:     "+62 812 0000 1111",
		Date:      date,
		Time:      hhmm,
		PartySize: partySize,
	}
}

func staffRequest(partySize int, date, hhmm string, tables ...int) CreateReservationRequest {
	req := customerRequest(partySize, date, hhmm)
	req.Email = ""
	req.StaffInitiated = true
	req.Tables = tables
	return req
}

func (f *fixture) table(t *testing.T, number int) models.Table {
	t.Helper()
	var table models.Table
	require.NoError(t, f.db.Where("number = ?", number).First(&table).Error)
	return table
}

func (f *fixture) reload(t *testing.T, id uint) models.Reservation {
	t.Helper()
	var res models.Reservation
	require.NoError(t, f.db.First(&res, id).Error)
	return res
}
