package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

// SweepResult summarises one auto-completion tick.
type SweepResult struct {
	Candidates int    `json:"candidates"`
	Completed  []uint `json:"completed"`
	Failed     []uint `json:"failed"`
}

// AutoCompleter periodically completes reservations whose window has elapsed
// and releases their tables.
type AutoCompleter struct {
	reservations *ReservationService
	clock        Clock
	location     *time.Location
	interval     time.Duration

	// OnCompleted is called after each reservation the sweep completes.
	OnCompleted func(id uint)

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

func NewAutoCompleter(reservations *ReservationService, interval time.Duration) *AutoCompleter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AutoCompleter{
		reservations: reservations,
		clock:        reservations.clock,
		location:     reservations.settings.Location,
		interval:     interval,
	}
}

// Start schedules the sweep. Calling Start on a running completer is a no-op.
func (a *AutoCompleter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil {
		return nil
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(a.location))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(a.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.interval)
			defer cancel()
			a.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reservation-auto-completion"),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule auto-completion: %w", err)
	}

	s.Start()
	a.scheduler = s
	utils.InfoLogger.Infof("Auto-completion started, interval %s", a.interval)
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep. Safe to call twice.
func (a *AutoCompleter) Stop() error {
	a.mu.Lock()
	s := a.scheduler
	a.scheduler = nil
	a.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("stop auto-completion: %w", err)
	}
	utils.InfoLogger.Info("Auto-completion stopped")
	return nil
}

// Sweep completes every confirmed or seated reservation whose end time has
// passed. Reservations from earlier days that were never closed are included.
// End times are minutes on the booking date, so a sitting that runs past
// midnight is measured against yesterday's clock plus a full day.
// One failing record is logged and skipped.
func (a *AutoCompleter) Sweep(ctx context.Context) SweepResult {
	now := a.clock.Now().In(a.location)
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	nowMinutes := minutesSinceMidnight(now)

	var due []models.Reservation
	err := a.reservations.db.WithContext(ctx).
		Select("id", "date", "time", "end_time_in_minutes", "table_number", "is_group_reservation", "group_tables").
		Where("status IN ?", []string{models.ReservationStatusConfirmed, models.ReservationStatusSeated}).
		Where("auto_completed = ?", false).
		Where("date < ? OR (date = ? AND end_time_in_minutes <= ?) OR (date = ? AND end_time_in_minutes <= ?)",
			yesterday, yesterday, nowMinutes+minutesPerDay, today, nowMinutes).
		Order("date ASC, end_time_in_minutes ASC").
		Find(&due).Error
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("auto-completion: failed to load due reservations")
		return SweepResult{}
	}

	result := SweepResult{Candidates: len(due), Completed: []uint{}, Failed: []uint{}}
	for i := range due {
		r := &due[i]
		completed, err := a.reservations.autoComplete(ctx, r, now)
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"reservation_id": r.ID,
				"date":           r.Date,
			}).WithError(err).Error("auto-completion failed")
			result.Failed = append(result.Failed, r.ID)
			continue
		}
		if !completed {
			continue
		}
		result.Completed = append(result.Completed, r.ID)
		if a.OnCompleted != nil {
			a.OnCompleted(r.ID)
		}
	}

	if len(result.Completed) > 0 || len(result.Failed) > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{
			"completed": len(result.Completed),
			"failed":    len(result.Failed),
		}).Info("auto-completion sweep finished")
	}
	return result
}
