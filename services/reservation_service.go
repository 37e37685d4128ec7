package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReservationSettings are the booking rules read from config.
type ReservationSettings struct {
	Duration     time.Duration
	MinLeadTime  time.Duration
	MaxPartySize int
	Location     *time.Location
}

func (s ReservationSettings) withDefaults() ReservationSettings {
	if s.Duration <= 0 {
		s.Duration = 90 * time.Minute
	}
	if s.MinLeadTime <= 0 {
		s.MinLeadTime = 30 * time.Minute
	}
	if s.MaxPartySize <= 0 {
		s.MaxPartySize = 30
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	return s
}

// CreateReservationRequest is an admission request from a customer or staff member.
type CreateReservationRequest struct {
	Name            string          `json:"name" validate:"required,max=255"`
	Email           string          `json:"email" validate:"omitempty,email,max=255"`
	Phone           string          `json:"phone" validate:"required,max=50"`
	Date            string          `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string          `json:"time" validate:"required,datetime=15:04"`
	PartySize       int             `json:"party_size" validate:"required,min=1"`
	Tables          []int           `json:"tables,omitempty" validate:"omitempty,dive,min=1"`
	SpecialRequests string          `json:"special_requests,omitempty" validate:"max=2000"`
	Accessibility   json.RawMessage `json:"accessibility,omitempty"`

	StaffInitiated bool  `json:"-"`
	CreatedBy      *uint `json:"-"`
}

// UpdateReservationRequest is a partial update; nil fields are left alone.
type UpdateReservationRequest struct {
	Name            *string         `json:"name" validate:"omitempty,max=255"`
	Email           *string         `json:"email" validate:"omitempty,email,max=255"`
	Phone           *string         `json:"phone" validate:"omitempty,max=50"`
	Date            *string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            *string         `json:"time" validate:"omitempty,datetime=15:04"`
	PartySize       *int            `json:"party_size" validate:"omitempty,min=1"`
	Tables          []int           `json:"tables,omitempty" validate:"omitempty,dive,min=1"`
	SpecialRequests *string         `json:"special_requests" validate:"omitempty,max=2000"`
	Accessibility   json.RawMessage `json:"accessibility,omitempty"`
}

// ReservationFilter narrows List.
type ReservationFilter struct {
	Date   string
	Status string
}

// ReservationService owns reservation state and the table linkage that follows it.
type ReservationService struct {
	db        *gorm.DB
	registry  *TableRegistry
	engine    *TableAssignmentEngine
	occupancy OccupancyIndex
	gate      BlacklistGate
	notifier  Notifier
	clock     Clock
	settings  ReservationSettings
	validate  *validator.Validate
	locks     *keyedMutex
	notifyWG  sync.WaitGroup
}

func NewReservationService(db *gorm.DB, registry *TableRegistry, gate BlacklistGate, notifier Notifier, clock Clock, settings ReservationSettings) *ReservationService {
	settings = settings.withDefaults()
	if clock == nil {
		clock = SystemClock{}
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &ReservationService{
		db:       db,
		registry: registry,
		engine:   NewTableAssignmentEngine(registry, int(settings.Duration/time.Minute)),
		gate:     gate,
		notifier: notifier,
		clock:    clock,
		settings: settings,
		validate: v,
		locks:    newKeyedMutex(),
	}
}

// Wait blocks until in-flight notifications finish.
func (s *ReservationService) Wait() {
	s.notifyWG.Wait()
}

// Create admits a reservation: validate, lead time, blacklist, assign, claim.
func (s *ReservationService) Create(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, newError(KindValidation, "name is required")
	}
	if !req.StaffInitiated && req.Email == "" {
		return nil, newError(KindValidation, "email is required")
	}
	if len(req.Tables) > 0 && !req.StaffInitiated {
		return nil, newError(KindValidation, "only staff can choose tables")
	}
	if len(req.Tables) == 0 && req.PartySize > s.registry.MaxAutoPartySize() {
		return nil, ErrManualContact
	}
	if len(req.Tables) > 0 && req.PartySize > s.settings.MaxPartySize {
		return nil, newError(KindValidation, "party size must be at most %d", s.settings.MaxPartySize)
	}
	accessibility, err := normalizeAccessibility(req.Accessibility)
	if err != nil {
		return nil, err
	}

	start, err := parseClock(req.Time)
	if err != nil {
		return nil, newError(KindValidation, "invalid time %q", req.Time)
	}
	req.Time = formatClock(start)
	if !req.StaffInitiated {
		if err := s.checkLeadTime(req.Date, req.Time); err != nil {
			return nil, err
		}
	}
	if s.blacklisted(ctx, req.Email, req.Phone) {
		return nil, ErrBlacklisted
	}

	_, end := s.engine.Window(start)
	res := &models.Reservation{
		Code:             uuid.NewString(),
		CustomerName:     req.Name,
		CustomerEmail:    req.Email,
		CustomerPhone:    req.Phone,
		Date:             req.Date,
		Time:             req.Time,
		TimeInMinutes:    start,
		Duration:         end - start,
		EndTime:          formatClock(end),
		EndTimeInMinutes: end,
		PartySize:        req.PartySize,
		Status:           models.ReservationStatusConfirmed,
		SpecialRequests:  req.SpecialRequests,
		Accessibility:    accessibility,
		StaffInitiated:   req.StaffInitiated,
		CreatedBy:        req.CreatedBy,
	}

	candidates := req.Tables
	if len(candidates) == 0 {
		candidates = s.registry.CandidateTables(req.PartySize)
	}
	unlock := s.locks.Lock(lockKeys([]string{req.Date}, candidates)...)
	defer unlock()

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		assignment, err := s.assign(ctx, tx, req.Date, start, req.PartySize, req.Tables, 0)
		if err != nil {
			return err
		}
		if err := s.claim(ctx, tx, assignment.Tables, req.Date, start, end, 0); err != nil {
			return err
		}
		applyAssignment(res, assignment)
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return s.syncTables(ctx, tx, assignment.Tables)
	})
	if err != nil {
		return nil, err
	}

	logReservation(res).Info("reservation created")
	s.dispatchCreated(*res)
	return res, nil
}

// Update applies a partial change. Window or party changes re-run assignment
// for the new slot; on any failure the stored reservation is unchanged.
func (s *ReservationService) Update(ctx context.Context, id uint, req UpdateReservationRequest, staff bool) (*models.Reservation, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if len(req.Tables) > 0 && !staff {
		return nil, newError(KindValidation, "only staff can choose tables")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, newError(KindValidation, "name cannot be empty")
	}
	if req.Phone != nil && strings.TrimSpace(*req.Phone) == "" {
		return nil, newError(KindValidation, "phone cannot be empty")
	}
	if req.Time != nil {
		start, err := parseClock(*req.Time)
		if err != nil {
			return nil, newError(KindValidation, "invalid time %q", *req.Time)
		}
		hhmm := formatClock(start)
		req.Time = &hhmm
	}
	if !staff && req.Email != nil && NormalizeEmail(*req.Email) == "" {
		return nil, newError(KindValidation, "email is required")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	newDate := current.Date
	if req.Date != nil {
		newDate = *req.Date
	}
	if !staff && (req.Email != nil || req.Phone != nil) {
		email, phone := current.CustomerEmail, current.CustomerPhone
		if req.Email != nil {
			email = NormalizeEmail(*req.Email)
		}
		if req.Phone != nil {
			phone = strings.TrimSpace(*req.Phone)
		}
		if s.blacklisted(ctx, email, phone) {
			return nil, ErrBlacklisted
		}
	}

	candidates := req.Tables
	if len(candidates) == 0 {
		partySize := current.PartySize
		if req.PartySize != nil {
			partySize = *req.PartySize
		}
		candidates = s.registry.CandidateTables(partySize)
	}
	unlock := s.locks.Lock(lockKeys([]string{current.Date, newDate}, union(current.Tables(), candidates))...)
	defer unlock()

	var updated models.Reservation
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		res, err := s.lockHeld(ctx, tx, current)
		if err != nil {
			return err
		}
		if res.IsTerminal() {
			return newError(KindInvalidTransition, "reservation is %s and cannot be changed", res.Status)
		}
		oldTables := res.Tables()

		windowChanged := false
		if req.Date != nil && *req.Date != res.Date {
			res.Date = *req.Date
			windowChanged = true
		}
		if req.Time != nil && *req.Time != res.Time {
			res.Time = *req.Time
			windowChanged = true
		}
		partyChanged := req.PartySize != nil && *req.PartySize != res.PartySize
		if partyChanged {
			res.PartySize = *req.PartySize
		}
		if len(req.Tables) > 0 && res.PartySize > s.settings.MaxPartySize {
			return newError(KindValidation, "party size must be at most %d", s.settings.MaxPartySize)
		}

		if windowChanged && !staff {
			if err := s.checkLeadTime(res.Date, res.Time); err != nil {
				return err
			}
		}
		if req.Name != nil {
			res.CustomerName = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			res.CustomerEmail = NormalizeEmail(*req.Email)
		}
		if req.Phone != nil {
			res.CustomerPhone = strings.TrimSpace(*req.Phone)
		}
		if req.SpecialRequests != nil {
			res.SpecialRequests = *req.SpecialRequests
		}
		if len(req.Accessibility) > 0 {
			accessibility, err := normalizeAccessibility(req.Accessibility)
			if err != nil {
				return err
			}
			res.Accessibility = accessibility
		}

		newTables := oldTables
		if windowChanged || partyChanged || len(req.Tables) > 0 {
			start, err := parseClock(res.Time)
			if err != nil {
				return newError(KindValidation, "invalid time %q", res.Time)
			}
			_, end := s.engine.Window(start)
			assignment, err := s.assign(ctx, tx, res.Date, start, res.PartySize, req.Tables, res.ID)
			if err != nil {
				return err
			}
			if err := s.claim(ctx, tx, assignment.Tables, res.Date, start, end, res.ID); err != nil {
				return err
			}
			res.TimeInMinutes = start
			res.Duration = end - start
			res.EndTime = formatClock(end)
			res.EndTimeInMinutes = end
			applyAssignment(res, assignment)
			newTables = assignment.Tables
		}

		if err := tx.Save(res).Error; err != nil {
			return fmt.Errorf("save reservation %d: %w", res.ID, err)
		}
		if err := s.syncTables(ctx, tx, union(oldTables, newTables)); err != nil {
			return err
		}
		updated = *res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logReservation(&updated).Info("reservation updated")
	return &updated, nil
}

// Cancel releases held tables. Cancelling a terminal reservation is a no-op.
func (s *ReservationService) Cancel(ctx context.Context, id uint, reason string) (*models.Reservation, error) {
	return s.transition(ctx, id, "cancelled", func(r *models.Reservation, now time.Time) (bool, error) {
		if r.IsTerminal() {
			return false, nil
		}
		r.Status = models.ReservationStatusCancelled
		r.CancelledAt = &now
		r.CancellationReason = strings.TrimSpace(reason)
		return true, nil
	})
}

// CancelByCode is the customer-facing cancel keyed by confirmation code.
func (s *ReservationService) CancelByCode(ctx context.Context, code, reason string) (*models.Reservation, error) {
	res, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.Cancel(ctx, res.ID, reason)
}

// MarkNoShow releases held tables. Already terminal reservations are left alone.
func (s *ReservationService) MarkNoShow(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.transition(ctx, id, "marked no-show", func(r *models.Reservation, _ time.Time) (bool, error) {
		if r.IsTerminal() {
			return false, nil
		}
		if r.Status == models.ReservationStatusPending {
			return false, newError(KindInvalidTransition, "pending reservation cannot be marked no-show")
		}
		r.Status = models.ReservationStatusNoShow
		return true, nil
	})
}

// Seat marks the party as arrived; its tables become occupied.
func (s *ReservationService) Seat(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.transition(ctx, id, "seated", func(r *models.Reservation, now time.Time) (bool, error) {
		switch r.Status {
		case models.ReservationStatusSeated:
			return false, nil
		case models.ReservationStatusConfirmed:
			r.Status = models.ReservationStatusSeated
			r.SeatedAt = &now
			return true, nil
		default:
			return false, newError(KindInvalidTransition, "%s reservation cannot be seated", r.Status)
		}
	})
}

// Complete is the manual counterpart of the auto-completion sweep.
func (s *ReservationService) Complete(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.transition(ctx, id, "completed", func(r *models.Reservation, now time.Time) (bool, error) {
		switch r.Status {
		case models.ReservationStatusCompleted:
			return false, nil
		case models.ReservationStatusConfirmed, models.ReservationStatusSeated:
			r.Status = models.ReservationStatusCompleted
			r.CompletedAt = &now
			r.AutoCompleted = false
			return true, nil
		default:
			return false, newError(KindInvalidTransition, "%s reservation cannot be completed", r.Status)
		}
	})
}

// Delete removes the record after releasing its tables.
func (s *ReservationService) Delete(ctx context.Context, id uint) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(lockKeys([]string{current.Date}, current.Tables())...)
	defer unlock()

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		res, err := s.lockHeld(ctx, tx, current)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Reservation{}, res.ID).Error; err != nil {
			return fmt.Errorf("delete reservation %d: %w", res.ID, err)
		}
		return s.syncTables(ctx, tx, res.Tables())
	})
	if err != nil {
		return err
	}
	logReservation(current).Info("reservation deleted")
	return nil
}

func (s *ReservationService) Get(ctx context.Context, id uint) (*models.Reservation, error) {
	var res models.Reservation
	if err := s.db.WithContext(ctx).First(&res, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "reservation %d not found", id)
		}
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return &res, nil
}

func (s *ReservationService) GetByCode(ctx context.Context, code string) (*models.Reservation, error) {
	var res models.Reservation
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "reservation %s not found", code)
		}
		return nil, fmt.Errorf("get reservation %s: %w", code, err)
	}
	return &res, nil
}

func (s *ReservationService) List(ctx context.Context, f ReservationFilter) ([]models.Reservation, error) {
	var out []models.Reservation
	q := s.db.WithContext(ctx).Order("date ASC, time_in_minutes ASC, id ASC")
	if f.Date != "" {
		q = q.Where("date = ?", f.Date)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// Availability previews the candidates for a slot without reserving anything.
func (s *ReservationService) Availability(ctx context.Context, date, hhmm string, partySize int) (Availability, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Availability{}, newError(KindValidation, "date must be YYYY-MM-DD")
	}
	start, err := parseClock(hhmm)
	if err != nil {
		return Availability{}, newError(KindValidation, "time must be HH:MM")
	}
	if partySize < 1 {
		return Availability{}, newError(KindValidation, "party size must be at least 1")
	}
	return s.engine.Preview(ctx, s.db, date, start, partySize)
}

// DaySummary counts reservations for one date.
type DaySummary struct {
	Date     string           `json:"date"`
	Total    int64            `json:"total"`
	Covers   int64            `json:"covers"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Today is the current date in the restaurant's time zone.
func (s *ReservationService) Today() string {
	return s.clock.Now().In(s.settings.Location).Format(dateLayout)
}

// Summary counts reservations by status; covers excludes cancelled and no-show.
func (s *ReservationService) Summary(ctx context.Context, date string) (DaySummary, error) {
	type row struct {
		Status string
		Count  int64
		Guests int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(party_size), 0) AS guests").
		Where("date = ?", date).
		Group("status").
		Scan(&rows).Error; err != nil {
		return DaySummary{}, fmt.Errorf("summarise %s: %w", date, err)
	}

	out := DaySummary{Date: date, ByStatus: map[string]int64{}}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.Total += r.Count
		if r.Status != models.ReservationStatusCancelled && r.Status != models.ReservationStatusNoShow {
			out.Covers += r.Guests
		}
	}
	return out, nil
}

// autoComplete completes one elapsed reservation on behalf of the sweep.
// It reports false when staff already moved the reservation on.
func (s *ReservationService) autoComplete(ctx context.Context, due *models.Reservation, now time.Time) (bool, error) {
	id := due.ID
	unlock := s.locks.Lock(lockKeys([]string{due.Date}, due.Tables())...)
	defer unlock()

	completed := false
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.lockHeld(ctx, tx, due); err != nil {
			return err
		}
		res := tx.Model(&models.Reservation{}).
			Where("id = ? AND auto_completed = ?", id, false).
			Where("status IN ?", []string{models.ReservationStatusConfirmed, models.ReservationStatusSeated}).
			Updates(map[string]interface{}{
				"status":         models.ReservationStatusCompleted,
				"auto_completed": true,
				"completed_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("complete reservation %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		completed = true

		var r models.Reservation
		if err := tx.First(&r, id).Error; err != nil {
			return fmt.Errorf("reload reservation %d: %w", id, err)
		}
		return s.syncTables(ctx, tx, r.Tables())
	})
	if errors.Is(err, ErrConcurrent) || errors.Is(err, ErrNotFound) {
		// moved or deleted since the sweep loaded it; the next tick re-reads it
		return false, nil
	}
	return completed, err
}

type transitionFunc func(r *models.Reservation, now time.Time) (changed bool, err error)

func (s *ReservationService) transition(ctx context.Context, id uint, verb string, apply transitionFunc) (*models.Reservation, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKeys([]string{current.Date}, current.Tables())...)
	defer unlock()

	var out models.Reservation
	changed := false
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		res, err := s.lockHeld(ctx, tx, current)
		if err != nil {
			return err
		}
		changed, err = apply(res, s.clock.Now())
		if err != nil {
			return err
		}
		out = *res
		if !changed {
			return nil
		}
		if err := tx.Save(res).Error; err != nil {
			return fmt.Errorf("save reservation %d: %w", id, err)
		}
		return s.syncTables(ctx, tx, res.Tables())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logReservation(&out).Info("reservation " + verb)
	}
	return &out, nil
}

// assign honours explicit tables when given, otherwise runs the engine.
func (s *ReservationService) assign(ctx context.Context, tx *gorm.DB, date string, start, partySize int, tables []int, excludeID uint) (Assignment, error) {
	if len(tables) > 0 {
		return s.engine.CheckExplicit(ctx, tx, date, start, tables, excludeID)
	}
	return s.engine.Assign(ctx, tx, date, start, partySize, excludeID)
}

// claim row-locks the chosen tables and re-reads occupancy with a locking read.
// Another process that won the race between assignment and claim shows up here.
func (s *ReservationService) claim(ctx context.Context, tx *gorm.DB, tables []int, date string, start, end int, excludeID uint) error {
	rows, err := s.lockTables(ctx, tx, tables)
	if err != nil {
		return err
	}
	if len(rows) != len(tables) {
		return newError(KindValidation, "tables %v are not all on the floor", tables)
	}
	for _, t := range rows {
		if !t.Reservable {
			return newError(KindValidation, "table %d cannot be reserved", t.Number)
		}
	}

	occupied, err := s.occupancy.OccupiedTables(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), date, start, end, excludeID)
	if err != nil {
		return err
	}
	for _, n := range tables {
		if occupied[n] {
			return &ReservationError{Kind: KindConcurrent, Message: fmt.Sprintf("table %d was just reserved by another booking", n)}
		}
	}
	return nil
}

// syncTables recomputes status and link of each table from the live
// reservations that reference it: the earliest one holds the table.
// The table rows are locked before the reservations are read, so every
// writer that touched these tables has committed by then.
func (s *ReservationService) syncTables(ctx context.Context, tx *gorm.DB, numbers []int) error {
	if len(numbers) == 0 {
		return nil
	}

	rows, err := s.lockTables(ctx, tx, numbers)
	if err != nil {
		return err
	}
	byNumber := make(map[int]models.Table, len(rows))
	for _, t := range rows {
		byNumber[t.Number] = t
	}

	var live []models.Reservation
	if err := tx.WithContext(ctx).
		Where("status NOT IN ?", models.TerminalReservationStatuses).
		Where("table_number IN ? OR is_group_reservation = ?", numbers, true).
		Order("date ASC, time_in_minutes ASC, id ASC").
		Find(&live).Error; err != nil {
		return fmt.Errorf("load live reservations: %w", err)
	}

	for _, n := range numbers {
		var holder *models.Reservation
		for i := range live {
			if models.TableNumbers(live[i].Tables()).Contains(n) {
				holder = &live[i]
				break
			}
		}

		table, ok := byNumber[n]
		if !ok {
			utils.ErrorLogger.Warnf("table %d is not on the floor, skipping status sync", n)
			continue
		}

		updates := map[string]interface{}{}
		switch {
		case holder == nil && table.Status == models.TableStatusCleaning:
			updates["current_reservation_id"] = nil
		case holder == nil:
			updates["status"] = models.TableStatusFree
			updates["current_reservation_id"] = nil
		case holder.Status == models.ReservationStatusSeated:
			updates["status"] = models.TableStatusOccupied
			updates["current_reservation_id"] = holder.ID
		default:
			updates["status"] = models.TableStatusReserved
			updates["current_reservation_id"] = holder.ID
		}
		if err := tx.Model(&table).Updates(updates).Error; err != nil {
			return fmt.Errorf("update table %d: %w", n, err)
		}
	}
	return nil
}

func (s *ReservationService) lockReservation(ctx context.Context, tx *gorm.DB, id uint) (*models.Reservation, error) {
	var res models.Reservation
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "reservation %d not found", id)
		}
		return nil, fmt.Errorf("lock reservation %d: %w", id, err)
	}
	return &res, nil
}

// lockHeld locks the tables seen holds, then the reservation itself, and
// fails with a conflict when the reservation moved in between.
func (s *ReservationService) lockHeld(ctx context.Context, tx *gorm.DB, seen *models.Reservation) (*models.Reservation, error) {
	if _, err := s.lockTables(ctx, tx, seen.Tables()); err != nil {
		return nil, err
	}
	res, err := s.lockReservation(ctx, tx, seen.ID)
	if err != nil {
		return nil, err
	}
	if res.Date != seen.Date || !sameTables(res.Tables(), seen.Tables()) {
		return nil, &ReservationError{Kind: KindConcurrent, Message: fmt.Sprintf("reservation %d was changed by another request", seen.ID)}
	}
	return res, nil
}

// lockTables row-locks the given tables in number order.
func (s *ReservationService) lockTables(ctx context.Context, tx *gorm.DB, numbers []int) ([]models.Table, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)

	var rows []models.Table
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("number IN ?", sorted).
		Order("number").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lock tables %v: %w", sorted, err)
	}
	return rows, nil
}

// inTx runs fn in a transaction. MySQL runs it under READ COMMITTED so a read
// made after a row lock sees what the previous lock holder committed.
func (s *ReservationService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "mysql" {
		return db.Transaction(fn, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	}
	return db.Transaction(fn)
}

func (s *ReservationService) checkLeadTime(date, hhmm string) error {
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+hhmm, s.settings.Location)
	if err != nil {
		return newError(KindValidation, "invalid date/time %s %s", date, hhmm)
	}
	earliest := s.clock.Now().In(s.settings.Location).Add(s.settings.MinLeadTime)
	if start.Before(earliest) {
		return newError(KindLeadTime, "reservations must be made at least %d minutes in advance",
			int(s.settings.MinLeadTime/time.Minute))
	}
	return nil
}

// blacklisted treats gate failures as "not blacklisted"; the gate is advisory.
func (s *ReservationService) blacklisted(ctx context.Context, email, phone string) bool {
	if s.gate == nil {
		return false
	}
	blocked, err := s.gate.IsBlacklisted(ctx, email, phone)
	if err != nil {
		utils.ErrorLogger.WithError(err).Warn("blacklist gate unavailable, admitting request")
		return false
	}
	return blocked
}

func (s *ReservationService) dispatchCreated(r models.Reservation) {
	if s.notifier == nil {
		return
	}
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyReservationCreated(ctx, r); err != nil {
			logReservation(&r).WithError(err).Warn("reservation notification failed")
		}
	}()
}

func (s *ReservationService) validateStruct(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ReservationError{Kind: KindValidation, Message: "invalid request", Err: err}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return newError(KindValidation, "invalid request: %s", strings.Join(msgs, "; "))
}

func applyAssignment(res *models.Reservation, a Assignment) {
	res.TableNumber = a.Primary()
	res.IsGroupReservation = a.IsGroupReservation
	if a.IsGroupReservation {
		res.GroupTables = models.TableNumbers(append([]int(nil), a.Tables...))
	} else {
		res.GroupTables = nil
	}
}

func normalizeAccessibility(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if !json.Valid(raw) {
		return "", newError(KindValidation, "accessibility must be valid JSON")
	}
	return string(raw), nil
}

func logReservation(r *models.Reservation) *logrus.Entry {
	return utils.InfoLogger.WithFields(logrus.Fields{
		"reservation_id": r.ID,
		"date":           r.Date,
		"time":           r.Time,
		"party_size":     r.PartySize,
		"tables":         r.Tables(),
		"status":         r.Status,
	})
}

func union(a, b []int) []int {
	out := append([]int(nil), a...)
	for _, n := range b {
		if !models.TableNumbers(out).Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

func sameTables(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lockKeys names the in-process locks for dates and table numbers.
func lockKeys(dates []string, tables []int) []string {
	keys := append([]string(nil), dates...)
	for _, n := range tables {
		keys = append(keys, fmt.Sprintf("table:%d", n))
	}
	return keys
}

// keyedMutex serialises work per key (reservation date or table).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires every distinct key in sorted order and returns the release func.
func (k *keyedMutex) Lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	for _, key := range keys {
		found := false
		for _, u := range uniq {
			if u == key {
				found = true
				break
			}
		}
		if !found {
			uniq = append(uniq, key)
		}
	}
	sort.Strings(uniq)

	held := make([]*keyedLock, 0, len(uniq))
	for _, key := range uniq {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyedLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, uniq[i])
			}
			k.mu.Unlock()
		}
	}
}
