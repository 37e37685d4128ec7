package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-reservations/models"
	"gorm.io/gorm"
)

func TestCreateAssignsAndReservesTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	assert.Equal(t, models.ReservationStatusConfirmed, res.Status)
	assert.Equal(t, 2, res.TableNumber)
	assert.False(t, res.IsGroupReservation)
	assert.Equal(t, 1200, res.TimeInMinutes)
	assert.Equal(t, "21:30", res.EndTime)
	assert.Equal(t, 1290, res.EndTimeInMinutes)
	assert.Equal(t, "dewi@example.com", res.CustomerEmail)
	assert.NotEmpty(t, res.Code)
	assert.False(t, res.StaffInitiated)

	table := f.table(t, 2)
	assert.Equal(t, models.TableStatusReserved, table.Status)
	require.NotNil(t, table.CurrentReservationID)
	assert.Equal(t, res.ID, *table.CurrentReservationID)

	f.svc.Wait()
	assert.Equal(t, 1, f.notifier.count())
}

func TestCreateSequentialRequestsTakeNextTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	assert.Equal(t, 2, first.TableNumber)
	assert.Equal(t, 3, second.TableNumber)
}

func TestCreateGroupReservationHoldsBothTables(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Create(context.Background(), customerRequest(7, testDate, "20:00"))
	require.NoError(t, err)

	assert.True(t, res.IsGroupReservation)
	assert.Equal(t, models.TableNumbers{15, 16}, res.GroupTables)
	assert.Equal(t, 15, res.TableNumber)
	for _, n := range []int{15, 16} {
		table := f.table(t, n)
		assert.Equal(t, models.TableStatusReserved, table.Status)
		assert.Equal(t, res.ID, *table.CurrentReservationID)
	}
}

func TestCreateLeadTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// 10 minutes from now
	_, err := f.svc.Create(ctx, customerRequest(2, testDate, "10:10"))
	assert.ErrorIs(t, err, ErrLeadTime)
	assert.Equal(t, KindLeadTime, KindOf(err))

	_, err = f.svc.Create(ctx, customerRequest(2, "2025-07-14", "20:00"))
	assert.ErrorIs(t, err, ErrLeadTime)

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "10:30"))
	require.NoError(t, err)
	assert.Equal(t, "10:30", res.Time)

	staff, err := f.svc.Create(ctx, staffRequest(2, testDate, "10:10"))
	require.NoError(t, err)
	assert.True(t, staff.StaffInitiated)
}

func TestCreateBlacklistedChangesNothing(t *testing.T) {
	f := newFixture(t, stubGate{blocked: true})

	_, err := f.svc.Create(context.Background(), customerRequest(2, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrBlacklisted)

	var count int64
	f.db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&models.Table{}).Where("status <> ?", models.TableStatusFree).Count(&count)
	assert.Zero(t, count)
	assert.Zero(t, f.notifier.count())
}

func TestCreateGateErrorAdmits(t *testing.T) {
	f := newFixture(t, stubGate{err: errors.New("redis timeout")})

	_, err := f.svc.Create(context.Background(), customerRequest(2, testDate, "20:00"))
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *CreateReservationRequest)
	}{
		{"missing name", func(r *CreateReservationRequest) { r.Name = "  " }},
		{"missing phone", func(r *CreateReservationRequest) { r.Phone = "" }},
		{"missing email for customer", func(r *CreateReservationRequest) { r.Email = "" }},
		{"bad email", func(r *CreateReservationRequest) { r.Email = "not-an-email" }},
		{"bad date", func(r *CreateReservationRequest) { r.Date = "15/07/2025" }},
		{"bad time", func(r *CreateReservationRequest) { r.Time = "8pm" }},
		{"zero party", func(r *CreateReservationRequest) { r.PartySize = 0 }},
		{"customer picks tables", func(r *CreateReservationRequest) { r.Tables = []int{1} }},
		{"bad accessibility", func(r *CreateReservationRequest) { r.Accessibility = json.RawMessage(`{wheelchair`) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := customerRequest(2, testDate, "20:00")
			tc.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	var count int64
	f.db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateManualContactAboveLargestTier(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, customerRequest(9, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrManualContact)

	_, err = f.svc.Create(ctx, staffRequest(12, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrManualContact)

	// no upper bound turns a large party into a validation error
	_, err = f.svc.Create(ctx, customerRequest(31, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrManualContact)
	_, err = f.svc.Create(ctx, customerRequest(200, testDate, "10:05"))
	assert.ErrorIs(t, err, ErrManualContact)
	_, err = f.svc.Create(ctx, staffRequest(31, testDate, "20:00"))
	assert.ErrorIs(t, err, ErrManualContact)

	_, err = f.svc.Availability(ctx, testDate, "20:00", 31)
	assert.ErrorIs(t, err, ErrManualContact)

	// staff may seat a big party on tables they pick, up to the configured limit
	_, err = f.svc.Create(ctx, staffRequest(31, testDate, "20:00", 9, 10))
	assert.ErrorIs(t, err, ErrValidation)

	res, err := f.svc.Create(ctx, staffRequest(12, testDate, "20:00", 9, 10))
	require.NoError(t, err)
	assert.True(t, res.IsGroupReservation)
	assert.Equal(t, []int{9, 10}, res.Tables())

	var count int64
	f.db.Model(&models.Reservation{}).Count(&count)
	assert.Equal(t, int64(1), count)

	big := 31
	_, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{PartySize: &big}, true)
	assert.ErrorIs(t, err, ErrManualContact)
	_, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{PartySize: &big, Tables: []int{9, 10}}, true)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 12, f.reload(t, res.ID).PartySize)
}

func TestCreateStoresZeroPaddedTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, staffRequest(2, testDate, "9:05"))
	require.NoError(t, err)
	assert.Equal(t, "09:05", res.Time)
	assert.Equal(t, "10:35", res.EndTime)
	assert.Equal(t, "09:05", f.reload(t, res.ID).Time)

	later := "9:30"
	updated, err := f.svc.Update(ctx, res.ID, UpdateReservationRequest{Time: &later}, true)
	require.NoError(t, err)
	assert.Equal(t, "09:30", updated.Time)
	assert.Equal(t, 570, updated.TimeInMinutes)

	same := "09:30"
	updated, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{Time: &same}, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, updated.Tables())
}

func TestCreateStaffExplicitTableMustBeFree(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, staffRequest(2, testDate, "20:00", 7))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, staffRequest(2, testDate, "20:30", 7))
	assert.ErrorIs(t, err, ErrNoAvailability)

	_, err = f.svc.Create(ctx, staffRequest(2, testDate, "20:30", 26))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateKeepsAccessibilityOpaque(t *testing.T) {
	f := newFixture(t, nil)
	req := customerRequest(3, testDate, "19:00")
	req.Accessibility = json.RawMessage(`{"wheelchair":true,"high_chair":2}`)
	req.SpecialRequests = "window seat"

	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	stored := f.reload(t, res.ID)
	assert.JSONEq(t, `{"wheelchair":true,"high_chair":2}`, stored.Accessibility)
	assert.Equal(t, "window seat", stored.SpecialRequests)
}

func TestConcurrentCreatesNeverDoubleBook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	results := make(chan *models.Reservation, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	seen := map[int]bool{}
	for res := range results {
		assert.False(t, seen[res.TableNumber], "table %d booked twice", res.TableNumber)
		seen[res.TableNumber] = true
	}
	assert.Len(t, seen, 8, "every small table is used once")
	for err := range errs {
		assert.ErrorIs(t, err, ErrNoAvailability)
	}
}

func TestOccupancyRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(6, testDate, "20:00"))
	require.NoError(t, err)

	occupied, err := OccupancyIndex{}.OccupiedTables(ctx, f.db, testDate, res.TimeInMinutes, res.EndTimeInMinutes, 0)
	require.NoError(t, err)
	assert.True(t, occupied[15])
	assert.True(t, occupied[16])

	_, err = f.svc.Cancel(ctx, res.ID, "plans changed")
	require.NoError(t, err)

	occupied, err = OccupancyIndex{}.OccupiedTables(ctx, f.db, testDate, res.TimeInMinutes, res.EndTimeInMinutes, 0)
	require.NoError(t, err)
	assert.Empty(t, occupied)
	for _, n := range []int{15, 16} {
		table := f.table(t, n)
		assert.Equal(t, models.TableStatusFree, table.Status)
		assert.Nil(t, table.CurrentReservationID)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	first, err := f.svc.Cancel(ctx, res.ID, "ill")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, first.Status)
	require.NotNil(t, first.CancelledAt)

	// a newer booking now holds the table; re-cancelling must not touch it
	other, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)
	assert.Equal(t, 2, other.TableNumber)

	again, err := f.svc.Cancel(ctx, res.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, again.Status)
	assert.Equal(t, "ill", again.CancellationReason)

	table := f.table(t, 2)
	assert.Equal(t, models.TableStatusReserved, table.Status)
	assert.Equal(t, other.ID, *table.CurrentReservationID)

	byCode, err := f.svc.CancelByCode(ctx, other.Code, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, byCode.Status)

	_, err = f.svc.Cancel(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTableLinksEarliestLiveReservation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	late, err := f.svc.Create(ctx, staffRequest(2, testDate, "21:00", 4))
	require.NoError(t, err)
	early, err := f.svc.Create(ctx, staffRequest(2, testDate, "12:00", 4))
	require.NoError(t, err)

	table := f.table(t, 4)
	assert.Equal(t, early.ID, *table.CurrentReservationID)

	_, err = f.svc.Cancel(ctx, early.ID, "")
	require.NoError(t, err)
	table = f.table(t, 4)
	assert.Equal(t, models.TableStatusReserved, table.Status)
	assert.Equal(t, late.ID, *table.CurrentReservationID)
}

func TestSeatNoShowAndComplete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(4, testDate, "12:00"))
	require.NoError(t, err)
	assert.Equal(t, 10, res.TableNumber)

	seated, err := f.svc.Seat(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSeated, seated.Status)
	assert.NotNil(t, seated.SeatedAt)
	assert.Equal(t, models.TableStatusOccupied, f.table(t, 10).Status)

	_, err = f.svc.Seat(ctx, res.ID)
	assert.NoError(t, err, "seating twice is a no-op")

	done, err := f.svc.Complete(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCompleted, done.Status)
	assert.False(t, done.AutoCompleted)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, models.TableStatusFree, f.table(t, 10).Status)

	_, err = f.svc.Seat(ctx, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.MarkNoShow(ctx, res.ID)
	assert.NoError(t, err, "no-show on a terminal reservation is a no-op")
	assert.Equal(t, models.ReservationStatusCompleted, f.reload(t, res.ID).Status)

	other, err := f.svc.Create(ctx, customerRequest(4, testDate, "13:00"))
	require.NoError(t, err)
	noShow, err := f.svc.MarkNoShow(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusNoShow, noShow.Status)
	assert.Equal(t, models.TableStatusFree, f.table(t, other.TableNumber).Status)

	_, err = f.svc.Complete(ctx, other.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNoShowFromPendingIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	res := occupy(t, f.db, testDate, "20:00", 2)
	require.NoError(t, f.db.Model(&res).Update("status", models.ReservationStatusPending).Error)

	_, err := f.svc.MarkNoShow(context.Background(), res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateReassignsExcludingItself(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	newTime := "20:30"
	updated, err := f.svc.Update(ctx, res.ID, UpdateReservationRequest{Time: &newTime}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, updated.Tables())
	assert.Equal(t, "22:00", updated.EndTime)
	assert.Equal(t, 1230, updated.TimeInMinutes)

	party := 5
	updated, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{PartySize: &party}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, updated.Tables())
	assert.Equal(t, models.TableStatusFree, f.table(t, 2).Status)
	assert.Equal(t, models.TableStatusReserved, f.table(t, 10).Status)
}

func TestUpdateFailureLeavesReservationUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, customerRequest(8, testDate, "20:00"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, customerRequest(8, testDate, "20:00"))
	require.NoError(t, err)
	early, err := f.svc.Create(ctx, customerRequest(8, testDate, "17:00"))
	require.NoError(t, err)
	assert.Equal(t, []int{21, 22}, early.Tables())

	newTime := "20:15"
	name := "Someone Else"
	_, err = f.svc.Update(ctx, early.ID, UpdateReservationRequest{Time: &newTime, Name: &name}, false)
	assert.ErrorIs(t, err, ErrNoAvailability)

	stored := f.reload(t, early.ID)
	assert.Equal(t, "17:00", stored.Time)
	assert.Equal(t, "Dewi Lestari", stored.CustomerName)
	assert.Equal(t, []int{21, 22}, stored.Tables())
	assert.Equal(t, early.ID, *f.table(t, 21).CurrentReservationID)
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	tooSoon := "10:05"
	_, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{Time: &tooSoon}, false)
	assert.ErrorIs(t, err, ErrLeadTime)

	updated, err := f.svc.Update(ctx, res.ID, UpdateReservationRequest{Time: &tooSoon}, true)
	require.NoError(t, err)
	assert.Equal(t, "10:05", updated.Time)

	_, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{Tables: []int{5}}, false)
	assert.ErrorIs(t, err, ErrValidation)

	moved, err := f.svc.Update(ctx, res.ID, UpdateReservationRequest{Tables: []int{5, 6}}, true)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, moved.Tables())
	assert.Equal(t, models.TableStatusFree, f.table(t, 2).Status)

	newDate := "2025-07-20"
	moved, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{Date: &newDate}, true)
	require.NoError(t, err)
	assert.Equal(t, newDate, moved.Date)
	assert.Equal(t, []int{2}, moved.Tables())

	_, err = f.svc.Cancel(ctx, res.ID, "")
	require.NoError(t, err)
	name := "Late Change"
	_, err = f.svc.Update(ctx, res.ID, UpdateReservationRequest{Name: &name}, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteReleasesTables(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(7, testDate, "20:00"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, res.ID))

	_, err = f.svc.Get(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, n := range []int{15, 16} {
		table := f.table(t, n)
		assert.Equal(t, models.TableStatusFree, table.Status)
		assert.Nil(t, table.CurrentReservationID)
	}

	assert.ErrorIs(t, f.svc.Delete(ctx, res.ID), ErrNotFound)
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.fail = true

	res, err := f.svc.Create(context.Background(), customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, models.ReservationStatusConfirmed, f.reload(t, res.ID).Status)
}

func TestAvailabilityAndListing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, customerRequest(2, "2025-07-16", "20:00"))
	require.NoError(t, err)

	av, err := f.svc.Availability(ctx, testDate, "20:00", 2)
	require.NoError(t, err)
	require.NotNil(t, av.Suggested)
	assert.Equal(t, []int{3}, av.Suggested.Tables)
	assert.Len(t, av.Candidates, 7)

	_, err = f.svc.Availability(ctx, "tomorrow", "20:00", 2)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Availability(ctx, testDate, "20:00", 0)
	assert.ErrorIs(t, err, ErrValidation)

	list, err := f.svc.List(ctx, ReservationFilter{Date: testDate})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.List(ctx, ReservationFilter{Status: models.ReservationStatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	summary, err := f.svc.Summary(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total)
	assert.Equal(t, int64(2), summary.Covers)
	assert.Equal(t, testDate, f.svc.Today())
}

func TestClaimDetectsTableTakenAfterAssignment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		assignment, err := f.svc.assign(ctx, tx, testDate, 1200, 2, nil, 0)
		require.NoError(t, err)
		require.Equal(t, []int{2}, assignment.Tables)

		// another booking lands on table 2 between assignment and claim
		require.NoError(t, tx.Create(&models.Reservation{
			Code:             "rival-booking",
			CustomerName:     "Rival",
			CustomerPhone:    "+62 811 0000 0000",
			Date:             testDate,
			Time:             "20:30",
			TimeInMinutes:    1230,
			Duration:         90,
			EndTime:          "22:00",
			EndTimeInMinutes: 1320,
			PartySize:        2,
			TableNumber:      2,
			Status:           models.ReservationStatusConfirmed,
		}).Error)

		return f.svc.claim(ctx, tx, assignment.Tables, testDate, 1200, 1290, 0)
	})
	assert.ErrorIs(t, err, ErrConcurrent)
	assert.Equal(t, KindConcurrent, KindOf(err))

	var count int64
	f.db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)
	assert.Equal(t, models.TableStatusFree, f.table(t, 2).Status)
}

func TestTransitionRejectsReservationMovedWhileWaiting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, customerRequest(2, testDate, "20:00"))
	require.NoError(t, err)

	// move the reservation to another date right before it is row-locked
	var once sync.Once
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:move_reservation", func(tx *gorm.DB) {
		if tx.Statement.Table != "reservations" {
			return
		}
		if _, locking := tx.Statement.Clauses["FOR"]; !locking {
			return
		}
		once.Do(func() {
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE reservations SET date = ? WHERE id = ?", "2025-07-20", res.ID)
		})
	}))

	_, err = f.svc.Cancel(ctx, res.ID, "")
	assert.ErrorIs(t, err, ErrConcurrent)

	stored := f.reload(t, res.ID)
	assert.Equal(t, models.ReservationStatusConfirmed, stored.Status)
	assert.Equal(t, testDate, stored.Date)
	assert.Equal(t, models.TableStatusReserved, f.table(t, 2).Status)

	cancelled, err := f.svc.Cancel(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)
	assert.Equal(t, models.TableStatusFree, f.table(t, 2).Status)
}

func TestCrossDateChangesKeepTableLinked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// every booking for a party of 2 competes for table 2 on its own date
	dates := []string{"2025-07-16", "2025-07-17", "2025-07-18", "2025-07-19"}
	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for _, date := range dates {
			wg.Add(1)
			go func(date string) {
				defer wg.Done()
				res, err := f.svc.Create(ctx, customerRequest(2, date, "19:00"))
				if err != nil {
					t.Errorf("create %s: %v", date, err)
					return
				}
				if res.ID%2 == 0 {
					if _, err := f.svc.Cancel(ctx, res.ID, ""); err != nil {
						t.Errorf("cancel %d: %v", res.ID, err)
					}
				}
			}(date)
		}
	}
	wg.Wait()

	for _, number := range []int{2, 3, 5} {
		var live []models.Reservation
		require.NoError(t, f.db.
			Where("table_number = ? AND status NOT IN ?", number, models.TerminalReservationStatuses).
			Order("date ASC, time_in_minutes ASC, id ASC").
			Find(&live).Error)

		table := f.table(t, number)
		if len(live) == 0 {
			assert.Equal(t, models.TableStatusFree, table.Status, "table %d", number)
			assert.Nil(t, table.CurrentReservationID, "table %d", number)
			continue
		}
		assert.Equal(t, models.TableStatusReserved, table.Status, "table %d", number)
		require.NotNil(t, table.CurrentReservationID, "table %d", number)
		assert.Equal(t, live[0].ID, *table.CurrentReservationID, "table %d", number)
	}
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t,
		[]string{"2025-07-15", "2025-07-16", "table:2", "table:15"},
		lockKeys([]string{"2025-07-15", "2025-07-16"}, []int{2, 15}))
	assert.Equal(t, []string{"2025-07-15"}, lockKeys([]string{"2025-07-15"}, nil))
}

func TestKeyedMutexSerialisesPerKey(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("2025-07-15", "2025-07-14", "2025-07-15")
	acquired := make(chan struct{})
	go func() {
		release := k.Lock("2025-07-14")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
