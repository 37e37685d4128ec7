package services

import (
	"context"

	"gorm.io/gorm"
)

// Assignment is the table (or joined tables) chosen for a party.
type Assignment struct {
	Tables             []int  `json:"tables"`
	IsGroupReservation bool   `json:"is_group_reservation"`
	Tier               string `json:"tier"`
}

// Primary is the first assigned table.
func (a Assignment) Primary() int {
	return a.Tables[0]
}

// Availability is the read-only preview for a party and window.
type Availability struct {
	Date       string       `json:"date"`
	Time       string       `json:"time"`
	EndTime    string       `json:"end_time"`
	PartySize  int          `json:"party_size"`
	Tier       string       `json:"tier"`
	Candidates []Assignment `json:"candidates"`
	Suggested  *Assignment  `json:"suggested,omitempty"`
}

// TableAssignmentEngine is a first-fit allocator over the registry's fixed
// priority lists. It never reorders candidates by capacity.
type TableAssignmentEngine struct {
	registry  *TableRegistry
	occupancy OccupancyIndex
	duration  int
}

func NewTableAssignmentEngine(registry *TableRegistry, durationMinutes int) *TableAssignmentEngine {
	return &TableAssignmentEngine{registry: registry, duration: durationMinutes}
}

// Window returns the half-open occupancy window for a start time.
func (e *TableAssignmentEngine) Window(start int) (int, int) {
	return start, start + e.duration
}

// Assign picks tables for partySize on date at start (minutes since midnight).
func (e *TableAssignmentEngine) Assign(ctx context.Context, db *gorm.DB, date string, start, partySize int, excludeID uint) (Assignment, error) {
	if partySize > e.registry.MaxAutoPartySize() {
		return Assignment{}, ErrManualContact
	}
	tierName, ok := e.registry.TierFor(partySize)
	if !ok {
		return Assignment{}, newError(KindValidation, "party size %d is not bookable", partySize)
	}

	from, to := e.Window(start)
	occupied, err := e.occupancy.OccupiedTables(ctx, db, date, from, to, excludeID)
	if err != nil {
		return Assignment{}, err
	}

	if a, found := e.firstFree(tierName, occupied); found {
		return a, nil
	}
	return Assignment{}, ErrNoAvailability
}

// Preview lists every free candidate in priority order without claiming anything.
func (e *TableAssignmentEngine) Preview(ctx context.Context, db *gorm.DB, date string, start, partySize int) (Availability, error) {
	from, to := e.Window(start)
	out := Availability{
		Date:       date,
		Time:       formatClock(from),
		EndTime:    formatClock(to),
		PartySize:  partySize,
		Candidates: []Assignment{},
	}
	if partySize > e.registry.MaxAutoPartySize() {
		return out, ErrManualContact
	}
	tierName, ok := e.registry.TierFor(partySize)
	if !ok {
		return out, newError(KindValidation, "party size %d is not bookable", partySize)
	}
	out.Tier = tierName

	occupied, err := e.occupancy.OccupiedTables(ctx, db, date, from, to, 0)
	if err != nil {
		return out, err
	}

	out.Candidates = e.freeCandidates(tierName, occupied)
	if len(out.Candidates) > 0 {
		first := out.Candidates[0]
		out.Suggested = &first
	}
	return out, nil
}

// CheckExplicit verifies staff-chosen tables are reservable and free.
func (e *TableAssignmentEngine) CheckExplicit(ctx context.Context, db *gorm.DB, date string, start int, tables []int, excludeID uint) (Assignment, error) {
	seen := make(map[int]bool, len(tables))
	for _, n := range tables {
		if !e.registry.IsReservable(n) {
			return Assignment{}, newError(KindValidation, "table %d cannot be reserved", n)
		}
		if seen[n] {
			return Assignment{}, newError(KindValidation, "table %d listed twice", n)
		}
		seen[n] = true
	}

	from, to := e.Window(start)
	occupied, err := e.occupancy.OccupiedTables(ctx, db, date, from, to, excludeID)
	if err != nil {
		return Assignment{}, err
	}
	for _, n := range tables {
		if occupied[n] {
			return Assignment{}, newError(KindNoAvailability, "table %d is already reserved for that time", n)
		}
	}
	return Assignment{
		Tables:             append([]int(nil), tables...),
		IsGroupReservation: len(tables) > 1,
		Tier:               "manual",
	}, nil
}

func (e *TableAssignmentEngine) firstFree(tierName string, occupied map[int]bool) (Assignment, bool) {
	for _, n := range e.registry.ListReservableTables(tierName) {
		if !e.registry.IsReservable(n) || occupied[n] {
			continue
		}
		return Assignment{Tables: []int{n}, Tier: tierName}, true
	}
	for _, p := range e.registry.Pairs(tierName) {
		if !e.pairFree(p, occupied) {
			continue
		}
		return Assignment{Tables: []int{p[0], p[1]}, IsGroupReservation: true, Tier: tierName}, true
	}
	return Assignment{}, false
}

func (e *TableAssignmentEngine) freeCandidates(tierName string, occupied map[int]bool) []Assignment {
	out := []Assignment{}
	for _, n := range e.registry.ListReservableTables(tierName) {
		if e.registry.IsReservable(n) && !occupied[n] {
			out = append(out, Assignment{Tables: []int{n}, Tier: tierName})
		}
	}
	for _, p := range e.registry.Pairs(tierName) {
		if e.pairFree(p, occupied) {
			out = append(out, Assignment{Tables: []int{p[0], p[1]}, IsGroupReservation: true, Tier: tierName})
		}
	}
	return out
}

func (e *TableAssignmentEngine) pairFree(p TablePair, occupied map[int]bool) bool {
	return e.registry.IsReservable(p[0]) && e.registry.IsReservable(p[1]) &&
		!occupied[p[0]] && !occupied[p[1]]
}
