package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"gorm.io/gorm"
)

// TableStats is the floor dashboard summary.
type TableStats struct {
	Free     int64 `json:"free"`
	Reserved int64 `json:"reserved"`
	Occupied int64 `json:"occupied"`
	Cleaning int64 `json:"cleaning"`
	Total    int64 `json:"total"`
}

// TableService covers the staff-facing table operations. Reserved and
// occupied are derived from reservations and cannot be set by hand.
type TableService struct {
	db *gorm.DB
}

func NewTableService(db *gorm.DB) *TableService {
	return &TableService{db: db}
}

func (s *TableService) List(ctx context.Context, status string) ([]models.Table, error) {
	var tables []models.Table
	q := s.db.WithContext(ctx).Order("number ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Get looks a table up by its display number.
func (s *TableService) Get(ctx context.Context, number int) (*models.Table, error) {
	var table models.Table
	if err := s.db.WithContext(ctx).Where("number = ?", number).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "table %d not found", number)
		}
		return nil, fmt.Errorf("get table %d: %w", number, err)
	}
	return &table, nil
}

// SetStatus lets staff flag a free table for cleaning, or put it back.
func (s *TableService) SetStatus(ctx context.Context, number int, status string, staffID uint) (*models.Table, error) {
	switch status {
	case models.TableStatusCleaning:
		return s.conditional(ctx, number, models.TableStatusFree, models.TableStatusCleaning)
	case models.TableStatusFree:
		return s.MarkClean(ctx, number, staffID)
	case models.TableStatusReserved, models.TableStatusOccupied:
		return nil, newError(KindInvalidTransition, "table status %s follows its reservations", status)
	default:
		return nil, newError(KindValidation, "unknown table status %q", status)
	}
}

// MarkClean returns a cleaning table to service and records who cleaned it.
func (s *TableService) MarkClean(ctx context.Context, number int, cleanerID uint) (*models.Table, error) {
	var out *models.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := s.swap(ctx, tx, number, models.TableStatusCleaning, models.TableStatusFree)
		if err != nil {
			return err
		}
		entry := models.CleaningLog{CleanerID: cleanerID, TableNumber: number, Status: "done"}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create cleaning log: %w", err)
		}
		out = table
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.Printf("Table %d cleaned by user %d", number, cleanerID)
	return out, nil
}

func (s *TableService) CleaningLogs(ctx context.Context, number int) ([]models.CleaningLog, error) {
	var logs []models.CleaningLog
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if number > 0 {
		q = q.Where("table_number = ?", number)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list cleaning logs: %w", err)
	}
	return logs, nil
}

func (s *TableService) Stats(ctx context.Context) (TableStats, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Table{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return TableStats{}, fmt.Errorf("table stats: %w", err)
	}

	var st TableStats
	for _, r := range rows {
		switch r.Status {
		case models.TableStatusFree:
			st.Free = r.Count
		case models.TableStatusReserved:
			st.Reserved = r.Count
		case models.TableStatusOccupied:
			st.Occupied = r.Count
		case models.TableStatusCleaning:
			st.Cleaning = r.Count
		}
		st.Total += r.Count
	}
	return st, nil
}

func (s *TableService) conditional(ctx context.Context, number int, from, to string) (*models.Table, error) {
	var out *models.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := s.swap(ctx, tx, number, from, to)
		out = table
		return err
	})
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.Printf("Table %d status changed to %s", number, to)
	return out, nil
}

// swap is a conditional update: it only applies when the table is unlinked
// and currently in status from.
func (s *TableService) swap(ctx context.Context, tx *gorm.DB, number int, from, to string) (*models.Table, error) {
	res := tx.WithContext(ctx).Model(&models.Table{}).
		Where("number = ? AND status = ? AND current_reservation_id IS NULL", number, from).
		Update("status", to)
	if res.Error != nil {
		return nil, fmt.Errorf("update table %d: %w", number, res.Error)
	}

	var table models.Table
	if err := tx.WithContext(ctx).Where("number = ?", number).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "table %d not found", number)
		}
		return nil, fmt.Errorf("get table %d: %w", number, err)
	}
	if res.RowsAffected == 0 {
		if table.IsHeld() {
			return nil, newError(KindInvalidTransition, "table %d is %s for reservation %d", number, table.Status, *table.CurrentReservationID)
		}
		return nil, newError(KindInvalidTransition, "table %d is %s, expected %s", number, table.Status, from)
	}
	return &table, nil
}
