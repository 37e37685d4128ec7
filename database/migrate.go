package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/services"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Table{},
		&models.Reservation{},
		&models.BlacklistEntry{},
		&models.Notification{},
		&models.CleaningLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("Database migrated")
	return nil
}

// SeedTables makes the tables table match the floor plan. Existing rows keep
// their status and reservation link; capacity and combinability are refreshed.
func SeedTables(db *gorm.DB, registry *services.TableRegistry) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, spec := range registry.Tables() {
			var table models.Table
			err := tx.Where("number = ?", spec.Number).First(&table).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				table = models.Table{
					Number:         spec.Number,
					Capacity:       spec.Capacity,
					CombinableWith: models.TableNumbers(registry.CombinableWith(spec.Number)),
					Reservable:     !spec.WalkInOnly,
					Status:         models.TableStatusFree,
				}
				if err := tx.Create(&table).Error; err != nil {
					return fmt.Errorf("create table %d: %w", spec.Number, err)
				}
			case err != nil:
				return fmt.Errorf("load table %d: %w", spec.Number, err)
			default:
				if err := tx.Model(&table).Updates(map[string]interface{}{
					"capacity":        spec.Capacity,
					"combinable_with": models.TableNumbers(registry.CombinableWith(spec.Number)),
					"reservable":      !spec.WalkInOnly,
				}).Error; err != nil {
					return fmt.Errorf("update table %d: %w", spec.Number, err)
				}
			}
		}
		utils.InfoLogger.Printf("Floor plan seeded: %d tables", len(registry.Tables()))
		return nil
	})
}

// SeedAdmin creates the first admin account when none exists with that email.
func SeedAdmin(db *gorm.DB, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{Name: name, Email: email, Password: string(hashed), Role: models.RoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	utils.InfoLogger.Printf("Admin account %s created", email)
	return nil
}
