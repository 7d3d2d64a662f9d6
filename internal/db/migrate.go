package db

import (
	"fmt"
	"time"

	"github.com/nexanet/configbot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operator describes the designated operator account seeded on migration.
type Operator struct {
	UserID   int64
	Username string
}

// Migrate creates the schema and, when op is set, seeds the operator account.
func Migrate(conn *gorm.DB, op *Operator) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.StoredFile{},
		&models.Payment{},
		&models.DownloadRecord{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_configs_catalog
		ON configs (category, is_active, upload_date)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create catalog index: %w", errIdx)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_payments_queue
		ON payments (status, payment_date)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create payment queue index: %w", errIdx)
	}

	if op != nil && op.UserID != 0 {
		if errSeed := ensureOperator(conn, *op); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// ensureOperator inserts the operator account once; an existing row is left untouched
// apart from the admin flag.
func ensureOperator(conn *gorm.DB, op Operator) error {
	username := op.Username
	if username == "" {
		username = "operator"
	}
	record := models.User{
		UserID:        op.UserID,
		Username:      username,
		JoinDate:      time.Now().UTC(),
		PaymentStatus: models.PaymentStatusApproved,
		IsAdmin:       true,
	}
	if errCreate := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; errCreate != nil {
		return fmt.Errorf("db: seed operator: %w", errCreate)
	}
	if errFlag := conn.Model(&models.User{}).
		Where("user_id = ?", op.UserID).
		Update("is_admin", true).Error; errFlag != nil {
		return fmt.Errorf("db: flag operator: %w", errFlag)
	}
	return nil
}
