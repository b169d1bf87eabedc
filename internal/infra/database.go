package infra

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"posledger/internal/model"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial unique indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations applies AutoMigrate plus the schema patches. Exported so
// integration tests can bring up a throwaway schema.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.PaymentMethod{},
		&model.CashRegister{},
		&model.CashMovement{},
		&model.CashRegisterTotals{},
		&model.CustomerAccount{},
		&model.AccountMovement{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express.
// Partial unique indexes are the backstop for two invariants: at most one
// open register at any instant, and at most one account movement per
// business-event reference.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"partial unique index: single open register", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uq_cash_registers_open') THEN
    CREATE UNIQUE INDEX uq_cash_registers_open
        ON cash_registers (status)
        WHERE status = 'open';
  END IF;
END $$`},
		{"partial unique index: account movement reference idempotency", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uq_account_movements_reference') THEN
    CREATE UNIQUE INDEX uq_account_movements_reference
        ON account_movements (account_id, reference_type, reference_id)
        WHERE reference_id IS NOT NULL;
  END IF;
END $$`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
