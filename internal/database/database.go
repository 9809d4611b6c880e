package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/database/migrations"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/export"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// NewDatabase initializes the export database at the given path and returns
// a GORM DB connection.
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "simulation.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddAuditEvents(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Instruction{},
		&types.CancelInstruction{},
		&types.SettlementConfirmation{},
		&export.AccountRecord{},
		&export.InstitutionRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
