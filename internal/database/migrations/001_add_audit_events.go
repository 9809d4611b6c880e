package migrations

import (
	"gorm.io/gorm"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
)

// AddAuditEvents creates the audit events table and required indexes
func AddAuditEvents(db *gorm.DB) error {
	// Create the audit events table
	if err := db.AutoMigrate(&audit.Event{}); err != nil {
		return err
	}

	// Add indexes for better query performance
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Index for per-transaction history lookups
		`CREATE INDEX IF NOT EXISTS idx_events_transaction_id
		 ON events(transaction_id)`,

		// Index for tick-ordered scans
		`CREATE INDEX IF NOT EXISTS idx_events_tick
		 ON events(tick)`,

		// Index for filtering the transactional sub-stream
		`CREATE INDEX IF NOT EXISTS idx_events_transactional
		 ON events(transactional)`,

		// Composite index for actor activity queries
		`CREATE INDEX IF NOT EXISTS idx_events_actor_kind
		 ON events(actor, kind)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
