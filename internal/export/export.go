package export

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/engine"
)

// Service persists end-of-run snapshots: final account states, instruction
// statuses, settlement confirmations and both audit streams.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// SaveSnapshot writes the engine's read-only snapshots to the export
// database.
func (s *Service) SaveSnapshot(e *engine.Engine) error {
	logger := log.With().Str("service", "export").Logger()

	for _, account := range e.Ledger().Accounts() {
		holdings, err := json.Marshal(account.Holdings)
		if err != nil {
			return fmt.Errorf("failed to marshal holdings for account %s: %w", account.AccountID, err)
		}
		record := &AccountRecord{
			AccountID:     account.AccountID,
			InstitutionID: account.InstitutionID,
			CashBalance:   account.CashBalance,
			CreditLimit:   account.CreditLimit,
			MinBalance:    account.MinBalance,
			Holdings:      string(holdings),
		}
		if err := s.db.CreateAccountRecord(record); err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.AccountID, err)
		}
	}

	for _, inst := range e.Registry().Institutions() {
		accounts, err := json.Marshal(inst.AccountIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal accounts for institution %s: %w", inst.InstitutionID, err)
		}
		record := &InstitutionRecord{
			InstitutionID: inst.InstitutionID,
			Name:          inst.Name,
			AllowPartial:  inst.AllowPartial,
			Accounts:      string(accounts),
		}
		if err := s.db.CreateInstitutionRecord(record); err != nil {
			return fmt.Errorf("failed to save institution %s: %w", inst.InstitutionID, err)
		}
	}

	instructions := e.Store().Instructions()
	for _, instr := range instructions {
		if err := s.db.CreateInstruction(instr); err != nil {
			return fmt.Errorf("failed to save instruction %s: %w", instr.InstructionID, err)
		}
	}

	for _, cancel := range e.Store().ProcessedCancels() {
		if err := s.db.CreateCancel(cancel); err != nil {
			return fmt.Errorf("failed to save cancel %s: %w", cancel.CancelID, err)
		}
	}

	confirmations := e.Store().Confirmations()
	for _, confirmation := range confirmations {
		if err := s.db.CreateConfirmation(confirmation); err != nil {
			return fmt.Errorf("failed to save confirmation %s: %w", confirmation.ConfirmationID, err)
		}
	}

	events := e.Audit().Activity()
	if err := s.db.CreateEvents(events); err != nil {
		return fmt.Errorf("failed to save audit events: %w", err)
	}

	logger.Info().
		Int("instructions", len(instructions)).
		Int("confirmations", len(confirmations)).
		Int("audit_events", len(events)).
		Msg("snapshot exported")
	return nil
}
