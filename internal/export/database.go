package export

import (
	"gorm.io/gorm"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAccountRecord(record *AccountRecord) error {
	return d.db.Create(record).Error
}

func (d *Database) CreateInstitutionRecord(record *InstitutionRecord) error {
	return d.db.Create(record).Error
}

func (d *Database) CreateInstruction(instr *types.Instruction) error {
	return d.db.Create(instr).Error
}

func (d *Database) CreateCancel(cancel *types.CancelInstruction) error {
	return d.db.Create(cancel).Error
}

func (d *Database) CreateConfirmation(confirmation *types.SettlementConfirmation) error {
	return d.db.Create(confirmation).Error
}

// CreateEvents persists a batch of audit events in one insert.
func (d *Database) CreateEvents(events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return d.db.Create(&events).Error
}

func (d *Database) GetAccountRecord(accountID string) (*AccountRecord, error) {
	var record AccountRecord
	if err := d.db.Where("account_id = ?", accountID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Database) GetConfirmationsByTransaction(transactionID string) ([]types.SettlementConfirmation, error) {
	var confirmations []types.SettlementConfirmation
	if err := d.db.Where("transaction_id = ?", transactionID).Find(&confirmations).Error; err != nil {
		return nil, err
	}
	return confirmations, nil
}
