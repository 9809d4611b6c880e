package types

import (
	"time"

	"gorm.io/gorm"
)

// Settlement confirmation statuses
const (
	SettlementFull    = "FULL"
	SettlementPartial = "PARTIAL"
)

// ClearingReport carries the netted amount and risk exposure for a matched
// pair. Immutable once created; consumed exactly once by positioning.
type ClearingReport struct {
	TransactionID         string    `json:"transaction_id"`
	PaymentInstructionID  string    `json:"payment_instruction_id"`
	SecurityInstructionID string    `json:"security_instruction_id"`
	Payer                 string    `json:"payer"`     // payment-leg sending institution
	Deliverer             string    `json:"deliverer"` // security-leg sending institution
	PayerAccount          string    `json:"payer_account"`
	DelivererAccount      string    `json:"deliverer_account"`
	SecurityType          string    `json:"security_type"`
	Quantity              float64   `json:"quantity"`
	Price                 float64   `json:"price"`
	NetAmount             float64   `json:"net_amount"`
	Risk                  float64   `json:"risk"`
}

// PositioningReport is the per-transaction position delta handed to
// settlement. One-to-one with its clearing report.
type PositioningReport struct {
	TransactionID         string    `json:"transaction_id"`
	PaymentInstructionID  string    `json:"payment_instruction_id"`
	SecurityInstructionID string    `json:"security_instruction_id"`
	Payer                 string    `json:"payer"`
	Deliverer             string    `json:"deliverer"`
	PayerAccount          string    `json:"payer_account"`
	DelivererAccount      string    `json:"deliverer_account"`
	SecurityType          string    `json:"security_type"`
	Quantity              float64   `json:"quantity"`
	NetAmount             float64   `json:"net_amount"`
	PositionedAt          time.Time `json:"positioned_at"`
}

// SettlementConfirmation records the outcome of a DvP transfer, carrying the
// possibly adjusted quantity and net amount.
type SettlementConfirmation struct {
	gorm.Model       `json:"-"`
	ConfirmationID   string    `gorm:"uniqueIndex" json:"confirmation_id"`
	TransactionID    string    `json:"transaction_id"`
	SettlementStatus string    `json:"settlement_status"` // FULL or PARTIAL
	AdjustedQuantity float64   `json:"adjusted_quantity"`
	AdjustedAmount   float64   `json:"adjusted_amount"`
	SettledAt        time.Time `json:"settled_at"`
}
