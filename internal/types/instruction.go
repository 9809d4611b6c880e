package types

import (
	"time"

	"gorm.io/gorm"
)

// Instruction statuses
const (
	StatusNew              = "NEW"
	StatusValidated        = "VALIDATED"
	StatusMatched          = "MATCHED"
	StatusPartiallySettled = "PARTIALLY_SETTLED"
	StatusSettled          = "SETTLED"
	StatusFailed           = "FAILED"
	StatusCanceled         = "CANCELED"
)

// Instruction leg kinds
const (
	LegPayment  = "PAYMENT"
	LegSecurity = "SECURITY"
)

// CashSecurityType is the security type carried by payment legs.
const CashSecurityType = "CASH"

// Instruction is one leg of a delivery-versus-payment transaction. A
// transaction consists of exactly one payment leg and one security leg
// sharing a transaction ID.
type Instruction struct {
	gorm.Model           `json:"-"`
	InstructionID        string    `gorm:"uniqueIndex" json:"instruction_id"`
	TransactionID        string    `json:"transaction_id"`
	Kind                 string    `json:"kind"`          // PAYMENT or SECURITY
	SecurityType         string    `json:"security_type"` // CASH for payment legs
	Quantity             float64   `json:"quantity"`
	Price                float64   `json:"price"`
	Amount               float64   `json:"amount"` // quantity * price at creation
	SendingInstitution   string    `json:"sending_institution"`
	ReceivingInstitution string    `json:"receiving_institution"`
	SendingAccount       string    `json:"sending_account"`
	ReceivingAccount     string    `json:"receiving_account"`
	Status               string    `json:"status"`
	ParentID             string    `json:"parent_id,omitempty"` // set on children of a partial fill
	Timestamp            time.Time `json:"timestamp"`
}

// Terminal reports whether the instruction can no longer change state.
func (i *Instruction) Terminal() bool {
	switch i.Status {
	case StatusSettled, StatusFailed, StatusCanceled, StatusPartiallySettled:
		return true
	}
	return false
}

// Cancel marks the instruction canceled unless it already reached a terminal
// state. Returns true if the status changed.
func (i *Instruction) Cancel() bool {
	if i.Terminal() {
		return false
	}
	i.Status = StatusCanceled
	return true
}

// Valid reports whether the instruction passes basic validation.
func (i *Instruction) Valid() bool {
	return i.Quantity > 0 && i.Price > 0
}

// CancelInstruction is a control message requesting cancellation of every
// live leg of a transaction. It is not itself a settlement leg.
type CancelInstruction struct {
	gorm.Model    `json:"-"`
	CancelID      string    `gorm:"uniqueIndex" json:"cancel_id"`
	TransactionID string    `json:"transaction_id"`
	Institution   string    `json:"institution"`
	Timestamp     time.Time `json:"timestamp"`
	Processed     bool      `json:"processed"`
}
