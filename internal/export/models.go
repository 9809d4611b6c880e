package export

import (
	"gorm.io/gorm"
)

// AccountRecord is the persisted form of a ledger account. Holdings are
// serialized to a JSON object keyed by security type.
type AccountRecord struct {
	gorm.Model    `json:"-"`
	AccountID     string  `gorm:"uniqueIndex" json:"account_id"`
	InstitutionID string  `json:"institution_id"`
	CashBalance   float64 `json:"cash_balance"`
	CreditLimit   float64 `json:"credit_limit"`
	MinBalance    float64 `json:"min_balance"`
	Holdings      string  `json:"holdings"` // JSON object: security type -> quantity
}

// InstitutionRecord is the persisted form of an institution. Account IDs are
// serialized to a JSON array.
type InstitutionRecord struct {
	gorm.Model    `json:"-"`
	InstitutionID string `gorm:"uniqueIndex" json:"institution_id"`
	Name          string `json:"name"`
	AllowPartial  bool   `json:"allow_partial"`
	Accounts      string `json:"accounts"` // JSON array of account IDs
}
