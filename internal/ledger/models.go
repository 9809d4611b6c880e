package ledger

// Account holds the cash and security positions owned by an institution.
// Mutated only through Ledger operations; never destroyed during a run.
//
// Invariants: CashBalance+CreditLimit >= 0 and every holding >= 0.
type Account struct {
	AccountID     string             `json:"account_id"`
	InstitutionID string             `json:"institution_id"`
	CashBalance   float64            `json:"cash_balance"`
	CreditLimit   float64            `json:"credit_limit"` // extends usable cash below zero
	MinBalance    float64            `json:"min_balance"`  // security floor for DvP-style accounts
	Holdings      map[string]float64 `json:"holdings"`     // security type -> quantity
}

// Available returns the cash usable for a debit, including the credit line.
func (a *Account) Available() float64 {
	return a.CashBalance + a.CreditLimit
}

// Holding returns the quantity held of the given security type.
func (a *Account) Holding(securityType string) float64 {
	return a.Holdings[securityType]
}
