package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientSecurities = errors.New("insufficient securities")
	ErrDuplicateAccount       = errors.New("account already registered")
	ErrUnknownAccount         = errors.New("unknown account")
)

// Ledger owns all account state. Debits enforce the balance invariants;
// credits never fail.
type Ledger struct {
	accounts map[string]*Account
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*Account),
	}
}

// Register adds a new account to the ledger.
func (l *Ledger) Register(account *Account) error {
	logger := log.With().
		Str("service", "ledger").
		Str("account_id", account.AccountID).
		Logger()

	if _, exists := l.accounts[account.AccountID]; exists {
		logger.Error().Msg("duplicate account registration attempt")
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, account.AccountID)
	}
	if account.Holdings == nil {
		account.Holdings = make(map[string]float64)
	}
	l.accounts[account.AccountID] = account

	logger.Info().
		Str("institution_id", account.InstitutionID).
		Float64("cash_balance", account.CashBalance).
		Float64("credit_limit", account.CreditLimit).
		Msg("account registered")
	return nil
}

// Get returns the account with the given ID.
func (l *Ledger) Get(accountID string) (*Account, error) {
	account, exists := l.accounts[accountID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return account, nil
}

// Accounts returns all accounts ordered by ID.
func (l *Ledger) Accounts() []*Account {
	accounts := make([]*Account, 0, len(l.accounts))
	for _, account := range l.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts
}

// DebitCash reduces the account's cash by amount, drawing into the credit
// limit when cash alone is insufficient: cash floors at zero and the deficit
// shrinks the remaining credit line. Fails without mutation when the debit
// would breach cash+credit >= 0. Returns the amount actually debited.
func (l *Ledger) DebitCash(accountID string, amount float64) (float64, error) {
	account, err := l.Get(accountID)
	if err != nil {
		return 0, err
	}
	if account.CashBalance-amount+account.CreditLimit < 0 {
		log.Debug().
			Str("service", "ledger").
			Str("account_id", accountID).
			Float64("amount", amount).
			Float64("available", account.Available()).
			Msg("cash debit refused")
		return 0, fmt.Errorf("%w: account %s needs %.2f, has %.2f available",
			ErrInsufficientFunds, accountID, amount, account.Available())
	}

	if account.CashBalance >= amount {
		account.CashBalance -= amount
	} else {
		deficit := amount - account.CashBalance
		account.CashBalance = 0
		account.CreditLimit -= deficit
	}

	log.Debug().
		Str("service", "ledger").
		Str("account_id", accountID).
		Float64("amount", amount).
		Float64("cash_balance", account.CashBalance).
		Float64("credit_limit", account.CreditLimit).
		Msg("cash debited")
	return amount, nil
}

// CreditCash increases the account's cash. Never fails.
func (l *Ledger) CreditCash(accountID string, amount float64) error {
	account, err := l.Get(accountID)
	if err != nil {
		return err
	}
	account.CashBalance += amount

	log.Debug().
		Str("service", "ledger").
		Str("account_id", accountID).
		Float64("amount", amount).
		Float64("cash_balance", account.CashBalance).
		Msg("cash credited")
	return nil
}

// DebitSecurity decrements the account's holding of the given security type.
func (l *Ledger) DebitSecurity(accountID, securityType string, amount float64) error {
	account, err := l.Get(accountID)
	if err != nil {
		return err
	}
	if account.Holdings[securityType] < amount {
		log.Debug().
			Str("service", "ledger").
			Str("account_id", accountID).
			Str("security_type", securityType).
			Float64("amount", amount).
			Float64("held", account.Holdings[securityType]).
			Msg("security debit refused")
		return fmt.Errorf("%w: account %s holds %.2f of %s, needs %.2f",
			ErrInsufficientSecurities, accountID, account.Holdings[securityType], securityType, amount)
	}
	account.Holdings[securityType] -= amount

	log.Debug().
		Str("service", "ledger").
		Str("account_id", accountID).
		Str("security_type", securityType).
		Float64("amount", amount).
		Float64("held", account.Holdings[securityType]).
		Msg("security debited")
	return nil
}

// CreditSecurity increments the account's holding, creating the entry if
// absent.
func (l *Ledger) CreditSecurity(accountID, securityType string, amount float64) error {
	account, err := l.Get(accountID)
	if err != nil {
		return err
	}
	account.Holdings[securityType] += amount

	log.Debug().
		Str("service", "ledger").
		Str("account_id", accountID).
		Str("security_type", securityType).
		Float64("amount", amount).
		Float64("held", account.Holdings[securityType]).
		Msg("security credited")
	return nil
}

// TotalCash sums cash balances across all accounts.
func (l *Ledger) TotalCash() float64 {
	var total float64
	for _, account := range l.accounts {
		total += account.CashBalance
	}
	return total
}

// TotalHoldings sums the held quantity of a security type across all accounts.
func (l *Ledger) TotalHoldings(securityType string) float64 {
	var total float64
	for _, account := range l.accounts {
		total += account.Holdings[securityType]
	}
	return total
}
