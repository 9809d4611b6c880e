package institution

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateInstitution = errors.New("institution already registered")
	ErrUnknownInstitution   = errors.New("unknown institution")
)

// Institution is a settlement participant. It owns its accounts exclusively
// and carries the partial-settlement policy consulted by the settlement
// stage.
type Institution struct {
	InstitutionID string   `json:"institution_id"`
	Name          string   `json:"name"`
	AccountIDs    []string `json:"account_ids"`
	AllowPartial  bool     `json:"allow_partial"`
	Notices       []Notice `json:"notices,omitempty"`
}

// Notice is a message delivered to an institution by a pipeline stage:
// validation results and settlement confirmations.
type Notice struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id"`
	Detail        string    `json:"detail"`
	Timestamp     time.Time `json:"timestamp"`
}

// Registry owns all institution records.
type Registry struct {
	institutions map[string]*Institution
}

func NewRegistry() *Registry {
	return &Registry{
		institutions: make(map[string]*Institution),
	}
}

// Register adds a new institution with the given default partial-settlement
// policy.
func (r *Registry) Register(institutionID, name string, allowPartial bool) (*Institution, error) {
	if _, exists := r.institutions[institutionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstitution, institutionID)
	}
	inst := &Institution{
		InstitutionID: institutionID,
		Name:          name,
		AllowPartial:  allowPartial,
	}
	r.institutions[institutionID] = inst

	log.Info().
		Str("service", "institution").
		Str("institution_id", institutionID).
		Bool("allow_partial", allowPartial).
		Msg("institution registered")
	return inst, nil
}

// AddAccount records account ownership for an institution.
func (r *Registry) AddAccount(institutionID, accountID string) error {
	inst, err := r.Get(institutionID)
	if err != nil {
		return err
	}
	for _, id := range inst.AccountIDs {
		if id == accountID {
			return fmt.Errorf("duplicate account %s for institution %s", accountID, institutionID)
		}
	}
	inst.AccountIDs = append(inst.AccountIDs, accountID)
	return nil
}

// Get returns the institution with the given ID.
func (r *Registry) Get(institutionID string) (*Institution, error) {
	inst, exists := r.institutions[institutionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstitution, institutionID)
	}
	return inst, nil
}

// Institutions returns all institutions ordered by ID.
func (r *Registry) Institutions() []*Institution {
	institutions := make([]*Institution, 0, len(r.institutions))
	for _, inst := range r.institutions {
		institutions = append(institutions, inst)
	}
	sort.Slice(institutions, func(i, j int) bool {
		return institutions[i].InstitutionID < institutions[j].InstitutionID
	})
	return institutions
}

// AllowsPartial reports the partial-settlement policy of an institution.
// Unknown institutions settle strictly.
func (r *Registry) AllowsPartial(institutionID string) bool {
	inst, exists := r.institutions[institutionID]
	if !exists {
		return false
	}
	return inst.AllowPartial
}

// OptOutPartial disables partial settlement for an institution. Opting out
// twice is logged and left unchanged.
func (r *Registry) OptOutPartial(institutionID string) error {
	inst, err := r.Get(institutionID)
	if err != nil {
		return err
	}
	logger := log.With().
		Str("service", "institution").
		Str("institution_id", institutionID).
		Logger()

	if !inst.AllowPartial {
		logger.Warn().Msg("already opted out of partial settlements")
		return nil
	}
	inst.AllowPartial = false
	logger.Info().Msg("opted out of partial settlements")
	return nil
}

// OptInPartial enables partial settlement for an institution. Opting in twice
// is logged and left unchanged.
func (r *Registry) OptInPartial(institutionID string) error {
	inst, err := r.Get(institutionID)
	if err != nil {
		return err
	}
	logger := log.With().
		Str("service", "institution").
		Str("institution_id", institutionID).
		Logger()

	if inst.AllowPartial {
		logger.Warn().Msg("already opted in for partial settlements")
		return nil
	}
	inst.AllowPartial = true
	logger.Info().Msg("opted in for partial settlements")
	return nil
}

// Notify delivers a notice to an institution. Notices to unknown institutions
// are dropped.
func (r *Registry) Notify(institutionID, kind, transactionID, detail string) {
	inst, exists := r.institutions[institutionID]
	if !exists {
		return
	}
	inst.Notices = append(inst.Notices, Notice{
		Kind:          kind,
		TransactionID: transactionID,
		Detail:        detail,
		Timestamp:     time.Now(),
	})
}
