package store

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// MatchedPair holds the per-transaction leg slots filled by the matching
// stage. A pair is complete when both slots are occupied.
type MatchedPair struct {
	Payment  *types.Instruction
	Security *types.Instruction
}

// Complete reports whether both legs are present and neither is canceled.
func (p *MatchedPair) Complete() bool {
	return p.Payment != nil && p.Security != nil &&
		p.Payment.Status != types.StatusCanceled &&
		p.Security.Status != types.StatusCanceled
}

// Store is the exclusive owner of all lifecycle queues and instruction
// objects. Stages hold only transient references while processing a tick.
type Store struct {
	incoming  []*types.Instruction
	cancels   []*types.CancelInstruction
	validated []*types.Instruction
	matched   map[string]*MatchedPair

	clearingQueue    []*types.ClearingReport
	positioningQueue []*types.PositioningReport

	confirmations      []*types.SettlementConfirmation
	clearingHistory    []*types.ClearingReport
	positioningHistory []*types.PositioningReport
	processedCancels   []*types.CancelInstruction

	instructions  map[string]*types.Instruction
	byTransaction map[string][]*types.Instruction
}

func NewStore() *Store {
	return &Store{
		matched:       make(map[string]*MatchedPair),
		instructions:  make(map[string]*types.Instruction),
		byTransaction: make(map[string][]*types.Instruction),
	}
}

// SubmitInstruction registers a new instruction and places it on the incoming
// queue.
func (s *Store) SubmitInstruction(instr *types.Instruction) {
	s.register(instr)
	s.incoming = append(s.incoming, instr)
}

// register indexes an instruction without queueing it.
func (s *Store) register(instr *types.Instruction) {
	s.instructions[instr.InstructionID] = instr
	s.byTransaction[instr.TransactionID] = append(s.byTransaction[instr.TransactionID], instr)
}

// SubmitCancel queues a cancellation control message.
func (s *Store) SubmitCancel(cancel *types.CancelInstruction) {
	s.cancels = append(s.cancels, cancel)
}

// DrainIncoming removes and returns all queued incoming instructions.
func (s *Store) DrainIncoming() []*types.Instruction {
	queued := s.incoming
	s.incoming = nil
	return queued
}

// DrainCancels removes and returns all pending cancellation messages.
func (s *Store) DrainCancels() []*types.CancelInstruction {
	queued := s.cancels
	s.cancels = nil
	return queued
}

// AppendValidated places an instruction on the validated queue.
func (s *Store) AppendValidated(instr *types.Instruction) {
	s.validated = append(s.validated, instr)
}

// ReinsertValidated registers a child instruction produced by a partial fill
// and places it directly on the validated queue, bypassing validation of the
// already-validated parent.
func (s *Store) ReinsertValidated(instr *types.Instruction) {
	s.register(instr)
	s.validated = append(s.validated, instr)
}

// ReinsertSettledChild registers the settled child of a partial fill so it
// appears in instruction snapshots. It is terminal and joins no queue.
func (s *Store) ReinsertSettledChild(instr *types.Instruction) {
	s.register(instr)
}

// DrainValidated removes and returns all queued validated instructions.
func (s *Store) DrainValidated() []*types.Instruction {
	queued := s.validated
	s.validated = nil
	return queued
}

// Pair returns the matched-pair slots for a transaction, creating the entry
// if absent.
func (s *Store) Pair(transactionID string) *MatchedPair {
	pair, exists := s.matched[transactionID]
	if !exists {
		pair = &MatchedPair{}
		s.matched[transactionID] = pair
	}
	return pair
}

// PairTransactions returns the transaction IDs currently in the matched-pair
// table, ordered for deterministic iteration.
func (s *Store) PairTransactions() []string {
	ids := make([]string, 0, len(s.matched))
	for id := range s.matched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LookupPair returns the pair for a transaction, or nil.
func (s *Store) LookupPair(transactionID string) *MatchedPair {
	return s.matched[transactionID]
}

// RemovePair deletes a transaction from the matched-pair table.
func (s *Store) RemovePair(transactionID string) {
	delete(s.matched, transactionID)
}

// EnqueueClearing appends a clearing report for the positioning stage.
func (s *Store) EnqueueClearing(report *types.ClearingReport) {
	s.clearingQueue = append(s.clearingQueue, report)
	s.clearingHistory = append(s.clearingHistory, report)
}

// DrainClearing removes and returns all queued clearing reports.
func (s *Store) DrainClearing() []*types.ClearingReport {
	queued := s.clearingQueue
	s.clearingQueue = nil
	return queued
}

// EnqueuePositioning appends a positioning report for the settlement stage.
func (s *Store) EnqueuePositioning(report *types.PositioningReport) {
	s.positioningQueue = append(s.positioningQueue, report)
	s.positioningHistory = append(s.positioningHistory, report)
}

// DrainPositioning removes and returns all queued positioning reports in FIFO
// order.
func (s *Store) DrainPositioning() []*types.PositioningReport {
	queued := s.positioningQueue
	s.positioningQueue = nil
	return queued
}

// AddConfirmation records a settlement confirmation.
func (s *Store) AddConfirmation(confirmation *types.SettlementConfirmation) {
	s.confirmations = append(s.confirmations, confirmation)
}

// MarkCancelProcessed retires a handled cancellation message.
func (s *Store) MarkCancelProcessed(cancel *types.CancelInstruction) {
	cancel.Processed = true
	s.processedCancels = append(s.processedCancels, cancel)
}

// CancelTransaction cancels every non-terminal instruction sharing the
// transaction ID, wherever it sits in the pipeline, and removes the
// transaction from the matched-pair table. Returns the number of
// instructions canceled.
func (s *Store) CancelTransaction(transactionID string) int {
	canceled := 0
	for _, instr := range s.byTransaction[transactionID] {
		if instr.Cancel() {
			canceled++
		}
	}
	if _, exists := s.matched[transactionID]; exists {
		delete(s.matched, transactionID)
		log.Debug().
			Str("service", "store").
			Str("transaction_id", transactionID).
			Msg("removed matched pair for canceled transaction")
	}
	return canceled
}

// Instruction returns the instruction with the given ID, or nil.
func (s *Store) Instruction(instructionID string) *types.Instruction {
	return s.instructions[instructionID]
}

// Instructions returns every instruction ever registered, ordered by ID.
func (s *Store) Instructions() []*types.Instruction {
	all := make([]*types.Instruction, 0, len(s.instructions))
	for _, instr := range s.instructions {
		all = append(all, instr)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].InstructionID < all[j].InstructionID
	})
	return all
}

// TransactionInstructions returns all instructions for a transaction.
func (s *Store) TransactionInstructions(transactionID string) []*types.Instruction {
	return s.byTransaction[transactionID]
}

// Confirmations returns all settlement confirmations.
func (s *Store) Confirmations() []*types.SettlementConfirmation {
	return s.confirmations
}

// ClearingReports returns every clearing report produced so far.
func (s *Store) ClearingReports() []*types.ClearingReport {
	return s.clearingHistory
}

// PositioningReports returns every positioning report produced so far.
func (s *Store) PositioningReports() []*types.PositioningReport {
	return s.positioningHistory
}

// ProcessedCancels returns all handled cancellation messages.
func (s *Store) ProcessedCancels() []*types.CancelInstruction {
	return s.processedCancels
}
