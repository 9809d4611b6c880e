package validation

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/institution"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// Service validates incoming instructions and applies cancellation requests.
// Cancellations are processed before any validation within a tick, so a
// cancel arriving in tick N suppresses instructions of the same transaction
// wherever they sit in the pipeline.
type Service struct {
	store    *store.Store
	registry *institution.Registry
	sink     *audit.Sink
}

func NewService(st *store.Store, registry *institution.Registry, sink *audit.Sink) *Service {
	return &Service{
		store:    st,
		registry: registry,
		sink:     sink,
	}
}

// Name identifies the stage to the scheduler.
func (s *Service) Name() string { return "validation" }

// Step runs one validation pass: pending cancellations first, then every
// queued incoming instruction.
func (s *Service) Step(tick int) {
	logger := log.With().
		Str("service", "validation").
		Int("tick", tick).
		Logger()

	for _, cancel := range s.store.DrainCancels() {
		canceled := s.store.CancelTransaction(cancel.TransactionID)
		if canceled == 0 {
			logger.Warn().
				Str("transaction_id", cancel.TransactionID).
				Msg("cancellation targets transaction with no live instructions")
			s.sink.Record(tick, s.Name(), audit.KindUnknownTransaction, cancel.TransactionID,
				"no live instructions to cancel", false)
		} else {
			logger.Info().
				Str("transaction_id", cancel.TransactionID).
				Int("canceled", canceled).
				Msg("processed cancellation")
			s.sink.Record(tick, s.Name(), audit.KindProcessedCancellation, cancel.TransactionID,
				fmt.Sprintf("canceled %d instructions", canceled), true)
		}
		s.store.MarkCancelProcessed(cancel)
	}

	validated, rejected := 0, 0
	for _, instr := range s.store.DrainIncoming() {
		if instr.Status == types.StatusCanceled {
			logger.Debug().
				Str("instruction_id", instr.InstructionID).
				Msg("skipping canceled instruction")
			s.sink.Record(tick, s.Name(), audit.KindSkippedCanceled, instr.TransactionID,
				instr.InstructionID, false)
			continue
		}

		if instr.Valid() {
			instr.Status = types.StatusValidated
			s.store.AppendValidated(instr)
			s.registry.Notify(instr.SendingInstitution, "validation_result", instr.TransactionID,
				fmt.Sprintf("instruction %s valid", instr.InstructionID))
			s.sink.Record(tick, s.Name(), audit.KindValidated, instr.TransactionID,
				instr.InstructionID, true)
			validated++
		} else {
			instr.Status = types.StatusFailed
			s.registry.Notify(instr.SendingInstitution, "validation_result", instr.TransactionID,
				fmt.Sprintf("instruction %s invalid", instr.InstructionID))
			logger.Warn().
				Str("instruction_id", instr.InstructionID).
				Float64("quantity", instr.Quantity).
				Float64("price", instr.Price).
				Msg("rejected invalid instruction")
			s.sink.Record(tick, s.Name(), audit.KindRejected, instr.TransactionID,
				instr.InstructionID, true)
			rejected++
		}
	}

	if validated > 0 || rejected > 0 {
		logger.Info().
			Int("validated", validated).
			Int("rejected", rejected).
			Msg("validation pass completed")
	}
}
