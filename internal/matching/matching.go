package matching

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// Service pairs payment and security legs sharing a transaction ID. A
// transaction becomes a complete matched pair exactly when both slots are
// filled and neither leg is canceled.
type Service struct {
	store *store.Store
	sink  *audit.Sink
}

func NewService(st *store.Store, sink *audit.Sink) *Service {
	return &Service{
		store: st,
		sink:  sink,
	}
}

// Name identifies the stage to the scheduler.
func (s *Service) Name() string { return "matching" }

// Step drains the validated queue into the per-transaction leg slots and
// promotes completed pairs to Matched.
func (s *Service) Step(tick int) {
	logger := log.With().
		Str("service", "matching").
		Int("tick", tick).
		Logger()

	for _, instr := range s.store.DrainValidated() {
		if instr.Status == types.StatusCanceled {
			logger.Debug().
				Str("instruction_id", instr.InstructionID).
				Msg("dropping canceled leg")
			continue
		}
		pair := s.store.Pair(instr.TransactionID)
		switch instr.Kind {
		case types.LegPayment:
			pair.Payment = instr
		case types.LegSecurity:
			pair.Security = instr
		default:
			logger.Error().
				Str("instruction_id", instr.InstructionID).
				Str("kind", instr.Kind).
				Msg("unknown leg kind")
		}
	}

	matched := 0
	for _, transactionID := range s.store.PairTransactions() {
		pair := s.store.LookupPair(transactionID)
		if pair == nil {
			continue
		}
		if pair.Payment != nil && pair.Payment.Status == types.StatusCanceled ||
			pair.Security != nil && pair.Security.Status == types.StatusCanceled {
			s.store.RemovePair(transactionID)
			continue
		}
		if !pair.Complete() {
			continue
		}
		pair.Payment.Status = types.StatusMatched
		pair.Security.Status = types.StatusMatched
		matched++

		logger.Debug().
			Str("transaction_id", transactionID).
			Str("payment_id", pair.Payment.InstructionID).
			Str("security_id", pair.Security.InstructionID).
			Msg("matched pair completed")
	}

	if matched > 0 {
		logger.Info().Int("matched", matched).Msg("matching pass completed")
		s.sink.Record(tick, s.Name(), audit.KindMatchedTransactions, "",
			fmt.Sprintf("%d complete pairs", matched), false)
	}
}
