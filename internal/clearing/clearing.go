package clearing

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// DefaultRiskFactor is applied to the net amount when no factor is configured.
const DefaultRiskFactor = 0.05

// Service computes net cash amounts and risk exposure for matched pairs.
// Each pair is consumed exactly once: the matched-pair entry is removed after
// processing.
type Service struct {
	store      *store.Store
	sink       *audit.Sink
	riskFactor float64

	totalPossibleNet float64
}

func NewService(st *store.Store, sink *audit.Sink, riskFactor float64) *Service {
	if riskFactor <= 0 {
		riskFactor = DefaultRiskFactor
	}
	return &Service{
		store:      st,
		sink:       sink,
		riskFactor: riskFactor,
	}
}

// Name identifies the stage to the scheduler.
func (s *Service) Name() string { return "clearing" }

// TotalPossibleNet returns the cumulative net amount of every cleared pair,
// the denominator of the settlement-efficiency metric.
func (s *Service) TotalPossibleNet() float64 {
	return s.totalPossibleNet
}

// Step clears every complete matched pair, emitting one clearing report per
// pair. Pairs with a canceled leg are dropped without a report.
func (s *Service) Step(tick int) {
	logger := log.With().
		Str("service", "clearing").
		Int("tick", tick).
		Logger()

	cleared := 0
	for _, transactionID := range s.store.PairTransactions() {
		pair := s.store.LookupPair(transactionID)
		if pair == nil || pair.Payment == nil || pair.Security == nil {
			continue
		}
		if pair.Payment.Status == types.StatusCanceled || pair.Security.Status == types.StatusCanceled {
			logger.Debug().
				Str("transaction_id", transactionID).
				Msg("dropping pair with canceled leg")
			s.sink.Record(tick, s.Name(), audit.KindCanceledPair, transactionID,
				"skipping canceled transaction", true)
			s.store.RemovePair(transactionID)
			continue
		}
		if pair.Payment.Status != types.StatusMatched || pair.Security.Status != types.StatusMatched {
			continue
		}

		payment := pair.Payment
		netAmount := payment.Quantity * payment.Price
		risk := netAmount * s.riskFactor

		report := &types.ClearingReport{
			TransactionID:         transactionID,
			PaymentInstructionID:  payment.InstructionID,
			SecurityInstructionID: pair.Security.InstructionID,
			Payer:                 payment.SendingInstitution,
			Deliverer:             pair.Security.SendingInstitution,
			PayerAccount:          payment.SendingAccount,
			DelivererAccount:      pair.Security.SendingAccount,
			SecurityType:          pair.Security.SecurityType,
			Quantity:              payment.Quantity,
			Price:                 payment.Price,
			NetAmount:             netAmount,
			Risk:                  risk,
		}
		s.store.EnqueueClearing(report)
		s.store.RemovePair(transactionID)
		s.totalPossibleNet += netAmount
		cleared++

		logger.Debug().
			Str("transaction_id", transactionID).
			Float64("net_amount", netAmount).
			Float64("risk", risk).
			Msg("clearing report emitted")
		s.sink.Record(tick, s.Name(), audit.KindClearingReport, transactionID,
			fmt.Sprintf("net %.2f, risk %.2f", netAmount, risk), true)
	}

	if cleared > 0 {
		logger.Info().Int("cleared", cleared).Msg("clearing pass completed")
	}
}
