package positioning

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// Service transforms clearing reports into positioning reports. Stateless,
// one-to-one; the clearing queue is drained every pass.
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
func (s *Service) Name() string { return "positioning" }

// Step drains the clearing queue, emitting one positioning report per
// clearing report.
func (s *Service) Step(tick int) {
	logger := log.With().
		Str("service", "positioning").
		Int("tick", tick).
		Logger()

	reports := s.store.DrainClearing()
	for _, report := range reports {
		positioned := &types.PositioningReport{
			TransactionID:         report.TransactionID,
			PaymentInstructionID:  report.PaymentInstructionID,
			SecurityInstructionID: report.SecurityInstructionID,
			Payer:                 report.Payer,
			Deliverer:             report.Deliverer,
			PayerAccount:          report.PayerAccount,
			DelivererAccount:      report.DelivererAccount,
			SecurityType:          report.SecurityType,
			Quantity:              report.Quantity,
			NetAmount:             report.NetAmount,
			PositionedAt:          time.Now(),
		}
		s.store.EnqueuePositioning(positioned)

		logger.Debug().
			Str("transaction_id", report.TransactionID).
			Float64("quantity", report.Quantity).
			Float64("net_amount", report.NetAmount).
			Msg("positioning report emitted")
		s.sink.Record(tick, s.Name(), audit.KindPositioningReport, report.TransactionID,
			fmt.Sprintf("qty %.2f, net %.2f", report.Quantity, report.NetAmount), true)
	}

	if len(reports) > 0 {
		logger.Info().Int("positioned", len(reports)).Msg("positioning pass completed")
	}
}
