package settlement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/institution"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/ledger"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// Service performs the DvP transfer against the ledger, applying the
// partial-fill policy of the involved institutions and spawning child
// instructions for unfilled remainders.
type Service struct {
	store    *store.Store
	ledger   *ledger.Ledger
	registry *institution.Registry
	sink     *audit.Sink

	totalSettledNet float64
}

func NewService(st *store.Store, lg *ledger.Ledger, registry *institution.Registry, sink *audit.Sink) *Service {
	return &Service{
		store:    st,
		ledger:   lg,
		registry: registry,
		sink:     sink,
	}
}

// Name identifies the stage to the scheduler.
func (s *Service) Name() string { return "settlement" }

// TotalSettledNet returns the cumulative net amount actually settled, the
// numerator of the settlement-efficiency metric.
func (s *Service) TotalSettledNet() float64 {
	return s.totalSettledNet
}

// Step settles every queued positioning report in FIFO order. The checks and
// transfer for one report run as a single uninterruptible unit; no other
// report's processing interleaves mid-transfer.
func (s *Service) Step(tick int) {
	for _, report := range s.store.DrainPositioning() {
		s.settle(tick, report)
	}
}

// settle executes the settlement algorithm for one positioning report.
func (s *Service) settle(tick int, report *types.PositioningReport) {
	logger := log.With().
		Str("service", "settlement").
		Int("tick", tick).
		Str("transaction_id", report.TransactionID).
		Logger()

	payment := s.store.Instruction(report.PaymentInstructionID)
	security := s.store.Instruction(report.SecurityInstructionID)
	if payment == nil || security == nil {
		logger.Error().Msg("report references unknown instructions")
		return
	}

	// A cancellation processed after clearing still suppresses settlement.
	if payment.Status == types.StatusCanceled || security.Status == types.StatusCanceled {
		logger.Info().Msg("skipping settlement of canceled transaction")
		s.sink.Record(tick, s.Name(), audit.KindSettlementSkipped, report.TransactionID,
			"transaction canceled before settlement", true)
		return
	}

	if report.Quantity == 0 {
		logger.Warn().Msg("zero-quantity report, nothing to settle")
		s.sink.Record(tick, s.Name(), audit.KindSettlementSkipped, report.TransactionID,
			"zero quantity", true)
		return
	}

	payer, err := s.ledger.Get(report.PayerAccount)
	if err != nil {
		logger.Error().Err(err).Msg("payer account lookup failed")
		s.fail(tick, report, payment, security, audit.KindSettlementSkipped, "unknown payer account")
		return
	}
	deliverer, err := s.ledger.Get(report.DelivererAccount)
	if err != nil {
		logger.Error().Err(err).Msg("deliverer account lookup failed")
		s.fail(tick, report, payment, security, audit.KindSettlementSkipped, "unknown deliverer account")
		return
	}

	price := report.NetAmount / report.Quantity
	netAmount := report.NetAmount
	quantity := report.Quantity
	adjusted := false

	// Cash-sufficiency check on the payer.
	if payer.CashBalance-netAmount+payer.CreditLimit < 0 {
		if !s.registry.AllowsPartial(report.Payer) {
			logger.Info().
				Str("payer", report.Payer).
				Float64("net_amount", netAmount).
				Float64("available", payer.Available()).
				Msg("payer cannot fund transfer and opted out of partial settlement")
			s.fail(tick, report, payment, security, audit.KindSettlementSkipped,
				fmt.Sprintf("%s insufficient cash, partial disallowed", report.Payer))
			return
		}
		available := payer.Available()
		if available <= 0 {
			s.fail(tick, report, payment, security, audit.KindSettlementSkipped,
				fmt.Sprintf("%s has no available cash", report.Payer))
			return
		}
		netAmount = available
		quantity = math.Floor(netAmount / price)
		if quantity <= 0 {
			s.fail(tick, report, payment, security, audit.KindSettlementSkipped,
				fmt.Sprintf("%s available cash below one unit", report.Payer))
			return
		}
		adjusted = true
	}

	// Security-sufficiency check on the deliverer for the possibly adjusted
	// quantity.
	if deliverer.Holding(report.SecurityType) < quantity {
		if !s.registry.AllowsPartial(report.Deliverer) {
			logger.Info().
				Str("deliverer", report.Deliverer).
				Float64("quantity", quantity).
				Float64("held", deliverer.Holding(report.SecurityType)).
				Msg("deliverer cannot cover quantity and opted out of partial settlement")
			s.fail(tick, report, payment, security, audit.KindSettlementSkipped,
				fmt.Sprintf("%s insufficient securities, partial disallowed", report.Deliverer))
			return
		}
		allowed := deliverer.Holding(report.SecurityType) - deliverer.MinBalance
		if allowed <= 0 {
			s.fail(tick, report, payment, security, audit.KindSettlementSkipped,
				fmt.Sprintf("%s has no deliverable securities", report.Deliverer))
			return
		}
		quantity = allowed
		netAmount = quantity * price
		adjusted = true
	}

	// Two-step transfer. The cash and security legs are applied as separate
	// ledger calls; a failure on the security debit after the cash moved is
	// logged as an inconsistency and NOT rolled back.
	if _, err := s.ledger.DebitCash(report.PayerAccount, netAmount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			logger.Warn().Err(err).Msg("settlement failed on cash debit")
		} else {
			logger.Error().Err(err).Msg("settlement failed on cash debit")
		}
		s.fail(tick, report, payment, security, audit.KindSettlementFailed, err.Error())
		return
	}
	if err := s.ledger.CreditCash(report.DelivererAccount, netAmount); err != nil {
		logger.Error().Err(err).Msg("settlement failed on cash credit")
		s.fail(tick, report, payment, security, audit.KindSettlementFailed, err.Error())
		return
	}
	if err := s.ledger.DebitSecurity(report.DelivererAccount, report.SecurityType, quantity); err != nil {
		// The sufficiency check above should have prevented this. The cash
		// leg has already been applied and stays applied; the mismatch is
		// surfaced as a data-integrity event.
		logger.Error().Err(err).
			Float64("net_amount", netAmount).
			Float64("quantity", quantity).
			Msg("security debit failed after cash leg applied, balances inconsistent")
		s.sink.Record(tick, s.Name(), audit.KindSettlementInconsistency, report.TransactionID,
			fmt.Sprintf("cash leg %.2f applied, security leg %.2f failed: %v", netAmount, quantity, err), true)
		payment.Status = types.StatusFailed
		security.Status = types.StatusFailed
		return
	}
	if err := s.ledger.CreditSecurity(report.PayerAccount, report.SecurityType, quantity); err != nil {
		logger.Error().Err(err).Msg("settlement failed on security credit")
		s.fail(tick, report, payment, security, audit.KindSettlementFailed, err.Error())
		return
	}

	status := types.SettlementFull
	if adjusted {
		status = types.SettlementPartial
	}

	confirmation := &types.SettlementConfirmation{
		ConfirmationID:   "CNF_" + uuid.New().String(),
		TransactionID:    report.TransactionID,
		SettlementStatus: status,
		AdjustedQuantity: quantity,
		AdjustedAmount:   netAmount,
		SettledAt:        time.Now(),
	}
	s.store.AddConfirmation(confirmation)
	s.totalSettledNet += netAmount

	s.registry.Notify(report.Payer, "settlement_confirmation", report.TransactionID, status)
	s.registry.Notify(report.Deliverer, "settlement_confirmation", report.TransactionID, status)

	if adjusted {
		s.spawnChildren(tick, payment, quantity, netAmount, price)
		s.spawnChildren(tick, security, quantity, netAmount, price)
		payment.Status = types.StatusPartiallySettled
		security.Status = types.StatusPartiallySettled
	} else {
		payment.Status = types.StatusSettled
		security.Status = types.StatusSettled
	}

	logger.Info().
		Str("status", status).
		Float64("quantity", quantity).
		Float64("net_amount", netAmount).
		Msg("transaction settled")
	s.sink.Record(tick, s.Name(), audit.KindSettled, report.TransactionID,
		fmt.Sprintf("%s: qty %.2f, net %.2f", status, quantity, netAmount), true)
}

// fail marks both legs failed and records the outcome under the given kind:
// SettlementSkipped for pre-transfer refusals, SettlementFailed when a
// ledger operation failed during the transfer itself.
func (s *Service) fail(tick int, report *types.PositioningReport, payment, security *types.Instruction, kind, detail string) {
	payment.Status = types.StatusFailed
	security.Status = types.StatusFailed
	s.sink.Record(tick, s.Name(), kind, report.TransactionID, detail, true)
}

// spawnChildren splits a partially filled instruction into a settled child
// covering the filled amount and a pending child covering the remainder. The
// pending child re-enters at the validated boundary so the remainder can be
// retried on a later pass; it never re-triggers validation of the parent.
// The parent is superseded and must never be settled again.
func (s *Service) spawnChildren(tick int, parent *types.Instruction, filledQty, filledNet, price float64) {
	remainderQty := parent.Quantity - filledQty
	remainderNet := remainderQty * price

	settled := childOf(parent, "1", filledQty, filledNet)
	settled.Status = types.StatusSettled
	s.store.ReinsertSettledChild(settled)

	pending := childOf(parent, "2", remainderQty, remainderNet)
	pending.Status = types.StatusValidated
	s.store.ReinsertValidated(pending)

	log.Debug().
		Str("service", "settlement").
		Str("parent_id", parent.InstructionID).
		Float64("filled_quantity", filledQty).
		Float64("remainder_quantity", remainderQty).
		Msg("spawned child instructions for partial fill")
	s.sink.Record(tick, s.Name(), audit.KindPartialFill, parent.TransactionID,
		fmt.Sprintf("instruction %s split: filled %.2f, remainder %.2f", parent.InstructionID, filledQty, remainderQty), true)
}

// childOf copies the parent's routing with an adjusted quantity and amount.
func childOf(parent *types.Instruction, suffix string, quantity, amount float64) *types.Instruction {
	return &types.Instruction{
		InstructionID:        parent.InstructionID + "-" + suffix,
		TransactionID:        parent.TransactionID,
		Kind:                 parent.Kind,
		SecurityType:         parent.SecurityType,
		Quantity:             quantity,
		Price:                parent.Price,
		Amount:               amount,
		SendingInstitution:   parent.SendingInstitution,
		ReceivingInstitution: parent.ReceivingInstitution,
		SendingAccount:       parent.SendingAccount,
		ReceivingAccount:     parent.ReceivingAccount,
		ParentID:             parent.InstructionID,
		Timestamp:            time.Now(),
	}
}
