package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/institution"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/ledger"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

type fixture struct {
	service  *Service
	store    *store.Store
	ledger   *ledger.Ledger
	registry *institution.Registry
	sink     *audit.Sink

	payment  *types.Instruction
	security *types.Instruction
}

// newFixture wires a settlement service with one positioned transaction:
// INST_A pays quantity*price in cash from ACC_A, INST_B delivers BOND from
// ACC_B.
func newFixture(t *testing.T, quantity, price, payerCash, payerCredit, delivererBonds float64) *fixture {
	t.Helper()

	st := store.NewStore()
	lg := ledger.NewLedger()
	registry := institution.NewRegistry()
	sink := audit.NewSink()

	_, err := registry.Register("INST_A", "Alpha Bank", true)
	require.NoError(t, err)
	_, err = registry.Register("INST_B", "Beta Bank", true)
	require.NoError(t, err)

	require.NoError(t, lg.Register(&ledger.Account{
		AccountID:     "ACC_A",
		InstitutionID: "INST_A",
		CashBalance:   payerCash,
		CreditLimit:   payerCredit,
	}))
	require.NoError(t, lg.Register(&ledger.Account{
		AccountID:     "ACC_B",
		InstitutionID: "INST_B",
		Holdings:      map[string]float64{"BOND": delivererBonds},
	}))

	f := &fixture{
		service:  NewService(st, lg, registry, sink),
		store:    st,
		ledger:   lg,
		registry: registry,
		sink:     sink,
	}

	net := quantity * price
	f.payment = &types.Instruction{
		InstructionID:        "TX_1-P",
		TransactionID:        "TX_1",
		Kind:                 types.LegPayment,
		SecurityType:         types.CashSecurityType,
		Quantity:             quantity,
		Price:                price,
		Amount:               net,
		SendingInstitution:   "INST_A",
		ReceivingInstitution: "INST_B",
		SendingAccount:       "ACC_A",
		ReceivingAccount:     "ACC_B",
		Status:               types.StatusMatched,
	}
	f.security = &types.Instruction{
		InstructionID:        "TX_1-S",
		TransactionID:        "TX_1",
		Kind:                 types.LegSecurity,
		SecurityType:         "BOND",
		Quantity:             quantity,
		Price:                price,
		Amount:               net,
		SendingInstitution:   "INST_B",
		ReceivingInstitution: "INST_A",
		SendingAccount:       "ACC_B",
		ReceivingAccount:     "ACC_A",
		Status:               types.StatusMatched,
	}
	st.SubmitInstruction(f.payment)
	st.SubmitInstruction(f.security)
	st.DrainIncoming()

	st.EnqueuePositioning(&types.PositioningReport{
		TransactionID:         "TX_1",
		PaymentInstructionID:  "TX_1-P",
		SecurityInstructionID: "TX_1-S",
		Payer:                 "INST_A",
		Deliverer:             "INST_B",
		PayerAccount:          "ACC_A",
		DelivererAccount:      "ACC_B",
		SecurityType:          "BOND",
		Quantity:              quantity,
		NetAmount:             net,
	})
	return f
}

func (f *fixture) account(t *testing.T, id string) *ledger.Account {
	t.Helper()
	account, err := f.ledger.Get(id)
	require.NoError(t, err)
	return account
}

func TestFullSettlement(t *testing.T) {
	f := newFixture(t, 10, 20, 1000, 0, 10)

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	deliverer := f.account(t, "ACC_B")
	assert.Equal(t, 800.0, payer.CashBalance)
	assert.Equal(t, 10.0, payer.Holding("BOND"))
	assert.Equal(t, 200.0, deliverer.CashBalance)
	assert.Equal(t, 0.0, deliverer.Holding("BOND"))

	assert.Equal(t, types.StatusSettled, f.payment.Status)
	assert.Equal(t, types.StatusSettled, f.security.Status)

	confirmations := f.store.Confirmations()
	require.Len(t, confirmations, 1)
	assert.Equal(t, types.SettlementFull, confirmations[0].SettlementStatus)
	assert.Equal(t, 10.0, confirmations[0].AdjustedQuantity)
	assert.Equal(t, 200.0, confirmations[0].AdjustedAmount)

	assert.Equal(t, 200.0, f.service.TotalSettledNet())

	// No children on a full fill.
	assert.Nil(t, f.store.Instruction("TX_1-P-1"))
	assert.Empty(t, f.store.DrainValidated())
}

func TestPartialFillOnCash(t *testing.T) {
	// Net 150 at price 10, but only 100 cash available: 10 units settle, 5
	// remain.
	f := newFixture(t, 15, 10, 100, 0, 20)

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	deliverer := f.account(t, "ACC_B")
	assert.Equal(t, 0.0, payer.CashBalance)
	assert.Equal(t, 10.0, payer.Holding("BOND"))
	assert.Equal(t, 100.0, deliverer.CashBalance)
	assert.Equal(t, 10.0, deliverer.Holding("BOND"))

	confirmations := f.store.Confirmations()
	require.Len(t, confirmations, 1)
	assert.Equal(t, types.SettlementPartial, confirmations[0].SettlementStatus)
	assert.Equal(t, 10.0, confirmations[0].AdjustedQuantity)
	assert.Equal(t, 100.0, confirmations[0].AdjustedAmount)

	assert.Equal(t, types.StatusPartiallySettled, f.payment.Status)
	assert.Equal(t, types.StatusPartiallySettled, f.security.Status)

	// Settled children cover the filled part.
	settledChild := f.store.Instruction("TX_1-P-1")
	require.NotNil(t, settledChild)
	assert.Equal(t, types.StatusSettled, settledChild.Status)
	assert.Equal(t, 10.0, settledChild.Quantity)
	assert.Equal(t, 100.0, settledChild.Amount)
	assert.Equal(t, "TX_1-P", settledChild.ParentID)

	// Pending children re-enter at the validated boundary with the
	// remainder.
	pending := f.store.DrainValidated()
	require.Len(t, pending, 2)
	for _, child := range pending {
		assert.Equal(t, types.StatusValidated, child.Status)
		assert.Equal(t, 5.0, child.Quantity)
		assert.Equal(t, 50.0, child.Amount)
		assert.Equal(t, "TX_1", child.TransactionID)
		assert.NotEmpty(t, child.ParentID)
	}
}

func TestPartialFillDrawsCreditFirst(t *testing.T) {
	// 100 cash + 40 credit covers 140 of the 150 net; quantity floors to 14.
	f := newFixture(t, 15, 10, 100, 40, 20)

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	assert.Equal(t, 0.0, payer.CashBalance)
	assert.Equal(t, 0.0, payer.CreditLimit)
	assert.Equal(t, 14.0, payer.Holding("BOND"))

	confirmations := f.store.Confirmations()
	require.Len(t, confirmations, 1)
	assert.Equal(t, 14.0, confirmations[0].AdjustedQuantity)
	assert.Equal(t, 140.0, confirmations[0].AdjustedAmount)
}

func TestPartialFillOnSecurities(t *testing.T) {
	// Deliverer holds only 6 of the 10 requested units.
	f := newFixture(t, 10, 10, 1000, 0, 6)

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	deliverer := f.account(t, "ACC_B")
	assert.Equal(t, 940.0, payer.CashBalance)
	assert.Equal(t, 6.0, payer.Holding("BOND"))
	assert.Equal(t, 60.0, deliverer.CashBalance)
	assert.Equal(t, 0.0, deliverer.Holding("BOND"))

	confirmations := f.store.Confirmations()
	require.Len(t, confirmations, 1)
	assert.Equal(t, types.SettlementPartial, confirmations[0].SettlementStatus)
	assert.Equal(t, 6.0, confirmations[0].AdjustedQuantity)
	assert.Equal(t, 60.0, confirmations[0].AdjustedAmount)
}

func TestMinBalanceLimitsDelivery(t *testing.T) {
	f := newFixture(t, 10, 10, 1000, 0, 8)
	deliverer := f.account(t, "ACC_B")
	deliverer.MinBalance = 2

	f.service.Step(1)

	// Only 6 of the 8 held units may leave the account.
	assert.Equal(t, 2.0, deliverer.Holding("BOND"))
	confirmations := f.store.Confirmations()
	require.Len(t, confirmations, 1)
	assert.Equal(t, 6.0, confirmations[0].AdjustedQuantity)
}

func TestPayerOptedOutFailsWithoutTransfer(t *testing.T) {
	f := newFixture(t, 15, 10, 100, 0, 20)
	require.NoError(t, f.registry.OptOutPartial("INST_A"))

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	deliverer := f.account(t, "ACC_B")
	assert.Equal(t, 100.0, payer.CashBalance)
	assert.Equal(t, 0.0, payer.Holding("BOND"))
	assert.Equal(t, 20.0, deliverer.Holding("BOND"))

	assert.Equal(t, types.StatusFailed, f.payment.Status)
	assert.Equal(t, types.StatusFailed, f.security.Status)
	assert.Empty(t, f.store.Confirmations())
	assert.Empty(t, f.store.DrainValidated())
	assert.Equal(t, 0.0, f.service.TotalSettledNet())

	// A refusal before any ledger operation is a skip, not a transfer
	// failure.
	events := f.sink.Transactional()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindSettlementSkipped, events[0].Kind)
}

func TestTransferFailureRecordsFailedKind(t *testing.T) {
	f := newFixture(t, 10, 10, 1000, 0, 10)
	report := &types.PositioningReport{TransactionID: "TX_1"}

	f.service.fail(1, report, f.payment, f.security, audit.KindSettlementFailed, "cash debit refused")

	assert.Equal(t, types.StatusFailed, f.payment.Status)
	assert.Equal(t, types.StatusFailed, f.security.Status)
	events := f.sink.Transactional()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindSettlementFailed, events[0].Kind)
}

func TestDelivererOptedOutFailsWithoutTransfer(t *testing.T) {
	f := newFixture(t, 10, 10, 1000, 0, 6)
	require.NoError(t, f.registry.OptOutPartial("INST_B"))

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	assert.Equal(t, 1000.0, payer.CashBalance)
	assert.Equal(t, types.StatusFailed, f.payment.Status)
	assert.Equal(t, types.StatusFailed, f.security.Status)
	assert.Empty(t, f.store.Confirmations())
}

func TestNoAvailableCashFailsEvenWithPartialAllowed(t *testing.T) {
	f := newFixture(t, 10, 10, 0, 0, 20)

	f.service.Step(1)

	assert.Equal(t, types.StatusFailed, f.payment.Status)
	assert.Empty(t, f.store.Confirmations())
}

func TestAdjustedQuantityBelowOneUnitFails(t *testing.T) {
	// 5 available at price 10 floors to zero deliverable units.
	f := newFixture(t, 10, 10, 5, 0, 20)

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	assert.Equal(t, 5.0, payer.CashBalance)
	assert.Equal(t, types.StatusFailed, f.payment.Status)
	assert.Empty(t, f.store.Confirmations())
}

func TestCanceledTransactionSkipped(t *testing.T) {
	f := newFixture(t, 10, 20, 1000, 0, 10)
	f.payment.Status = types.StatusCanceled
	f.security.Status = types.StatusCanceled

	f.service.Step(1)

	payer := f.account(t, "ACC_A")
	assert.Equal(t, 1000.0, payer.CashBalance)
	assert.Empty(t, f.store.Confirmations())

	events := f.sink.Transactional()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindSettlementSkipped, events[0].Kind)
}

func TestSettlementNotifiesBothInstitutions(t *testing.T) {
	f := newFixture(t, 10, 20, 1000, 0, 10)

	f.service.Step(1)

	for _, id := range []string{"INST_A", "INST_B"} {
		inst, err := f.registry.Get(id)
		require.NoError(t, err)
		require.Len(t, inst.Notices, 1)
		assert.Equal(t, "settlement_confirmation", inst.Notices[0].Kind)
		assert.Equal(t, types.SettlementFull, inst.Notices[0].Detail)
	}
}

func TestCashConservation(t *testing.T) {
	f := newFixture(t, 15, 10, 100, 40, 20)
	before := f.ledger.TotalCash()
	bondsBefore := f.ledger.TotalHoldings("BOND")

	f.service.Step(1)

	// Cash drawn from the credit line enters the system; everything else
	// only moves between accounts.
	payer := f.account(t, "ACC_A")
	creditUsed := 40.0 - payer.CreditLimit
	assert.InDelta(t, before+creditUsed, f.ledger.TotalCash(), 1e-9)
	assert.Equal(t, bondsBefore, f.ledger.TotalHoldings("BOND"))
}
