package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

func legs(transactionID string) (*types.Instruction, *types.Instruction) {
	payment := &types.Instruction{
		InstructionID: transactionID + "-P",
		TransactionID: transactionID,
		Kind:          types.LegPayment,
		SecurityType:  types.CashSecurityType,
		Quantity:      10,
		Price:         5,
		Amount:        50,
		Status:        types.StatusNew,
	}
	security := &types.Instruction{
		InstructionID: transactionID + "-S",
		TransactionID: transactionID,
		Kind:          types.LegSecurity,
		SecurityType:  "BOND",
		Quantity:      10,
		Price:         5,
		Amount:        50,
		Status:        types.StatusNew,
	}
	return payment, security
}

func TestDrainIncomingEmptiesQueue(t *testing.T) {
	s := NewStore()
	payment, security := legs("TX_1")
	s.SubmitInstruction(payment)
	s.SubmitInstruction(security)

	drained := s.DrainIncoming()
	assert.Len(t, drained, 2)
	assert.Empty(t, s.DrainIncoming())
}

func TestInstructionLookup(t *testing.T) {
	s := NewStore()
	payment, security := legs("TX_1")
	s.SubmitInstruction(payment)
	s.SubmitInstruction(security)

	assert.Same(t, payment, s.Instruction("TX_1-P"))
	assert.Nil(t, s.Instruction("TX_MISSING-P"))
	assert.Len(t, s.TransactionInstructions("TX_1"), 2)
}

func TestPairCreatesOnce(t *testing.T) {
	s := NewStore()

	pair := s.Pair("TX_1")
	assert.Same(t, pair, s.Pair("TX_1"))
	assert.Same(t, pair, s.LookupPair("TX_1"))
	assert.Nil(t, s.LookupPair("TX_2"))
}

func TestPairCompleteRequiresBothLiveLegs(t *testing.T) {
	s := NewStore()
	payment, security := legs("TX_1")

	pair := s.Pair("TX_1")
	pair.Payment = payment
	assert.False(t, pair.Complete())

	pair.Security = security
	assert.True(t, pair.Complete())

	security.Status = types.StatusCanceled
	assert.False(t, pair.Complete())
}

func TestCancelTransactionAcrossQueues(t *testing.T) {
	s := NewStore()
	payment, security := legs("TX_1")
	s.SubmitInstruction(payment)
	s.SubmitInstruction(security)

	// One leg already matched, the other still incoming.
	payment.Status = types.StatusMatched
	pair := s.Pair("TX_1")
	pair.Payment = payment

	canceled := s.CancelTransaction("TX_1")
	assert.Equal(t, 2, canceled)
	assert.Equal(t, types.StatusCanceled, payment.Status)
	assert.Equal(t, types.StatusCanceled, security.Status)
	assert.Nil(t, s.LookupPair("TX_1"), "matched pair must be removed")
}

func TestCancelTransactionSkipsTerminalLegs(t *testing.T) {
	s := NewStore()
	payment, security := legs("TX_1")
	s.SubmitInstruction(payment)
	s.SubmitInstruction(security)
	payment.Status = types.StatusSettled
	security.Status = types.StatusSettled

	assert.Equal(t, 0, s.CancelTransaction("TX_1"))
	assert.Equal(t, types.StatusSettled, payment.Status)
}

func TestCancelUnknownTransaction(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.CancelTransaction("TX_GHOST"))
}

func TestReinsertValidatedRegistersAndQueues(t *testing.T) {
	s := NewStore()
	payment, _ := legs("TX_1")
	child := &types.Instruction{
		InstructionID: payment.InstructionID + "-2",
		TransactionID: payment.TransactionID,
		Kind:          payment.Kind,
		Quantity:      4,
		Status:        types.StatusValidated,
		ParentID:      payment.InstructionID,
	}

	s.ReinsertValidated(child)

	drained := s.DrainValidated()
	require.Len(t, drained, 1)
	assert.Same(t, child, drained[0])
	assert.Same(t, child, s.Instruction("TX_1-P-2"))
}

func TestReinsertSettledChildJoinsNoQueue(t *testing.T) {
	s := NewStore()
	child := &types.Instruction{
		InstructionID: "TX_1-P-1",
		TransactionID: "TX_1",
		Status:        types.StatusSettled,
	}

	s.ReinsertSettledChild(child)

	assert.Empty(t, s.DrainValidated())
	assert.Same(t, child, s.Instruction("TX_1-P-1"))
}

func TestClearingQueueDrainKeepsHistory(t *testing.T) {
	s := NewStore()
	report := &types.ClearingReport{TransactionID: "TX_1", NetAmount: 50, Risk: 2.5}
	s.EnqueueClearing(report)

	drained := s.DrainClearing()
	require.Len(t, drained, 1)
	assert.Empty(t, s.DrainClearing())
	assert.Len(t, s.ClearingReports(), 1)
}

func TestPositioningQueueFIFO(t *testing.T) {
	s := NewStore()
	first := &types.PositioningReport{TransactionID: "TX_1"}
	second := &types.PositioningReport{TransactionID: "TX_2"}
	s.EnqueuePositioning(first)
	s.EnqueuePositioning(second)

	drained := s.DrainPositioning()
	require.Len(t, drained, 2)
	assert.Same(t, first, drained[0])
	assert.Same(t, second, drained[1])
	assert.Len(t, s.PositioningReports(), 2)
}

func TestMarkCancelProcessed(t *testing.T) {
	s := NewStore()
	cancel := &types.CancelInstruction{CancelID: "CANCEL-TX_1", TransactionID: "TX_1"}
	s.SubmitCancel(cancel)

	drained := s.DrainCancels()
	require.Len(t, drained, 1)
	s.MarkCancelProcessed(drained[0])

	assert.True(t, cancel.Processed)
	assert.Len(t, s.ProcessedCancels(), 1)
	assert.Empty(t, s.DrainCancels())
}

func TestPairTransactionsSorted(t *testing.T) {
	s := NewStore()
	s.Pair("TX_B")
	s.Pair("TX_A")
	s.Pair("TX_C")

	assert.Equal(t, []string{"TX_A", "TX_B", "TX_C"}, s.PairTransactions())
}
