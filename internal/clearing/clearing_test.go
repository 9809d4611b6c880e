package clearing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/audit"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/store"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

func matchedPair(st *store.Store, transactionID string, quantity, price float64) (*types.Instruction, *types.Instruction) {
	payment := &types.Instruction{
		InstructionID:      transactionID + "-P",
		TransactionID:      transactionID,
		Kind:               types.LegPayment,
		SecurityType:       types.CashSecurityType,
		Quantity:           quantity,
		Price:              price,
		SendingInstitution: "INST_A",
		SendingAccount:     "ACC_A",
		Status:             types.StatusMatched,
	}
	security := &types.Instruction{
		InstructionID:      transactionID + "-S",
		TransactionID:      transactionID,
		Kind:               types.LegSecurity,
		SecurityType:       "BOND",
		Quantity:           quantity,
		Price:              price,
		SendingInstitution: "INST_B",
		SendingAccount:     "ACC_B",
		Status:             types.StatusMatched,
	}
	pair := st.Pair(transactionID)
	pair.Payment = payment
	pair.Security = security
	return payment, security
}

func TestClearingEmitsReportWithRisk(t *testing.T) {
	st := store.NewStore()
	svc := NewService(st, audit.NewSink(), 0)
	matchedPair(st, "TX_1", 10, 5)

	svc.Step(1)

	reports := st.DrainClearing()
	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, "TX_1", report.TransactionID)
	assert.Equal(t, 50.0, report.NetAmount)
	assert.Equal(t, 50.0*DefaultRiskFactor, report.Risk)
	assert.Equal(t, "INST_A", report.Payer)
	assert.Equal(t, "INST_B", report.Deliverer)
	assert.Equal(t, "ACC_A", report.PayerAccount)
	assert.Equal(t, "ACC_B", report.DelivererAccount)
	assert.Equal(t, "BOND", report.SecurityType)
	assert.Equal(t, 50.0, svc.TotalPossibleNet())
}

func TestCustomRiskFactor(t *testing.T) {
	st := store.NewStore()
	svc := NewService(st, audit.NewSink(), 0.10)
	matchedPair(st, "TX_1", 10, 5)

	svc.Step(1)

	reports := st.DrainClearing()
	require.Len(t, reports, 1)
	assert.Equal(t, 5.0, reports[0].Risk)
}

func TestPairConsumedExactlyOnce(t *testing.T) {
	st := store.NewStore()
	svc := NewService(st, audit.NewSink(), 0)
	matchedPair(st, "TX_1", 10, 5)

	svc.Step(1)
	svc.Step(2)

	assert.Len(t, st.ClearingReports(), 1)
	assert.Nil(t, st.LookupPair("TX_1"))
	assert.Equal(t, 50.0, svc.TotalPossibleNet())
}

func TestCanceledPairDroppedWithoutReport(t *testing.T) {
	st := store.NewStore()
	sink := audit.NewSink()
	svc := NewService(st, sink, 0)
	payment, _ := matchedPair(st, "TX_1", 10, 5)
	payment.Status = types.StatusCanceled

	svc.Step(1)

	assert.Empty(t, st.DrainClearing())
	assert.Nil(t, st.LookupPair("TX_1"))
	assert.Equal(t, 0.0, svc.TotalPossibleNet())

	events := sink.Transactional()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindCanceledPair, events[0].Kind)
}

func TestIncompletePairIgnored(t *testing.T) {
	st := store.NewStore()
	svc := NewService(st, audit.NewSink(), 0)
	pair := st.Pair("TX_1")
	pair.Payment = &types.Instruction{
		InstructionID: "TX_1-P",
		TransactionID: "TX_1",
		Kind:          types.LegPayment,
		Status:        types.StatusValidated,
	}

	svc.Step(1)

	assert.Empty(t, st.DrainClearing())
	assert.NotNil(t, st.LookupPair("TX_1"))
}
