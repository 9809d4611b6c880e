package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

// PartyRef identifies one side of a transaction.
type PartyRef struct {
	Institution string `json:"institution"`
	Account     string `json:"account"`
}

// TransactionRequest describes a new DvP transaction: the buyer pays
// quantity*price in cash, the seller delivers the securities.
type TransactionRequest struct {
	TransactionID string   `json:"transaction_id"`
	SecurityType  string   `json:"security_type"`
	Quantity      float64  `json:"quantity"`
	Price         float64  `json:"price"`
	Buyer         PartyRef `json:"buyer"`
	Seller        PartyRef `json:"seller"`
}

// SubmitTransaction creates the payment and security legs of a transaction
// and places them on the incoming queue. Returns the transaction ID.
func (e *Engine) SubmitTransaction(req TransactionRequest) (string, error) {
	if req.SecurityType == "" {
		return "", fmt.Errorf("security type is required")
	}
	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = "TX_" + uuid.New().String()
	}
	amount := req.Quantity * req.Price
	now := time.Now()

	// Payment leg: cash flows from the buyer to the seller.
	payment := &types.Instruction{
		InstructionID:        transactionID + "-P",
		TransactionID:        transactionID,
		Kind:                 types.LegPayment,
		SecurityType:         types.CashSecurityType,
		Quantity:             req.Quantity,
		Price:                req.Price,
		Amount:               amount,
		SendingInstitution:   req.Buyer.Institution,
		ReceivingInstitution: req.Seller.Institution,
		SendingAccount:       req.Buyer.Account,
		ReceivingAccount:     req.Seller.Account,
		Status:               types.StatusNew,
		Timestamp:            now,
	}
	// Security leg: securities flow from the seller to the buyer.
	security := &types.Instruction{
		InstructionID:        transactionID + "-S",
		TransactionID:        transactionID,
		Kind:                 types.LegSecurity,
		SecurityType:         req.SecurityType,
		Quantity:             req.Quantity,
		Price:                req.Price,
		Amount:               amount,
		SendingInstitution:   req.Seller.Institution,
		ReceivingInstitution: req.Buyer.Institution,
		SendingAccount:       req.Seller.Account,
		ReceivingAccount:     req.Buyer.Account,
		Status:               types.StatusNew,
		Timestamp:            now,
	}

	e.store.SubmitInstruction(payment)
	e.store.SubmitInstruction(security)
	return transactionID, nil
}

// SubmitCancellation queues a cancellation control message for a
// transaction.
func (e *Engine) SubmitCancellation(transactionID, institutionID string) (string, error) {
	if transactionID == "" {
		return "", fmt.Errorf("transaction ID is required")
	}
	cancel := &types.CancelInstruction{
		CancelID:      "CANCEL-" + transactionID,
		TransactionID: transactionID,
		Institution:   institutionID,
		Timestamp:     time.Now(),
	}
	e.store.SubmitCancel(cancel)
	return cancel.CancelID, nil
}
