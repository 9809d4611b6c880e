package api

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/auth"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/engine"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/export"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/ledger"
	"github.com/MatthiasCiers/Agent-Based-Simulator/pkg/response"
)

// GinHandlers contains HTTP handlers exposing the simulation engine. The
// engine itself is single-threaded; the mutex serializes API access to it.
type GinHandlers struct {
	mu       sync.Mutex
	engine   *engine.Engine
	exporter *export.Service
}

// NewGinHandlers creates handlers around an engine. The exporter may be nil
// when no export database is configured.
func NewGinHandlers(e *engine.Engine, exporter *export.Service) *GinHandlers {
	return &GinHandlers{
		engine:   e,
		exporter: exporter,
	}
}

// RegisterInstitutionHandler handles POST requests creating an institution.
func (h *GinHandlers) RegisterInstitutionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			InstitutionID string `json:"institution_id" binding:"required"`
			Name          string `json:"name"`
			AllowPartial  *bool  `json:"allow_partial"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		allowPartial := h.engine.Config().AllowPartialDefault
		if req.AllowPartial != nil {
			allowPartial = *req.AllowPartial
		}

		h.mu.Lock()
		inst, err := h.engine.Registry().Register(req.InstitutionID, req.Name, allowPartial)
		h.mu.Unlock()
		if err != nil {
			response.Conflict(c, err.Error())
			return
		}
		response.Success(c, inst)
	}
}

// RegisterAccountHandler handles POST requests creating a ledger account.
func (h *GinHandlers) RegisterAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			AccountID     string             `json:"account_id" binding:"required"`
			InstitutionID string             `json:"institution_id" binding:"required"`
			CashBalance   float64            `json:"cash_balance"`
			CreditLimit   float64            `json:"credit_limit"`
			MinBalance    float64            `json:"min_balance"`
			Holdings      map[string]float64 `json:"holdings"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account := &ledger.Account{
			AccountID:     req.AccountID,
			InstitutionID: req.InstitutionID,
			CashBalance:   req.CashBalance,
			CreditLimit:   req.CreditLimit,
			MinBalance:    req.MinBalance,
			Holdings:      req.Holdings,
		}

		h.mu.Lock()
		err := h.engine.Ledger().Register(account)
		if err == nil {
			err = h.engine.Registry().AddAccount(req.InstitutionID, req.AccountID)
		}
		h.mu.Unlock()
		if err != nil {
			response.Conflict(c, err.Error())
			return
		}
		response.Success(c, account)
	}
}

// SubmitTransactionHandler handles POST requests creating a new instruction
// pair.
func (h *GinHandlers) SubmitTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req engine.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		h.mu.Lock()
		transactionID, err := h.engine.SubmitTransaction(req)
		h.mu.Unlock()
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		claims, _ := c.Get("claims")
		log.Info().
			Str("service", "api").
			Str("client_id", auth.GetClientID(claims)).
			Str("transaction_id", transactionID).
			Msg("transaction submitted")
		response.Success(c, gin.H{"transaction_id": transactionID})
	}
}

// CancelTransactionHandler handles POST requests queueing a cancellation.
func (h *GinHandlers) CancelTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TransactionID string `json:"transaction_id" binding:"required"`
			Institution   string `json:"institution"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		h.mu.Lock()
		cancelID, err := h.engine.SubmitCancellation(req.TransactionID, req.Institution)
		h.mu.Unlock()
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		claims, _ := c.Get("claims")
		log.Info().
			Str("service", "api").
			Str("client_id", auth.GetClientID(claims)).
			Str("transaction_id", req.TransactionID).
			Msg("cancellation submitted")
		response.Success(c, gin.H{"cancel_id": cancelID})
	}
}

// TickHandler handles POST requests advancing the simulation by a number of
// ticks (default 1).
func (h *GinHandlers) TickHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Count int `json:"count"`
		}
		// Body is optional; a bare POST advances one tick.
		_ = c.ShouldBindJSON(&req)
		if req.Count <= 0 {
			req.Count = 1
		}

		h.mu.Lock()
		for i := 0; i < req.Count; i++ {
			h.engine.Tick()
		}
		tick := h.engine.CurrentTick()
		h.mu.Unlock()

		response.Success(c, gin.H{"current_tick": tick})
	}
}

// AccountsHandler returns the current account states.
func (h *GinHandlers) AccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		accounts := h.engine.Ledger().Accounts()
		h.mu.Unlock()
		response.Success(c, accounts)
	}
}

// InstitutionsHandler returns the registered institutions.
func (h *GinHandlers) InstitutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		institutions := h.engine.Registry().Institutions()
		h.mu.Unlock()
		response.Success(c, institutions)
	}
}

// InstructionsHandler returns every instruction with its current status.
func (h *GinHandlers) InstructionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		instructions := h.engine.Store().Instructions()
		h.mu.Unlock()
		response.Success(c, instructions)
	}
}

// ConfirmationsHandler returns all settlement confirmations.
func (h *GinHandlers) ConfirmationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		confirmations := h.engine.Store().Confirmations()
		h.mu.Unlock()
		response.Success(c, confirmations)
	}
}

// AuditHandler returns one of the two audit streams, selected by the
// stream query parameter: "transactional" or the full activity stream.
func (h *GinHandlers) AuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c.Query("stream") == "transactional" {
			response.Success(c, h.engine.Audit().Transactional())
			return
		}
		response.Success(c, h.engine.Audit().Activity())
	}
}

// EfficiencyHandler returns the settlement-efficiency metric.
func (h *GinHandlers) EfficiencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		efficiency := h.engine.SettlementEfficiency()
		tick := h.engine.CurrentTick()
		h.mu.Unlock()
		response.Success(c, gin.H{
			"settlement_efficiency": efficiency,
			"current_tick":          tick,
		})
	}
}

// ExportHandler persists the current snapshot to the export database.
func (h *GinHandlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.exporter == nil {
			response.InternalError(c, "no export database configured")
			return
		}

		h.mu.Lock()
		err := h.exporter.SaveSnapshot(h.engine)
		h.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("service", "api").Msg("snapshot export failed")
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, gin.H{"message": "snapshot exported"})
	}
}
