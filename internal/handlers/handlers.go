package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	bursarapi "github.com/gavincwyant/traintrack/pkg/api/bursar"
	"github.com/gavincwyant/traintrack/pkg/logging"
)

// Billing API Endpoints

// AddClientCredit credits a client's prepaid balance, typically after the
// trainer sold a session package outside the top-up invoice flow.
func AddClientCredit(c *gin.Context) {
	var req bursarapi.AddCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: err.Error()})
		return
	}

	workspaceID := c.GetString("workspace_id")
	clientID := c.Param("client_id")

	transactionID, newBalance, err := engine.AddCredit(c.Request.Context(), workspaceID, clientID, req.AmountCents, req.Notes)
	if err != nil {
		countCredit("manual", "failed")
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}
	countCredit("manual", "success")

	c.JSON(http.StatusCreated, bursarapi.AddCreditResponse{
		TransactionID:   transactionID,
		NewBalanceCents: newBalance,
	})
}

// GetClientTransactions returns a client's ledger history, newest first.
func GetClientTransactions(c *gin.Context) {
	workspaceID := c.GetString("workspace_id")
	clientID := c.Param("client_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, total, err := engine.GetTransactions(workspaceID, clientID, limit, offset)
	if err != nil {
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, bursarapi.GetTransactionsResponse{
		Transactions: transactions,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
		HasMore:      offset+len(transactions) < total,
	})
}

// GetPrepaidSummary returns the prepaid client overview for the caller's
// workspace. An optional trainer_id query narrows it to one trainer.
func GetPrepaidSummary(c *gin.Context) {
	workspaceID := c.GetString("workspace_id")
	trainerID := c.Query("trainer_id")

	summaries, err := engine.GetPrepaidClientsSummary(workspaceID, trainerID)
	if err != nil {
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, bursarapi.PrepaidSummaryResponse{
		Clients: summaries,
		Count:   len(summaries),
	})
}

// GenerateTopUpInvoice creates a replenishment invoice for a prepaid client.
func GenerateTopUpInvoice(c *gin.Context) {
	var req bursarapi.GenerateTopUpInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: err.Error()})
			return
		}
	}

	workspaceID := c.GetString("workspace_id")
	clientID := c.Param("client_id")

	invoice, err := engine.GenerateTopUpInvoice(c.Request.Context(), workspaceID, clientID, req.TrainerID)
	if err != nil {
		countInvoice("generate", "failed")
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}

	if invoice == nil {
		countInvoice("generate", "skipped")
		c.JSON(http.StatusOK, bursarapi.TopUpInvoiceResponse{})
		return
	}
	countInvoice("generate", "success")

	c.JSON(http.StatusCreated, bursarapi.TopUpInvoiceResponse{Invoice: invoice})
}

// VoidInvoiceAndSwitch cancels an outstanding top-up invoice and moves the
// client off prepaid billing. The remaining balance stays on the account.
func VoidInvoiceAndSwitch(c *gin.Context) {
	var req bursarapi.VoidAndSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: err.Error()})
		return
	}

	workspaceID := c.GetString("workspace_id")
	invoiceID := c.Param("invoice_id")

	retained, err := engine.VoidInvoiceAndSwitchBilling(c.Request.Context(), workspaceID, invoiceID, req.NewBillingMode)
	if err != nil {
		countInvoice("void_and_switch", "failed")
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}
	countInvoice("void_and_switch", "success")

	resp := bursarapi.VoidAndSwitchResponse{
		Success:             true,
		RetainedCreditCents: retained,
		NewBillingMode:      req.NewBillingMode,
	}
	if retained > 0 {
		resp.RetentionRecordedVia = "ledger_entry"
	}
	c.JSON(http.StatusOK, resp)
}

// Service-to-service Endpoints

// DeductSessionBalance charges a completed session against the client's
// prepaid balance. Called by the scheduling service; safe to retry.
func DeductSessionBalance(c *gin.Context) {
	sessionID := c.Param("session_id")

	outcome, err := engine.DeductSession(c.Request.Context(), sessionID)
	if err != nil {
		countDeduction("error")
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}

	if outcome.Success {
		countDeduction("full")
	} else {
		countDeduction("partial")
	}

	c.JSON(http.StatusOK, bursarapi.DeductSessionResponse{
		SessionID: sessionID,
		Outcome:   *outcome,
	})
}

// MarkInvoicePaid reconciles an external payment against a top-up invoice.
// The payment provider may deliver the callback more than once.
func MarkInvoicePaid(c *gin.Context) {
	invoiceID := c.Param("invoice_id")

	newBalance, err := engine.MarkTopUpInvoicePaid(c.Request.Context(), invoiceID)
	if err != nil {
		countInvoice("mark_paid", "failed")
		status, resp := respondError(err)
		c.JSON(status, resp)
		return
	}
	countInvoice("mark_paid", "success")

	logger.WithFields(logging.Fields{
		"invoice_id":    invoiceID,
		"balance_cents": newBalance,
	}).Info("Invoice payment reconciled")

	c.JSON(http.StatusOK, bursarapi.MarkInvoicePaidResponse{
		InvoiceID:       invoiceID,
		NewBalanceCents: newBalance,
	})
}
