package bursar

// AddCreditRequest is a manual credit to a client's prepaid balance.
type AddCreditRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Notes       string `json:"notes"`
}

// VoidAndSwitchRequest voids a top-up invoice and moves the client to a
// different billing mode.
type VoidAndSwitchRequest struct {
	NewBillingMode string `json:"new_billing_mode" binding:"required"`
}

// GenerateTopUpInvoiceRequest creates a replenishment invoice for a client.
type GenerateTopUpInvoiceRequest struct {
	TrainerID string `json:"trainer_id"`
}
