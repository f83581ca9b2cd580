package models

import "github.com/shopspring/decimal"

type Bill struct {
	Record
	PatientID     string          `json:"patientId" validate:"required"`
	VisitID       string          `json:"visitId,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	Items         []BillItem      `json:"items" validate:"dive"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	Status        string          `json:"status" validate:"required,oneof=draft issued paid void"`
}

type BillItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    int64           `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Recalculate sets Total to the sum of the line amounts.
func (b *Bill) Recalculate() {
	total := decimal.Zero
	for _, it := range b.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	b.Total = total
}

// Balance is what is still owed.
func (b *Bill) Balance() decimal.Decimal {
	return b.Total.Sub(b.AmountPaid)
}
