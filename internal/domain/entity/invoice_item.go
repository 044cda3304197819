package entity

import "github.com/shopspring/decimal"

// InvoiceItem línea de una factura. Los totales de línea se almacenan ya redondeados a 3 decimales.
type InvoiceItem struct {
	ID           string
	InvoiceID    string
	LineNo       int
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	DiscountPct  decimal.Decimal
	VATPct       decimal.Decimal
	LineTotalHT  decimal.Decimal
	LineVAT      decimal.Decimal
	LineTotalTTC decimal.Decimal
}
