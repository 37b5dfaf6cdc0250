package models

import "github.com/shopspring/decimal"

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// ToFloat64 converts decimal to float64, dropping exactness
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
