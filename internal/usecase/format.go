package usecase

import "github.com/shopspring/decimal"

// FormatMinor renders a two-decimal minor-unit amount, e.g. 49900 -> "499.00".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
