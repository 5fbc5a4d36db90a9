package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// Price charges rate per hour for the exact length of [start, end), rounded
// half-up to cents.
func Price(rate decimal.Decimal, start, end time.Time) decimal.Decimal {
	d := end.Sub(start)
	if d <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(d))).Div(nanosPerHour).Round(2)
}
