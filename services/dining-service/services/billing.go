package services

import (
	"fmt"
	"math"
	"time"

	"github.com/yashrajoria/dining-backend/services/dining-service/models"
)

// BillingPolicy holds the rates and formats applied when a bill is created.
// Rates are basis points (500 = 5%).
type BillingPolicy struct {
	ServiceChargeBps int64
	TaxBps           int64
	Currency         string
	BillNumberPrefix string
}

// RateToBps converts a fractional rate such as 0.05 to basis points.
func RateToBps(rate float64) int64 {
	return int64(math.Round(rate * 10000))
}

// applyRate returns amount*bps/10000 rounded half up.
func applyRate(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}

// CalculateBillTotals computes the bill breakdown of a subtotal. The discount
// may not exceed subtotal plus service charge.
func CalculateBillTotals(subtotal, discount int64, policy BillingPolicy) (models.BillTotals, error) {
	if subtotal < 0 {
		return models.BillTotals{}, fmt.Errorf("subtotal must not be negative")
	}
	serviceCharge := applyRate(subtotal, policy.ServiceChargeBps)
	if discount < 0 || discount > subtotal+serviceCharge {
		return models.BillTotals{}, fmt.Errorf("discount must be between 0 and %d", subtotal+serviceCharge)
	}
	tax := applyRate(subtotal+serviceCharge-discount, policy.TaxBps)

	return models.BillTotals{
		Subtotal:       subtotal,
		ServiceCharge:  serviceCharge,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal + serviceCharge + tax - discount,
	}, nil
}

// Subtotal sums snapshot price times quantity over orders.
func Subtotal(orders []models.Order) int64 {
	var total int64
	for i := range orders {
		total += orders[i].LineTotal()
	}
	return total
}

// FormatBillNumber renders PREFIX-YYYYMMDD-NNN.
func FormatBillNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("20060102"), seq)
}
