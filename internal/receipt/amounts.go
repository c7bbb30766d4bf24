package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"upgrade_checkout_echo/internal/models"
)

const CurrencySymbol = "£"

var hundred = decimal.NewFromInt(100)

// Amounts is the derived money breakdown of a booking
type Amounts struct {
	Original           decimal.Decimal `json:"originalAmount"`
	Discount           decimal.Decimal `json:"discountAmount"`
	Final              decimal.Decimal `json:"finalAmount"`
	HasDiscount        bool            `json:"hasDiscount"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"` // rounded to one decimal place
	CouponCode         string          `json:"couponCode,omitempty"`
	Description        string          `json:"couponDescription"`
	IsFreeBooking      bool            `json:"isFreeBooking"`
}

// PercentageText renders the discount percentage with one fractional digit
func (a Amounts) PercentageText() string {
	return a.DiscountPercentage.StringFixed(1)
}

// CalculateAmounts derives original, discount and final amounts from the booking.
// Absent amounts fall back to Amount, then to zero. An explicit zero is kept.
func CalculateAmounts(b models.BookingData) Amounts {
	original := firstValid(b.OriginalAmount, b.Amount)
	final := firstValid(b.FinalAmount, b.Amount)
	discount := firstValid(b.DiscountAmount)
	coupon := NormalizeCoupon(b.CouponCode)

	a := Amounts{
		Original:   original,
		Discount:   discount,
		Final:      final,
		CouponCode: coupon,
	}
	a.HasDiscount = discount.IsPositive() && coupon != ""
	if original.IsPositive() {
		a.DiscountPercentage = discount.Div(original).Mul(hundred).Round(1)
	}
	a.IsFreeBooking = final.IsZero() && a.HasDiscount

	if a.HasDiscount {
		a.Description = fmt.Sprintf("%s (%s discount - %s%%)", coupon, FormatMoney(discount), a.PercentageText())
	} else {
		a.Description = "No coupon applied"
	}
	return a
}

// NormalizeCoupon trims the code and maps the "none" marker to empty
func NormalizeCoupon(code string) string {
	code = strings.TrimSpace(code)
	if strings.EqualFold(code, models.NoCouponMarker) {
		return ""
	}
	return code
}

// FormatMoney renders an amount with the currency symbol and two decimals
func FormatMoney(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + CurrencySymbol + d.Neg().StringFixed(2)
	}
	return CurrencySymbol + d.StringFixed(2)
}

func firstValid(values ...decimal.NullDecimal) decimal.Decimal {
	for _, v := range values {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}
