package services

import (
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type PriceInput struct {
	PaidAttendeeCount   int
	UnitPrice           int64
	VoucherSeats        int
	DiscountAmount      int64
	AdminDiscountAmount int64
}

type Totals struct {
	PaidAttendees       int   `json:"paid_attendees"`
	UnitPrice           int64 `json:"unit_price"`
	Base                int64 `json:"base"`
	Voucher             int64 `json:"voucher"`
	DiscountAmount      int64 `json:"discount_amount"`
	AdminDiscountAmount int64 `json:"admin_discount_amount"`
	Total               int64 `json:"total"`
}

// Price applies voucher seats, then the code discount, then the admin
// discount. Every stage is clamped at zero before the next one is taken off.
func Price(in PriceInput) Totals {
	base := int64(max(0, in.PaidAttendeeCount)) * in.UnitPrice
	voucher := int64(max(0, in.VoucherSeats)) * in.UnitPrice

	afterVoucher := max(0, base-voucher)
	afterCode := max(0, afterVoucher-max(0, in.DiscountAmount))
	total := max(0, afterCode-max(0, in.AdminDiscountAmount))

	return Totals{
		PaidAttendees:       in.PaidAttendeeCount,
		UnitPrice:           in.UnitPrice,
		Base:                base,
		Voucher:             base - afterVoucher,
		DiscountAmount:      afterVoucher - afterCode,
		AdminDiscountAmount: afterCode - total,
		Total:               total,
	}
}

// ResolveDiscount turns a discount into minor units against subtotal.
// Percentages round half up.
func ResolveDiscount(kind domain.DiscountType, value, subtotal int64) int64 {
	if value <= 0 || subtotal <= 0 {
		return 0
	}
	switch kind {
	case domain.DiscountPercentage:
		return (subtotal*min(value, 100) + 50) / 100
	case domain.DiscountFixedAmount:
		return value
	default:
		return 0
	}
}

// TotalsFor prices a checkout. Percentage discounts are taken from the
// subtotal of the stage they apply to.
func TotalsFor(c *domain.CheckoutSession, unitPrice int64) Totals {
	paid := c.SeatedCount()
	d := c.Discounts

	stage := Price(PriceInput{PaidAttendeeCount: paid, UnitPrice: unitPrice, VoucherSeats: d.VoucherSeats})
	discount := ResolveDiscount(d.DiscountType, d.DiscountValue, stage.Total)

	stage = Price(PriceInput{PaidAttendeeCount: paid, UnitPrice: unitPrice, VoucherSeats: d.VoucherSeats, DiscountAmount: discount})
	admin := ResolveDiscount(d.AdminDiscountType, d.AdminDiscountValue, stage.Total)

	return Price(PriceInput{
		PaidAttendeeCount:   paid,
		UnitPrice:           unitPrice,
		VoucherSeats:        d.VoucherSeats,
		DiscountAmount:      discount,
		AdminDiscountAmount: admin,
	})
}
