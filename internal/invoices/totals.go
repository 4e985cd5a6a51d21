package invoices

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultPaymentMode is the payment_mode column default.
const DefaultPaymentMode = "Cash"

var (
	hundred = decimal.NewFromInt(100)
	// Tolerances for comparing client-computed figures with the server's.
	paiseTolerance = decimal.New(1, -2)
	rupeeTolerance = decimal.NewFromInt(1)
)

// Rates are the percentages applied on top of the cart subtotal. A negative
// adjustment is a discount.
type Rates struct {
	Adjustment decimal.Decimal
	CGST       decimal.Decimal
	SGST       decimal.Decimal
	IGST       decimal.Decimal
}

// DefaultRates mirrors the invoice column defaults: 9% CGST and 9% SGST.
func DefaultRates() Rates {
	return Rates{
		Adjustment: decimal.Zero,
		CGST:       decimal.NewFromInt(9),
		SGST:       decimal.NewFromInt(9),
		IGST:       decimal.Zero,
	}
}

// Sum is the combined percentage.
func (r Rates) Sum() decimal.Decimal {
	return r.Adjustment.Add(r.CGST).Add(r.SGST).Add(r.IGST)
}

// Totals are the stored cart figures.
type Totals struct {
	CartTotal  decimal.Decimal
	NetAmount  decimal.Decimal
	NetPayable decimal.Decimal
}

// ComputeTotals derives net and payable amounts from the subtotal:
// net = cart_total × (100 + adjustment + cgst + sgst + igst) / 100, payable is
// net rounded to the whole rupee, halves away from zero.
func ComputeTotals(cartTotal decimal.Decimal, rates Rates) Totals {
	net := cartTotal.Mul(hundred.Add(rates.Sum())).Div(hundred).Round(2)
	return Totals{
		CartTotal:  cartTotal.Round(2),
		NetAmount:  net,
		NetPayable: net.Round(0),
	}
}

// PriceLine applies an add-on percentage to base. The unit price is rounded to
// paise for display while the line total is computed from the unrounded price.
func PriceLine(base decimal.Decimal, addon decimal.NullDecimal, quantity int) (price, total decimal.Decimal) {
	exact := base
	if addon.Valid && !addon.Decimal.IsZero() {
		exact = base.Mul(hundred.Add(addon.Decimal)).Div(hundred)
	}
	return exact.Round(2), exact.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// lineTolerance bounds the gap between a line total and its rounded unit price
// times quantity: half a paisa per unit from rounding the price, plus a paisa
// for rounding the total.
func lineTolerance(quantity int) decimal.Decimal {
	return decimal.New(5, -3).Mul(decimal.NewFromInt(int64(quantity))).Add(paiseTolerance)
}

// checkCart validates the cart figures against the lines and the header rates
// and returns the totals to store. The stored cart total is the sum of the
// stored line totals; the submitted one only has to agree within a paisa.
// Every problem is reported.
func checkCart(cart CartRequest, rates Rates) (Totals, []string) {
	var problems []string
	sum := decimal.Zero
	for i, line := range cart.Items {
		field := fmt.Sprintf("cart.items[%d]", i)
		if !line.SellingPrice.Valid {
			problems = append(problems, field+".selling_price is required")
		} else if line.SellingPrice.Decimal.IsNegative() {
			problems = append(problems, field+".selling_price must be 0 or more")
		}
		if !line.Total.Valid {
			problems = append(problems, field+".total is required")
			continue
		}
		if line.Total.Decimal.IsNegative() {
			problems = append(problems, field+".total must be 0 or more")
		}
		if line.AddonPercent.Valid && !percentInRange(line.AddonPercent.Decimal) {
			problems = append(problems, field+".addon_percent must be between 0 and 100")
		}
		if line.SellingPrice.Valid && line.SelectedQuantity > 0 {
			expected := line.SellingPrice.Decimal.Mul(decimal.NewFromInt(int64(line.SelectedQuantity)))
			if !within(line.Total.Decimal, expected, lineTolerance(line.SelectedQuantity)) {
				problems = append(problems, fmt.Sprintf("%s.total must equal selling_price times selected_quantity (%s)", field, expected.StringFixed(2)))
			}
		}
		sum = sum.Add(line.Total.Decimal.Round(2))
	}
	if rates.Adjustment.Abs().GreaterThan(hundred) {
		problems = append(problems, "invoice.adjustment_percent must be between -100 and 100")
	}
	for _, r := range []struct {
		name string
		rate decimal.Decimal
	}{
		{"invoice.cgst", rates.CGST},
		{"invoice.sgst", rates.SGST},
		{"invoice.igst", rates.IGST},
	} {
		if !percentInRange(r.rate) {
			problems = append(problems, r.name+" must be between 0 and 100")
		}
	}

	totals := ComputeTotals(sum, rates)
	if !cart.CartTotal.Valid {
		problems = append(problems, "cart.cart_total is required")
	} else if !within(cart.CartTotal.Decimal, sum, paiseTolerance) {
		problems = append(problems, fmt.Sprintf("cart.cart_total must equal the sum of line totals (%s)", sum.StringFixed(2)))
	}
	if !cart.NetAmount.Valid {
		problems = append(problems, "cart.net_amount is required")
	} else if !within(cart.NetAmount.Decimal, totals.NetAmount, paiseTolerance) {
		problems = append(problems, fmt.Sprintf("cart.net_amount must be %s", totals.NetAmount.StringFixed(2)))
	}
	if cart.NetPayableAmount.Valid && !within(cart.NetPayableAmount.Decimal, totals.NetPayable, rupeeTolerance) {
		problems = append(problems, fmt.Sprintf("cart.net_payable_amount must be %s", totals.NetPayable.StringFixed(2)))
	}
	return totals, problems
}

func within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func percentInRange(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}
