package export

import (
	"fmt"
	"sort"
	"strings"

	"ms-grouporder/internal/group"
	"ms-grouporder/internal/models"

	"github.com/shopspring/decimal"
)

// Text builders for the two settlement protocols. Both render straight from
// the settlement so the numbers always match the aggregation; nothing here
// recomputes totals from scratch.

type aggregatedLine struct {
	label    string
	quantity int
	unit     decimal.Decimal
}

// lineKey collapses identical choices across participants. Toppings are part
// of the key because they change the effective unit price.
func lineKey(line models.Line) string {
	parts := []string{line.ItemName, line.Size, line.Note}
	opts := make([]string, len(line.Options))
	for i, o := range line.Options {
		opts[i] = o.OptionID
	}
	sort.Strings(opts)
	tops := make([]string, len(line.Toppings))
	for i, t := range line.Toppings {
		tops[i] = t.ToppingID
	}
	sort.Strings(tops)
	return strings.Join(append(append(parts, opts...), tops...), "|")
}

// effectiveUnit is the per-piece price with option deltas and toppings
// folded in, matching what line subtotals are built from.
func effectiveUnit(line models.Line) decimal.Decimal {
	unit := line.UnitPrice
	for _, o := range line.Options {
		unit = unit.Add(o.PriceDelta)
	}
	for _, t := range line.Toppings {
		unit = unit.Add(t.Price)
	}
	return unit
}

func lineLabel(line models.Line) string {
	var b strings.Builder
	b.WriteString(line.ItemName)
	if line.Size != "" {
		b.WriteString("(" + line.Size + ")")
	}
	var extras []string
	for _, o := range line.Options {
		extras = append(extras, o.Name)
	}
	for _, t := range line.Toppings {
		extras = append(extras, "+"+t.Name)
	}
	if len(extras) > 0 {
		b.WriteString(" " + strings.Join(extras, ", "))
	}
	if line.Note != "" {
		b.WriteString(" [" + line.Note + "]")
	}
	return b.String()
}

// OrderText renders the store-facing consolidated order: identical choices
// from different participants collapse into one line with summed quantity.
func OrderText(g *models.Group, s *group.Settlement) string {
	byKey := make(map[string]*aggregatedLine)
	var order []string

	for _, p := range s.Participants {
		for _, line := range p.Lines {
			key := lineKey(line)
			agg, ok := byKey[key]
			if !ok {
				agg = &aggregatedLine{
					label: lineLabel(line),
					unit:  effectiveUnit(line),
				}
				byKey[key] = agg
				order = append(order, key)
			}
			agg.quantity += line.Quantity
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order: %s\n", g.Name)
	b.WriteString(strings.Repeat("-", 30) + "\n")

	totalQty := 0
	totalAmount := decimal.Zero
	for _, key := range order {
		agg := byKey[key]
		subtotal := agg.unit.Mul(decimal.NewFromInt(int64(agg.quantity)))
		fmt.Fprintf(&b, "%s\n  %d x %s = %s\n", agg.label, agg.quantity, agg.unit.String(), subtotal.String())
		totalQty += agg.quantity
		totalAmount = totalAmount.Add(subtotal)
	}

	b.WriteString(strings.Repeat("-", 30) + "\n")
	fmt.Fprintf(&b, "Items: %d\n", totalQty)
	fmt.Fprintf(&b, "Subtotal: %s\n", totalAmount.String())
	if g.DeliveryFee.Valid && !g.DeliveryFee.Decimal.IsZero() {
		fmt.Fprintf(&b, "Delivery fee: %s\n", g.DeliveryFee.Decimal.String())
	}
	fmt.Fprintf(&b, "Total: %s\n", s.GroupTotal.String())
	return b.String()
}

// PaymentText renders the payer-facing settlement: one line per submitted
// participant with order total plus fee share. Lucky-draw winners have their
// fee share waived; an active treat makes the payer cover everyone.
func PaymentText(g *models.Group, s *group.Settlement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment: %s\n", g.Name)
	b.WriteString(strings.Repeat("-", 30) + "\n")

	treatActive := s.TreatUserID != ""
	for _, p := range s.Participants {
		switch {
		case treatActive && p.UserID == s.TreatUserID:
			fmt.Fprintf(&b, "%s: %s (treats everyone)\n", p.DisplayName, s.GroupTotal.String())
		case treatActive:
			fmt.Fprintf(&b, "%s: 0 (treated)\n", p.DisplayName)
		case p.Winner:
			fmt.Fprintf(&b, "%s: %s (fee waived, lucky draw)\n", p.DisplayName, p.AmountDue.String())
		case p.FeeShare.IsZero():
			fmt.Fprintf(&b, "%s: %s\n", p.DisplayName, p.AmountDue.String())
		default:
			fmt.Fprintf(&b, "%s: %s + %s fee = %s\n", p.DisplayName, p.OrderTotal.String(), p.FeeShare.String(), p.AmountDue.String())
		}
	}

	b.WriteString(strings.Repeat("-", 30) + "\n")
	fmt.Fprintf(&b, "Submitted: %d\n", s.SubmittedCount)
	if !s.FeePerPerson.IsZero() {
		fmt.Fprintf(&b, "Fee per person: %s\n", s.FeePerPerson.String())
	}
	fmt.Fprintf(&b, "Group total: %s\n", s.GroupTotal.String())

	if len(s.Pending) > 0 {
		names := make([]string, len(s.Pending))
		for i, p := range s.Pending {
			names[i] = p.DisplayName
		}
		fmt.Fprintf(&b, "Pending (not submitted): %s\n", strings.Join(names, ", "))
	}
	return b.String()
}
