package export

import (
	"strings"
	"testing"

	"ms-grouporder/internal/group"
	"ms-grouporder/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(v), Valid: true}
}

func line(user, item, size string, qty int, unit string) models.Line {
	return models.Line{OrderLine: models.OrderLine{
		LineID: "l-" + user + "-" + item, ItemName: item, Size: size, Quantity: qty, UnitPrice: d(unit),
	}}
}

func submitted(user string, lines ...models.Line) models.OrderWithLines {
	return models.OrderWithLines{
		Order: models.Order{OrderID: "o-" + user, UserID: user, Status: models.StatusSubmitted},
		Lines: lines,
	}
}

func TestOrderText_AggregatesIdenticalLines(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Friday drinks", DeliveryFee: nd("50")}
	orders := []models.OrderWithLines{
		submitted("alice", line("alice", "Milk Tea", "L", 2, "60")),
		submitted("bob",
			line("bob", "Milk Tea", "L", 1, "60"),
			line("bob", "Green Tea", "", 3, "40"),
		),
	}
	s := group.BuildSettlement(g, orders, nil, nil)
	text := OrderText(g, s)

	assert.Contains(t, text, "Order: Friday drinks")
	// 2 from alice and 1 from bob collapse into one store line.
	assert.Contains(t, text, "Milk Tea(L)\n  3 x 60 = 180")
	assert.Contains(t, text, "Green Tea\n  3 x 40 = 120")
	assert.Contains(t, text, "Items: 6")
	assert.Contains(t, text, "Subtotal: 300")
	assert.Contains(t, text, "Delivery fee: 50")
	assert.Contains(t, text, "Total: 350")
	assert.Equal(t, 1, strings.Count(text, "Milk Tea(L)"), "identical choices appear once")
}

func TestOrderText_DifferentNotesStaySeparate(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Lunch"}
	plain := line("alice", "Milk Tea", "", 1, "50")
	noted := line("bob", "Milk Tea", "", 1, "50")
	noted.Note = "less ice"

	s := group.BuildSettlement(g, []models.OrderWithLines{submitted("alice", plain), submitted("bob", noted)}, nil, nil)
	text := OrderText(g, s)

	assert.Contains(t, text, "Milk Tea\n  1 x 50 = 50")
	assert.Contains(t, text, "Milk Tea [less ice]\n  1 x 50 = 50")
}

func TestOrderText_ToppingsChangeEffectiveUnit(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Lunch"}
	withPearls := line("alice", "Milk Tea", "L", 2, "60")
	withPearls.Toppings = []models.LineTopping{{ToppingID: "top-1", Name: "Pearls", Price: d("10")}}

	s := group.BuildSettlement(g, []models.OrderWithLines{submitted("alice", withPearls)}, nil, nil)
	text := OrderText(g, s)

	assert.Contains(t, text, "Milk Tea(L) +Pearls\n  2 x 70 = 140")
	assert.Contains(t, text, "Total: 140")
}

func TestPaymentText_FeeSplit(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Friday drinks", DeliveryFee: nd("50")}
	orders := []models.OrderWithLines{
		submitted("alice", line("alice", "Milk Tea", "L", 2, "60")),
		submitted("bob", line("bob", "Set Meal", "", 1, "180")),
	}
	users := map[string]models.User{
		"alice": {UserID: "alice", DisplayName: "Alice"},
		"bob":   {UserID: "bob", DisplayName: "Bob"},
	}
	s := group.BuildSettlement(g, orders, nil, users)
	text := PaymentText(g, s)

	assert.Contains(t, text, "Alice: 120 + 25 fee = 145")
	assert.Contains(t, text, "Bob: 180 + 25 fee = 205")
	assert.Contains(t, text, "Submitted: 2")
	assert.Contains(t, text, "Fee per person: 25")
	assert.Contains(t, text, "Group total: 350")
	assert.NotContains(t, text, "Pending")
}

func TestPaymentText_WinnerFeeWaived(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Friday drinks", DeliveryFee: nd("50"), EnableLuckyDraw: true, LuckyDrawn: true}
	orders := []models.OrderWithLines{
		submitted("alice", line("alice", "Milk Tea", "L", 2, "60")),
		submitted("bob", line("bob", "Set Meal", "", 1, "180")),
	}
	winners := []models.LuckyWinner{{GroupID: "g-1", UserID: "bob"}}
	s := group.BuildSettlement(g, orders, winners, nil)
	text := PaymentText(g, s)

	assert.Contains(t, text, "bob: 180 (fee waived, lucky draw)")
	assert.Contains(t, text, "alice: 120 + 25 fee = 145")
}

func TestPaymentText_TreatCoversEveryone(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Friday drinks", DeliveryFee: nd("50"), TreatUserID: "alice"}
	orders := []models.OrderWithLines{
		submitted("alice", line("alice", "Milk Tea", "L", 2, "60")),
		submitted("bob", line("bob", "Set Meal", "", 1, "180")),
	}
	s := group.BuildSettlement(g, orders, nil, nil)
	text := PaymentText(g, s)

	assert.Contains(t, text, "alice: 350 (treats everyone)")
	assert.Contains(t, text, "bob: 0 (treated)")
}

func TestPaymentText_PendingSection(t *testing.T) {
	g := &models.Group{GroupID: "g-1", Name: "Lunch"}
	orders := []models.OrderWithLines{
		submitted("alice", line("alice", "Milk Tea", "", 1, "50")),
		{
			Order: models.Order{OrderID: "o-carol", UserID: "carol", Status: models.StatusDraft},
			Lines: []models.Line{line("carol", "Green Tea", "", 1, "40")},
		},
	}
	s := group.BuildSettlement(g, orders, nil, nil)
	text := PaymentText(g, s)

	assert.Contains(t, text, "Pending (not submitted): carol")
}

func TestGroupURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/groups/g-1", GroupURL("http://localhost:8080", "g-1"))
	assert.Equal(t, "http://localhost:8080/groups/g-1", GroupURL("http://localhost:8080/", "g-1"))
}

func TestGroupQR_RendersPNG(t *testing.T) {
	png, err := GroupQR("http://localhost:8080", "g-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
