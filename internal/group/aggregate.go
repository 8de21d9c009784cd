package group

import (
	"sort"

	"ms-grouporder/internal/models"
	"ms-grouporder/internal/order"

	"github.com/shopspring/decimal"
)

// ParticipantTotal is one submitted user's share of the settlement.
type ParticipantTotal struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	OrderTotal  decimal.Decimal `json:"order_total"`
	FeeShare    decimal.Decimal `json:"fee_share"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	Winner      bool            `json:"winner"`
	Lines       []models.Line   `json:"lines"`
}

// PendingUser is a participant with a non-empty cart that was never submitted.
type PendingUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Settlement is the full derived view of who ordered what and who owes what.
// It is recomputed from the order rows on every read and never stored.
type Settlement struct {
	SubmittedCount int             `json:"submitted_count"`
	PendingCount   int             `json:"pending_count"`
	GroupSubtotal  decimal.Decimal `json:"group_subtotal"`
	GroupTotal     decimal.Decimal `json:"group_total"`
	FeePerPerson   decimal.Decimal `json:"fee_per_person"`

	Participants []ParticipantTotal `json:"participants"`
	Pending      []PendingUser      `json:"pending"`

	Winners       []string `json:"winners,omitempty"`
	TreatUserID   string   `json:"treat_user_id,omitempty"`
	MinMembersMet bool     `json:"min_members_met"`
}

// FeePerPerson splits the delivery fee evenly across submitted participants,
// rounded half-up to the whole currency unit. Zero when the fee is unset or
// nobody has submitted.
func FeePerPerson(fee decimal.NullDecimal, submittedCount int) decimal.Decimal {
	if !fee.Valid || submittedCount == 0 {
		return decimal.Zero
	}
	return fee.Decimal.Div(decimal.NewFromInt(int64(submittedCount))).Round(0)
}

// GroupSubtotal sums the order totals of submitted orders only.
func GroupSubtotal(orders []models.OrderWithLines) decimal.Decimal {
	subtotal := decimal.Zero
	for _, o := range orders {
		if o.Status == models.StatusSubmitted {
			subtotal = subtotal.Add(order.OrderTotal(o.Lines))
		}
	}
	return subtotal
}

// GroupTotal is the subtotal plus the delivery fee when one is set.
func GroupTotal(group *models.Group, orders []models.OrderWithLines) decimal.Decimal {
	total := GroupSubtotal(orders)
	if group.DeliveryFee.Valid {
		total = total.Add(group.DeliveryFee.Decimal)
	}
	return total
}

// BuildSettlement derives the settlement from one consistent read of the
// group's orders. Lucky-draw winners get their fee share waived; the treat
// marker is carried through untouched for the payment text builder.
func BuildSettlement(group *models.Group, orders []models.OrderWithLines, winners []models.LuckyWinner, users map[string]models.User) *Settlement {
	s := &Settlement{
		GroupSubtotal: decimal.Zero,
		GroupTotal:    decimal.Zero,
		FeePerPerson:  decimal.Zero,
		Participants:  []ParticipantTotal{},
		Pending:       []PendingUser{},
		TreatUserID:   group.TreatUserID,
	}

	winnerSet := make(map[string]bool, len(winners))
	for _, w := range winners {
		winnerSet[w.UserID] = true
		s.Winners = append(s.Winners, w.UserID)
	}

	for _, o := range orders {
		switch o.Status {
		case models.StatusSubmitted:
			s.SubmittedCount++
		case models.StatusDraft, models.StatusEditing:
			// An empty draft is equivalent to no order at all.
			if len(o.Lines) > 0 {
				s.PendingCount++
				s.Pending = append(s.Pending, PendingUser{
					UserID:      o.UserID,
					DisplayName: displayName(users, o.UserID),
				})
			}
		}
	}

	s.FeePerPerson = FeePerPerson(group.DeliveryFee, s.SubmittedCount)

	for _, o := range orders {
		if o.Status != models.StatusSubmitted {
			continue
		}
		total := order.OrderTotal(o.Lines)
		s.GroupSubtotal = s.GroupSubtotal.Add(total)

		p := ParticipantTotal{
			UserID:      o.UserID,
			DisplayName: displayName(users, o.UserID),
			OrderTotal:  total,
			FeeShare:    s.FeePerPerson,
			Winner:      winnerSet[o.UserID],
			Lines:       o.Lines,
		}
		if p.Winner {
			p.FeeShare = decimal.Zero
		}
		p.AmountDue = p.OrderTotal.Add(p.FeeShare)
		s.Participants = append(s.Participants, p)
	}

	s.GroupTotal = s.GroupSubtotal
	if group.DeliveryFee.Valid {
		s.GroupTotal = s.GroupTotal.Add(group.DeliveryFee.Decimal)
	}

	s.MinMembersMet = group.MinMembers <= 0 || s.SubmittedCount >= group.MinMembers

	sort.Slice(s.Participants, func(i, j int) bool {
		return s.Participants[i].UserID < s.Participants[j].UserID
	})
	sort.Slice(s.Pending, func(i, j int) bool {
		return s.Pending[i].UserID < s.Pending[j].UserID
	})
	return s
}

func displayName(users map[string]models.User, userID string) string {
	if u, ok := users[userID]; ok && u.DisplayName != "" {
		return u.DisplayName
	}
	return userID
}
