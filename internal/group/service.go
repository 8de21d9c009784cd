package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-grouporder/internal/logger"
	"ms-grouporder/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DBLayer interface {
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	CreateGroup(ctx context.Context, group models.Group) error
	UpdateGroupInfo(ctx context.Context, groupID, name, note string, deadline time.Time) error
	SetDeliveryFee(ctx context.Context, groupID string, fee decimal.NullDecimal) error
	// CloseGroup flips is_closed false → true. False when already closed.
	CloseGroup(ctx context.Context, groupID string) (bool, error)
	TransferOwner(ctx context.Context, groupID, newOwnerID string) error
	// DeleteGroup cascades to orders, lines, winners and treat records.
	DeleteGroup(ctx context.Context, groupID string) error

	ActiveMenu(ctx context.Context, storeID string) (*models.Menu, error)
	// ListOrdersWithLines is one consistent read of every order in the group
	// with its lines, options and toppings.
	ListOrdersWithLines(ctx context.Context, groupID string) ([]models.OrderWithLines, error)

	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]models.User, error)

	GetOrder(ctx context.Context, groupID, userID string) (*models.Order, error)

	// SetTreat records the payer and the frozen amount. False when another
	// treat is already active on the group.
	SetTreat(ctx context.Context, groupID string, record models.TreatRecord) (bool, error)
	ClearTreat(ctx context.Context, groupID string) error
	TreatLeaderboard(ctx context.Context, storeID string, limit int) ([]TreatLeaderboardEntry, error)

	// ResolveLuckyDraw claims the draw with a conditional update on the
	// lucky_drawn flag and, when the claim wins, samples winners from the
	// submitted participants read inside the same transaction. Exactly one
	// caller ever gets claimed=true per group.
	ResolveLuckyDraw(ctx context.Context, groupID string, pick func(candidates []string) []string) (winners []string, claimed bool, err error)
	ListWinners(ctx context.Context, groupID string) ([]models.LuckyWinner, error)
}

type Publisher interface {
	PublishGroupClosed(group models.Group) error
	PublishLuckyDraw(groupID string, winners []string) error
}

// CreateGroupParams describes a new time-boxed group order.
type CreateGroupParams struct {
	StoreID         string              `json:"store_id"`
	Name            string              `json:"name"`
	Note            string              `json:"note,omitempty"`
	Deadline        time.Time           `json:"deadline"`
	DeliveryFee     decimal.NullDecimal `json:"delivery_fee,omitempty"`
	MinMembers      int                 `json:"min_members,omitempty"`
	EnableLuckyDraw bool                `json:"enable_lucky_draw,omitempty"`
	LuckyDrawCount  int                 `json:"lucky_draw_count,omitempty"`
}

// UpdateInfoParams carries the owner's administrative edits. Nil fields are
// left unchanged.
type UpdateInfoParams struct {
	Name     *string    `json:"name,omitempty"`
	Note     *string    `json:"note,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// TreatLeaderboardEntry is one payer's all-time treat standing at a store.
type TreatLeaderboardEntry struct {
	UserID string          `bun:"user_id" json:"user_id"`
	Total  decimal.Decimal `bun:"total" json:"total"`
	Count  int             `bun:"count" json:"count"`
}

// View is the group plus everything derived from its orders.
type View struct {
	Group      models.Group `json:"group"`
	IsOpen     bool         `json:"is_open"`
	Settlement *Settlement  `json:"settlement"`
}

// Service owns the group lifecycle: creation, administrative edits, the
// open/closed gate side, treat bookkeeping and lucky-draw resolution.
type Service struct {
	DB     DBLayer
	Kafka  Publisher
	Logger *logger.Logger

	// Now is the gate clock, swappable in tests.
	Now func() time.Time
	// Pick samples lucky-draw winners, swappable in tests.
	Pick func(candidates []string, n int) []string
}

func NewService(db DBLayer, kafka Publisher, log *logger.Logger) *Service {
	return &Service{
		DB:     db,
		Kafka:  kafka,
		Logger: log,
		Now:    time.Now,
		Pick:   SampleWinners,
	}
}

// Create opens a new group pinned to the store's currently active menu.
func (s *Service) Create(ctx context.Context, ownerID string, p CreateGroupParams) (*models.Group, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if p.DeliveryFee.Valid && p.DeliveryFee.Decimal.IsNegative() {
		return nil, fmt.Errorf("delivery fee must not be negative")
	}
	menu, err := s.DB.ActiveMenu(ctx, p.StoreID)
	if err != nil {
		return nil, err
	}

	group := models.Group{
		GroupID:         uuid.NewString(),
		StoreID:         p.StoreID,
		MenuID:          menu.MenuID,
		OwnerID:         ownerID,
		Name:            p.Name,
		Note:            p.Note,
		Deadline:        p.Deadline,
		DeliveryFee:     p.DeliveryFee,
		MinMembers:      p.MinMembers,
		EnableLuckyDraw: p.EnableLuckyDraw,
		LuckyDrawCount:  p.LuckyDrawCount,
		CreatedAt:       s.Now(),
	}
	if err := s.DB.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	s.Logger.Info("GROUP", fmt.Sprintf("group %s created by %s for store %s", group.GroupID, ownerID, p.StoreID))
	return &group, nil
}

// GetView loads the group and recomputes the settlement from a consistent
// read of its orders. Viewing a group whose deadline has passed is one of the
// lazy lucky-draw triggers.
func (s *Service) GetView(ctx context.Context, groupID string) (*View, error) {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.maybeResolveLuckyDraw(ctx, group); err != nil {
		return nil, err
	}

	settlement, err := s.buildSettlement(ctx, group)
	if err != nil {
		return nil, err
	}
	return &View{
		Group:      *group,
		IsOpen:     group.IsOpen(s.Now()),
		Settlement: settlement,
	}, nil
}

func (s *Service) buildSettlement(ctx context.Context, group *models.Group) (*Settlement, error) {
	orders, err := s.DB.ListOrdersWithLines(ctx, group.GroupID)
	if err != nil {
		return nil, err
	}
	winners, err := s.DB.ListWinners(ctx, group.GroupID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(orders))
	for _, o := range orders {
		userIDs = append(userIDs, o.UserID)
	}
	users, err := s.DB.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return BuildSettlement(group, orders, winners, users), nil
}

// requireOwner loads the acting user and rejects unless they own the group or
// are an admin.
func (s *Service) requireOwner(ctx context.Context, group *models.Group, actorID string) error {
	if group.OwnerID == actorID {
		return nil
	}
	actor, err := s.DB.GetUser(ctx, actorID)
	if err != nil {
		if err == models.ErrNotFound {
			return models.ErrUnauthorizedActor
		}
		return err
	}
	if !actor.IsAdmin {
		return models.ErrUnauthorizedActor
	}
	return nil
}

// Close marks the group closed by owner action and resolves the lucky draw.
// Closing an already-closed group is a no-op.
func (s *Service) Close(ctx context.Context, groupID, actorID string) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, group, actorID); err != nil {
		return err
	}

	closed, err := s.DB.CloseGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if closed {
		group.IsClosed = true
		if err := s.Kafka.PublishGroupClosed(*group); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("group closed event not published: %v", err))
		}
	}
	return s.maybeResolveLuckyDraw(ctx, group)
}

// UpdateInfo applies the owner's name/note/deadline edits. These are
// administrative, not participatory, so they are allowed even after the group
// closed or expired.
func (s *Service) UpdateInfo(ctx context.Context, groupID, actorID string, p UpdateInfoParams) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, group, actorID); err != nil {
		return err
	}

	name, note, deadline := group.Name, group.Note, group.Deadline
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return fmt.Errorf("group name is required")
		}
		name = *p.Name
	}
	if p.Note != nil {
		note = *p.Note
	}
	if p.Deadline != nil {
		deadline = *p.Deadline
	}
	return s.DB.UpdateGroupInfo(ctx, groupID, name, note, deadline)
}

// SetDeliveryFee changes the fee. Unlike name/note/deadline this shifts what
// every participant owes, so it stays behind the open gate.
func (s *Service) SetDeliveryFee(ctx context.Context, groupID, actorID string, fee decimal.NullDecimal) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, group, actorID); err != nil {
		return err
	}
	if !group.IsOpen(s.Now()) {
		return models.ErrGroupClosed
	}
	if fee.Valid && fee.Decimal.IsNegative() {
		return fmt.Errorf("delivery fee must not be negative")
	}
	return s.DB.SetDeliveryFee(ctx, groupID, fee)
}

// Transfer hands the group to a new owner. In-flight edits by other
// participants are untouched; ownership only gates owner-only calls.
func (s *Service) Transfer(ctx context.Context, groupID, actorID, newOwnerID string) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, group, actorID); err != nil {
		return err
	}
	if _, err := s.DB.GetUser(ctx, newOwnerID); err != nil {
		return err
	}
	return s.DB.TransferOwner(ctx, groupID, newOwnerID)
}

// Delete removes the group and everything under it.
func (s *Service) Delete(ctx context.Context, groupID, actorID string) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, group, actorID); err != nil {
		return err
	}
	s.Logger.Info("GROUP", fmt.Sprintf("group %s deleted by %s", groupID, actorID))
	return s.DB.DeleteGroup(ctx, groupID)
}

// DeclareTreat marks the caller as paying for everyone, freezing the group
// total at this moment into a treat record. Requires the caller's own order
// to be submitted; later submissions do not change the frozen amount.
func (s *Service) DeclareTreat(ctx context.Context, groupID, userID, note string) (*models.TreatRecord, error) {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsOpen(s.Now()) {
		return nil, models.ErrGroupClosed
	}
	if group.TreatUserID != "" {
		return nil, models.ErrTreatAlreadyDeclared
	}

	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrEmptyOrder
		}
		return nil, err
	}
	if o.Status != models.StatusSubmitted {
		return nil, models.ErrEmptyOrder
	}

	orders, err := s.DB.ListOrdersWithLines(ctx, groupID)
	if err != nil {
		return nil, err
	}
	record := models.TreatRecord{
		TreatID:   uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		Amount:    GroupTotal(group, orders),
		Note:      note,
		CreatedAt: s.Now(),
	}
	ok, err := s.DB.SetTreat(ctx, groupID, record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrTreatAlreadyDeclared
	}
	s.Logger.Info("GROUP", fmt.Sprintf("treat declared on group %s by %s (%s)", groupID, userID, record.Amount.String()))
	return &record, nil
}

// CancelTreat clears the active payer. Only the payer themself or an admin
// may cancel; canceling when nobody treats is a no-op.
func (s *Service) CancelTreat(ctx context.Context, groupID, actorID string) error {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.TreatUserID == "" {
		return nil
	}
	if group.TreatUserID != actorID {
		actor, err := s.DB.GetUser(ctx, actorID)
		if err != nil {
			if err == models.ErrNotFound {
				return models.ErrUnauthorizedActor
			}
			return err
		}
		if !actor.IsAdmin {
			return models.ErrUnauthorizedActor
		}
	}
	return s.DB.ClearTreat(ctx, groupID)
}

// TreatLeaderboard ranks a store's all-time payers by total treated amount.
// Canceled treats have no record left, so only honored rounds count.
func (s *Service) TreatLeaderboard(ctx context.Context, storeID string, limit int) ([]TreatLeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.DB.TreatLeaderboard(ctx, storeID, limit)
}

// maybeResolveLuckyDraw runs on every path that observes the group closed.
// The conditional claim in the store guarantees the sample is drawn exactly
// once no matter how many readers race through here.
func (s *Service) maybeResolveLuckyDraw(ctx context.Context, group *models.Group) error {
	if !group.EnableLuckyDraw || group.LuckyDrawn {
		return nil
	}
	if group.IsOpen(s.Now()) {
		return nil
	}

	winners, claimed, err := s.DB.ResolveLuckyDraw(ctx, group.GroupID, func(candidates []string) []string {
		return s.Pick(candidates, group.LuckyDrawCount)
	})
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	group.LuckyDrawn = true
	s.Logger.Info("GROUP", fmt.Sprintf("lucky draw resolved for group %s: %d winner(s)", group.GroupID, len(winners)))
	if err := s.Kafka.PublishLuckyDraw(group.GroupID, winners); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("lucky draw event not published: %v", err))
	}
	return nil
}
