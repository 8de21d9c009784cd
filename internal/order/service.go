package order

import (
	"context"
	"fmt"
	"time"

	"ms-grouporder/internal/catalog"
	"ms-grouporder/internal/logger"
	"ms-grouporder/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetOrder(ctx context.Context, groupID, userID string) (*models.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	CreateOrder(ctx context.Context, order models.Order) error
	GetLines(ctx context.Context, orderID string) ([]models.Line, error)
	GetLine(ctx context.Context, lineID string) (*models.Line, error)
	InsertLine(ctx context.Context, line models.Line) error
	SetLineQuantity(ctx context.Context, lineID string, quantity int) error
	DeleteLine(ctx context.Context, lineID string) error
	// TransitionOrder conditionally moves the order between states. It must be
	// a single compare-and-set update: the returned bool is false when the
	// order was not in any of the from states at commit time.
	TransitionOrder(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, snapshot string) (bool, error)
	// RestoreLines atomically replaces the cart with the given lines and moves
	// editing → submitted, clearing the snapshot. False when the order was not
	// in editing.
	RestoreLines(ctx context.Context, orderID string, lines []models.Line) (bool, error)
	// ResetToDraft atomically replaces the cart and forces draft state with no
	// snapshot, regardless of the current state.
	ResetToDraft(ctx context.Context, orderID string, lines []models.Line) error
	LastSubmittedOrder(ctx context.Context, storeID, userID, excludeGroupID string) (*models.OrderWithLines, error)
}

type CatalogProvider interface {
	Snapshot(ctx context.Context, group *models.Group) (*catalog.Snapshot, error)
}

// SubmitLock serializes submit attempts for one (group, user) pair so a
// double-submit from two tabs cannot interleave.
type SubmitLock interface {
	LockSubmit(groupID, userID string) (bool, error)
	UnlockSubmit(groupID, userID string) error
}

type Publisher interface {
	PublishOrderSubmitted(order models.Order) error
	PublishOrderReopened(order models.Order) error
}

// AddItemParams describes one direct "add to cart" request.
type AddItemParams struct {
	ItemID     string   `json:"item_id"`
	Size       string   `json:"size,omitempty"`
	Quantity   int      `json:"quantity"`
	Note       string   `json:"note,omitempty"`
	OptionIDs  []string `json:"option_ids,omitempty"`
	ToppingIDs []string `json:"topping_ids,omitempty"`
}

// Service implements the per-user order state machine inside a group:
// draft → submitted → editing → submitted, with snapshot-based rollback.
type Service struct {
	DB      DBLayer
	Catalog CatalogProvider
	Lock    SubmitLock
	Kafka   Publisher
	Logger  *logger.Logger

	// Now is the gate clock, swappable in tests.
	Now func() time.Time
}

func NewService(db DBLayer, cat CatalogProvider, lock SubmitLock, kafka Publisher, log *logger.Logger) *Service {
	return &Service{
		DB:      db,
		Catalog: cat,
		Lock:    lock,
		Kafka:   kafka,
		Logger:  log,
		Now:     time.Now,
	}
}

// openGroup loads the group and rejects with ErrGroupClosed when the open
// window has passed. Expiry is evaluated here, lazily, on every mutation.
func (s *Service) openGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.DB.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsOpen(s.Now()) {
		return nil, models.ErrGroupClosed
	}
	return group, nil
}

func (s *Service) getOrCreateOrder(ctx context.Context, groupID, userID string) (*models.Order, error) {
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err == nil {
		return o, nil
	}
	if err != models.ErrNotFound {
		return nil, err
	}
	now := s.Now()
	o = &models.Order{
		OrderID:   uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.DB.CreateOrder(ctx, *o); err != nil {
		return nil, err
	}
	return o, nil
}

// MyOrder returns the caller's order with its lines, or ErrNotFound when the
// caller has not touched the cart yet. Read-only, so no gate.
func (s *Service) MyOrder(ctx context.Context, groupID, userID string) (*models.OrderWithLines, error) {
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithLines{Order: *o, Lines: lines}, nil
}

// AddItem adds a catalog item to the caller's cart, merging into an existing
// line when item, size, options, toppings and note all match.
func (s *Service) AddItem(ctx context.Context, groupID, userID string, p AddItemParams) (*models.OrderWithLines, error) {
	group, err := s.openGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}

	snap, err := s.Catalog.Snapshot(ctx, group)
	if err != nil {
		return nil, err
	}
	item, err := snap.Item(p.ItemID)
	if err != nil {
		return nil, err
	}
	unitPrice, size := UnitPrice(item, p.Size)

	// Direct adds resolve every referenced option/topping or fail hard;
	// only follow/copy operations skip missing references.
	options := make([]models.LineOption, 0, len(p.OptionIDs))
	for _, id := range p.OptionIDs {
		opt, err := snap.Option(p.ItemID, id)
		if err != nil {
			return nil, err
		}
		options = append(options, models.LineOption{
			OptionID:   opt.OptionID,
			Name:       opt.Name,
			PriceDelta: opt.PriceDelta,
		})
	}
	toppings := make([]models.LineTopping, 0, len(p.ToppingIDs))
	for _, id := range p.ToppingIDs {
		t, err := snap.Topping(id)
		if err != nil {
			return nil, err
		}
		toppings = append(toppings, models.LineTopping{
			ToppingID: t.ToppingID,
			Name:      t.Name,
			Price:     t.Price,
		})
	}

	o, err := s.getOrCreateOrder(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.StatusSubmitted {
		return nil, models.ErrOrderLocked
	}

	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}

	line := models.Line{
		OrderLine: models.OrderLine{
			LineID:    uuid.NewString(),
			OrderID:   o.OrderID,
			ItemID:    item.ItemID,
			ItemName:  item.Name,
			Size:      size,
			Quantity:  p.Quantity,
			UnitPrice: unitPrice,
			Note:      p.Note,
			CreatedAt: s.Now(),
		},
		Options:  options,
		Toppings: toppings,
	}

	if existing := findMergeTarget(lines, line); existing != nil {
		if err := s.DB.SetLineQuantity(ctx, existing.LineID, existing.Quantity+p.Quantity); err != nil {
			return nil, err
		}
	} else if err := s.DB.InsertLine(ctx, line); err != nil {
		return nil, err
	}

	return s.MyOrder(ctx, groupID, userID)
}

// findMergeTarget returns the existing line that candidate must merge into,
// or nil. Two lines merge when item, size, note, option set and topping set
// are all identical.
func findMergeTarget(lines []models.Line, candidate models.Line) *models.Line {
	for i := range lines {
		l := &lines[i]
		if l.ItemID != candidate.ItemID || l.Size != candidate.Size || l.Note != candidate.Note {
			continue
		}
		if !sameIDSet(optionIDs(l.Options), optionIDs(candidate.Options)) {
			continue
		}
		if !sameIDSet(toppingIDs(l.Toppings), toppingIDs(candidate.Toppings)) {
			continue
		}
		return l
	}
	return nil
}

func optionIDs(opts []models.LineOption) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.OptionID
	}
	return ids
}

func toppingIDs(ts []models.LineTopping) []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ToppingID
	}
	return ids
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// myLine loads the caller's order and locates lineID inside it; ownership is
// implicit because lines of other users are never searched.
func (s *Service) myLine(ctx context.Context, groupID, userID, lineID string) (*models.Order, *models.Line, error) {
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		return nil, nil, err
	}
	if o.Status == models.StatusSubmitted {
		return nil, nil, models.ErrOrderLocked
	}
	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return nil, nil, err
	}
	for i := range lines {
		if lines[i].LineID == lineID {
			return o, &lines[i], nil
		}
	}
	return nil, nil, models.ErrNotFound
}

// SetQuantity updates one line's quantity; zero or less deletes the line.
// Deleting the last line does not change the order's state; the non-empty
// rule is enforced by Submit alone.
func (s *Service) SetQuantity(ctx context.Context, groupID, userID, lineID string, quantity int) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}
	_, line, err := s.myLine(ctx, groupID, userID, lineID)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return s.DB.DeleteLine(ctx, line.LineID)
	}
	return s.DB.SetLineQuantity(ctx, line.LineID, quantity)
}

// RemoveLine deletes one line from the caller's cart.
func (s *Service) RemoveLine(ctx context.Context, groupID, userID, lineID string) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}
	_, line, err := s.myLine(ctx, groupID, userID, lineID)
	if err != nil {
		return err
	}
	return s.DB.DeleteLine(ctx, line.LineID)
}

// Clear empties the caller's cart and resets the order to draft.
func (s *Service) Clear(ctx context.Context, groupID, userID string) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil
		}
		return err
	}
	return s.DB.ResetToDraft(ctx, o.OrderID, nil)
}

// Submit finalizes the caller's order. Guarded twice against the double-submit
// race: a short redis mutex keeps two tabs from interleaving, and the state
// transition itself is a conditional update so the loser fails with
// ErrOrderLocked instead of corrupting anything.
func (s *Service) Submit(ctx context.Context, groupID, userID string) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}

	ok, err := s.Lock.LockSubmit(groupID, userID)
	if err != nil {
		return fmt.Errorf("submit lock: %w", err)
	}
	if !ok {
		return models.ErrOrderLocked
	}
	defer func() {
		if err := s.Lock.UnlockSubmit(groupID, userID); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("failed to release submit lock for %s/%s: %v", groupID, userID, err))
		}
	}()

	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return models.ErrEmptyOrder
		}
		return err
	}
	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return models.ErrEmptyOrder
	}

	moved, err := s.DB.TransitionOrder(ctx, o.OrderID,
		[]models.OrderStatus{models.StatusDraft, models.StatusEditing},
		models.StatusSubmitted, "")
	if err != nil {
		return err
	}
	if !moved {
		return models.ErrOrderLocked
	}

	o.Status = models.StatusSubmitted
	o.Snapshot = ""
	if err := s.Kafka.PublishOrderSubmitted(*o); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("order submitted event not published: %v", err))
	}
	return nil
}

// Edit reopens a submitted order for changes, capturing the full pre-edit
// cart into the order's snapshot so CancelEdit can restore it exactly.
func (s *Service) Edit(ctx context.Context, groupID, userID string) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.StatusSubmitted {
		return fmt.Errorf("only a submitted order can enter edit mode (status %s)", o.Status)
	}
	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return err
	}
	snapshot, err := models.TakeSnapshot(lines)
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	moved, err := s.DB.TransitionOrder(ctx, o.OrderID,
		[]models.OrderStatus{models.StatusSubmitted}, models.StatusEditing, snapshot)
	if err != nil {
		return err
	}
	if !moved {
		return models.ErrOrderLocked
	}

	o.Status = models.StatusEditing
	if err := s.Kafka.PublishOrderReopened(*o); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("order reopened event not published: %v", err))
	}
	return nil
}

// CancelEdit discards all changes made since Edit and restores the snapshot,
// returning the order to submitted.
func (s *Service) CancelEdit(ctx context.Context, groupID, userID string) error {
	if _, err := s.openGroup(ctx, groupID); err != nil {
		return err
	}
	o, err := s.DB.GetOrder(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if o.Status != models.StatusEditing {
		return fmt.Errorf("order is not in edit mode (status %s)", o.Status)
	}
	if o.Snapshot == "" {
		return models.ErrNoSnapshotToRestore
	}
	snap, err := models.ParseSnapshot(o.Snapshot)
	if err != nil {
		return models.ErrNoSnapshotToRestore
	}

	lines := make([]models.Line, 0, len(snap.Lines))
	for _, sl := range snap.Lines {
		line := models.Line{
			OrderLine: models.OrderLine{
				LineID:    uuid.NewString(),
				OrderID:   o.OrderID,
				ItemID:    sl.ItemID,
				ItemName:  sl.ItemName,
				Size:      sl.Size,
				Quantity:  sl.Quantity,
				UnitPrice: sl.UnitPrice,
				Note:      sl.Note,
				CreatedAt: s.Now(),
			},
		}
		for _, so := range sl.Options {
			line.Options = append(line.Options, models.LineOption{
				OptionID:   so.OptionID,
				Name:       so.Name,
				PriceDelta: so.PriceDelta,
			})
		}
		for _, st := range sl.Toppings {
			line.Toppings = append(line.Toppings, models.LineTopping{
				ToppingID: st.ToppingID,
				Name:      st.Name,
				Price:     st.Price,
			})
		}
		lines = append(lines, line)
	}

	restored, err := s.DB.RestoreLines(ctx, o.OrderID, lines)
	if err != nil {
		return err
	}
	if !restored {
		return models.ErrOrderLocked
	}
	return nil
}

// FollowLine copies one line from another participant's order into the
// caller's cart with quantity 1. When the caller's order is submitted it
// automatically enters edit mode first. Catalog references that vanished
// since the source line was added are skipped silently: missing options or
// toppings are dropped from the copy, and a missing item makes the whole
// follow a no-op rather than an error.
func (s *Service) FollowLine(ctx context.Context, groupID, userID, sourceLineID string) error {
	group, err := s.openGroup(ctx, groupID)
	if err != nil {
		return err
	}
	source, err := s.DB.GetLine(ctx, sourceLineID)
	if err != nil {
		return err
	}
	sourceOrder, err := s.DB.GetOrderByID(ctx, source.OrderID)
	if err != nil {
		return err
	}
	if sourceOrder.GroupID != groupID {
		return models.ErrNotFound
	}

	snap, err := s.Catalog.Snapshot(ctx, group)
	if err != nil {
		return err
	}
	if !snap.HasItem(source.ItemID) {
		return nil
	}

	o, err := s.getOrCreateOrder(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if o.Status == models.StatusSubmitted {
		if err := s.Edit(ctx, groupID, userID); err != nil {
			return err
		}
	}

	line := models.Line{
		OrderLine: models.OrderLine{
			LineID:    uuid.NewString(),
			OrderID:   o.OrderID,
			ItemID:    source.ItemID,
			ItemName:  source.ItemName,
			Size:      source.Size,
			Quantity:  1,
			UnitPrice: source.UnitPrice,
			Note:      source.Note,
			CreatedAt: s.Now(),
		},
	}
	for _, opt := range source.Options {
		if _, err := snap.Option(source.ItemID, opt.OptionID); err != nil {
			continue
		}
		line.Options = append(line.Options, models.LineOption{
			OptionID:   opt.OptionID,
			Name:       opt.Name,
			PriceDelta: opt.PriceDelta,
		})
	}
	for _, t := range source.Toppings {
		if _, err := snap.Topping(t.ToppingID); err != nil {
			continue
		}
		line.Toppings = append(line.Toppings, models.LineTopping{
			ToppingID: t.ToppingID,
			Name:      t.Name,
			Price:     t.Price,
		})
	}

	lines, err := s.DB.GetLines(ctx, o.OrderID)
	if err != nil {
		return err
	}
	if existing := findMergeTarget(lines, line); existing != nil {
		return s.DB.SetLineQuantity(ctx, existing.LineID, existing.Quantity+1)
	}
	return s.DB.InsertLine(ctx, line)
}

// CopyLast replaces the caller's cart with their most recent submitted order
// at the same store. Lines whose catalog item no longer resolves are skipped;
// the copy succeeds with whatever still exists. The order lands in draft.
func (s *Service) CopyLast(ctx context.Context, groupID, userID string) error {
	group, err := s.openGroup(ctx, groupID)
	if err != nil {
		return err
	}
	previous, err := s.DB.LastSubmittedOrder(ctx, group.StoreID, userID, groupID)
	if err != nil {
		return err
	}

	snap, err := s.Catalog.Snapshot(ctx, group)
	if err != nil {
		return err
	}

	o, err := s.getOrCreateOrder(ctx, groupID, userID)
	if err != nil {
		return err
	}

	lines := make([]models.Line, 0, len(previous.Lines))
	for _, old := range previous.Lines {
		if !snap.HasItem(old.ItemID) {
			continue
		}
		line := models.Line{
			OrderLine: models.OrderLine{
				LineID:    uuid.NewString(),
				OrderID:   o.OrderID,
				ItemID:    old.ItemID,
				ItemName:  old.ItemName,
				Size:      old.Size,
				Quantity:  old.Quantity,
				UnitPrice: old.UnitPrice,
				Note:      old.Note,
				CreatedAt: s.Now(),
			},
		}
		for _, opt := range old.Options {
			if _, err := snap.Option(old.ItemID, opt.OptionID); err != nil {
				continue
			}
			line.Options = append(line.Options, models.LineOption{
				OptionID:   opt.OptionID,
				Name:       opt.Name,
				PriceDelta: opt.PriceDelta,
			})
		}
		for _, t := range old.Toppings {
			if _, err := snap.Topping(t.ToppingID); err != nil {
				continue
			}
			line.Toppings = append(line.Toppings, models.LineTopping{
				ToppingID: t.ToppingID,
				Name:      t.Name,
				Price:     t.Price,
			})
		}
		lines = append(lines, line)
	}

	return s.DB.ResetToDraft(ctx, o.OrderID, lines)
}
