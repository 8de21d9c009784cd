package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-grouporder/internal/catalog"
	"ms-grouporder/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory fakes for the service's collaborators.

type fakeDB struct {
	mu            sync.Mutex
	groups        map[string]*models.Group
	orders        map[string]*models.Order
	lines         map[string][]models.Line
	lastSubmitted *models.OrderWithLines
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		groups: make(map[string]*models.Group),
		orders: make(map[string]*models.Order),
		lines:  make(map[string][]models.Line),
	}
}

func (f *fakeDB) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (f *fakeDB) GetOrder(_ context.Context, groupID, userID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.GroupID == groupID && o.UserID == userID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeDB) GetOrderByID(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (f *fakeDB) CreateOrder(_ context.Context, order models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.OrderID] = &order
	return nil
}

func (f *fakeDB) GetLines(_ context.Context, orderID string) ([]models.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Line{}, f.lines[orderID]...), nil
}

func (f *fakeDB) GetLine(_ context.Context, lineID string) (*models.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lines := range f.lines {
		for i := range lines {
			if lines[i].LineID == lineID {
				copied := lines[i]
				return &copied, nil
			}
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeDB) InsertLine(_ context.Context, line models.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[line.OrderID] = append(f.lines[line.OrderID], line)
	return nil
}

func (f *fakeDB) SetLineQuantity(_ context.Context, lineID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for orderID, lines := range f.lines {
		for i := range lines {
			if lines[i].LineID == lineID {
				f.lines[orderID][i].Quantity = quantity
				return nil
			}
		}
	}
	return models.ErrNotFound
}

func (f *fakeDB) DeleteLine(_ context.Context, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for orderID, lines := range f.lines {
		for i := range lines {
			if lines[i].LineID == lineID {
				f.lines[orderID] = append(lines[:i], lines[i+1:]...)
				return nil
			}
		}
	}
	return models.ErrNotFound
}

func (f *fakeDB) TransitionOrder(_ context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, snapshot string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if o.Status == s {
			o.Status = to
			o.Snapshot = snapshot
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) RestoreLines(_ context.Context, orderID string, lines []models.Line) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.StatusEditing {
		return false, nil
	}
	o.Status = models.StatusSubmitted
	o.Snapshot = ""
	f.lines[orderID] = append([]models.Line{}, lines...)
	return true, nil
}

func (f *fakeDB) ResetToDraft(_ context.Context, orderID string, lines []models.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	o.Status = models.StatusDraft
	o.Snapshot = ""
	f.lines[orderID] = append([]models.Line{}, lines...)
	return nil
}

func (f *fakeDB) LastSubmittedOrder(_ context.Context, storeID, userID, excludeGroupID string) (*models.OrderWithLines, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSubmitted == nil {
		return nil, models.ErrNotFound
	}
	return f.lastSubmitted, nil
}

type fakeCatalog struct {
	snap *catalog.Snapshot
}

func (f *fakeCatalog) Snapshot(_ context.Context, _ *models.Group) (*catalog.Snapshot, error) {
	return f.snap, nil
}

type fakeLock struct {
	mu     sync.Mutex
	held   map[string]bool
	denied bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (f *fakeLock) LockSubmit(groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return false, nil
	}
	key := groupID + ":" + userID
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLock) UnlockSubmit(groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, groupID+":"+userID)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	submitted int
	reopened  int
}

func (f *fakePublisher) PublishOrderSubmitted(models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	return nil
}

func (f *fakePublisher) PublishOrderReopened(models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopened++
	return nil
}

func testCatalog() *catalog.Snapshot {
	items := []models.MenuItem{
		{
			ItemID:     "item-tea",
			Name:       "Milk Tea",
			BasePrice:  d("50"),
			LargePrice: decimal.NullDecimal{Decimal: d("65"), Valid: true},
		},
		{ItemID: "item-coffee", Name: "Latte", BasePrice: d("70")},
	}
	options := []models.ItemOption{
		{OptionID: "opt-oat", ItemID: "item-coffee", Name: "Oat Milk", PriceDelta: d("10")},
	}
	toppings := []models.StoreTopping{
		{ToppingID: "top-pearl", StoreID: "store-1", Name: "Pearls", Price: d("10"), IsActive: true},
	}
	return catalog.NewSnapshot(items, options, toppings)
}

func newTestService(t *testing.T) (*Service, *fakeDB, *fakeLock, *fakePublisher) {
	t.Helper()
	db := newFakeDB()
	lock := newFakeLock()
	pub := &fakePublisher{}

	now := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	db.groups["group-1"] = &models.Group{
		GroupID:  "group-1",
		StoreID:  "store-1",
		MenuID:   "menu-1",
		OwnerID:  "owner",
		Name:     "Friday drinks",
		Deadline: now.Add(time.Hour),
	}

	svc := NewService(db, &fakeCatalog{snap: testCatalog()}, lock, pub, nil)
	svc.Now = func() time.Time { return now }
	return svc, db, lock, pub
}

func TestAddItem_MergesIdenticalLines(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	p := AddItemParams{ItemID: "item-tea", Size: "L", Quantity: 1, ToppingIDs: []string{"top-pearl"}}
	_, err := svc.AddItem(ctx, "group-1", "alice", p)
	require.NoError(t, err)
	o, err := svc.AddItem(ctx, "group-1", "alice", p)
	require.NoError(t, err)

	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.True(t, o.Lines[0].UnitPrice.Equal(d("65")))

	// A different note is a different line.
	p.Note = "less ice"
	o, err = svc.AddItem(ctx, "group-1", "alice", p)
	require.NoError(t, err)
	assert.Len(t, o.Lines, 2)
}

func TestAddItem_FrozenPriceSurvivesCatalogChange(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-coffee", Quantity: 1})
	require.NoError(t, err)

	// Swap the catalog to a pricier one; the existing line keeps its copy.
	svc.Catalog = &fakeCatalog{snap: catalog.NewSnapshot(
		[]models.MenuItem{{ItemID: "item-coffee", Name: "Latte", BasePrice: d("999")}}, nil, nil)}

	o, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.True(t, o.Lines[0].UnitPrice.Equal(d("70")))
}

func TestAddItem_UnknownItem(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.AddItem(context.Background(), "group-1", "alice", AddItemParams{ItemID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, models.ErrCatalogItemMissing)
}

func TestAddItem_ExpiredGroup(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC) }

	_, err := svc.AddItem(context.Background(), "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 1})
	assert.ErrorIs(t, err, models.ErrGroupClosed)
}

func TestAddItem_LockedWhileSubmitted(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, "group-1", "alice"))

	_, err = svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-coffee", Quantity: 1})
	assert.ErrorIs(t, err, models.ErrOrderLocked)
}

func TestSubmit_EmptyOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.Submit(context.Background(), "group-1", "alice")
	assert.ErrorIs(t, err, models.ErrEmptyOrder)
}

func TestSubmit_LoserOfLockRace(t *testing.T) {
	svc, _, lock, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 1})
	require.NoError(t, err)

	lock.denied = true
	err = svc.Submit(ctx, "group-1", "alice")
	assert.ErrorIs(t, err, models.ErrOrderLocked)
}

func TestSubmit_PublishesEvent(t *testing.T) {
	svc, db, _, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, "group-1", "alice"))

	o, err := db.GetOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, o.Status)
	assert.Equal(t, 1, pub.submitted)
}

func TestEditCancel_RestoresExactSnapshot(t *testing.T) {
	svc, _, _, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{
		ItemID: "item-tea", Size: "L", Quantity: 2, ToppingIDs: []string{"top-pearl"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, "group-1", "alice"))
	require.NoError(t, svc.Edit(ctx, "group-1", "alice"))
	assert.Equal(t, 1, pub.reopened)

	// Mutate while editing: add a line and bump the original quantity.
	o, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	originalLineID := o.Lines[0].LineID
	require.NoError(t, svc.SetQuantity(ctx, "group-1", "alice", originalLineID, 5))
	_, err = svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-coffee", Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, svc.CancelEdit(ctx, "group-1", "alice"))

	restored, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, restored.Status)
	require.Len(t, restored.Lines, 1)
	line := restored.Lines[0]
	assert.Equal(t, "item-tea", line.ItemID)
	assert.Equal(t, "L", line.Size)
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.UnitPrice.Equal(d("65")))
	require.Len(t, line.Toppings, 1)
	assert.Equal(t, "top-pearl", line.Toppings[0].ToppingID)
}

func TestCancelEdit_WithoutSnapshot(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	db.orders["o-1"] = &models.Order{
		OrderID: "o-1",
		GroupID: "group-1",
		UserID:  "alice",
		Status:  models.StatusEditing,
	}
	err := svc.CancelEdit(ctx, "group-1", "alice")
	assert.ErrorIs(t, err, models.ErrNoSnapshotToRestore)
}

func TestDeleteLastLine_DoesNotChangeState(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.SetQuantity(ctx, "group-1", "alice", o.Lines[0].LineID, 0))

	after, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, after.Status)
	assert.Empty(t, after.Lines)

	// And the now-empty order cannot be submitted.
	assert.ErrorIs(t, svc.Submit(ctx, "group-1", "alice"), models.ErrEmptyOrder)
}

func TestFollowLine_SkipsVanishedReferences(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	// Bob's line carries a topping that has since been deactivated.
	db.orders["o-bob"] = &models.Order{OrderID: "o-bob", GroupID: "group-1", UserID: "bob", Status: models.StatusSubmitted}
	db.lines["o-bob"] = []models.Line{{
		OrderLine: models.OrderLine{
			LineID: "l-bob", OrderID: "o-bob", ItemID: "item-tea", ItemName: "Milk Tea",
			Quantity: 4, UnitPrice: d("50"),
		},
		Toppings: []models.LineTopping{{LineID: "l-bob", ToppingID: "top-gone", Name: "Taro", Price: d("15")}},
	}}

	require.NoError(t, svc.FollowLine(ctx, "group-1", "alice", "l-bob"))

	o, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 1, o.Lines[0].Quantity)
	assert.Empty(t, o.Lines[0].Toppings)
}

func TestFollowLine_MissingItemIsNoOp(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	db.orders["o-bob"] = &models.Order{OrderID: "o-bob", GroupID: "group-1", UserID: "bob", Status: models.StatusSubmitted}
	db.lines["o-bob"] = []models.Line{{
		OrderLine: models.OrderLine{
			LineID: "l-bob", OrderID: "o-bob", ItemID: "item-gone", ItemName: "Retired",
			Quantity: 1, UnitPrice: d("30"),
		},
	}}

	require.NoError(t, svc.FollowLine(ctx, "group-1", "alice", "l-bob"))

	_, err := svc.MyOrder(ctx, "group-1", "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCopyLast_SkipsMissingItems(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	db.lastSubmitted = &models.OrderWithLines{
		Order: models.Order{OrderID: "o-old", GroupID: "group-0", UserID: "alice", Status: models.StatusSubmitted},
		Lines: []models.Line{
			{OrderLine: models.OrderLine{LineID: "l-1", OrderID: "o-old", ItemID: "item-tea", ItemName: "Milk Tea", Quantity: 2, UnitPrice: d("50")}},
			{OrderLine: models.OrderLine{LineID: "l-2", OrderID: "o-old", ItemID: "item-gone", ItemName: "Retired", Quantity: 1, UnitPrice: d("30")}},
		},
	}

	require.NoError(t, svc.CopyLast(ctx, "group-1", "alice"))

	o, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, o.Status)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "item-tea", o.Lines[0].ItemID)
}

func TestClear_IsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// No order yet: clearing is a no-op, not an error.
	require.NoError(t, svc.Clear(ctx, "group-1", "alice"))

	_, err := svc.AddItem(ctx, "group-1", "alice", AddItemParams{ItemID: "item-tea", Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "group-1", "alice"))

	o, err := svc.MyOrder(ctx, "group-1", "alice")
	require.NoError(t, err)
	assert.Empty(t, o.Lines)
	assert.Equal(t, models.StatusDraft, o.Status)
}
