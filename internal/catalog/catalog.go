package catalog

import (
	"context"
	"ms-grouporder/internal/models"

	"github.com/uptrace/bun"
)

// Snapshot is the read-only view of a group's menu: the items of the menu the
// group was opened with plus the store's active toppings. The group pins its
// menu id at creation, so this view is stable for the group's lifetime even
// if the store activates a newer menu afterwards.
type Snapshot struct {
	items    map[string]models.MenuItem
	options  map[string]models.ItemOption
	toppings map[string]models.StoreTopping
}

// Item returns the catalog item, or ErrCatalogItemMissing.
func (s *Snapshot) Item(itemID string) (models.MenuItem, error) {
	item, ok := s.items[itemID]
	if !ok {
		return models.MenuItem{}, models.ErrCatalogItemMissing
	}
	return item, nil
}

// Option returns the option if it exists and belongs to the given item.
func (s *Snapshot) Option(itemID, optionID string) (models.ItemOption, error) {
	opt, ok := s.options[optionID]
	if !ok || opt.ItemID != itemID {
		return models.ItemOption{}, models.ErrCatalogItemMissing
	}
	return opt, nil
}

// Topping returns the store topping, or ErrCatalogItemMissing.
func (s *Snapshot) Topping(toppingID string) (models.StoreTopping, error) {
	t, ok := s.toppings[toppingID]
	if !ok {
		return models.StoreTopping{}, models.ErrCatalogItemMissing
	}
	return t, nil
}

// HasItem reports whether the item still resolves. Follow/copy operations use
// this to skip vanished lines instead of failing the whole copy.
func (s *Snapshot) HasItem(itemID string) bool {
	_, ok := s.items[itemID]
	return ok
}

// NewSnapshot builds a snapshot from already-loaded catalog rows. Used by
// tests and by callers that assemble menus out of band.
func NewSnapshot(items []models.MenuItem, options []models.ItemOption, toppings []models.StoreTopping) *Snapshot {
	s := &Snapshot{
		items:    make(map[string]models.MenuItem, len(items)),
		options:  make(map[string]models.ItemOption, len(options)),
		toppings: make(map[string]models.StoreTopping, len(toppings)),
	}
	for _, it := range items {
		s.items[it.ItemID] = it
	}
	for _, opt := range options {
		s.options[opt.OptionID] = opt
	}
	for _, t := range toppings {
		if t.IsActive {
			s.toppings[t.ToppingID] = t
		}
	}
	return s
}

// DB loads catalog snapshots from the database.
type DB struct {
	Bun *bun.DB
}

// Snapshot loads the menu items, their options and the store's toppings for
// one group.
func (d *DB) Snapshot(ctx context.Context, group *models.Group) (*Snapshot, error) {
	var items []models.MenuItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("menu_id = ?", group.MenuID).
		Order("sort_order").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var options []models.ItemOption
	if len(items) > 0 {
		itemIDs := make([]string, len(items))
		for i, it := range items {
			itemIDs[i] = it.ItemID
		}
		err = d.Bun.NewSelect().
			Model(&options).
			Where("item_id IN (?)", bun.In(itemIDs)).
			Order("sort_order").
			Scan(ctx)
		if err != nil {
			return nil, err
		}
	}

	var toppings []models.StoreTopping
	err = d.Bun.NewSelect().
		Model(&toppings).
		Where("store_id = ?", group.StoreID).
		Where("is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return NewSnapshot(items, options, toppings), nil
}
