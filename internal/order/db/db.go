package db

import (
	"context"
	"database/sql"
	"time"

	"ms-grouporder/internal/models"

	"github.com/uptrace/bun"
)

// DB is the bun-backed order store. Multi-step mutations run inside a single
// transaction; state transitions are conditional updates so concurrent
// writers race on rows-affected instead of clobbering each other.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	err := d.Bun.NewSelect().
		Model(&group).
		Where("group_id = ?", groupID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (d *DB) GetOrder(ctx context.Context, groupID, userID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("group_id = ?", groupID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

// GetLines fetches all lines of one order with their options and toppings.
func (d *DB) GetLines(ctx context.Context, orderID string) ([]models.Line, error) {
	var rows []models.OrderLine
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("order_id = ?", orderID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.Line{}, nil
	}

	lineIDs := make([]string, len(rows))
	for i, r := range rows {
		lineIDs[i] = r.LineID
	}

	var options []models.LineOption
	err = d.Bun.NewSelect().
		Model(&options).
		Where("line_id IN (?)", bun.In(lineIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	var toppings []models.LineTopping
	err = d.Bun.NewSelect().
		Model(&toppings).
		Where("line_id IN (?)", bun.In(lineIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	optsByLine := make(map[string][]models.LineOption)
	for _, o := range options {
		optsByLine[o.LineID] = append(optsByLine[o.LineID], o)
	}
	topsByLine := make(map[string][]models.LineTopping)
	for _, t := range toppings {
		topsByLine[t.LineID] = append(topsByLine[t.LineID], t)
	}

	lines := make([]models.Line, len(rows))
	for i, r := range rows {
		lines[i] = models.Line{
			OrderLine: r,
			Options:   optsByLine[r.LineID],
			Toppings:  topsByLine[r.LineID],
		}
	}
	return lines, nil
}

func (d *DB) GetLine(ctx context.Context, lineID string) (*models.Line, error) {
	var row models.OrderLine
	err := d.Bun.NewSelect().
		Model(&row).
		Where("line_id = ?", lineID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	line := models.Line{OrderLine: row}
	err = d.Bun.NewSelect().
		Model(&line.Options).
		Where("line_id = ?", lineID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	err = d.Bun.NewSelect().
		Model(&line.Toppings).
		Where("line_id = ?", lineID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (d *DB) InsertLine(ctx context.Context, line models.Line) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return insertLineTx(ctx, tx, line)
	})
}

func insertLineTx(ctx context.Context, tx bun.Tx, line models.Line) error {
	if _, err := tx.NewInsert().Model(&line.OrderLine).Exec(ctx); err != nil {
		return err
	}
	if len(line.Options) > 0 {
		if _, err := tx.NewInsert().Model(&line.Options).Exec(ctx); err != nil {
			return err
		}
	}
	if len(line.Toppings) > 0 {
		if _, err := tx.NewInsert().Model(&line.Toppings).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) SetLineQuantity(ctx context.Context, lineID string, quantity int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.OrderLine)(nil)).
		Set("quantity = ?", quantity).
		Where("line_id = ?", lineID).
		Exec(ctx)
	return err
}

func (d *DB) DeleteLine(ctx context.Context, lineID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.LineOption)(nil)).
			Where("line_id = ?", lineID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.LineTopping)(nil)).
			Where("line_id = ?", lineID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.OrderLine)(nil)).
			Where("line_id = ?", lineID).
			Exec(ctx)
		return err
	})
}

// TransitionOrder is the compare-and-set behind every state change: the
// update only lands when the order is still in one of the from states, and
// the caller learns whether it won via the returned bool.
func (d *DB) TransitionOrder(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, snapshot string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("snapshot = ?", sql.NullString{String: snapshot, Valid: snapshot != ""}).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func deleteLinesTx(ctx context.Context, tx bun.Tx, orderID string) error {
	if _, err := tx.NewDelete().
		Model((*models.LineOption)(nil)).
		Where("line_id IN (SELECT line_id FROM order_lines WHERE order_id = ?)", orderID).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().
		Model((*models.LineTopping)(nil)).
		Where("line_id IN (SELECT line_id FROM order_lines WHERE order_id = ?)", orderID).
		Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewDelete().
		Model((*models.OrderLine)(nil)).
		Where("order_id = ?", orderID).
		Exec(ctx)
	return err
}

// RestoreLines implements cancel-edit: in one transaction the order moves
// editing → submitted (conditionally) and its cart is replaced by the
// snapshot lines. Nothing changes when the order already left editing.
func (d *DB) RestoreLines(ctx context.Context, orderID string, lines []models.Line) (bool, error) {
	restored := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.StatusSubmitted).
			Set("snapshot = ?", sql.NullString{}).
			Set("updated_at = ?", time.Now()).
			Where("order_id = ?", orderID).
			Where("status = ?", models.StatusEditing).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		if err := deleteLinesTx(ctx, tx, orderID); err != nil {
			return err
		}
		for _, line := range lines {
			if err := insertLineTx(ctx, tx, line); err != nil {
				return err
			}
		}
		restored = true
		return nil
	})
	return restored, err
}

// ResetToDraft replaces the cart and forces the order back to draft with no
// snapshot, used by clear-cart and copy-last.
func (d *DB) ResetToDraft(ctx context.Context, orderID string, lines []models.Line) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.StatusDraft).
			Set("snapshot = ?", sql.NullString{}).
			Set("updated_at = ?", time.Now()).
			Where("order_id = ?", orderID).
			Exec(ctx); err != nil {
			return err
		}
		if err := deleteLinesTx(ctx, tx, orderID); err != nil {
			return err
		}
		for _, line := range lines {
			if err := insertLineTx(ctx, tx, line); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSubmittedOrder finds the caller's most recent submitted order at the
// same store outside the current group.
func (d *DB) LastSubmittedOrder(ctx context.Context, storeID, userID, excludeGroupID string) (*models.OrderWithLines, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Join("JOIN groups g ON g.group_id = \"order\".group_id").
		Where("\"order\".user_id = ?", userID).
		Where("\"order\".status = ?", models.StatusSubmitted).
		Where("\"order\".group_id != ?", excludeGroupID).
		Where("g.store_id = ?", storeID).
		OrderExpr("\"order\".created_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	lines, err := d.GetLines(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithLines{Order: order, Lines: lines}, nil
}
