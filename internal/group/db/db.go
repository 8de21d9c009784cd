package db

import (
	"context"
	"database/sql"
	"time"

	"ms-grouporder/internal/group"
	"ms-grouporder/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// DB is the bun-backed group store. The lucky-draw claim and the treat marker
// are conditional updates so concurrent triggers resolve to exactly one
// winner of each race.
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

func (d *DB) CreateGroup(ctx context.Context, group models.Group) error {
	_, err := d.Bun.NewInsert().Model(&group).Exec(ctx)
	return err
}

func (d *DB) UpdateGroupInfo(ctx context.Context, groupID, name, note string, deadline time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Group)(nil)).
		Set("name = ?", name).
		Set("note = ?", sql.NullString{String: note, Valid: note != ""}).
		Set("deadline = ?", deadline).
		Where("group_id = ?", groupID).
		Exec(ctx)
	return err
}

func (d *DB) SetDeliveryFee(ctx context.Context, groupID string, fee decimal.NullDecimal) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Group)(nil)).
		Set("delivery_fee = ?", fee).
		Where("group_id = ?", groupID).
		Exec(ctx)
	return err
}

// CloseGroup flips the closed flag once; a second close reports false.
func (d *DB) CloseGroup(ctx context.Context, groupID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Group)(nil)).
		Set("is_closed = ?", true).
		Where("group_id = ?", groupID).
		Where("is_closed = ?", false).
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

func (d *DB) TransferOwner(ctx context.Context, groupID, newOwnerID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Group)(nil)).
		Set("owner_id = ?", newOwnerID).
		Where("group_id = ?", groupID).
		Exec(ctx)
	return err
}

// DeleteGroup removes the group and cascades through orders, lines, winners
// and treat records in one transaction.
func (d *DB) DeleteGroup(ctx context.Context, groupID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		const lineScope = "line_id IN (SELECT line_id FROM order_lines WHERE order_id IN (SELECT order_id FROM orders WHERE group_id = ?))"
		if _, err := tx.NewDelete().
			Model((*models.LineOption)(nil)).
			Where(lineScope, groupID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.LineTopping)(nil)).
			Where(lineScope, groupID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.OrderLine)(nil)).
			Where("order_id IN (SELECT order_id FROM orders WHERE group_id = ?)", groupID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.Order)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.LuckyWinner)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.TreatRecord)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.Group)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx)
		return err
	})
}

// ActiveMenu returns the store's newest active menu.
func (d *DB) ActiveMenu(ctx context.Context, storeID string) (*models.Menu, error) {
	var menu models.Menu
	err := d.Bun.NewSelect().
		Model(&menu).
		Where("store_id = ?", storeID).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &menu, nil
}

// ListOrdersWithLines loads every order in the group with its lines inside
// one transaction, so aggregation and the lucky draw see a consistent set.
func (d *DB) ListOrdersWithLines(ctx context.Context, groupID string) ([]models.OrderWithLines, error) {
	var result []models.OrderWithLines
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var orders []models.Order
		err := tx.NewSelect().
			Model(&orders).
			Where("group_id = ?", groupID).
			Order("created_at").
			Scan(ctx)
		if err != nil {
			return err
		}
		result = make([]models.OrderWithLines, 0, len(orders))
		if len(orders) == 0 {
			return nil
		}

		orderIDs := make([]string, len(orders))
		for i, o := range orders {
			orderIDs[i] = o.OrderID
		}

		var rows []models.OrderLine
		err = tx.NewSelect().
			Model(&rows).
			Where("order_id IN (?)", bun.In(orderIDs)).
			Order("created_at").
			Scan(ctx)
		if err != nil {
			return err
		}

		var options []models.LineOption
		var toppings []models.LineTopping
		if len(rows) > 0 {
			lineIDs := make([]string, len(rows))
			for i, r := range rows {
				lineIDs[i] = r.LineID
			}
			err = tx.NewSelect().
				Model(&options).
				Where("line_id IN (?)", bun.In(lineIDs)).
				Scan(ctx)
			if err != nil {
				return err
			}
			err = tx.NewSelect().
				Model(&toppings).
				Where("line_id IN (?)", bun.In(lineIDs)).
				Scan(ctx)
			if err != nil {
				return err
			}
		}

		optsByLine := make(map[string][]models.LineOption)
		for _, o := range options {
			optsByLine[o.LineID] = append(optsByLine[o.LineID], o)
		}
		topsByLine := make(map[string][]models.LineTopping)
		for _, t := range toppings {
			topsByLine[t.LineID] = append(topsByLine[t.LineID], t)
		}
		linesByOrder := make(map[string][]models.Line)
		for _, r := range rows {
			linesByOrder[r.OrderID] = append(linesByOrder[r.OrderID], models.Line{
				OrderLine: r,
				Options:   optsByLine[r.LineID],
				Toppings:  topsByLine[r.LineID],
			})
		}

		for _, o := range orders {
			lines := linesByOrder[o.OrderID]
			if lines == nil {
				lines = []models.Line{}
			}
			result = append(result, models.OrderWithLines{Order: o, Lines: lines})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DB) GetUsers(ctx context.Context, userIDs []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	var rows []models.User
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range rows {
		users[u.UserID] = u
	}
	return users, nil
}

// UpsertUser creates or refreshes a user row from the identity token claims.
func (d *DB) UpsertUser(ctx context.Context, user models.User) error {
	_, err := d.Bun.NewInsert().
		Model(&user).
		On("CONFLICT (user_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Exec(ctx)
	return err
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

// SetTreat claims the payer slot with a conditional update and records the
// frozen amount in the same transaction. False when another payer won first.
func (d *DB) SetTreat(ctx context.Context, groupID string, record models.TreatRecord) (bool, error) {
	claimed := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Group)(nil)).
			Set("treat_user_id = ?", record.UserID).
			Where("group_id = ?", groupID).
			Where("treat_user_id IS NULL OR treat_user_id = ''").
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
		if _, err := tx.NewInsert().Model(&record).Exec(ctx); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// ClearTreat removes the payer marker and the record it created.
func (d *DB) ClearTreat(ctx context.Context, groupID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var group models.Group
		err := tx.NewSelect().
			Model(&group).
			Where("group_id = ?", groupID).
			Limit(1).
			Scan(ctx)
		if err == sql.ErrNoRows {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if group.TreatUserID == "" {
			return nil
		}
		if _, err := tx.NewDelete().
			Model((*models.TreatRecord)(nil)).
			Where("group_id = ?", groupID).
			Where("user_id = ?", group.TreatUserID).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.Group)(nil)).
			Set("treat_user_id = ?", sql.NullString{}).
			Where("group_id = ?", groupID).
			Exec(ctx)
		return err
	})
}

// ResolveLuckyDraw claims the draw exactly once. The conditional update on
// lucky_drawn is the whole guard: whichever trigger wins it reads the
// submitted participants inside the same transaction, samples winners via
// pick and records them; every other trigger sees zero rows affected and
// returns claimed=false without drawing.
func (d *DB) ResolveLuckyDraw(ctx context.Context, groupID string, pick func(candidates []string) []string) ([]string, bool, error) {
	var winners []string
	claimed := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Group)(nil)).
			Set("lucky_drawn = ?", true).
			Where("group_id = ?", groupID).
			Where("enable_lucky_draw = ?", true).
			Where("lucky_drawn = ?", false).
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

		var candidates []string
		err = tx.NewSelect().
			Model((*models.Order)(nil)).
			Column("user_id").
			Where("group_id = ?", groupID).
			Where("status = ?", models.StatusSubmitted).
			Scan(ctx, &candidates)
		if err != nil {
			return err
		}

		winners = pick(candidates)
		drawnAt := time.Now()
		for _, userID := range winners {
			winner := models.LuckyWinner{
				GroupID: groupID,
				UserID:  userID,
				DrawnAt: drawnAt,
			}
			if _, err := tx.NewInsert().Model(&winner).Exec(ctx); err != nil {
				return err
			}
		}
		claimed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return winners, claimed, nil
}

func (d *DB) ListWinners(ctx context.Context, groupID string) ([]models.LuckyWinner, error) {
	var winners []models.LuckyWinner
	err := d.Bun.NewSelect().
		Model(&winners).
		Where("group_id = ?", groupID).
		Order("user_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return winners, nil
}

// TreatLeaderboard sums historical treat amounts per payer for one store.
func (d *DB) TreatLeaderboard(ctx context.Context, storeID string, limit int) ([]group.TreatLeaderboardEntry, error) {
	var rows []group.TreatLeaderboardEntry
	err := d.Bun.NewSelect().
		Model((*models.TreatRecord)(nil)).
		ColumnExpr("treat_record.user_id").
		ColumnExpr("SUM(treat_record.amount) AS total").
		ColumnExpr("COUNT(*) AS count").
		Join("JOIN groups g ON g.group_id = treat_record.group_id").
		Where("g.store_id = ?", storeID).
		GroupExpr("treat_record.user_id").
		OrderExpr("total DESC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
