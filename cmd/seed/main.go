package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-grouporder/internal/config"
	"ms-grouporder/internal/models"
)

// Development seeding tool: loads a sample store with an active menu so the
// service has a catalog to order from. Safe to re-run; inserts skip existing
// rows.

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("Seeding sample data...")
	if err := seedData(ctx, db); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("✅ Done.")
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(v), Valid: true}
}

func seedData(ctx context.Context, db *bun.DB) error {
	users := []models.User{
		{UserID: "user001", DisplayName: "Alice", CreatedAt: time.Now()},
		{UserID: "user002", DisplayName: "Bob", CreatedAt: time.Now()},
		{UserID: "admin001", DisplayName: "Admin", IsAdmin: true, CreatedAt: time.Now()},
	}
	if _, err := db.NewInsert().Model(&users).Ignore().Exec(ctx); err != nil {
		return err
	}

	store := models.Store{StoreID: "store001", Name: "Corner Tea House", IsActive: true}
	if _, err := db.NewInsert().Model(&store).Ignore().Exec(ctx); err != nil {
		return err
	}

	menu := models.Menu{MenuID: "menu001", StoreID: "store001", IsActive: true, CreatedAt: time.Now()}
	if _, err := db.NewInsert().Model(&menu).Ignore().Exec(ctx); err != nil {
		return err
	}

	items := []models.MenuItem{
		{ItemID: "item001", MenuID: "menu001", Name: "Milk Tea", BasePrice: d("50"), LargePrice: nd("65"), SortOrder: 1},
		{ItemID: "item002", MenuID: "menu001", Name: "Green Tea", BasePrice: d("40"), SortOrder: 2},
		{ItemID: "item003", MenuID: "menu001", Name: "Latte", BasePrice: d("70"), LargePrice: nd("85"), SortOrder: 3},
	}
	if _, err := db.NewInsert().Model(&items).Ignore().Exec(ctx); err != nil {
		return err
	}

	options := []models.ItemOption{
		{OptionID: "opt001", ItemID: "item003", Name: "Oat Milk", PriceDelta: d("10"), SortOrder: 1},
		{OptionID: "opt002", ItemID: "item001", Name: "Half Sugar", PriceDelta: d("0"), SortOrder: 1},
	}
	if _, err := db.NewInsert().Model(&options).Ignore().Exec(ctx); err != nil {
		return err
	}

	toppings := []models.StoreTopping{
		{ToppingID: "top001", StoreID: "store001", Name: "Pearls", Price: d("10"), IsActive: true},
		{ToppingID: "top002", StoreID: "store001", Name: "Grass Jelly", Price: d("10"), IsActive: true},
	}
	if _, err := db.NewInsert().Model(&toppings).Ignore().Exec(ctx); err != nil {
		return err
	}

	return nil
}
