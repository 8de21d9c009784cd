package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-grouporder/internal/auth"
	"ms-grouporder/internal/catalog"
	"ms-grouporder/internal/config"
	"ms-grouporder/internal/database/migrations"
	"ms-grouporder/internal/group"
	group_api "ms-grouporder/internal/group/api"
	group_db "ms-grouporder/internal/group/db"
	group_kafka "ms-grouporder/internal/group/kafka"
	"ms-grouporder/internal/kafka"
	"ms-grouporder/internal/logger"
	"ms-grouporder/internal/order"
	order_api "ms-grouporder/internal/order/api"
	order_db "ms-grouporder/internal/order/db"
	order_kafka "ms-grouporder/internal/order/kafka"
	rediswrap "ms-grouporder/internal/order/redis"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Group Order Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	migrationRunner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := migrationRunner.RunMigrations(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	logger.Info("DATABASE", "Migrations applied")

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()
	logger.Info("KAFKA", "Kafka producer initialized successfully")

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics()); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	}

	groupDB := &group_db.DB{Bun: bunDB}

	orderService := order.NewService(
		&order_db.DB{Bun: bunDB},
		&catalog.DB{Bun: bunDB},
		rediswrap.NewRedis(redisClient),
		order_kafka.NewProducer(kafkaProducer),
		logger,
	)
	groupService := group.NewService(
		groupDB,
		group_kafka.NewProducer(kafkaProducer),
		logger,
	)

	orderHandler := &order_api.Handler{OrderService: orderService}
	groupHandler := &group_api.Handler{
		GroupService: groupService,
		BaseURL:      cfg.App.BaseURL,
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(groupDB))
		logger.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Get("/api/stores/{storeId}/treat-leaderboard", groupHandler.TreatLeaderboard)

		r.Route("/api/groups", func(r chi.Router) {
			r.Post("/", groupHandler.Create)

			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/", groupHandler.Get)
				r.Patch("/", groupHandler.Update)
				r.Delete("/", groupHandler.Delete)
				r.Post("/close", groupHandler.Close)
				r.Post("/transfer", groupHandler.Transfer)
				r.Post("/treat", groupHandler.DeclareTreat)
				r.Delete("/treat", groupHandler.CancelTreat)
				r.Get("/export/order", groupHandler.ExportOrder)
				r.Get("/export/payment", groupHandler.ExportPayment)
				r.Get("/qrcode", groupHandler.QRCode)

				r.Route("/order", func(r chi.Router) {
					r.Get("/", orderHandler.MyOrder)
					r.Delete("/", orderHandler.Clear)
					r.Post("/items", orderHandler.AddItem)
					r.Put("/items/{lineId}", orderHandler.SetQuantity)
					r.Delete("/items/{lineId}", orderHandler.RemoveLine)
					r.Post("/submit", orderHandler.Submit)
					r.Post("/edit", orderHandler.Edit)
					r.Post("/cancel", orderHandler.CancelEdit)
					r.Post("/follow/{lineId}", orderHandler.Follow)
					r.Post("/copy-last", orderHandler.CopyLast)
				})
			})
		})
		logger.Info("ROUTER", "Group and order routes registered under /api/groups")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Group Order Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Group Order Service shutdown complete")
	}
}
