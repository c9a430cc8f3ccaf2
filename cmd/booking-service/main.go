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
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-adbooking/internal/artwork"
	"ms-adbooking/internal/auth"
	"ms-adbooking/internal/booking"
	"ms-adbooking/internal/booking/booking_api"
	bookingdb "ms-adbooking/internal/booking/db"
	bookingkafka "ms-adbooking/internal/booking/kafka"
	bookingredis "ms-adbooking/internal/booking/redis"
	"ms-adbooking/internal/catalog"
	"ms-adbooking/internal/catalog/catalog_api"
	catalogdb "ms-adbooking/internal/catalog/db"
	"ms-adbooking/internal/config"
	"ms-adbooking/internal/database"
	"ms-adbooking/internal/database/migrations"
	"ms-adbooking/internal/kafka"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/pricing"
	pricingdb "ms-adbooking/internal/pricing/db"
	"ms-adbooking/internal/pricing/pricing_api"
	"ms-adbooking/internal/waitlist"
	waitlistdb "ms-adbooking/internal/waitlist/db"
	waitlistkafka "ms-adbooking/internal/waitlist/kafka"
	"ms-adbooking/internal/waitlist/waitlist_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
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

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

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

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Migrations.Dir,
			AutoMigrate:   true,
			SeedData:      cfg.Migrations.SeedData,
		})
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		logger.Info("DATABASE", "✅ Migrations applied")
	}
	if err := database.CreateSchema(ctx, bunDB); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Schema verification failed: %v", err))
	}

	var bookingPublisher booking.KafkaPublisher
	var waitlistPublisher waitlist.KafkaPublisher
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		logger.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.BookingCreated,
			cfg.Kafka.Topics.BookingPaid,
			cfg.Kafka.Topics.BookingCancelled,
			cfg.Kafka.Topics.WaitlistNotify,
		}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}

		bookingPublisher = bookingkafka.NewPublisher(producer, cfg.Kafka.Topics)
		waitlistPublisher = waitlistkafka.NewPublisher(producer, cfg.Kafka.Topics.WaitlistNotify)
	} else {
		logger.Warn("KAFKA", "Kafka disabled, booking events will not be published")
	}

	catalogService := catalog.NewService(&catalogdb.DB{Bun: bunDB}, logger)
	pricingService := pricing.NewService(&pricingdb.DB{Bun: bunDB}, pricing.Defaults{
		Tier1Cents:       cfg.Pricing.Tier1Cents,
		Tier2Cents:       cfg.Pricing.Tier2Cents,
		SlotsPerDiscount: cfg.Pricing.SlotsPerDiscount,
	}, logger)

	bookingDB := &bookingdb.DB{Bun: bunDB}
	waitlistService := waitlist.NewService(&waitlistdb.DB{Bun: bunDB}, bookingDB, catalogService, waitlistPublisher, logger)

	var gateway booking.PaymentGateway
	stripeGateway, err := booking.NewStripeGateway(cfg.Stripe, logger)
	if err != nil {
		logger.Warn("STRIPE", fmt.Sprintf("Payments disabled: %v", err))
	} else {
		gateway = stripeGateway
	}

	artworkStore, err := artwork.NewLocalStore(cfg.Artwork.StorageDir)
	if err != nil {
		logger.Fatal("ARTWORK", fmt.Sprintf("Failed to prepare artwork storage: %v", err))
	}

	sseHandler := booking_api.NewSSEHandler(logger)

	bookingService := booking.NewService(booking.Config{
		DB:        bookingDB,
		Redis:     bookingredis.NewRedis(redisClient, cfg.Redis.HoldTTL),
		Kafka:     bookingPublisher,
		Catalog:   catalogService,
		Pricing:   pricingService,
		Gateway:   gateway,
		Artifacts: artworkStore,
		Proofs:    artwork.NewProofGenerator(cfg.Artwork.ProofSecret),
		Emitter:   sseHandler,
		Waitlist:  waitlistService,

		RefundWindowDays: cfg.Booking.RefundWindowDays,
		SlotsPerDiscount: cfg.Pricing.SlotsPerDiscount,
	}, logger)

	catalogHandler := catalog_api.NewHandler(catalogService, logger)
	bookingHandler := booking_api.NewHandler(bookingService, logger, cfg.Stripe.WebhookSecret)
	waitlistHandler := waitlist_api.NewHandler(waitlistService, logger)
	pricingHandler := pricing_api.NewHandler(pricingService, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.adpost.local", "http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"booking-service"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/webhook/stripe", bookingHandler.StripeWebhook)
	logger.Info("ROUTER", "Public health, metrics and webhook endpoints registered")

	// SSE endpoints authenticate via token query param because EventSource
	// cannot set headers.
	r.Get("/api/booking/events/user/{userID}", sseHandler.HandleUserBookingEvents)
	r.Get("/api/booking/events/campaign/{campaignID}", sseHandler.HandleCampaignBookingEvents)
	logger.Info("ROUTER", "SSE booking event streams registered under /api/booking/events")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", catalogHandler.ListCampaigns)
				r.Get("/{campaignId}", catalogHandler.GetCampaign)
				r.Get("/{campaignId}/occupancy", catalogHandler.GetOccupancy)
			})
			r.Get("/routes", catalogHandler.ListRoutes)
			r.Get("/industries", catalogHandler.ListIndustries)
			logger.Info("ROUTER", "Catalog routes registered under /api/campaigns")

			r.Route("/booking", func(r chi.Router) {
				r.Get("/availability", bookingHandler.GetAvailability)
				r.Get("/quote", bookingHandler.GetQuote)
				r.Post("/", bookingHandler.CreateBooking)
				r.Get("/my", bookingHandler.GetMyBookings)
				r.Get("/{bookingId}", bookingHandler.GetBooking)
				r.Post("/{bookingId}/checkout", bookingHandler.CreateCheckout)
				r.Post("/{bookingId}/cancel", bookingHandler.CancelBooking)
				r.Post("/{bookingId}/artwork", bookingHandler.SubmitArtwork)
			})
			logger.Info("ROUTER", "Booking routes registered under /api/booking")

			r.Route("/waitlist", func(r chi.Router) {
				r.Post("/", waitlistHandler.Join)
				r.Get("/", waitlistHandler.GetMyEntries)
				r.Delete("/{entryId}", waitlistHandler.Leave)
			})
			logger.Info("ROUTER", "Waitlist routes registered under /api/waitlist")

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Post("/booking/{bookingId}/approve", bookingHandler.ApproveBooking)
				r.Post("/booking/{bookingId}/reject", bookingHandler.RejectBooking)
				r.Post("/booking/{bookingId}/artwork/approve", bookingHandler.ApproveArtwork)
				r.Post("/booking/{bookingId}/artwork/reject", bookingHandler.RejectArtwork)

				r.Route("/pricing/rules", func(r chi.Router) {
					r.Get("/", pricingHandler.ListRules)
					r.Post("/", pricingHandler.CreateRule)
					r.Get("/{ruleId}", pricingHandler.GetRule)
				})
				logger.Info("ROUTER", "Admin approval and pricing routes registered")
			})
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
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
		logger.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
