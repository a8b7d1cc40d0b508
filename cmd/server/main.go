package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pufftown/delivery-backend/internal/cartreminder"
	"github.com/pufftown/delivery-backend/internal/clover"
	"github.com/pufftown/delivery-backend/internal/config"
	"github.com/pufftown/delivery-backend/internal/events"
	"github.com/pufftown/delivery-backend/internal/geo"
	"github.com/pufftown/delivery-backend/internal/geocode"
	"github.com/pufftown/delivery-backend/internal/handlers"
	"github.com/pufftown/delivery-backend/internal/logging"
	"github.com/pufftown/delivery-backend/internal/mailer"
	"github.com/pufftown/delivery-backend/internal/order"
	"github.com/pufftown/delivery-backend/internal/promo"
	"github.com/pufftown/delivery-backend/internal/reviews"
	"github.com/pufftown/delivery-backend/internal/search"
	httpserver "github.com/pufftown/delivery-backend/internal/transport/http"
	"github.com/pufftown/delivery-backend/internal/windows"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	logger := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(context.Background(), logger)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	jwtSecret := []byte(cfg.JWTSecret)

	prod := events.NewProducer([]string{cfg.KafkaAddress})

	esClient, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		log.Fatalf("elasticsearch init error: %v", err)
	}
	searchSvc := &search.Service{ES: esClient, Index: cfg.ESIndex}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	reviewSvc := &reviews.Service{
		Redis:      redisClient,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		PlacesURL:  "https://maps.googleapis.com/maps/api/place/details/json",
		APIKey:     cfg.GooglePlacesKey,
		PlaceID:    cfg.GooglePlaceID,
		TTL:        cfg.ReviewCacheTTL,
	}

	cloverClient := clover.NewClient(cfg.CloverBaseURL, cfg.CloverEcommURL, cfg.CloverMerchantID, cfg.CloverAPIToken, cfg.CloverEcommToken)
	syncSvc := &clover.SyncService{DB: db, Client: cloverClient, Indexer: searchSvc}

	mailClient := mailer.NewClient(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	geocoder := geocode.NewClient(cfg.GeocodeAPIURL, cfg.GeocodeAPIKey)

	windowSvc := &windows.Service{DB: db}
	promoValidator := &promo.Validator{DB: db}

	feeType, err := geo.ParseFeeType(cfg.FeeType)
	if err != nil {
		log.Fatalf("fee config error: %v", err)
	}
	orderSvc := &order.Service{
		DB:      db,
		Charger: cloverClient,
		Promo:   promoValidator,
		Windows: windowSvc,
		Cfg: order.Config{
			TaxRate: cfg.TaxRate,
			Zone:    geo.Zone{StoreLat: cfg.StoreLat, StoreLng: cfg.StoreLng, RadiusMiles: cfg.RadiusMiles},
			Fees: geo.FeeSchedule{
				Type:            feeType,
				FlatFeeCents:    cfg.FlatFeeCents,
				PerMileFeeCents: cfg.PerMileFeeCents,
				PerItemFeeCents: cfg.PerItemFeeCents,
			},
		},
	}
	orderSvc.AfterOrder = func() {
		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := syncSvc.LightweightSync(syncCtx); err != nil {
			logger.Warn("post_order_sync_failed", "error", err)
		}
	}

	reminderJob := &cartreminder.Job{
		DB:     db,
		Mailer: mailClient,
		Cfg: cartreminder.JobConfig{
			AbandonedAfter:   time.Duration(cfg.AbandonedHours) * time.Hour,
			ReminderInterval: time.Duration(cfg.ReminderIntervalHours) * time.Hour,
			MaxReminders:     cfg.MaxReminders,
			StoreName:        cfg.StoreName,
			StoreWebURL:      cfg.StoreWebURL,
		},
	}

	// Startup window generation keeps the booking horizon filled even if
	// nobody touches the admin panel for weeks.
	if res, err := windowSvc.GenerateFromTemplates(ctx, cfg.WindowDaysAhead); err != nil {
		logger.Error("startup_window_generation_failed", "error", err)
	} else {
		logger.Info("startup_window_generation", "created", res.Created, "skipped", res.Skipped)
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	go reminderJob.Start(jobsCtx, time.Minute, cfg.ReminderRunInterval)
	go runLightSyncLoop(jobsCtx, syncSvc, cfg.LightSyncInterval)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB: db, Geocoder: geocoder, Mailer: mailClient, JWTSecret: jwtSecret,
			StoreName: cfg.StoreName, StoreWebURL: cfg.StoreWebURL,
		},
		ProductHandler: &handlers.ProductHandler{DB: db, Search: searchSvc},
		CartHandler:    &handlers.CartHandler{DB: db, Producer: prod},
		OrderHandler: &handlers.OrderHandler{
			DB: db, Orders: orderSvc, Promo: promoValidator, Windows: windowSvc, Producer: prod,
		},
		AdminHandler: &handlers.AdminHandler{
			DB: db, Orders: orderSvc, Windows: windowSvc, Sync: syncSvc,
			Reviews: reviewSvc, Mailer: mailClient, Producer: prod,
			StoreName: cfg.StoreName, StoreWebURL: cfg.StoreWebURL,
			WindowDaysAhead: cfg.WindowDaysAhead,
		},
		ReviewsHandler: &handlers.ReviewsHandler{Reviews: reviewSvc},
		JWTSecret:      jwtSecret,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server_starting", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}
	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}

	logger.Info("shutdown_complete")
}

func runLightSyncLoop(ctx context.Context, sync *clover.SyncService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sync.LightweightSync(ctx); err != nil {
				logging.FromContext(ctx).Warn("light_sync_failed", "error", err)
			}
		}
	}
}
