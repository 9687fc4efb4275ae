package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/database"
	"github.com/iliyamo/homestay-booking/internal/handler"
	"github.com/iliyamo/homestay-booking/internal/logger"
	"github.com/iliyamo/homestay-booking/internal/middleware"
	"github.com/iliyamo/homestay-booking/internal/notify"
	"github.com/iliyamo/homestay-booking/internal/obs"
	"github.com/iliyamo/homestay-booking/internal/queue"
	"github.com/iliyamo/homestay-booking/internal/ratelimit"
	"github.com/iliyamo/homestay-booking/internal/repository"
	"github.com/iliyamo/homestay-booking/internal/router"
	"github.com/iliyamo/homestay-booking/internal/service"
	"github.com/iliyamo/homestay-booking/internal/storage"
	"github.com/iliyamo/homestay-booking/internal/verifier"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	policy, err := config.LoadPolicy()
	if err != nil {
		log.WithError(err).Fatal("invalid booking policy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.Env)
		if err != nil {
			log.WithError(err).Warn("tracing disabled")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting, calendar cache and settings cache are off")
	} else {
		defer rdb.Close()
	}

	clk := clock.Real{}

	lockRepo := repository.NewLockRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	evidenceRepo := repository.NewEvidenceRepo(db)
	confirmRepo := repository.NewConfirmationRepo(db, evidenceRepo, lockRepo)
	roomRepo := repository.NewRoomRepo(db)
	tenantRepo := repository.NewTenantRepo(db)
	tokenRepo := repository.NewUploadTokenRepo(db)

	settings := service.NewSettingsService(tenantRepo, rdb, policy, log)
	avail := service.NewAvailabilityService(bookingRepo, roomRepo, lockRepo, clk)
	locks := service.NewLockService(lockRepo, roomRepo, avail, settings, clk, policy, log)
	bookings := service.NewBookingService(bookingRepo, roomRepo, locks, settings, clk, log)

	var archive storage.EvidenceStore = storage.Noop{}
	if cfg.CloudinaryCloud != "" {
		cld, err := storage.NewCloudinary(cfg.CloudinaryCloud, cfg.CloudinaryKey, cfg.CloudinarySecret, cfg.CloudinaryFolder)
		if err != nil {
			log.WithError(err).Warn("cloudinary disabled; slips will not be archived")
		} else {
			archive = cld
		}
	}

	publisher := queue.NewPublisher(cfg.RabbitURL, log)
	confirm := service.NewConfirmationService(service.ConfirmationDeps{
		Bookings:  bookingRepo,
		Rooms:     roomRepo,
		Confirmer: confirmRepo,
		Evidence:  service.NewEvidenceService(evidenceRepo, policy.MaxEvidenceBytes),
		Locks:     locks,
		Settings:  settings,
		Verifier: verifier.NewClient(verifier.Config{
			BaseURL: cfg.VerifierURL,
			APIKey:  cfg.VerifierAPIKey,
			Timeout: cfg.VerifierTimeout,
		}),
		Archive:   archive,
		Publisher: publisher,
		Limiter:   ratelimit.New(rdb, config.LoadEvidenceRateLimitConfig()),
		Clock:     clk,
		Policy:    policy,
		Log:       log,
	})
	tokens := service.NewUploadTokenService(tokenRepo, roomRepo, confirm, clk, policy.UploadTokenTTL, log)

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.MailerSendKey != "" {
		notifier = notify.NewMailer(cfg.MailerSendKey, cfg.MailFromName, cfg.MailFromEmail, cfg.MailTemplateID, log)
	}
	consumer := queue.NewConsumer(cfg.RabbitURL, notifier, settings.NotifyEmail, log)
	sweeper := service.NewSweeper(lockRepo, tokenRepo, bookingRepo, bookings, clk, policy, log)

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go consumer.Run(workers)
	go sweeper.Run(workers)

	e := newServer(log, rdb)
	roomH := handler.NewRoomHandler(avail, locks, log)
	bookingH := handler.NewBookingHandler(bookings, log)
	evidenceH := handler.NewEvidenceHandler(confirm, tokens, policy.MaxEvidenceBytes, log)

	router.RegisterRoutes(e, handler.NewHealthHandler(db, rdb))
	router.RegisterPublic(e, roomH, evidenceH, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterGuest(e, roomH, bookingH, evidenceH, cfg.JWTSecret)
	router.RegisterHost(e, bookingH, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("listening on %s (env=%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	cancelWorkers()
	confirm.Wait()
}

// newServer builds the Echo instance with the global middleware chain.
func newServer(log *logrus.Logger, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLog(log))
	e.Use(middleware.NewTokenBucket(ratelimit.New(rdb, config.LoadRateLimitConfig()), log))
	return e
}
