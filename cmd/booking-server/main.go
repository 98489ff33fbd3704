package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barbearia-galileu/booking-server/internal/auth"
	"github.com/barbearia-galileu/booking-server/internal/blocks"
	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/config"
	"github.com/barbearia-galileu/booking-server/internal/db"
	"github.com/barbearia-galileu/booking-server/internal/handlers"
	"github.com/barbearia-galileu/booking-server/internal/httpx"
	"github.com/barbearia-galileu/booking-server/internal/kafkax"
	"github.com/barbearia-galileu/booking-server/internal/notify"
	"github.com/barbearia-galileu/booking-server/internal/otelx"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/runtime"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage/postgres"
)

func loadCalendar(logger *slog.Logger) *schedule.Calendar {
	tz := config.String("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Error("invalid timezone, falling back to UTC", "tz", tz, "err", err)
		loc = time.UTC
	}
	return schedule.New(schedule.Config{
		Location:        loc,
		OpenHour:        config.Int("BUSINESS_OPEN_HOUR", 8),
		OpenMinute:      config.Int("BUSINESS_OPEN_MINUTE", 0),
		CloseHour:       config.Int("BUSINESS_CLOSE_HOUR", 20),
		CloseMinute:     config.Int("BUSINESS_CLOSE_MINUTE", 0),
		IntervalMinutes: config.Int("SLOT_INTERVAL_MINUTES", 30),
	})
}

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "booking-server")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	cal := loadCalendar(logger)
	repo := postgres.NewRepository(pool)

	var notifier booking.Notifier = notify.NewNoopSender()
	if token := config.String("WHATSAPP_TOKEN", ""); token != "" {
		notifier = notify.NewWhatsAppSender(
			config.String("WHATSAPP_API_URL", ""),
			config.String("WHATSAPP_PHONE_NUMBER_ID", ""),
			token,
			cal.Location(),
		)
	}

	bookingSvc := booking.NewService(repo, cal, notifier, logger)
	blockSvc := blocks.NewService(repo, cal)
	mpClient := payments.NewMercadoPagoClient(
		config.String("MP_API_URL", ""),
		config.String("MP_ACCESS_TOKEN", ""),
	)
	reconciler := payments.NewReconciler(repo, mpClient, logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if kafkaBrokers != "" {
		outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
			Brokers:   kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)
	}

	appointmentHandler := handlers.NewAppointmentHandler(bookingSvc, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(bookingSvc, logger)
	blockHandler := handlers.NewBlockHandler(blockSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(bookingSvc, reconciler, logger)

	staffOnly := auth.RequireBarberKey(config.String("BARBER_API_KEY", ""))
	if hash := config.String("BARBER_API_KEY_HASH", ""); hash != "" {
		staffOnly = auth.RequireBarberKeyHash(hash)
	}
	staff := func(h http.HandlerFunc) http.Handler {
		return staffOnly(h)
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/public/haircuts", handlers.Haircuts)
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", appointmentHandler.Book)
	mux.HandleFunc("/api/v1/public/payments/card", paymentHandler.CardBooking)
	mux.HandleFunc("/api/v1/public/payments/pix", paymentHandler.PixBooking)
	mux.HandleFunc("/api/v1/customer/appointments", appointmentHandler.ListByPhone)
	mux.HandleFunc("/api/v1/customer/appointments/cancel", appointmentHandler.CustomerCancel)
	mux.HandleFunc("/api/v1/customer/appointments/reschedule", appointmentHandler.Reschedule)
	mux.HandleFunc("/webhooks/mercadopago", paymentHandler.MercadoPagoWebhook)

	mux.Handle("/api/v1/appointments", staff(appointmentHandler.List))
	mux.Handle("/api/v1/appointments/cancel", staff(appointmentHandler.Cancel))
	mux.Handle("/api/v1/blocks", staff(blockHandler.Manage))
	mux.Handle("/api/v1/blocks/delete", staff(blockHandler.Delete))
	mux.Handle("/api/v1/blocks/bulk", staff(blockHandler.BulkCreate))
	mux.Handle("/api/v1/blocks/bulk-delete", staff(blockHandler.BulkDelete))
	mux.Handle("/api/v1/metrics/monthly", staff(appointmentHandler.MonthlyMetrics))
	mux.Handle("/api/v1/payments/sync", staff(paymentHandler.Sync))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
	}
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL, skipping rate limiter", "err", err)
		} else {
			rdb := redis.NewClient(opts)
			limiter := httpx.NewRedisRateLimiter(rdb,
				config.Int("RATE_LIMIT_REQUESTS", 120),
				time.Minute,
				service,
			)
			middlewares = append(middlewares, limiter.Middleware(logger, true))
		}
	} else {
		limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT_REQUESTS", 120), time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
