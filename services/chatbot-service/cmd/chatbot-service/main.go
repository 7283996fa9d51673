package main

import (
	"context"
	"net/http"
	"time"

	"github.com/barberbook/barberbook/libs/config"
	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/libs/kafkax"
	otelx "github.com/barberbook/barberbook/libs/otel"
	"github.com/barberbook/barberbook/libs/redisx"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/bookingapi"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/dialogue"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/handlers"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/inbox"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/notices"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/session"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/whatsapp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"chatbot-service"`
	Port        string `envconfig:"PORT" default:"8087"`

	BookingURL     string        `envconfig:"BOOKING_URL" default:"http://localhost:8083"`
	BookingTimeout time.Duration `envconfig:"BOOKING_TIMEOUT" default:"5s"`

	VerifyToken   string `envconfig:"WHATSAPP_VERIFY_TOKEN" required:"true"`
	AppSecret     string `envconfig:"WHATSAPP_APP_SECRET"`
	AccessToken   string `envconfig:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	APIBase       string `envconfig:"WHATSAPP_API_BASE" default:"https://graph.facebook.com/v20.0"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID string `envconfig:"KAFKA_GROUP_ID" default:"chatbot-service"`

	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	CompletedTTL    time.Duration `envconfig:"COMPLETED_TTL" default:"30m"`
	ShopTimezone    string        `envconfig:"SHOP_TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	AnyStaffPolicy  string        `envconfig:"ANY_STAFF_POLICY" default:"first-match"`
	TriggerKeywords []string      `envconfig:"TRIGGER_KEYWORDS" default:"hola,turno,turnos,reservar,reserva,cita"`
}

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	var cfg Config
	if err := config.Process("", &cfg); err != nil {
		panic(err)
	}
	if _, err := config.Port("PORT", cfg.Port); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(cfg.ShopTimezone)
	if err != nil {
		panic(err)
	}
	picker, err := dialogue.NewStaffPicker(cfg.AnyStaffPolicy)
	if err != nil {
		panic(err)
	}

	rdb, err := redisx.Open(ctx, redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}

	var (
		store  session.Store
		dedupe kafkax.Inbox
	)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		store = session.NewRedisStore(rdb, "chat", 15*time.Second)
		dedupe = inbox.NewRedisInbox(rdb, "chat:inbox", 24*time.Hour)
		logger.Info("conversation store: redis")
	} else {
		mem := session.NewMemoryStore()
		mem.StartSweeper(ctx, time.Minute, func(n int) {
			logger.Info("expired conversations swept", "count", n)
		})
		store = mem
		seen := inbox.NewMemoryInbox(24 * time.Hour)
		seen.StartSweeper(ctx, 10*time.Minute)
		dedupe = seen
		logger.Warn("conversation store: in-memory (REDIS_ADDR not set, state is per-process)")
	}

	var sender chat.Sender
	if cfg.AccessToken != "" && cfg.PhoneNumberID != "" {
		sender = whatsapp.NewCloudSender(cfg.APIBase, cfg.PhoneNumberID, cfg.AccessToken, 10*time.Second)
	} else {
		sender = chat.NewLogSender(logger)
		logger.Warn("outbound messages are logged only (WHATSAPP_ACCESS_TOKEN or WHATSAPP_PHONE_NUMBER_ID not set)")
	}

	booking := bookingapi.NewClient(cfg.BookingURL, cfg.BookingTimeout)
	engine := dialogue.NewEngine(store, booking, dialogue.Config{
		SessionTTL:      cfg.SessionTTL,
		CompletedTTL:    cfg.CompletedTTL,
		Location:        loc,
		TriggerKeywords: cfg.TriggerKeywords,
		Picker:          picker,
		Source:          dialogue.SourceWhatsApp,
	}, logger)

	if cfg.KafkaBrokers != "" {
		consumer := kafkax.NewConsumer(logger, dedupe, kafkax.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   kafkax.TopicAppointmentCancelled,
		}, notices.CancellationHandler(sender, dialogue.SourceWhatsApp, logger))
		go consumer.Run(ctx)
	} else {
		logger.Warn("cancellation notices disabled (KAFKA_BROKERS not set)")
	}

	webhook := handlers.NewWebhookHandler(handlers.WebhookConfig{
		VerifyToken: cfg.VerifyToken,
		AppSecret:   cfg.AppSecret,
	}, whatsapp.NewTranslator(), engine, sender, dedupe, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	mux.Handle("/webhooks/whatsapp", webhook)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 1<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "chatbot")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "provider", sender.ProviderID(), "timezone", loc.String())
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
