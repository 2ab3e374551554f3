package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/notify/mail"
	"github.com/xenking/kart-storefront/pkg/health"
)

// RunNotifier consumes receipts from Kafka and emails them until ctx is
// cancelled. A small HTTP server exposes its health.
func RunNotifier(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *NotifierConfig) error {
	sender, err := mail.NewSender(mail.NewDialer(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		SSL:      cfg.SMTP.SSL,
	}), cfg.SMTP.From)
	if err != nil {
		return errors.Wrap(err, "mail sender")
	}

	reader := notify.NewReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic)
	consumer := notify.NewConsumer(reader, sender, lg)
	defer func() {
		if err := consumer.Close(); err != nil {
			lg.Warn("Close receipts consumer", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(1000))
	healthSvc.AddReadinessCheck("kafka", 2*time.Second, health.DialCheck(cfg.Kafka.Brokers...))
	healthSvc.AddReadinessCheck("smtp", 2*time.Second, health.DialCheck(cfg.SMTP.Addr()))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	server := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           router,
		ReadHeaderTimeout: time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Consuming receipts",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID),
		)
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
