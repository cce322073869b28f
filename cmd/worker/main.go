// Worker consumes signature_requested notifications from Kafka, delivers them to the
// mailer webhook and, when LOKI_URL is set, pushes them to Loki. Messages are
// delivered in order and committed only after delivery.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID and NOTIFY_WEBHOOK_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"hancock/internal/app"
	"hancock/internal/config"
	"hancock/internal/notify"
	"hancock/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.NotifyWebhookURL == "" && cfg.LokiURL == "" {
		log.Fatal("worker: NOTIFY_WEBHOOK_URL or LOKI_URL is required")
	}

	var sinks []notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret))
	}
	var lokiClient *loki.Client
	if cfg.LokiURL != "" {
		lokiClient = loki.NewClient(cfg.LokiURL)
	}

	c := &consumer{logger: logger}
	if len(sinks) > 0 {
		retrier := notify.NewRetrier(notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
			for _, s := range sinks {
				if err := s.Notify(ctx, msg); err != nil {
					return err
				}
			}
			return nil
		}), notify.DispatcherOptions{MaxRetries: cfg.NotifyMaxRetries}, logger)
		c.deliver = retrier.Deliver
	}
	if lokiClient != nil {
		c.push = lokiClient.PushMessageJSON
	}

	// Offsets are committed explicitly once a message has been delivered.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.NotifyKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()
	c.reader = reader

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker: shutting down")
		cancel()
	}()

	logger.Info("worker: consuming", "topic", cfg.NotifyKafkaTopic, "group", cfg.KafkaGroupID, "webhook", cfg.NotifyWebhookURL != "", "loki", cfg.LokiURL != "")
	c.run(ctx)
	logger.Info("worker: stopped")
}
