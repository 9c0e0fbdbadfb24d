// Worker consumes security events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SECURITY_EVENTS_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perfreview/backend/internal/config"
	"perfreview/backend/internal/telemetry/loki"
	"perfreview/backend/internal/telemetry/producer"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	sink, err := loki.NewClient(cfg.LokiURL, "", pushTimeout)
	if err != nil {
		log.Fatalf("worker: LOKI_URL: %v", err)
	}
	consumer, err := producer.NewKafkaConsumer(brokers, cfg.SecurityEventsTopic, cfg.KafkaGroupID)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: consuming from %s (group %s), pushing to %s", cfg.SecurityEventsTopic, cfg.KafkaGroupID, cfg.LokiURL)
	err = consumer.Run(ctx, func(ctx context.Context, msg producer.Message) error {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		return sink.PushEventJSON(pushCtx, msg.Value)
	})
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
