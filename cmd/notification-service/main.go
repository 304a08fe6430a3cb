// Consumes shop events from Kafka and emits customer notifications (logged
// in this demo deployment). Runs alongside shop-service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nazeru/shop-backend-go/pkg/contracts"
	"github.com/nazeru/shop-backend-go/pkg/kafka"
	"github.com/nazeru/shop-backend-go/pkg/logging"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
)

type cfg struct {
	Port         string
	KafkaBrokers string
	Topic        string
	GroupID      string
}

func readCfg() (cfg, error) {
	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		return cfg{}, errors.New("KAFKA_BROKERS is required")
	}
	return cfg{
		Port:         getenv("PORT", "8081"),
		KafkaBrokers: brokers,
		Topic:        getenv("EVENT_TOPIC", kafka.DefaultTopic),
		GroupID:      getenv("KAFKA_GROUP_ID", "notification-service"),
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "notification_service",
		Name:      "events_processed_total",
		Help:      "Total number of events consumed from the broker.",
	}, []string{"type"})
	prometheus.MustRegister(processed)

	client := kafka.NewClient(cfg.KafkaBrokers)
	go consumeEvents(client, cfg, processed)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Printf("notification-service listening on :%s (topic=%s)", cfg.Port, cfg.Topic)
	log.Fatal(srv.ListenAndServe())
}

func consumeEvents(client *kafka.Client, cfg cfg, processed *prometheus.CounterVec) {
	reader := client.NewReader(cfg.Topic, cfg.GroupID)
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(context.Background())
		if err != nil {
			logging.Log(logging.Fields{Service: "notification-service", Status: "read_error", Error: err.Error()})
			time.Sleep(time.Second)
			continue
		}
		var evt contracts.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logging.Log(logging.Fields{Service: "notification-service", Status: "decode_error", Error: err.Error()})
			continue
		}
		processed.WithLabelValues(evt.Type).Inc()

		switch evt.Type {
		case contracts.EventOrderPlaced:
			notify(evt, "your order has been placed")
		case contracts.EventOrderStatusChanged:
			notify(evt, "your order status changed")
		case contracts.EventOrderDeleted:
			notify(evt, "your order has been cancelled and removed")
		}
	}
}

func notify(evt contracts.Event, message string) {
	logging.Log(logging.Fields{
		Service: "notification-service",
		Op:      "notify",
		OrderID: evt.OrderID,
		Status:  evt.Type,
		Message: message,
	})
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
