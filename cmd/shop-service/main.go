package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/httpapi"
	"github.com/nazeru/shop-backend-go/internal/shop"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
	filestore "github.com/nazeru/shop-backend-go/internal/shop/storage/file"
	mongostore "github.com/nazeru/shop-backend-go/internal/shop/storage/mongo"
	pgstore "github.com/nazeru/shop-backend-go/internal/shop/storage/postgres"
	"github.com/nazeru/shop-backend-go/pkg/kafka"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
	"github.com/nazeru/shop-backend-go/pkg/outbox"
)

type cfg struct {
	Port           string
	Backend        string // file | mongo | postgres
	DataDir        string
	MongoURI       string
	MongoDB        string
	DatabaseURL    string
	KafkaBrokers   string
	EventTopic     string
	RelayInterval  time.Duration
	RequestTimeout time.Duration
}

func readCfg() (cfg, error) {
	backend := strings.ToLower(getenv("STORAGE_BACKEND", "file"))
	c := cfg{
		Port:         getenv("PORT", "8080"),
		Backend:      backend,
		DataDir:      getenv("DATA_DIR", "./data"),
		MongoURI:     getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getenv("MONGO_DB", "shop"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		KafkaBrokers: strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		EventTopic:   getenv("EVENT_TOPIC", kafka.DefaultTopic),
	}
	relayMS, _ := strconv.Atoi(getenv("OUTBOX_RELAY_INTERVAL_MS", "1000"))
	c.RelayInterval = time.Duration(relayMS) * time.Millisecond
	toutMS, _ := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "2500"))
	c.RequestTimeout = time.Duration(toutMS) * time.Millisecond

	switch backend {
	case "file", "mongo":
	case "postgres":
		if c.DatabaseURL == "" {
			return cfg{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return cfg{}, errors.New("STORAGE_BACKEND must be file, mongo, or postgres")
	}
	return c, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		store storage.Store
		pool  *pgxpool.Pool
	)
	switch cfg.Backend {
	case "file":
		store, err = filestore.New(cfg.DataDir)
	case "mongo":
		store, err = mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	case "postgres":
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err == nil {
			pg := pgstore.New(pool)
			if err = pg.EnsureSchema(ctx); err == nil {
				store = pg
			}
		}
	}
	if err != nil {
		log.Fatalf("storage init error (%s): %v", cfg.Backend, err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("storage ping error: %v", err)
	}

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	var events shop.EventPublisher
	if kafkaClient.Enabled() {
		if pool != nil {
			// Postgres keeps events durable in the outbox; the relay drains
			// them to the broker.
			events = &outbox.Publisher{Pool: pool, Topic: cfg.EventTopic}
			go outbox.Relay(context.Background(), pool, kafkaClient, cfg.RelayInterval, 100)
		} else {
			pub := kafkaClient.NewPublisher(cfg.EventTopic)
			defer func() { _ = pub.Close() }()
			events = pub
		}
	}

	svc := shop.NewService(shop.Deps{
		Catalog: store,
		Cart:    store,
		Orders:  store,
		Events:  events,
	})

	api := httpapi.New(svc, store, metrics.NewServerMetrics("shop_service"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(api.Handler(), cfg.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("shop-service listening on :%s (backend=%s, kafka=%v)", cfg.Port, cfg.Backend, kafkaClient.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Print("shop-service stopped")
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
