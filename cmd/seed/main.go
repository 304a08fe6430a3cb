// Seeds the configured storage backend with the demo catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
	filestore "github.com/nazeru/shop-backend-go/internal/shop/storage/file"
	mongostore "github.com/nazeru/shop-backend-go/internal/shop/storage/mongo"
	pgstore "github.com/nazeru/shop-backend-go/internal/shop/storage/postgres"
)

func demoProducts() []domain.Product {
	out := make([]domain.Product, 0, 4)
	prices := []string{"19.99", "29.99", "39.99", "49.99"}
	stocks := []int{50, 30, 20, 15}
	for i := 0; i < 4; i++ {
		n := i + 1
		out = append(out, domain.Product{
			ID:          domain.ProductID(fmt.Sprintf("%d", n)),
			Name:        fmt.Sprintf("product%d", n),
			Description: fmt.Sprintf("Description of Product %d", n),
			Price:       decimal.RequireFromString(prices[i]),
			Stock:       stocks[i],
			ImageURL:    fmt.Sprintf("https://example.com/product%d.jpg", n),
		})
	}
	return out
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	inserted := 0
	for _, p := range demoProducts() {
		if _, err := store.InsertProduct(ctx, p); err != nil {
			if errors.Is(err, storage.ErrExists) {
				log.Printf("product %s already present, skipping", p.ID)
				continue
			}
			log.Fatalf("insert product %s: %v", p.ID, err)
		}
		inserted++
	}
	log.Printf("%d products inserted successfully", inserted)
}

func openStore(ctx context.Context) (storage.Store, error) {
	switch backend := strings.ToLower(getenv("STORAGE_BACKEND", "file")); backend {
	case "file":
		return filestore.New(getenv("DATA_DIR", "./data"))
	case "mongo":
		return mongostore.Connect(ctx, getenv("MONGO_URI", "mongodb://localhost:27017"), getenv("MONGO_DB", "shop"))
	case "postgres":
		url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if url == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, err
		}
		pg := pgstore.New(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
