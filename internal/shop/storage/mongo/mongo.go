// Package mongo backs the shop storage contract with a document database.
// Cart lines and orders are plain documents keyed by the caller-visible id
// field, mirroring the original collections. Orders always embed their line
// snapshot.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
)

type Store struct {
	client   *mongo.Client
	products *mongo.Collection
	cart     *mongo.Collection
	orders   *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	db := client.Database(dbName)
	return &Store{
		client:   client,
		products: db.Collection("products"),
		cart:     db.Collection("cart"),
		orders:   db.Collection("orders"),
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Money fields are stored as decimal strings so totals survive the roundtrip
// exactly; BSON doubles would reintroduce float drift.

type productDoc struct {
	ID          string `bson:"id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
	Price       string `bson:"price"`
	Stock       int    `bson:"stock"`
	ImageURL    string `bson:"imageUrl"`
}

type cartDoc struct {
	ID       string `bson:"id"`
	Quantity int    `bson:"quantity"`
	Price    string `bson:"price"`
}

type orderDoc struct {
	ID        string    `bson:"id"`
	Date      string    `bson:"date"`
	Address   string    `bson:"address"`
	Status    string    `bson:"status"`
	TotalCost string    `bson:"totalCost"`
	Products  []cartDoc `bson:"products"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toProduct(d productDoc) (domain.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse product %s price: %w", d.ID, err)
	}
	return domain.Product{
		ID:          domain.ProductID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Price:       price,
		Stock:       d.Stock,
		ImageURL:    d.ImageURL,
	}, nil
}

func toCartLine(d cartDoc) (domain.CartLine, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("parse cart line %s price: %w", d.ID, err)
	}
	return domain.CartLine{ProductID: domain.ProductID(d.ID), Quantity: d.Quantity, Price: price}, nil
}

func fromCartLine(l domain.CartLine) cartDoc {
	return cartDoc{ID: string(l.ProductID), Quantity: l.Quantity, Price: l.Price.String()}
}

func toOrder(d orderDoc) (domain.Order, error) {
	total, err := decimal.NewFromString(d.TotalCost)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse order %s total: %w", d.ID, err)
	}
	lines := make([]domain.CartLine, 0, len(d.Products))
	for _, p := range d.Products {
		line, err := toCartLine(p)
		if err != nil {
			return domain.Order{}, err
		}
		lines = append(lines, line)
	}
	return domain.Order{
		ID:        domain.OrderID(d.ID),
		Date:      d.Date,
		Address:   d.Address,
		Status:    domain.OrderStatus(d.Status),
		TotalCost: total,
		Lines:     lines,
		CreatedAt: d.CreatedAt,
	}, nil
}

func fromOrder(o domain.Order) orderDoc {
	products := make([]cartDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		products = append(products, fromCartLine(l))
	}
	return orderDoc{
		ID:        string(o.ID),
		Date:      o.Date,
		Address:   o.Address,
		Status:    string(o.Status),
		TotalCost: o.TotalCost.String(),
		Products:  products,
		CreatedAt: o.CreatedAt,
	}
}

// ---- catalog ----

func (s *Store) FindProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var d productDoc
	err := s.products.FindOne(ctx, bson.M{"id": string(id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return toProduct(d)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cur, err := s.products.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer cur.Close(ctx)
	out := []domain.Product{}
	for cur.Next(ctx) {
		var d productDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		p, err := toProduct(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

func (s *Store) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		n, err := s.products.CountDocuments(ctx, bson.M{})
		if err != nil {
			return domain.Product{}, fmt.Errorf("count products: %w", err)
		}
		p.ID = domain.ProductID(strconv.FormatInt(n+1, 10))
	}
	if err := s.products.FindOne(ctx, bson.M{"id": string(p.ID)}).Err(); err == nil {
		return domain.Product{}, storage.ErrExists
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, fmt.Errorf("check product id: %w", err)
	}
	_, err := s.products.InsertOne(ctx, productDoc{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"id": string(id)})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---- cart ----

// UpsertCartLine reads, folds, and rewrites the line. The read-modify-write
// pair is serialized by the service's cart mutex, so no document-level $inc
// is needed and prices stay exact decimal strings.
func (s *Store) UpsertCartLine(ctx context.Context, productID domain.ProductID, quantity int, unitPrice decimal.Decimal) error {
	var d cartDoc
	err := s.cart.FindOne(ctx, bson.M{"id": string(productID)}).Decode(&d)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		_, err = s.cart.InsertOne(ctx, fromCartLine(domain.NewCartLine(productID, quantity, unitPrice)))
		if err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find cart line: %w", err)
	}
	line, err := toCartLine(d)
	if err != nil {
		return err
	}
	line.Add(quantity, unitPrice)
	_, err = s.cart.UpdateOne(ctx, bson.M{"id": string(productID)}, bson.M{"$set": fromCartLine(line)})
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (s *Store) ListCart(ctx context.Context) ([]domain.CartLine, error) {
	cur, err := s.cart.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer cur.Close(ctx)
	out := []domain.CartLine{}
	for cur.Next(ctx) {
		var d cartDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode cart line: %w", err)
		}
		line, err := toCartLine(d)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, cur.Err()
}

func (s *Store) ClearCart(ctx context.Context) error {
	if _, err := s.cart.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	if err := s.orders.FindOne(ctx, bson.M{"id": string(o.ID)}).Err(); err == nil {
		return storage.ErrExists
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("check order id: %w", err)
	}
	if _, err := s.orders.InsertOne(ctx, fromOrder(o)); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// PlaceOrder inserts the order document and then clears the cart. Each step
// is atomic at the document level; multi-document transactions need a replica
// set, which the contract deliberately does not require.
func (s *Store) PlaceOrder(ctx context.Context, o domain.Order) error {
	if err := s.CreateOrder(ctx, o); err != nil {
		return err
	}
	return s.ClearCart(ctx)
}

func (s *Store) FindOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	var d orderDoc
	err := s.orders.FindOne(ctx, bson.M{"id": string(id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return toOrder(d)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	cur, err := s.orders.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cur.Close(ctx)
	out := []domain.Order{}
	for cur.Next(ctx) {
		var d orderDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		o, err := toOrder(d)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, cur.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	res, err := s.orders.UpdateOne(ctx, bson.M{"id": string(id)}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	res, err := s.orders.DeleteOne(ctx, bson.M{"id": string(id)})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
