// Package file persists the catalog, cart, and order ledger as flat JSON
// files (product.json, cart.json, order.json) under a data directory.
// Writes go through a temp file and rename so readers never observe a
// partially written document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
)

const (
	productFile = "product.json"
	cartFile    = "cart.json"
	orderFile   = "order.json"
	// placeMarker is the write-ahead marker for PlaceOrder: it exists while an
	// order has been written but the cart clear may not have happened yet.
	placeMarker = "placing"
)

type Store struct {
	mu  sync.Mutex
	dir string
}

// New opens (or initializes) a data directory and recovers any interrupted
// PlaceOrder by replaying the cart clear.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{dir: dir}
	if err := s.initFile(productFile, productDoc{Products: []productRec{}}); err != nil {
		return nil, err
	}
	if err := s.initFile(cartFile, []cartRec{}); err != nil {
		return nil, err
	}
	if err := s.initFile(orderFile, []orderRec{}); err != nil {
		return nil, err
	}
	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Join(s.dir, productFile))
	return err
}

func (s *Store) Close(ctx context.Context) error { return nil }

// recover finishes a PlaceOrder that crashed between order write and cart
// clear. The marker file makes the clear idempotent to retry.
func (s *Store) recover() error {
	marker := filepath.Join(s.dir, placeMarker)
	if _, err := os.Stat(marker); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := s.writeJSON(cartFile, []cartRec{}); err != nil {
		return err
	}
	return os.Remove(marker)
}

// ---- on-disk records, field names matching the original JSON layout ----

type productDoc struct {
	Products []productRec `json:"products"`
}

type productRec struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl"`
}

type cartRec struct {
	ID       string          `json:"id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderRec struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Address   string          `json:"address"`
	Status    string          `json:"status"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Products  []cartRec       `json:"products"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toProduct(r productRec) domain.Product {
	return domain.Product{
		ID:          domain.ProductID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		ImageURL:    r.ImageURL,
	}
}

func toCartLine(r cartRec) domain.CartLine {
	return domain.CartLine{ProductID: domain.ProductID(r.ID), Quantity: r.Quantity, Price: r.Price}
}

func fromCartLine(l domain.CartLine) cartRec {
	return cartRec{ID: string(l.ProductID), Quantity: l.Quantity, Price: l.Price}
}

func toOrder(r orderRec) domain.Order {
	lines := make([]domain.CartLine, 0, len(r.Products))
	for _, p := range r.Products {
		lines = append(lines, toCartLine(p))
	}
	return domain.Order{
		ID:        domain.OrderID(r.ID),
		Date:      r.Date,
		Address:   r.Address,
		Status:    domain.OrderStatus(r.Status),
		TotalCost: r.TotalCost,
		Lines:     lines,
		CreatedAt: r.CreatedAt,
	}
}

func fromOrder(o domain.Order) orderRec {
	products := make([]cartRec, 0, len(o.Lines))
	for _, l := range o.Lines {
		products = append(products, fromCartLine(l))
	}
	return orderRec{
		ID:        string(o.ID),
		Date:      o.Date,
		Address:   o.Address,
		Status:    string(o.Status),
		TotalCost: o.TotalCost,
		Products:  products,
		CreatedAt: o.CreatedAt,
	}
}

// ---- catalog ----

func (s *Store) FindProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc productDoc
	if err := s.readJSON(productFile, &doc); err != nil {
		return domain.Product{}, err
	}
	for _, r := range doc.Products {
		if r.ID == string(id) {
			return toProduct(r), nil
		}
	}
	return domain.Product{}, storage.ErrNotFound
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc productDoc
	if err := s.readJSON(productFile, &doc); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(doc.Products))
	for _, r := range doc.Products {
		out = append(out, toProduct(r))
	}
	return out, nil
}

func (s *Store) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc productDoc
	if err := s.readJSON(productFile, &doc); err != nil {
		return domain.Product{}, err
	}
	if p.ID == "" {
		p.ID = domain.ProductID(strconv.Itoa(len(doc.Products) + 1))
	}
	for _, r := range doc.Products {
		if r.ID == string(p.ID) {
			return domain.Product{}, storage.ErrExists
		}
	}
	doc.Products = append(doc.Products, productRec{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	})
	if err := s.writeJSON(productFile, doc); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc productDoc
	if err := s.readJSON(productFile, &doc); err != nil {
		return err
	}
	kept := doc.Products[:0]
	found := false
	for _, r := range doc.Products {
		if r.ID == string(id) {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return storage.ErrNotFound
	}
	doc.Products = kept
	return s.writeJSON(productFile, doc)
}

// ---- cart ----

func (s *Store) UpsertCartLine(ctx context.Context, productID domain.ProductID, quantity int, unitPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cart []cartRec
	if err := s.readJSON(cartFile, &cart); err != nil {
		return err
	}
	for i := range cart {
		if cart[i].ID == string(productID) {
			line := toCartLine(cart[i])
			line.Add(quantity, unitPrice)
			cart[i] = fromCartLine(line)
			return s.writeJSON(cartFile, cart)
		}
	}
	cart = append(cart, fromCartLine(domain.NewCartLine(productID, quantity, unitPrice)))
	return s.writeJSON(cartFile, cart)
}

func (s *Store) ListCart(ctx context.Context) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cart []cartRec
	if err := s.readJSON(cartFile, &cart); err != nil {
		return nil, err
	}
	out := make([]domain.CartLine, 0, len(cart))
	for _, r := range cart {
		out = append(out, toCartLine(r))
	}
	return out, nil
}

func (s *Store) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(cartFile, []cartRec{})
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOrder(o)
}

// PlaceOrder writes the order, drops the marker, clears the cart, then
// removes the marker. If the process dies after the order write, recover()
// replays the clear on next open.
func (s *Store) PlaceOrder(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendOrder(o); err != nil {
		return err
	}
	marker := filepath.Join(s.dir, placeMarker)
	if err := os.WriteFile(marker, []byte(string(o.ID)), 0o644); err != nil {
		return fmt.Errorf("write order marker: %w", err)
	}
	if err := s.writeJSON(cartFile, []cartRec{}); err != nil {
		return err
	}
	return os.Remove(marker)
}

func (s *Store) appendOrder(o domain.Order) error {
	var orders []orderRec
	if err := s.readJSON(orderFile, &orders); err != nil {
		return err
	}
	for _, r := range orders {
		if r.ID == string(o.ID) {
			return storage.ErrExists
		}
	}
	orders = append(orders, fromOrder(o))
	return s.writeJSON(orderFile, orders)
}

func (s *Store) FindOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []orderRec
	if err := s.readJSON(orderFile, &orders); err != nil {
		return domain.Order{}, err
	}
	for _, r := range orders {
		if r.ID == string(id) {
			return toOrder(r), nil
		}
	}
	return domain.Order{}, storage.ErrNotFound
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []orderRec
	if err := s.readJSON(orderFile, &orders); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(orders))
	for _, r := range orders {
		out = append(out, toOrder(r))
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []orderRec
	if err := s.readJSON(orderFile, &orders); err != nil {
		return err
	}
	for i := range orders {
		if orders[i].ID == string(id) {
			orders[i].Status = string(status)
			return s.writeJSON(orderFile, orders)
		}
	}
	return storage.ErrNotFound
}

func (s *Store) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []orderRec
	if err := s.readJSON(orderFile, &orders); err != nil {
		return err
	}
	kept := orders[:0]
	found := false
	for _, r := range orders {
		if r.ID == string(id) {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return storage.ErrNotFound
	}
	return s.writeJSON(orderFile, kept)
}

// ---- file plumbing ----

func (s *Store) initFile(name string, empty any) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.writeJSON(name, empty)
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
