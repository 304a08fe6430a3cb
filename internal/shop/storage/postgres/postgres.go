// Package postgres backs the shop storage contract with PostgreSQL via pgx.
// PlaceOrder runs the order insert, the line snapshot insert, and the cart
// clear in one transaction, so success reported to the caller implies the
// cart can no longer replay into a second order.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates the tables on first start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			price       NUMERIC NOT NULL CHECK (price >= 0),
			stock       INT NOT NULL CHECK (stock >= 0),
			image_url   TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS cart_lines (
			product_id TEXT PRIMARY KEY,
			quantity   INT NOT NULL CHECK (quantity > 0),
			price      NUMERIC NOT NULL
		);
		CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			order_date TEXT NOT NULL,
			address    TEXT NOT NULL,
			status     TEXT NOT NULL,
			total_cost NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS order_lines (
			order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			quantity   INT NOT NULL,
			price      NUMERIC NOT NULL,
			PRIMARY KEY (order_id, product_id)
		);
		CREATE TABLE IF NOT EXISTS outbox (
			id         BIGSERIAL PRIMARY KEY,
			event_id   TEXT NOT NULL UNIQUE,
			topic      TEXT NOT NULL,
			key        TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			sent_at    TIMESTAMPTZ
		);`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

// ---- catalog ----

func (s *Store) FindProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, price::text, stock, image_url FROM products WHERE id=$1`, string(id))
	return scanProduct(row)
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	var id, price string
	err := row.Scan(&id, &p.Name, &p.Description, &price, &p.Stock, &p.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	p.ID = domain.ProductID(id)
	if p.Price, err = parseDecimal("price", price); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, price::text, stock, image_url FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		var n int64
		if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
			return domain.Product{}, fmt.Errorf("count products: %w", err)
		}
		p.ID = domain.ProductID(fmt.Sprintf("%d", n+1))
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products(id, name, description, price, stock, image_url) VALUES($1, $2, $3, $4, $5, $6)`,
		string(p.ID), p.Name, p.Description, p.Price.String(), p.Stock, p.ImageURL)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, storage.ErrExists
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---- cart ----

func (s *Store) UpsertCartLine(ctx context.Context, productID domain.ProductID, quantity int, unitPrice decimal.Decimal) error {
	line := domain.NewCartLine(productID, quantity, unitPrice)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cart_lines(product_id, quantity, price) VALUES($1, $2, $3)
		 ON CONFLICT (product_id) DO UPDATE
		 SET quantity = cart_lines.quantity + EXCLUDED.quantity,
		     price    = cart_lines.price + EXCLUDED.price`,
		string(productID), line.Quantity, line.Price.String())
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

func (s *Store) ListCart(ctx context.Context) ([]domain.CartLine, error) {
	rows, err := s.pool.Query(ctx, `SELECT product_id, quantity, price::text FROM cart_lines ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()
	out := []domain.CartLine{}
	for rows.Next() {
		var id, price string
		var l domain.CartLine
		if err := rows.Scan(&id, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		l.ProductID = domain.ProductID(id)
		if l.Price, err = parseDecimal("price", price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ClearCart(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_lines`); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertOrder(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) PlaceOrder(ctx context.Context, o domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertOrder(ctx, tx, o); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_lines`); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return tx.Commit(ctx)
}

func insertOrder(ctx context.Context, tx pgx.Tx, o domain.Order) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO orders(id, order_date, address, status, total_cost, created_at) VALUES($1, $2, $3, $4, $5, $6)`,
		string(o.ID), o.Date, o.Address, string(o.Status), o.TotalCost.String(), o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	for _, l := range o.Lines {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_lines(order_id, product_id, quantity, price) VALUES($1, $2, $3, $4)`,
			string(o.ID), string(l.ProductID), l.Quantity, l.Price.String())
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (s *Store) FindOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, order_date, address, status, total_cost::text, created_at FROM orders WHERE id=$1`, string(id))
	var o domain.Order
	var oid, status, total string
	err := row.Scan(&oid, &o.Date, &o.Address, &status, &total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.ID = domain.OrderID(oid)
	o.Status = domain.OrderStatus(status)
	if o.TotalCost, err = parseDecimal("total_cost", total); err != nil {
		return domain.Order{}, err
	}
	if o.Lines, err = s.orderLines(ctx, id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Store) orderLines(ctx context.Context, id domain.OrderID) ([]domain.CartLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, quantity, price::text FROM order_lines WHERE order_id=$1 ORDER BY product_id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()
	out := []domain.CartLine{}
	for rows.Next() {
		var pid, price string
		var l domain.CartLine
		if err := rows.Scan(&pid, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		l.ProductID = domain.ProductID(pid)
		if l.Price, err = parseDecimal("price", price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_date, address, status, total_cost::text, created_at FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		var oid, status, total string
		if err := rows.Scan(&oid, &o.Date, &o.Address, &status, &total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.ID = domain.OrderID(oid)
		o.Status = domain.OrderStatus(status)
		if o.TotalCost, err = parseDecimal("total_cost", total); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = s.orderLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, string(id), string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
