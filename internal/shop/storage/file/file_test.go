package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s, dir
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCatalogCRUD(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.FindProduct(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stored, err := s.InsertProduct(ctx, domain.Product{
		Name:        "Product 1",
		Description: "Description of Product 1",
		Price:       price("19.99"),
		Stock:       50,
		ImageURL:    "https://example.com/1.jpg",
	})
	require.NoError(t, err)
	// First product with no explicit id gets "1".
	assert.Equal(t, domain.ProductID("1"), stored.ID)

	got, err := s.FindProduct(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Product 1", got.Name)
	assert.True(t, got.Price.Equal(price("19.99")))
	assert.Equal(t, 50, got.Stock)

	_, err = s.InsertProduct(ctx, domain.Product{
		ID: "1", Name: "dup", Description: "dup", Price: price("1"), Stock: 1, ImageURL: "x",
	})
	assert.ErrorIs(t, err, storage.ErrExists)

	all, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteProduct(ctx, "1"))
	assert.ErrorIs(t, s.DeleteProduct(ctx, "1"), storage.ErrNotFound)
}

func TestCartUpsertAccumulates(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCartLine(ctx, "1", 5, price("19.99")))
	require.NoError(t, s.UpsertCartLine(ctx, "2", 1, price("29.99")))
	require.NoError(t, s.UpsertCartLine(ctx, "1", 3, price("19.99")))

	lines, err := s.ListCart(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, domain.ProductID("1"), lines[0].ProductID)
	assert.Equal(t, 8, lines[0].Quantity)
	assert.True(t, lines[0].Price.Equal(price("159.92")), "got %s", lines[0].Price)

	require.NoError(t, s.ClearCart(ctx))
	lines, err = s.ListCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOrderLedger(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	order, err := domain.AssembleOrder("o1", "2024-01-01", "1 Main St", []domain.CartLine{
		domain.NewCartLine("1", 2, price("19.99")),
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateOrder(ctx, order))

	assert.ErrorIs(t, s.CreateOrder(ctx, order), storage.ErrExists)

	got, err := s.FindOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.True(t, got.TotalCost.Equal(price("39.98")))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)

	require.NoError(t, s.UpdateOrderStatus(ctx, "o1", domain.OrderStatusShipped))
	got, err = s.FindOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)

	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", domain.OrderStatusShipped), storage.ErrNotFound)

	require.NoError(t, s.DeleteOrder(ctx, "o1"))
	assert.ErrorIs(t, s.DeleteOrder(ctx, "o1"), storage.ErrNotFound)
	_, err = s.FindOrder(ctx, "o1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlaceOrderClearsCart(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCartLine(ctx, "1", 8, price("19.99")))
	lines, err := s.ListCart(ctx)
	require.NoError(t, err)

	order, err := domain.AssembleOrder("o1", "2024-01-01", "1 Main St", lines)
	require.NoError(t, err)
	require.NoError(t, s.PlaceOrder(ctx, order))

	lines, err = s.ListCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	got, err := s.FindOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.TotalCost.Equal(price("159.92")), "got %s", got.TotalCost)

	// No marker left behind after a clean run.
	_, err = os.Stat(filepath.Join(dir, placeMarker))
	assert.True(t, os.IsNotExist(err))

	// An independent store over the same directory sees the same outcome.
	second, err := New(dir)
	require.NoError(t, err)
	got, err = second.FindOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.TotalCost.Equal(price("159.92")))
	lines, err = second.ListCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRecoverReplaysCartClear(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	// Simulate a crash after the order write but before the cart clear: the
	// cart still has lines and the marker is on disk.
	require.NoError(t, s.UpsertCartLine(ctx, "1", 1, price("19.99")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, placeMarker), []byte("o1"), 0o644))

	reopened, err := New(dir)
	require.NoError(t, err)

	lines, err := reopened.ListCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = os.Stat(filepath.Join(dir, placeMarker))
	assert.True(t, os.IsNotExist(err))
}

func TestReopenKeepsData(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	_, err := s.InsertProduct(ctx, domain.Product{
		ID: "9", Name: "Keep", Description: "persists", Price: price("5.00"), Stock: 3, ImageURL: "x",
	})
	require.NoError(t, err)

	reopened, err := New(dir)
	require.NoError(t, err)
	got, err := reopened.FindProduct(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "Keep", got.Name)
}

func TestCorruptFileSurfacesError(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, cartFile), []byte("{not json"), 0o644))
	_, err := s.ListCart(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), cartFile)
}
