package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/shop-backend-go/internal/shop"
	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/internal/shop/storage/file"
	"github.com/nazeru/shop-backend-go/pkg/idempotency"
)

func newTestServer(t *testing.T, seed bool) *httptest.Server {
	t.Helper()
	store, err := file.New(t.TempDir())
	require.NoError(t, err)

	if seed {
		ctx := context.Background()
		products := []domain.Product{
			{ID: "1", Name: "Product 1", Description: "Description of Product 1", Price: decimal.RequireFromString("19.99"), Stock: 50, ImageURL: "https://example.com/1.jpg"},
			{ID: "2", Name: "Product 2", Description: "Description of Product 2", Price: decimal.RequireFromString("29.99"), Stock: 30, ImageURL: "https://example.com/2.jpg"},
		}
		for _, p := range products {
			_, err := store.InsertProduct(ctx, p)
			require.NoError(t, err)
		}
	}

	svc := shop.NewService(shop.Deps{Catalog: store, Cart: store, Orders: store})
	srv := httptest.NewServer(New(svc, store, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, payload any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	_ = dec.Decode(&decoded)
	return resp, decoded
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSearchAll(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/search_all")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var products []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 2)
	assert.Equal(t, "1", products[0]["id"])
	assert.Equal(t, "Product 1", products[0]["name"])
}

func TestSearchAllEmptyCatalogIs404(t *testing.T) {
	srv := newTestServer(t, false)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/search_all", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No products found", body["error"])
}

func TestSearchProductByID(t *testing.T) {
	srv := newTestServer(t, true)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/search_product_by_id?id=2", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Product 2", body["name"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/search_product_by_id?id=42", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/search_product_by_id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddProduct(t *testing.T) {
	srv := newTestServer(t, true)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/products_add", map[string]any{
		"name":        "Product 3",
		"description": "Description of Product 3",
		"price":       "39.99",
		"stock":       20,
		"imageUrl":    "https://example.com/3.jpg",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "3", body["id"])

	// Missing required fields.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/products_add", map[string]any{"name": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutAndCart(t *testing.T) {
	srv := newTestServer(t, true)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 5}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Item added to the cart successfully", body["message"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 3}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cartResp, err := http.Get(srv.URL + "/cart")
	require.NoError(t, err)
	defer cartResp.Body.Close()
	var cart []map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(cartResp.Body).Decode(&cart))
	require.Len(t, cart, 1)

	var quantity int
	require.NoError(t, json.Unmarshal(cart[0]["quantity"], &quantity))
	assert.Equal(t, 8, quantity)
	var lineTotal decimal.Decimal
	require.NoError(t, json.Unmarshal(cart[0]["price"], &lineTotal))
	assert.True(t, lineTotal.Equal(decimal.RequireFromString("159.92")), "got %s", lineTotal)
}

func TestCheckoutErrors(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "42", "quantity": 1}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 51}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrderFlow(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 8}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-1", "date": "2024-01-01", "address": "1 Main St",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order placed successfully", body["message"])

	order, ok := body["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "order-1", order["id"])
	assert.Equal(t, "Pending", order["status"])
	// decimal values marshal as quoted strings, keeping amounts exact on the wire.
	assert.Equal(t, "159.92", order["totalCost"])

	// The cart is empty after the order.
	cartResp, err := http.Get(srv.URL + "/cart")
	require.NoError(t, err)
	defer cartResp.Body.Close()
	var cart []any
	require.NoError(t, json.NewDecoder(cartResp.Body).Decode(&cart))
	assert.Empty(t, cart)

	// Placing again with an empty cart fails.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-2", "date": "2024-01-01", "address": "1 Main St",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	headers := map[string]string{idempotency.Header: "key-123"}
	payload := map[string]any{"id": "order-1", "date": "2024-01-01", "address": "1 Main St"}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/order", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["replayed"])

	// Same key again: the stored order is returned, no new order is created.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/order", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["replayed"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "order-1", order["id"])

	ordersResp, err := http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	defer ordersResp.Body.Close()
	var orders []any
	require.NoError(t, json.NewDecoder(ordersResp.Body).Decode(&orders))
	assert.Len(t, orders, 1)
}

func TestPlaceOrderReplayAfterDeleteStartsFresh(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	headers := map[string]string{idempotency.Header: "key-123"}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-1", "date": "2024-01-01", "address": "1 Main St",
	}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/delete_order?id=order-1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The key now points at a deleted order: the retry must place a fresh
	// order rather than replay a tombstone or fail with 404.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "1", "quantity": 1}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-2", "date": "2024-01-02", "address": "1 Main St",
	}, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["replayed"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "order-2", order["id"])

	// And the fresh order is now what the key replays.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-3", "date": "2024-01-03", "address": "1 Main St",
	}, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["replayed"])
	order = body["order"].(map[string]any)
	assert.Equal(t, "order-2", order["id"])
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"id": "2", "quantity": 1}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/order", map[string]any{
		"id": "order-1", "date": "2024-01-01", "address": "1 Main St",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/order_placed", map[string]any{"id": "order-1", "status": "Shipped"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	updated := body["updatedOrder"].(map[string]any)
	assert.Equal(t, "Shipped", updated["status"])

	// Illegal transition and unknown label are rejected.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/order_placed", map[string]any{"id": "order-1", "status": "Cancelled"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/order_placed", map[string]any{"id": "order-1", "status": "Teleported"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/order_placed", map[string]any{"id": "missing", "status": "Shipped"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/delete_order?id=order-1", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order deleted successfully", body["message"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/delete_order?id=order-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteProductEndpoint(t *testing.T) {
	srv := newTestServer(t, true)

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/delete_product?id=1", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Product deleted successfully", body["message"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/delete_product?id=1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, true)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/checkout", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/search_all", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/checkout", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
