// Package httpapi binds the shop service to the HTTP surface. Routes and
// response bodies follow the original API; errors map InvalidInput->400,
// NotFound->404, storage failures->500.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-backend-go/internal/shop"
	"github.com/nazeru/shop-backend-go/internal/shop/domain"
	"github.com/nazeru/shop-backend-go/pkg/idempotency"
	"github.com/nazeru/shop-backend-go/pkg/logging"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
)

// Pinger is the storage health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	svc     *shop.Service
	pinger  Pinger
	metrics *metrics.ServerMetrics // nil disables instrumentation
	idem    *idempotency.Registry
}

func New(svc *shop.Service, pinger Pinger, m *metrics.ServerMetrics) *Server {
	return &Server{
		svc:     svc,
		pinger:  pinger,
		metrics: m,
		idem:    idempotency.NewRegistry(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("health", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/search_all", s.instrument("search_all", methodOnly(http.MethodGet, s.handleSearchAll)))
	mux.HandleFunc("/search_product_by_id", s.instrument("search_product_by_id", methodOnly(http.MethodGet, s.handleSearchProduct)))
	mux.HandleFunc("/products_add", s.instrument("products_add", methodOnly(http.MethodPost, s.handleAddProduct)))
	mux.HandleFunc("/delete_product", s.instrument("delete_product", methodOnly(http.MethodDelete, s.handleDeleteProduct)))

	mux.HandleFunc("/checkout", s.instrument("checkout", methodOnly(http.MethodPost, s.handleCheckout)))
	mux.HandleFunc("/cart", s.instrument("cart", methodOnly(http.MethodGet, s.handleListCart)))

	mux.HandleFunc("/order", s.instrument("order", methodOnly(http.MethodPost, s.handlePlaceOrder)))
	mux.HandleFunc("/orders", s.instrument("orders", methodOnly(http.MethodGet, s.handleListOrders)))
	mux.HandleFunc("/order_placed", s.instrument("order_placed", methodOnly(http.MethodPut, s.handleUpdateStatus)))
	mux.HandleFunc("/delete_order", s.instrument("delete_order", methodOnly(http.MethodDelete, s.handleDeleteOrder)))

	return mux
}

// ---- wire representations ----

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl"`
}

type cartLineJSON struct {
	ID       string          `json:"id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderJSON struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Address   string          `json:"address"`
	Status    string          `json:"status"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Products  []cartLineJSON  `json:"products"`
}

func viewProduct(p domain.Product) productJSON {
	return productJSON{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	}
}

func viewCartLine(l domain.CartLine) cartLineJSON {
	return cartLineJSON{ID: string(l.ProductID), Quantity: l.Quantity, Price: l.Price}
}

func viewOrder(o domain.Order) orderJSON {
	products := make([]cartLineJSON, 0, len(o.Lines))
	for _, l := range o.Lines {
		products = append(products, viewCartLine(l))
	}
	return orderJSON{
		ID:        string(o.ID),
		Date:      o.Date,
		Address:   o.Address,
		Status:    string(o.Status),
		TotalCost: o.TotalCost,
		Products:  products,
	}
}

// ---- handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "storage_error"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// Empty catalog is reported as 404, matching the original API.
	if len(products) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "No products found"})
		return
	}
	out := make([]productJSON, 0, len(products))
	for _, p := range products {
		out = append(out, viewProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearchProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProduct(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProduct(p))
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		Stock       int             `json:"stock"`
		ImageURL    string          `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	p, err := s.svc.AddProduct(r.Context(), domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewProduct(p))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProduct(r.Context(), r.URL.Query().Get("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Product deleted successfully"})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if err := s.svc.Checkout(r.Context(), req.ID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Item added to the cart successfully"})
}

func (s *Server) handleListCart(w http.ResponseWriter, r *http.Request) {
	lines, err := s.svc.ListCart(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]cartLineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, viewCartLine(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Date    string `json:"date"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	key := idempotency.Key(r)
	if orderID, ok := s.idem.Lookup(key); ok {
		o, err := s.svc.GetOrder(r.Context(), orderID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"message":  "Order placed successfully",
				"order":    viewOrder(o),
				"replayed": true,
			})
			return
		case errors.Is(err, domain.ErrOrderNotFound):
			// The order the key produced has since been deleted; treat the
			// key as new instead of replaying a tombstone.
			s.idem.Forget(key)
		default:
			writeError(w, err)
			return
		}
	}

	o, err := s.svc.PlaceOrder(r.Context(), req.ID, req.Date, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	s.idem.Remember(key, string(o.ID))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order placed successfully",
		"order":   viewOrder(o),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, viewOrder(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	o, err := s.svc.UpdateOrderStatus(r.Context(), req.ID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Order status updated successfully",
		"updatedOrder": viewOrder(o),
	})
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteOrder(r.Context(), r.URL.Query().Get("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order deleted successfully"})
}

// ---- plumbing ----

func methodOnly(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(handler, strconv.Itoa(rec.status)).Inc()
			s.metrics.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
		}
		if rec.status >= http.StatusInternalServerError {
			logging.Log(logging.Fields{
				Service:    "shop-service",
				Op:         handler,
				Status:     strconv.Itoa(rec.status),
				DurationMS: elapsed.Milliseconds(),
			})
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		logging.Log(logging.Fields{Service: "shop-service", Status: "storage_error", Error: err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal Server Error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
