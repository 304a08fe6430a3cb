// Load generator for shop-service: each transaction checks a product into
// the cart and places an order, and the run reports latency percentiles and
// throughput as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type benchResult struct {
	Timestamp          string         `json:"timestamp"`
	BaseURL            string         `json:"base_url"`
	Transactions       int            `json:"transactions"`
	Concurrency        int            `json:"concurrency"`
	TotalRequests      int            `json:"total_requests"`
	SuccessfulRequests int            `json:"successful_requests"`
	ErrorRequests      int            `json:"error_requests"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	MinLatencyMs       float64        `json:"min_latency_ms"`
	MaxLatencyMs       float64        `json:"max_latency_ms"`
	P50LatencyMs       float64        `json:"p50_latency_ms"`
	P90LatencyMs       float64        `json:"p90_latency_ms"`
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	ThroughputTPS      float64        `json:"throughput_tps"`
	StatusCounts       map[string]int `json:"status_counts"`
	FirstError         string         `json:"first_error"`
}

type runMetrics struct {
	mu           sync.Mutex
	success      int
	errors       int
	latenciesMs  []float64
	statusCounts map[string]int
	firstError   string
}

func newRunMetrics() *runMetrics {
	return &runMetrics{statusCounts: make(map[string]int)}
}

func (m *runMetrics) record(latency time.Duration, status string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCounts[status]++
	if err != nil {
		m.errors++
		if m.firstError == "" {
			m.firstError = err.Error()
		}
		return
	}
	m.success++
	m.latenciesMs = append(m.latenciesMs, float64(latency.Microseconds())/1000.0)
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "shop-service base URL")
	transactions := flag.Int("n", 100, "number of checkout+order transactions")
	concurrency := flag.Int("c", 5, "concurrent workers")
	productID := flag.String("product", "1", "product id to check out")
	out := flag.String("out", "", "write JSON result to file (default stdout)")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	metrics := newRunMetrics()
	jobs := make(chan int)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				runTransaction(client, *baseURL, *productID, metrics)
			}
		}()
	}
	for i := 0; i < *transactions; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	result := summarize(*baseURL, *transactions, *concurrency, elapsed, metrics)
	data, _ := json.MarshalIndent(result, "", "  ")
	if *out != "" {
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(string(data))
}

// runTransaction checks one item into the cart and immediately places an
// order for it; the pair counts as one transaction and two requests.
func runTransaction(client *http.Client, baseURL, productID string, metrics *runMetrics) {
	start := time.Now()
	status, err := postJSON(client, baseURL+"/checkout", map[string]any{"id": productID, "quantity": 1}, "")
	metrics.record(time.Since(start), status, err)
	if err != nil {
		return
	}

	start = time.Now()
	payload := map[string]any{
		"id":      uuid.NewString(),
		"date":    time.Now().UTC().Format("2006-01-02"),
		"address": "1 Bench Street",
	}
	status, err = postJSON(client, baseURL+"/order", payload, uuid.NewString())
	metrics.record(time.Since(start), status, err)
}

func postJSON(client *http.Client, url string, payload any, idemKey string) (string, error) {
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "error", err
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "error", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	status := fmt.Sprintf("%d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return status, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return status, nil
}

func summarize(baseURL string, transactions, concurrency int, elapsed time.Duration, m *runMetrics) benchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := benchResult{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		BaseURL:            baseURL,
		Transactions:       transactions,
		Concurrency:        concurrency,
		TotalRequests:      m.success + m.errors,
		SuccessfulRequests: m.success,
		ErrorRequests:      m.errors,
		DurationSeconds:    elapsed.Seconds(),
		StatusCounts:       m.statusCounts,
		FirstError:         m.firstError,
	}
	if elapsed > 0 {
		result.ThroughputTPS = float64(transactions) / elapsed.Seconds()
	}
	if len(m.latenciesMs) == 0 {
		return result
	}

	sorted := append([]float64(nil), m.latenciesMs...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	result.AvgLatencyMs = sum / float64(len(sorted))
	result.MinLatencyMs = sorted[0]
	result.MaxLatencyMs = sorted[len(sorted)-1]
	result.P50LatencyMs = percentile(sorted, 50)
	result.P90LatencyMs = percentile(sorted, 90)
	result.P95LatencyMs = percentile(sorted, 95)
	result.P99LatencyMs = percentile(sorted, 99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}
