// Interactive client for a running shop-service: browse the catalog, add
// items to the cart, and place orders from the terminal.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type action struct {
	Name        string
	Description string
}

type model struct {
	actions     []action
	products    []string
	selectedAct int
	selectedPrd int
	quantity    int
	status      string
	detail      string
	busy        bool
}

func initialModel() model {
	return model{
		actions: []action{
			{"products", "List the catalog"},
			{"checkout", "Add selected product to the cart"},
			{"cart", "Show the cart"},
			{"order", "Place an order from the cart"},
			{"orders", "List placed orders"},
		},
		products: []string{"1", "2", "3", "4"},
		quantity: 1,
		status:   "Ready",
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selectedAct > 0 {
				m.selectedAct--
			}
		case "down":
			if m.selectedAct < len(m.actions)-1 {
				m.selectedAct++
			}
		case "left":
			if m.selectedPrd > 0 {
				m.selectedPrd--
			}
		case "right":
			if m.selectedPrd < len(m.products)-1 {
				m.selectedPrd++
			}
		case "+":
			m.quantity++
		case "-":
			if m.quantity > 1 {
				m.quantity--
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			return m, runActionCmd(m.actions[m.selectedAct].Name, m.products[m.selectedPrd], m.quantity)
		}
	case actionResult:
		m.busy = false
		m.status = msg.status
		m.detail = msg.detail
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "shop-backend-go CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Actions:")
	for i, a := range m.actions {
		marker := " "
		if i == m.selectedAct {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, a.Name, a.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Product (left/right): %s   Quantity (+/-): %d\n", m.products[m.selectedPrd], m.quantity)
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.detail != "" {
		fmt.Fprintf(b, "%s\n", m.detail)
	}
	fmt.Fprintln(b, "\nControls: up/down select action, left/right select product, +/- quantity, enter to run, q to quit")
	return b.String()
}

type actionResult struct {
	status string
	detail string
}

func runActionCmd(name, productID string, quantity int) tea.Cmd {
	return func() tea.Msg {
		baseURL := getenv("SHOP_BASE_URL", "http://localhost:8080")
		switch name {
		case "products":
			body, err := doGet(baseURL, "/search_all")
			if err != nil {
				return actionResult{status: fmt.Sprintf("List products failed: %v", err)}
			}
			return actionResult{status: "Catalog", detail: body}
		case "checkout":
			body, err := doPost(baseURL, "/checkout", map[string]any{"id": productID, "quantity": quantity}, "")
			if err != nil {
				return actionResult{status: fmt.Sprintf("Checkout failed: %v", err)}
			}
			return actionResult{status: fmt.Sprintf("Checkout OK (product %s x%d)", productID, quantity), detail: body}
		case "cart":
			body, err := doGet(baseURL, "/cart")
			if err != nil {
				return actionResult{status: fmt.Sprintf("List cart failed: %v", err)}
			}
			return actionResult{status: "Cart", detail: body}
		case "order":
			payload := map[string]any{
				"id":      uuid.NewString(),
				"date":    time.Now().UTC().Format("2006-01-02"),
				"address": "1 Demo Street",
			}
			body, err := doPost(baseURL, "/order", payload, uuid.NewString())
			if err != nil {
				return actionResult{status: fmt.Sprintf("Place order failed: %v", err)}
			}
			return actionResult{status: "Order placed", detail: body}
		case "orders":
			body, err := doGet(baseURL, "/orders")
			if err != nil {
				return actionResult{status: fmt.Sprintf("List orders failed: %v", err)}
			}
			return actionResult{status: "Orders", detail: body}
		}
		return actionResult{status: "Unknown action"}
	}
}

func doGet(baseURL, path string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return "", err
	}
	return doRequest(req)
}

func doPost(baseURL, path string, payload any, idemKey string) (string, error) {
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return doRequest(req)
}

func doRequest(req *http.Request) (string, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func main() {
	runCmd := flag.String("run", "", "run a single action: products|checkout|cart|order|orders")
	product := flag.String("product", "1", "product id for checkout")
	quantity := flag.Int("quantity", 1, "quantity for checkout")
	flag.Parse()

	if *runCmd != "" {
		res := runActionCmd(*runCmd, *product, *quantity)().(actionResult)
		fmt.Println(res.status)
		if res.detail != "" {
			fmt.Println(res.detail)
		}
		return
	}

	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
