// ABOUTME: HTTP client for the bookstore REST API
// ABOUTME: Lists books, lists orders, and places orders by book id or title

package bookstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// OrderedBy marks orders placed through the agent.
const OrderedBy = "agent"

// ErrBookNotFound is returned when a title cannot be resolved to a book.
var ErrBookNotFound = errors.New("Book not found")

// ID is a bookstore identifier that may arrive as a JSON string or number.
type ID string

// UnmarshalJSON accepts both "12" and 12.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Book is an inventory entry.
type Book struct {
	ID     ID      `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Price  float64 `json:"price"`
	Stock  int     `json:"stock"`
}

// Order is a placed order.
type Order struct {
	OrderID    ID      `json:"order_id"`
	BookTitle  string  `json:"book_title"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at,omitempty"`
	OrderedBy  string  `json:"ordered_by,omitempty"`
}

// OrderRequest selects a book by ID or, when ID is empty, by title.
type OrderRequest struct {
	BookID    string
	BookTitle string
	Quantity  int
}

type orderPayload struct {
	BookID    string `json:"book_id"`
	Quantity  int    `json:"quantity"`
	OrderedBy string `json:"ordered_by"`
}

// APIError is a non-success response from the bookstore.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the bookstore API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a bookstore client. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ListBooks returns the full inventory.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	if err := c.getJSON(ctx, "/books", &books); err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return books, nil
}

// ListOrders returns every order the bookstore knows about.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := c.getJSON(ctx, "/orders", &orders); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// FindOrder looks an order up by id. It returns nil, nil when absent.
func (c *Client) FindOrder(ctx context.Context, orderID string) (*Order, error) {
	orders, err := c.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if string(orders[i].OrderID) == orderID {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// PlaceOrder creates an order. A title is resolved to an id first; a
// non-201 answer is returned as *APIError carrying the bookstore's message.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	bookID := req.BookID
	if bookID == "" {
		book, err := c.resolveTitle(ctx, req.BookTitle)
		if err != nil {
			return nil, err
		}
		bookID = string(book.ID)
	}

	body, err := json.Marshal(orderPayload{BookID: bookID, Quantity: req.Quantity, OrderedBy: OrderedBy})
	if err != nil {
		return nil, fmt.Errorf("encoding order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading order response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	return &order, nil
}

// resolveTitle prefers an exact case-insensitive match, then a substring match.
func (c *Client) resolveTitle(ctx context.Context, title string) (*Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("book_id or book_title is required")
	}

	books, err := c.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(title)
	var partial *Book
	for i := range books {
		got := strings.ToLower(books[i].Title)
		if got == needle {
			return &books[i], nil
		}
		if partial == nil && strings.Contains(got, needle) {
			partial = &books[i]
		}
	}
	if partial == nil {
		return nil, ErrBookNotFound
	}
	return partial, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return "Unknown error"
}
