// ABOUTME: Bookstore pack: search, inventory, ordering, and order status tools.
// ABOUTME: Every tool requires a BookOrderingCredential presentation before it runs.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/helix-gateway/internal/bookstore"
	"github.com/2389/helix-gateway/internal/packs"
)

// PackID identifies the bookstore pack in the registry.
const PackID = "builtin:bookstore"

// Bookstore is the subset of the bookstore client the tools use.
type Bookstore interface {
	ListBooks(ctx context.Context) ([]bookstore.Book, error)
	FindOrder(ctx context.Context, orderID string) (*bookstore.Order, error)
	PlaceOrder(ctx context.Context, req bookstore.OrderRequest) (*bookstore.Order, error)
}

// BookstorePack creates the bookstore pack backed by store.
func BookstorePack(store Bookstore) *packs.BuiltinPack {
	b := &bookstoreHandlers{store: store}
	return &packs.BuiltinPack{
		ID: PackID,
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:               "search_books",
					Description:        "Search for books by title or author",
					InputSchema:        json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"The search query string"}},"required":["query"]}`),
					RequiredCredential: packs.CredentialBookOrdering,
				},
				Handler: b.SearchBooks,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:               "view_inventory",
					Description:        "View the full inventory of books with stock details",
					InputSchema:        json.RawMessage(`{"type":"object","properties":{}}`),
					RequiredCredential: packs.CredentialBookOrdering,
				},
				Handler: b.ViewInventory,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:               "place_order",
					Description:        "Place an order for a book",
					InputSchema:        json.RawMessage(`{"type":"object","properties":{"book_id":{"type":"string","description":"The ID of the book to order"},"book_title":{"type":"string","description":"The title of the book to order, when the ID is not known"},"quantity":{"type":"integer","description":"The number of copies to order (default is 1)","default":1}}}`),
					RequiredCredential: packs.CredentialBookOrdering,
				},
				Handler: b.PlaceOrder,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:               "check_order_status",
					Description:        "Check the status of an order",
					InputSchema:        json.RawMessage(`{"type":"object","properties":{"order_id":{"type":"integer","description":"The ID of the order to check"}},"required":["order_id"]}`),
					RequiredCredential: packs.CredentialBookOrdering,
				},
				Handler: b.CheckOrderStatus,
			},
		},
	}
}

type bookstoreHandlers struct {
	store Bookstore
}

type searchBooksInput struct {
	Query string `json:"query"`
}

type placeOrderInput struct {
	BookID    bookstore.ID `json:"book_id"`
	BookTitle string       `json:"book_title"`
	Quantity  int          `json:"quantity"`
}

type checkOrderInput struct {
	OrderID bookstore.ID `json:"order_id"`
}

// decodeInput unmarshals tool arguments; empty input decodes to the zero value.
func decodeInput(tool string, input json.RawMessage, dst any) error {
	if len(strings.TrimSpace(string(input))) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", tool, err)
	}
	return nil
}

func (b *bookstoreHandlers) SearchBooks(ctx context.Context, input json.RawMessage) (string, error) {
	var in searchBooksInput
	if err := decodeInput("search_books", input, &in); err != nil {
		return "", err
	}

	books, err := b.store.ListBooks(ctx)
	if err != nil {
		return "Error searching books: " + err.Error(), nil
	}

	query := strings.ToLower(in.Query)
	var matches []bookstore.Book
	for _, book := range books {
		if strings.Contains(strings.ToLower(book.Title), query) || strings.Contains(strings.ToLower(book.Author), query) {
			matches = append(matches, book)
		}
	}

	if len(matches) == 0 {
		return "No books found matching your query.", nil
	}
	return formatBooks(matches), nil
}

func (b *bookstoreHandlers) ViewInventory(ctx context.Context, input json.RawMessage) (string, error) {
	books, err := b.store.ListBooks(ctx)
	if err != nil {
		return "Error fetching inventory: " + err.Error(), nil
	}
	if len(books) == 0 {
		return "Inventory is empty.", nil
	}
	return formatBooks(books), nil
}

func (b *bookstoreHandlers) PlaceOrder(ctx context.Context, input json.RawMessage) (string, error) {
	var in placeOrderInput
	if err := decodeInput("place_order", input, &in); err != nil {
		return "", err
	}
	if in.BookID == "" && strings.TrimSpace(in.BookTitle) == "" {
		return "Failed to place order: book_id or book_title is required", nil
	}
	if in.Quantity < 1 {
		in.Quantity = 1
	}

	order, err := b.store.PlaceOrder(ctx, bookstore.OrderRequest{
		BookID:    string(in.BookID),
		BookTitle: in.BookTitle,
		Quantity:  in.Quantity,
	})
	if err != nil {
		var apiErr *bookstore.APIError
		if errors.As(err, &apiErr) || errors.Is(err, bookstore.ErrBookNotFound) {
			return "Failed to place order: " + err.Error(), nil
		}
		return "Error placing order: " + err.Error(), nil
	}

	return fmt.Sprintf("Order placed successfully! Order ID: #%s. You ordered %d copy/copies of '%s' for $%s.",
		order.OrderID, in.Quantity, order.BookTitle, formatMoney(order.TotalPrice)), nil
}

func (b *bookstoreHandlers) CheckOrderStatus(ctx context.Context, input json.RawMessage) (string, error) {
	var in checkOrderInput
	if err := decodeInput("check_order_status", input, &in); err != nil {
		return "", err
	}
	if in.OrderID == "" {
		return "", errors.New("order_id is required")
	}

	order, err := b.store.FindOrder(ctx, string(in.OrderID))
	if err != nil {
		return "Error checking order status: " + err.Error(), nil
	}
	if order == nil {
		return fmt.Sprintf("Order #%s not found.", in.OrderID), nil
	}

	return fmt.Sprintf("Order #%s: %d x '%s' - Total: $%s (Status: %s)",
		in.OrderID, order.Quantity, order.BookTitle, formatMoney(order.TotalPrice), order.Status), nil
}

func formatBooks(books []bookstore.Book) string {
	lines := make([]string, 0, len(books))
	for _, book := range books {
		lines = append(lines, fmt.Sprintf("ID: %s | Title: %s | Author: %s | Price: $%s | Stock: %d",
			book.ID, book.Title, book.Author, formatMoney(book.Price), book.Stock))
	}
	return strings.Join(lines, "\n")
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
