// Package builtins provides the built-in tool packs.
//
// # Bookstore Pack (builtin:bookstore)
//
// Every tool requires a BookOrderingCredential presentation:
//
//   - search_books: case-insensitive match on title or author
//   - view_inventory: every book with price and stock
//   - place_order: order by book_id or book_title, quantity defaults to 1
//   - check_order_status: look an order up by order_id
//
// Handlers return the summary the engine sees. Bookstore failures are
// reported in that summary; only malformed arguments return an error.
package builtins
