// Package bookstore is a client for the bookstore REST API.
//
//	GET  /books   -> [{id, title, author, price, stock}]
//	GET  /orders  -> [{order_id, book_title, quantity, total_price, status}]
//	POST /orders  {book_id, quantity, ordered_by} -> 201 {order_id, book_title, total_price, ...}
//
// Order persistence belongs to the bookstore; this package only moves JSON.
package bookstore
