// Package logkey holds the attribute keys shared by structured log lines.
package logkey

const (
	RequestID = "request_id"
	Error     = "error"
	OrderID   = "order_id"
	ProductID = "product_id"
	PaymentID = "payment_id"
	SessionID = "session_id"
	Status    = "status"
)
