// internal/pkg/email/types.go
package email

// Message is a rendered email ready for a provider
type Message struct {
	To      string
	Subject string
	Body    string // HTML body
}

// OrderLine is one purchased item shown in a confirmation email
type OrderLine struct {
	Name     string
	Quantity int
	Price    int64 // Unit price in cents
}

// OrderConfirmation is the data for an order confirmation email
type OrderConfirmation struct {
	To          string
	OrderNumber string
	TotalAmount int64
	Currency    string
	Items       []OrderLine
}

// PaymentFailure is the data for a failed payment notification
type PaymentFailure struct {
	To     string
	Reason string
}
