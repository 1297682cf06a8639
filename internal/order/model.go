package order

import "time"

// Status of an order. Processing is the initial state; Completed and
// Canceled are terminal.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusCanceled   Status = "Canceled"
)

// Valid reports whether s is one of the recognized status values.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// PaymentMode is recorded on the order but never settled here.
type PaymentMode string

const (
	PaymentCOD    PaymentMode = "COD"
	PaymentOnline PaymentMode = "OnlinePayment"
)

func (m PaymentMode) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

type Order struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	Items    []Item       `json:"items"`
	Shipping ShippingInfo `json:"shipping_info"`
	Payment  PaymentMode  `json:"mode_of_payment"`
	Status   Status       `json:"status"`
	// Prices as strings to avoid rounding errors (NUMERIC in Postgres)
	ItemsPrice    string    `json:"items_price"`
	TaxPrice      string    `json:"tax_price"`
	ShippingPrice string    `json:"shipping_price"`
	TotalPrice    string    `json:"total_price"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is a write-once snapshot of a purchased product line. Name, Price and
// Image are copied from the product row inside the placement transaction and
// never live-joined afterwards.
type Item struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// ShippingInfo is immutable once the order exists. All fields required.
type ShippingInfo struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PhoneNo    string `json:"phone_no"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// MonthlySales is one (year, month) revenue bucket over Completed orders.
type MonthlySales struct {
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	TotalSales string `json:"total_sales"`
}

// UserSummary is the slice of the user record carried on listings.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// View is an order with its resolved user summary, as returned by listings.
type View struct {
	Order
	User UserSummary `json:"user"`
}

// Row is the flattened one-item-per-row projection used for tabular reports.
type Row struct {
	OrderID    string      `json:"order_id"`
	Item       Item        `json:"item"`
	Quantity   int         `json:"quantity"`
	TotalPrice string      `json:"total_price"`
	User       UserSummary `json:"user"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}
