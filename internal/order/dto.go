package order

// PlaceItem is one requested line of a new order.
// swagger:model PlaceItem
type PlaceItem struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"   example:"2"`
}

// PlaceOrderRequest is the place-order payload. Prices arrive pre-computed by
// the caller; the total must equal items + tax + shipping.
// swagger:model PlaceOrderRequest
type PlaceOrderRequest struct {
	UserID        string       `json:"user_id" example:"b2f5ff47-2b1e-4f22-8a96-5f3c1f2f2e7b"`
	Items         []PlaceItem  `json:"items"`
	Shipping      ShippingInfo `json:"shipping_info"`
	Payment       PaymentMode  `json:"mode_of_payment" example:"COD"`
	ItemsPrice    string       `json:"items_price"     example:"30.00"`
	TaxPrice      string       `json:"tax_price"       example:"3.00"`
	ShippingPrice string       `json:"shipping_price"  example:"5.00"`
	TotalPrice    string       `json:"total_price"     example:"38.00"`
}

// UpdateStatusRequest carries the target status for a transition.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status Status `json:"status" example:"Completed"`
}

// Filter narrows order listings. Zero values mean "no filter".
type Filter struct {
	UserID string
	Status Status
}
