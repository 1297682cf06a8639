package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// UserDirectory is the user-store collaborator: an existence check for
// placement and a summary lookup for listings.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	Summary(ctx context.Context, id string) (UserSummary, error)
}

// priceTolerance absorbs currency rounding in the total invariant.
var priceTolerance = decimal.NewFromFloat(0.01)

type ServiceConfig struct {
	// RestockOnCancel returns item quantities to product stock when an order
	// is canceled. Off by default.
	RestockOnCancel bool
	// MaxRetries bounds re-runs of the placement unit of work on
	// serialization conflicts.
	MaxRetries uint64
	// TxTimeout bounds one whole placement attempt cycle.
	TxTimeout time.Duration
}

// Service orchestrates order placement, status transitions, sales
// aggregation and read projections over a Repository and a UserDirectory.
type Service struct {
	repo  Repository
	users UserDirectory
	cfg   ServiceConfig
}

func NewService(repo Repository, users UserDirectory, cfg ServiceConfig) *Service {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	return &Service{repo: repo, users: users, cfg: cfg}
}

// Place validates the request, checks the user exists, then runs the atomic
// reservation protocol with a bounded retry budget. On success the returned
// order is persisted with status Processing and every product's stock has
// decreased by exactly the ordered quantity; on any error nothing changed.
func (s *Service) Place(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if err := validatePlace(req); err != nil {
		return nil, err
	}

	ok, err := s.users.Exists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Resource: "user", ID: req.UserID}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Shipping:      req.Shipping,
		Payment:       req.Payment,
		Status:        StatusProcessing,
		ItemsPrice:    req.ItemsPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	attempts := 0
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(25*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := s.repo.Place(ctx, o); err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if retryable(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransactionError{Attempts: attempts, Err: err}
		}
		return nil, err
	}
	return o, nil
}

func validatePlace(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return validationf("no order items found")
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return validationf("order item is missing product id")
		}
		if it.Quantity <= 0 {
			return validationf("order item quantity must be positive")
		}
	}
	if req.UserID == "" {
		return validationf("user id is required")
	}
	sh := req.Shipping
	if sh.Address == "" || sh.City == "" || sh.PhoneNo == "" || sh.PostalCode == "" || sh.Country == "" {
		return validationf("shipping info is incomplete")
	}
	if !req.Payment.Valid() {
		return validationf("invalid mode of payment %q: must be %s or %s", req.Payment, PaymentCOD, PaymentOnline)
	}

	items, err := parsePrice("items_price", req.ItemsPrice)
	if err != nil {
		return err
	}
	tax, err := parsePrice("tax_price", req.TaxPrice)
	if err != nil {
		return err
	}
	shipping, err := parsePrice("shipping_price", req.ShippingPrice)
	if err != nil {
		return err
	}
	total, err := parsePrice("total_price", req.TotalPrice)
	if err != nil {
		return err
	}
	if items.Add(tax).Add(shipping).Sub(total).Abs().GreaterThan(priceTolerance) {
		return validationf("total_price %s does not equal items + tax + shipping", req.TotalPrice)
	}
	return nil
}

func parsePrice(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, validationf("%s %q is not a valid amount", field, v)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, validationf("%s must not be negative", field)
	}
	return d, nil
}

// Get returns a single order with its resolved user summary.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Order: *o, User: s.summary(ctx, o.UserID)}, nil
}

// UpdateStatus applies one state-machine transition and returns the updated
// order. The restock-on-cancel policy is applied according to configuration.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, validationf("invalid status value %q: must be %s, %s or %s",
			next, StatusProcessing, StatusCompleted, StatusCanceled)
	}
	return s.repo.UpdateStatus(ctx, id, next, s.cfg.RestockOnCancel)
}

// Delete removes an order. Inventory is never restored by deletion.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "order", ID: id}
	}
	return nil
}

// MonthlySales groups Completed orders by calendar month, summing totals,
// ascending by year then month.
func (s *Service) MonthlySales(ctx context.Context) ([]MonthlySales, error) {
	out, err := s.repo.MonthlySales(ctx)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoSalesData
	}
	return out, nil
}

// List returns orders matching the filter, each with items and user summary.
func (s *Service) List(ctx context.Context, f Filter) ([]View, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("invalid status filter %q", f.Status)
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNoOrders
	}

	views := make([]View, 0, len(orders))
	cache := make(map[string]UserSummary)
	for _, o := range orders {
		u, ok := cache[o.UserID]
		if !ok {
			u = s.summary(ctx, o.UserID)
			cache[o.UserID] = u
		}
		views = append(views, View{Order: o, User: u})
	}
	return views, nil
}

// Rows flattens matching orders to one row per line item.
func (s *Service) Rows(ctx context.Context, f Filter) ([]Row, error) {
	views, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, v := range views {
		for _, it := range v.Items {
			rows = append(rows, Row{
				OrderID:    v.ID,
				Item:       it,
				Quantity:   it.Quantity,
				TotalPrice: v.TotalPrice,
				User:       v.User,
				Status:     v.Status,
				CreatedAt:  v.CreatedAt,
			})
		}
	}
	return rows, nil
}

// summary resolves a user summary, degrading to a bare id when the user
// record is gone.
func (s *Service) summary(ctx context.Context, userID string) UserSummary {
	u, err := s.users.Summary(ctx, userID)
	if err != nil {
		return UserSummary{ID: userID}
	}
	return u
}
