package order

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemProduct is the slice of a product the placement protocol touches.
type MemProduct struct {
	ID    string
	Name  string
	Image string
	Price string
	Stock int
}

// MemRepo is an in-memory Repository. The whole unit of work runs under one
// mutex, which makes it serializable by construction; it backs the unit
// tests and demonstrates that the service logic carries no storage
// assumptions beyond the Repository contract.
type MemRepo struct {
	mu       sync.Mutex
	products map[string]*MemProduct
	orders   map[string]*Order
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		products: make(map[string]*MemProduct),
		orders:   make(map[string]*Order),
	}
}

// SeedProduct registers (or replaces) a product.
func (m *MemRepo) SeedProduct(p MemProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

// Stock returns the current stock of a product, -1 if unknown.
func (m *MemRepo) Stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		return p.Stock
	}
	return -1
}

func (m *MemRepo) Place(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// check lines against tentative stock so repeated lines for the same
	// product cannot drain it below zero; nothing is applied until every
	// line has passed
	remaining := make(map[string]int)
	for i := range o.Items {
		it := &o.Items[i]
		p, ok := m.products[it.ProductID]
		if !ok {
			return &NotFoundError{Resource: "product", ID: it.ProductID}
		}
		left, seen := remaining[it.ProductID]
		if !seen {
			left = p.Stock
		}
		if left < it.Quantity {
			return &InsufficientStockError{
				ProductID: it.ProductID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: left,
			}
		}
		remaining[it.ProductID] = left - it.Quantity
		it.Name = p.Name
		it.Image = p.Image
		it.Price = p.Price
	}

	for id, left := range remaining {
		m.products[id].Stock = left
	}
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *MemRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	return copyOrder(o), nil
}

func (m *MemRepo) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemRepo) UpdateStatus(_ context.Context, id string, next Status, restock bool) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	if !CanTransition(o.Status, next) {
		return nil, validationf("illegal status transition %s -> %s", o.Status, next)
	}
	o.Status = next
	if restock && next == StatusCanceled {
		for _, it := range o.Items {
			if p, ok := m.products[it.ProductID]; ok {
				p.Stock += it.Quantity
			}
		}
	}
	return copyOrder(o), nil
}

func (m *MemRepo) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return false, nil
	}
	delete(m.orders, id)
	return true, nil
}

func (m *MemRepo) MonthlySales(_ context.Context) ([]MonthlySales, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type bucket struct{ year, month int }
	sums := make(map[bucket]decimal.Decimal)
	for _, o := range m.orders {
		if o.Status != StatusCompleted {
			continue
		}
		total, err := decimal.NewFromString(o.TotalPrice)
		if err != nil {
			return nil, err
		}
		b := bucket{o.CreatedAt.Year(), int(o.CreatedAt.Month())}
		sums[b] = sums[b].Add(total)
	}

	var out []MonthlySales
	for b, sum := range sums {
		out = append(out, MonthlySales{Year: b.year, Month: b.month, TotalSales: sum.String()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}
