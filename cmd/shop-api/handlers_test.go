package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tiendago/orders-core/internal/order"
	"github.com/tiendago/orders-core/internal/product"
)

//
// ---------- STUBS & FAKES ----------
//

type fakeUsers struct{ known map[string]order.UserSummary }

func (f fakeUsers) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.known[id]
	return ok, nil
}

func (f fakeUsers) Summary(_ context.Context, id string) (order.UserSummary, error) {
	u, ok := f.known[id]
	if !ok {
		return order.UserSummary{}, fmt.Errorf("not found")
	}
	return u, nil
}

// conflictingRepo loses every placement attempt to a serialization failure,
// as when concurrent writers keep invalidating the transaction.
type conflictingRepo struct{ *order.MemRepo }

func (conflictingRepo) Place(context.Context, *order.Order) error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

type fixture struct {
	repo   *order.MemRepo
	svc    *order.Service
	router *gin.Engine
	userID string
	prodID string
}

func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		repo:   order.NewMemRepo(),
		userID: uuid.NewString(),
		prodID: uuid.NewString(),
	}
	f.repo.SeedProduct(order.MemProduct{
		ID:    f.prodID,
		Name:  "Mechanical Keyboard",
		Price: "15.00",
		Stock: stock,
	})
	users := fakeUsers{known: map[string]order.UserSummary{
		f.userID: {ID: f.userID, Username: "mvega", Email: "mvega@example.com"},
	}}
	f.svc = order.NewService(f.repo, users, order.ServiceConfig{})

	r := gin.New()
	r.POST("/orders", placeOrderHandler(f.svc))
	r.GET("/orders", listOrdersHandler(f.svc))
	r.GET("/orders/rows", orderRowsHandler(f.svc))
	r.GET("/orders/sales/monthly", monthlySalesHandler(f.svc))
	r.GET("/orders/:id", getOrderHandler(f.svc))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(f.svc))
	r.DELETE("/orders/:id", deleteOrderHandler(f.svc))
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) placeBody(qty int) string {
	return fmt.Sprintf(`{
		"user_id": %q,
		"items": [{"product_id": %q, "quantity": %d}],
		"shipping_info": {
			"address": "Av. Siempre Viva 742", "city": "Springfield",
			"phone_no": "555-0175", "postal_code": "12345", "country": "MX"
		},
		"mode_of_payment": "COD",
		"items_price": "30.00", "tax_price": "3.00",
		"shipping_price": "5.00", "total_price": "38.00"
	}`, f.userID, f.prodID, qty)
}

func (f *fixture) placeOrder(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/orders", f.placeBody(2))
	if w.Code != http.StatusCreated {
		t.Fatalf("place: status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Order order.Order `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Order.ID
}

//
// ---------- TESTS ----------
//

func TestPlaceOrder_HappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	w := f.do(t, http.MethodPost, "/orders", f.placeBody(2))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string      `json:"message"`
		Order   order.Order `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.Status != order.StatusProcessing {
		t.Errorf("status=%s", resp.Order.Status)
	}
	if got := f.repo.Stock(f.prodID); got != 3 {
		t.Errorf("stock=%d, want 3", got)
	}
}

func TestPlaceOrder_InsufficientStockIs409(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	w := f.do(t, http.MethodPost, "/orders", f.placeBody(2))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s, want 409", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["product_id"] != f.prodID {
		t.Errorf("offending product not named: %v", resp)
	}
	if got := f.repo.Stock(f.prodID); got != 1 {
		t.Errorf("stock=%d, want 1 (unchanged)", got)
	}
}

func TestPlaceOrder_CashPaymentIs400(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	body := fmt.Sprintf(`{
		"user_id": %q,
		"items": [{"product_id": %q, "quantity": 1}],
		"shipping_info": {
			"address": "a", "city": "b", "phone_no": "c",
			"postal_code": "d", "country": "e"
		},
		"mode_of_payment": "Cash",
		"items_price": "15.00", "tax_price": "1.50",
		"shipping_price": "5.00", "total_price": "21.50"
	}`, f.userID, f.prodID)

	w := f.do(t, http.MethodPost, "/orders", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s, want 400", w.Code, w.Body.String())
	}
	if got := f.repo.Stock(f.prodID); got != 5 {
		t.Errorf("stock=%d, want 5 (rejected before storage)", got)
	}
}

func TestPlaceOrder_UnknownUserIs404(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	body := fmt.Sprintf(`{
		"user_id": %q,
		"items": [{"product_id": %q, "quantity": 1}],
		"shipping_info": {"address":"a","city":"b","phone_no":"c","postal_code":"d","country":"e"},
		"mode_of_payment": "COD",
		"items_price": "15.00", "tax_price": "0.00",
		"shipping_price": "0.00", "total_price": "15.00"
	}`, uuid.NewString(), f.prodID)
	w := f.do(t, http.MethodPost, "/orders", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s, want 404", w.Code, w.Body.String())
	}
	if got := f.repo.Stock(f.prodID); got != 5 {
		t.Errorf("stock=%d, want 5", got)
	}
}

func TestPlaceOrder_RetryExhaustionIs503(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	users := fakeUsers{known: map[string]order.UserSummary{f.userID: {ID: f.userID}}}
	svc := order.NewService(conflictingRepo{f.repo}, users, order.ServiceConfig{MaxRetries: 1})
	r := gin.New()
	r.POST("/orders", placeOrderHandler(svc))
	f.router = r

	w := f.do(t, http.MethodPost, "/orders", f.placeBody(2))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s, want 503", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected error message in body")
	}
	if got := f.repo.Stock(f.prodID); got != 5 {
		t.Errorf("stock=%d, want 5", got)
	}
}

func TestListOrders_EmptyIs404(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	w := f.do(t, http.MethodGet, "/orders", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

func TestListOrders_FilterByStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	id := f.placeOrder(t)

	w := f.do(t, http.MethodPut, "/orders/"+id+"/status", `{"status":"Completed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("transition: status=%d body=%s", w.Code, w.Body.String())
	}
	f.placeOrder(t) // stays Processing

	w = f.do(t, http.MethodGet, "/orders?status=Completed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []order.View `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].ID != id {
		t.Fatalf("orders=%+v, want only the completed one", resp.Orders)
	}
	if resp.Orders[0].User.Username != "mvega" {
		t.Errorf("user summary missing: %+v", resp.Orders[0].User)
	}
}

func TestUpdateStatus_TerminalIs400(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	id := f.placeOrder(t)

	if w := f.do(t, http.MethodPut, "/orders/"+id+"/status", `{"status":"Canceled"}`); w.Code != http.StatusOK {
		t.Fatalf("cancel: status=%d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/orders/"+id+"/status", `{"status":"Processing"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("out of terminal: status=%d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/orders/"+id+"/status", `{"status":"Shipped"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: status=%d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/orders/"+uuid.NewString()+"/status", `{"status":"Completed"}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing order: status=%d, want 404", w.Code)
	}
}

func TestMonthlySales_Endpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)

	// no completed orders yet
	if w := f.do(t, http.MethodGet, "/orders/sales/monthly", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}

	id := f.placeOrder(t)
	if w := f.do(t, http.MethodPut, "/orders/"+id+"/status", `{"status":"Completed"}`); w.Code != http.StatusOK {
		t.Fatalf("complete: %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/orders/sales/monthly", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		SalesData []order.MonthlySales `json:"sales_data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.SalesData) != 1 {
		t.Fatalf("buckets=%d, want 1", len(resp.SalesData))
	}
}

func TestOrderRows_Endpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	id := f.placeOrder(t)

	w := f.do(t, http.MethodGet, "/orders/rows", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []order.Row `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("rows=%d, want 1", len(resp.Orders))
	}
	row := resp.Orders[0]
	if row.OrderID != id || row.TotalPrice != "38.00" || row.Item.Name != "Mechanical Keyboard" {
		t.Errorf("row=%+v", row)
	}
}

func TestDeleteOrder_Endpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	id := f.placeOrder(t)

	if w := f.do(t, http.MethodDelete, "/orders/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status=%d", w.Code)
	}
	// deleting does not restore stock
	if got := f.repo.Stock(f.prodID); got != 8 {
		t.Errorf("stock=%d, want 8", got)
	}
	if w := f.do(t, http.MethodDelete, "/orders/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("re-delete: status=%d, want 404", w.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	if w := f.do(t, http.MethodGet, "/orders/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

//
// ---------- PRODUCT HANDLERS ----------
//

// stubProducts implements product.Repository in memory.
type stubProducts struct {
	byID map[string]*product.Product
}

func (s *stubProducts) Create(_ context.Context, p *product.Product) error {
	s.byID[p.ID] = p
	return nil
}

func (s *stubProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *stubProducts) List(_ context.Context, _ product.Query) ([]product.Product, error) {
	var out []product.Product
	for _, p := range s.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubProducts) Update(_ context.Context, p *product.Product, updatePrice, updateStock bool) error {
	cur, ok := s.byID[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Name != "" {
		cur.Name = p.Name
	}
	if updatePrice {
		cur.Price = p.Price
	}
	if updateStock {
		cur.Stock = p.Stock
	}
	return nil
}

func (s *stubProducts) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

func TestProductHandlers_CreateAndStockUpdate(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	repo := &stubProducts{byID: map[string]*product.Product{}}
	r := gin.New()
	r.POST("/products", createProductHandler(repo))
	r.PUT("/products/:id", updateProductHandler(repo))
	r.GET("/products/:id", getProductHandler(repo))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/products",
		bytes.NewBufferString(`{"name":"Mouse","price":"4.00","stock":10}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status=%d body=%s", w.Code, w.Body.String())
	}
	var created product.Product
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// negative stock rejected
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/products/"+created.ID,
		bytes.NewBufferString(`{"stock":-1}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative stock: status=%d, want 400", w.Code)
	}

	// admin restock
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/products/"+created.ID,
		bytes.NewBufferString(`{"stock":25}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("restock: status=%d body=%s", w.Code, w.Body.String())
	}
	if repo.byID[created.ID].Stock != 25 {
		t.Errorf("stock=%d, want 25", repo.byID[created.ID].Stock)
	}
}
