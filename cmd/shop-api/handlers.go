package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tiendago/orders-core/internal/httpx"
	"github.com/tiendago/orders-core/internal/order"
	"github.com/tiendago/orders-core/internal/product"
	"github.com/tiendago/orders-core/internal/user"
)

// writeOrderError maps the order error taxonomy onto HTTP statuses:
// client mistakes 400, missing resources 404, stock conflicts 409,
// exhausted transactions 503, everything else 500.
func writeOrderError(c *gin.Context, err error) {
	var (
		vErr  *order.ValidationError
		nfErr *order.NotFoundError
		isErr *order.InsufficientStockError
		txErr *order.TransactionError
	)
	switch {
	case errors.As(err, &vErr):
		httpx.JSONError(c, http.StatusBadRequest, vErr.Msg)
	case errors.As(err, &nfErr):
		httpx.JSONError(c, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &isErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":      isErr.Error(),
			"product_id": isErr.ProductID,
			"product":    isErr.Name,
		})
	case errors.As(err, &txErr):
		httpx.JSONError(c, http.StatusServiceUnavailable, txErr.Error())
	case errors.Is(err, order.ErrNoOrders), errors.Is(err, order.ErrNoSalesData):
		httpx.JSONError(c, http.StatusNotFound, err.Error())
	default:
		httpx.JSONError(c, http.StatusInternalServerError, "server error")
	}
}

// placeOrder godoc
// @Summary      Place an order
// @Description  Atomically reserves stock for every line item and persists the order.
// @Accept       json
// @Produce      json
// @Param        order body order.PlaceOrderRequest true "order"
// @Success      201 {object} order.Order
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Router       /orders [post]
func placeOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.JSONError(c, http.StatusBadRequest, "invalid json")
			return
		}
		o, err := svc.Place(c.Request.Context(), req)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Order placed successfully", "order": o})
	}
}

// listOrders godoc
// @Summary  List orders with items and user summary
// @Produce  json
// @Param    user_id query string false "filter by user"
// @Param    status  query string false "filter by status"
// @Success  200 {object} map[string][]order.View
// @Failure  404 {object} map[string]string
// @Router   /orders [get]
func listOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := order.Filter{
			UserID: c.Query("user_id"),
			Status: order.Status(c.Query("status")),
		}
		views, err := svc.List(c.Request.Context(), f)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": views})
	}
}

// orderRows godoc
// @Summary  Flattened one-row-per-item order projection
// @Produce  json
// @Param    user_id query string false "filter by user"
// @Param    status  query string false "filter by status"
// @Success  200 {object} map[string][]order.Row
// @Router   /orders/rows [get]
func orderRowsHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := order.Filter{
			UserID: c.Query("user_id"),
			Status: order.Status(c.Query("status")),
		}
		rows, err := svc.Rows(c.Request.Context(), f)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": rows})
	}
}

// monthlySales godoc
// @Summary  Monthly revenue over completed orders
// @Produce  json
// @Success  200 {object} map[string][]order.MonthlySales
// @Failure  404 {object} map[string]string
// @Router   /orders/sales/monthly [get]
func monthlySalesHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sales, err := svc.MonthlySales(c.Request.Context())
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sales_data": sales})
	}
}

// getOrder godoc
// @Summary  Get one order with items and user summary
// @Produce  json
// @Param    id path string true "order id"
// @Success  200 {object} map[string]order.View
// @Failure  404 {object} map[string]string
// @Router   /orders/{id} [get]
func getOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": v})
	}
}

// updateOrderStatus godoc
// @Summary  Transition an order's status
// @Accept   json
// @Produce  json
// @Param    id   path string true "order id"
// @Param    body body order.UpdateStatusRequest true "target status"
// @Success  200 {object} map[string]order.Order
// @Failure  400 {object} map[string]string
// @Failure  404 {object} map[string]string
// @Router   /orders/{id}/status [put]
func updateOrderStatusHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.JSONError(c, http.StatusBadRequest, "invalid json")
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order status updated successfully", "order": o})
	}
}

// deleteOrder godoc
// @Summary  Delete an order
// @Description  Removes the order record. Stock is never restored by deletion.
// @Produce  json
// @Param    id path string true "order id"
// @Success  200 {object} map[string]string
// @Failure  404 {object} map[string]string
// @Router   /orders/{id} [delete]
func deleteOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully"})
	}
}

//
// ---------- product collaborator handlers ----------
//

func createProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.JSONError(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Name == "" || req.Price == "" || req.Stock < 0 {
			httpx.JSONError(c, http.StatusBadRequest, "name and price are required, stock must be non-negative")
			return
		}
		p := &product.Product{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
			Image:       req.Image,
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func getProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.JSONError(c, http.StatusNotFound, "product not found")
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func listProductsHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := product.Query{Q: c.Query("q")}
		if v, err := intQuery(c, "limit"); err == nil {
			q.Limit = v
		}
		if v, err := intQuery(c, "offset"); err == nil {
			q.Offset = v
		}
		items, err := repo.List(c.Request.Context(), q)
		if err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		c.JSON(http.StatusOK, product.ListResponse{Q: q.Q, Limit: q.Limit, Offset: q.Offset, Items: items})
	}
}

func updateProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.JSONError(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Stock != nil && *req.Stock < 0 {
			httpx.JSONError(c, http.StatusBadRequest, "stock must be non-negative")
			return
		}
		p := &product.Product{
			ID:          c.Param("id"),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Image:       req.Image,
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		if err := repo.Update(c.Request.Context(), p, req.Price != "", req.Stock != nil); err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		out, err := repo.GetByID(c.Request.Context(), p.ID)
		if err != nil {
			httpx.JSONError(c, http.StatusNotFound, "product not found")
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		if !ok {
			httpx.JSONError(c, http.StatusNotFound, "product not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
	}
}

//
// ---------- user collaborator handlers ----------
//

func createUserHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.JSONError(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Username == "" || req.Email == "" || req.Password == "" {
			httpx.JSONError(c, http.StatusBadRequest, "username, email and password are required")
			return
		}
		hash, err := user.HashPassword(req.Password)
		if err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		u := &user.User{
			ID:           uuid.NewString(),
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
		}
		if err := repo.Create(c.Request.Context(), u); err != nil {
			if errors.Is(err, user.ErrAlreadyExist) {
				httpx.JSONError(c, http.StatusConflict, "user already exists")
				return
			}
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

func getUserHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.JSONError(c, http.StatusNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func deleteUserHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.JSONError(c, http.StatusInternalServerError, "server error")
			return
		}
		if !ok {
			httpx.JSONError(c, http.StatusNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	return strconv.Atoi(c.Query(key))
}
