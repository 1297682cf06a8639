package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"

	_ "github.com/tiendago/orders-core/docs"
	"github.com/tiendago/orders-core/internal/config"
	"github.com/tiendago/orders-core/internal/httpx"
	"github.com/tiendago/orders-core/internal/order"
	"github.com/tiendago/orders-core/internal/product"
	"github.com/tiendago/orders-core/internal/user"
)

// userDirectory adapts the user store to the order service's collaborator
// interface.
type userDirectory struct{ repo user.Repository }

func (d userDirectory) Exists(ctx context.Context, id string) (bool, error) {
	return d.repo.Exists(ctx, id)
}

func (d userDirectory) Summary(ctx context.Context, id string) (order.UserSummary, error) {
	u, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return order.UserSummary{}, err
	}
	return order.UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}, nil
}

func newRouter(svc *order.Service, products product.Repository, users user.Repository) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	r.POST("/orders", placeOrderHandler(svc))
	r.GET("/orders", listOrdersHandler(svc))
	r.GET("/orders/rows", orderRowsHandler(svc))
	r.GET("/orders/sales/monthly", monthlySalesHandler(svc))
	r.GET("/orders/:id", getOrderHandler(svc))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(svc))
	r.DELETE("/orders/:id", deleteOrderHandler(svc))

	r.POST("/products", createProductHandler(products))
	r.GET("/products", listProductsHandler(products))
	r.GET("/products/:id", getProductHandler(products))
	r.PUT("/products/:id", updateProductHandler(products))
	r.DELETE("/products/:id", deleteProductHandler(products))

	r.POST("/users", createUserHandler(users))
	r.GET("/users/:id", getUserHandler(users))
	r.DELETE("/users/:id", deleteUserHandler(users))

	return r
}

// @title        orders-core API
// @version      1.0
// @description  Order placement against a shared finite inventory.
// @BasePath     /
func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[shop-api] postgres: %v", err)
	}
	defer pool.Close()

	orderRepo := order.NewPGRepo(pool)
	productRepo := product.NewPGRepo(pool)
	userRepo := user.NewPGRepo(pool)

	svc := order.NewService(orderRepo, userDirectory{repo: userRepo}, order.ServiceConfig{
		RestockOnCancel: cfg.RestockOnCancel,
		MaxRetries:      cfg.PlaceMaxRetries,
		TxTimeout:       cfg.PlaceTimeout,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(svc, productRepo, userRepo),
	}

	go func() {
		log.Printf("[shop-api] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[shop-api] serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[shop-api] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[shop-api] shutdown: %v", err)
	}
}
