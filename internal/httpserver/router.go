package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	productsvc "storefront/internal/service/product"
)

type productService interface {
	List(ctx context.Context, category string) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, in productsvc.Input) (*domain.Product, error)
	Update(ctx context.Context, id string, in productsvc.Input) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type cartSessions interface {
	Get(ctx context.Context, id string) (*cart.Engine, error)
}

type checkoutService interface {
	Prepare(ctx context.Context, items []domain.CartLine, total decimal.Decimal) (*checkout.Order, error)
	Formatter() *checkout.Formatter
}

// AdminAuth holds the credentials for the catalog admin routes. An empty
// PasswordHash leaves the admin routes unregistered.
type AdminAuth struct {
	User         string
	PasswordHash string
}

// Deps are the collaborators the router needs.
type Deps struct {
	ProductSvc  productService
	Sessions    cartSessions
	Checkout    checkoutService
	Metrics     *metrics.Metrics
	Admin       AdminAuth
	CORSOrigins []string

	// streamsDone ends open event streams; set by New.
	streamsDone <-chan struct{}
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if deps.ProductSvc == nil || deps.Sessions == nil || deps.Checkout == nil {
		return nil, errors.New("httpserver: product service, sessions and checkout are required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", sessionHeader},
			ExposeHeaders:    []string{sessionHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/products", listProductsHandler(deps.ProductSvc))
	router.GET("/products/:id", getProductHandler(deps.ProductSvc))
	router.GET("/categories", listCategoriesHandler(deps.ProductSvc))

	if deps.Admin.PasswordHash != "" {
		admin := router.Group("/admin", adminAuth(deps.Admin))
		admin.POST("/products", createProductHandler(deps.ProductSvc))
		admin.PUT("/products/:id", updateProductHandler(deps.ProductSvc))
		admin.DELETE("/products/:id", deleteProductHandler(deps.ProductSvc))
	} else {
		logger.Warn("http: admin routes disabled, no password hash configured")
	}

	h := &cartHandlers{
		sessions: deps.Sessions,
		products: deps.ProductSvc,
		checkout: deps.Checkout,
		metrics:  deps.Metrics,
		logger:   logger,
		stop:     deps.streamsDone,
	}
	carts := router.Group("/cart", sessionMiddleware())
	carts.GET("", h.get)
	carts.DELETE("", h.clear)
	carts.POST("/items", h.addItem)
	carts.DELETE("/items/:productId", h.removeItem)
	carts.POST("/items/:productId/increase", h.increase)
	carts.POST("/items/:productId/decrease", h.decrease)
	carts.PUT("/open", h.setOpen)
	carts.POST("/toggle", h.toggle)
	carts.GET("/events", h.events)
	carts.POST("/checkout", h.checkout)

	return router, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", strings.ToUpper(c.Request.Method)),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if id := c.GetString(sessionKey); id != "" {
			fields = append(fields, zap.String("session", id))
		}

		switch {
		case status >= 500:
			logger.Error("http request", fields...)
		case status >= 400:
			logger.Warn("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidProduct):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
