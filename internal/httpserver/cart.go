package httpserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/metrics"
	"storefront/internal/session"
)

const (
	sessionHeader = "X-Cart-Session"
	sessionCookie = "cart_session"
	sessionKey    = "cartSession"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
	heartbeatInterval   = 15 * time.Second
)

// sessionMiddleware resolves the shopper's session from the header or the
// cookie, issuing a new one when neither carries a valid id.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(sessionHeader)
		if !session.Valid(id) {
			id, _ = c.Cookie(sessionCookie)
		}
		if !session.Valid(id) {
			id = session.NewID()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, id, sessionCookieMaxAge, "/", "", c.Request.TLS != nil, true)
		}
		c.Header(sessionHeader, id)
		c.Set(sessionKey, id)
		c.Next()
	}
}

type cartHandlers struct {
	sessions cartSessions
	products productService
	checkout checkoutService
	metrics  *metrics.Metrics
	logger   *zap.Logger
	stop     <-chan struct{}
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type setOpenRequest struct {
	Open *bool `json:"open" binding:"required"`
}

func (h *cartHandlers) engine(c *gin.Context) (*cart.Engine, bool) {
	e, err := h.sessions.Get(c.Request.Context(), c.GetString(sessionKey))
	if err != nil {
		h.logger.Error("cart: session lookup failed", zap.String("session", c.GetString(sessionKey)), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cart unavailable"})
		return nil, false
	}
	return e, true
}

func (h *cartHandlers) respond(c *gin.Context, e *cart.Engine) {
	c.JSON(http.StatusOK, toCartResponse(e.Snapshot(), h.checkout.Formatter()))
}

// apply runs one engine operation and answers with the resulting state.
func (h *cartHandlers) apply(op string, fn func(c *gin.Context, e *cart.Engine)) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.engine(c)
		if !ok {
			return
		}
		h.metrics.Mutation(op)
		fn(c, e)
		h.respond(c, e)
	}
}

func (h *cartHandlers) get(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	h.respond(c, e)
}

func (h *cartHandlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId required"})
		return
	}
	p, err := h.products.Get(c.Request.Context(), req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	e, ok := h.engine(c)
	if !ok {
		return
	}
	h.metrics.Mutation("add")
	e.AddItem(*p, req.Quantity)
	h.respond(c, e)
}

func (h *cartHandlers) removeItem(c *gin.Context) {
	h.apply("remove", func(c *gin.Context, e *cart.Engine) { e.RemoveItem(c.Param("productId")) })(c)
}

func (h *cartHandlers) increase(c *gin.Context) {
	h.apply("increase", func(c *gin.Context, e *cart.Engine) { e.IncreaseQuantity(c.Param("productId")) })(c)
}

func (h *cartHandlers) decrease(c *gin.Context) {
	h.apply("decrease", func(c *gin.Context, e *cart.Engine) { e.DecreaseQuantity(c.Param("productId")) })(c)
}

func (h *cartHandlers) clear(c *gin.Context) {
	h.apply("clear", func(_ *gin.Context, e *cart.Engine) { e.Clear() })(c)
}

func (h *cartHandlers) toggle(c *gin.Context) {
	h.apply("toggle", func(_ *gin.Context, e *cart.Engine) { e.ToggleOpen() })(c)
}

func (h *cartHandlers) setOpen(c *gin.Context) {
	var req setOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open required"})
		return
	}
	h.apply("set_open", func(_ *gin.Context, e *cart.Engine) { e.SetOpen(*req.Open) })(c)
}

func (h *cartHandlers) checkout(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	st := e.Snapshot()
	order, err := h.checkout.Prepare(c.Request.Context(), st.Items, st.TotalPrice)
	if err != nil {
		var stockErr *checkout.StockError
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			h.metrics.Checkout(metrics.CheckoutEmpty)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &stockErr):
			h.metrics.Checkout(metrics.CheckoutStockChanged)
			c.JSON(http.StatusConflict, gin.H{"error": "stock changed", "shortfalls": stockErr.Shortfalls})
		default:
			h.metrics.Checkout(metrics.CheckoutError)
			h.logger.Error("cart: checkout failed", zap.String("session", c.GetString(sessionKey)), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "checkout unavailable"})
		}
		return
	}
	h.metrics.Checkout(metrics.CheckoutOK)
	e.SetOpen(false)
	c.JSON(http.StatusOK, checkoutResponse{
		Message: order.Message,
		Link:    order.Link,
		Cart:    toCartResponse(e.Snapshot(), h.checkout.Formatter()),
	})
}

// events streams the cart state as server-sent events, starting with the
// current state. A slow client only sees the newest state.
func (h *cartHandlers) events(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	f := h.checkout.Formatter()

	updates := make(chan cart.State, 1)
	cancel := e.Subscribe(func(st cart.State) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	initial := e.Snapshot()
	last := initial.Version
	c.SSEvent("cart", toCartResponse(initial, f))
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-heartbeat.C:
			_, _ = io.WriteString(c.Writer, ": ping\n\n")
		case st := <-updates:
			if st.Version <= last {
				continue
			}
			last = st.Version
			c.SSEvent("cart", toCartResponse(st, f))
		}
		c.Writer.Flush()
	}
}
