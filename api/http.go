// Package api is the HTTP surface the terminal UIs talk to. It binds and
// forwards; every domain decision lives in the repositories and the sync
// engine. Responses reuse the success/data/error envelope the rest of the
// system speaks.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/beautystore/beautypos/config"
	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/logging"
	"github.com/beautystore/beautypos/repository"
	"github.com/beautystore/beautypos/sync"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Server wires the repositories and the sync engine to HTTP routes.
type Server struct {
	engine   *sync.Engine
	products *repository.Products
	sales    *repository.Sales
	cfg      config.Config
	logger   *logging.Logger
	router   *gin.Engine
}

// NewServer builds the router. gin runs in release mode; the access-log
// concern belongs to the structured logger, not gin's default writer.
func NewServer(engine *sync.Engine, products *repository.Products, sales *repository.Sales, cfg config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:   engine,
		products: products,
		sales:    sales,
		cfg:      cfg,
		logger:   logging.WithComponent(logging.Component("api")),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/products", s.listProducts)
		apiGroup.POST("/products", s.createProduct)
		apiGroup.GET("/products/:id", s.getProduct)
		apiGroup.PUT("/products/:id", s.updateProduct)
		apiGroup.DELETE("/products/:id", s.deleteProduct)
		apiGroup.POST("/products/:id/stock", s.adjustStock)

		apiGroup.GET("/pricing/quote", s.priceQuote)

		apiGroup.GET("/sales", s.listSales)
		apiGroup.POST("/sales", s.createSale)
		apiGroup.GET("/sales/:id", s.getSale)
		apiGroup.POST("/sales/:id/cancel", s.cancelSale)

		apiGroup.GET("/stock/movements", s.listMovements)

		apiGroup.GET("/sync/status", s.syncStatus)
		apiGroup.POST("/sync/now", s.syncNow)
		apiGroup.POST("/sync/pull", s.syncPull)
		apiGroup.POST("/sync/connectivity", s.setConnectivity)
	}

	s.router = router
	return s
}

// Router exposes the handler for serving and for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch posErrors.KindOf(err) {
	case posErrors.KindValidation:
		status = http.StatusBadRequest
	case posErrors.KindNotFound:
		status = http.StatusNotFound
	case posErrors.KindNetwork:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, envelope{Success: false, Error: err.Error()})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid request body: " + err.Error()})
}

func (s *Server) listProducts(c *gin.Context) {
	filter := repository.ProductFilter{
		Category:     c.Query("category"),
		LowStockOnly: c.Query("lowStock") == "true",
		Search:       c.Query("search"),
	}
	products, err := s.products.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, products)
}

func (s *Server) createProduct(c *gin.Context) {
	var draft repository.ProductDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		bindError(c, err)
		return
	}
	product, err := s.products.Create(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

func (s *Server) getProduct(c *gin.Context) {
	product, err := s.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (s *Server) updateProduct(c *gin.Context) {
	var patch repository.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	product, err := s.products.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.products.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

type stockAdjustment struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (s *Server) adjustStock(c *gin.Context) {
	var body stockAdjustment
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	product, err := s.products.AdjustStock(c.Request.Context(), c.Param("id"), body.Delta, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (s *Server) priceQuote(c *gin.Context) {
	cost, err := decimal.NewFromString(c.Query("cost"))
	if err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid cost: " + err.Error()})
		return
	}
	quote, err := repository.SuggestPrice(cost, s.cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, quote)
}

func (s *Server) listSales(c *gin.Context) {
	filter := repository.SaleFilter{Status: domain.SaleStatus(c.Query("status"))}

	var err error
	if filter.From, err = timeQuery(c, "from"); err != nil {
		bindError(c, err)
		return
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		bindError(c, err)
		return
	}

	sales, err := s.sales.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sales)
}

func (s *Server) createSale(c *gin.Context) {
	var draft repository.SaleDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		bindError(c, err)
		return
	}
	sale, err := s.sales.Create(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, sale)
}

func (s *Server) getSale(c *gin.Context) {
	sale, err := s.sales.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sale)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelSale(c *gin.Context) {
	var body cancelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	sale, err := s.sales.Cancel(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sale)
}

func (s *Server) listMovements(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid limit: " + err.Error()})
			return
		}
		limit = parsed
	}
	movements, err := s.products.Movements(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, movements)
}

func (s *Server) syncStatus(c *gin.Context) {
	status, err := s.engine.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

func (s *Server) syncNow(c *gin.Context) {
	result := s.engine.SyncNow(c.Request.Context())
	respond(c, http.StatusOK, syncResultView(result))
}

func (s *Server) syncPull(c *gin.Context) {
	result, err := s.engine.LoadFromCloud(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, syncResultView(result))
}

type connectivityChange struct {
	Online bool `json:"online"`
}

func (s *Server) setConnectivity(c *gin.Context) {
	var body connectivityChange
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	s.engine.SetConnectivity(body.Online)
	respond(c, http.StatusOK, gin.H{"state": s.engine.State()})
}

func syncResultView(result *sync.Result) gin.H {
	view := gin.H{
		"replayed":       result.Replayed,
		"failed":         result.Failed,
		"pulledProducts": result.PulledProducts,
		"pulledSales":    result.PulledSales,
		"durationMs":     result.Duration.Milliseconds(),
	}
	messages := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		messages = append(messages, err.Error())
	}
	view["errors"] = messages
	return view
}

func timeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// Serve runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
