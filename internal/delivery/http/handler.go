package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/rs/zerolog"
)

// PriceFinder is the engine surface the handler needs
type PriceFinder interface {
	FindBestPrice(ctx context.Context, req domain.PriceRequest) *domain.PriceResult
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	engine PriceFinder
	log    zerolog.Logger
}

// NewHandler creates a new HTTP handler; engine may be nil in tests
func NewHandler(engine PriceFinder, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    logger.With().Str("component", "http").Logger(),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricelens-backend",
		"version": "1.0.0",
	})
}

// SearchPrice handles replacement-price lookups.
// The engine always answers, so every well-formed request gets a 200.
func (h *Handler) SearchPrice(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "price engine not configured",
		})
		return
	}

	var req domain.PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log := observability.WithRequest(c.Request.Context(), h.log)
		log.Debug().Err(err).Msg("invalid price request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": bindError(err).Error(),
		})
		return
	}

	result := h.engine.FindBestPrice(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}

func bindError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "'Query'") {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, msg)
}
