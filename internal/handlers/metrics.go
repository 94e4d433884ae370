package handlers

import (
	"net/http"

	"eyetrack-go/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MetricsHandler struct {
	log   *zap.Logger
	store ResultsStore
}

func NewMetricsHandler(log *zap.Logger, store ResultsStore) *MetricsHandler {
	return &MetricsHandler{log: log, store: store}
}

// Summary calculates the overview metrics of one stored session.
func (h *MetricsHandler) Summary(c *gin.Context) {
	id := c.Param("id")
	session, ok := loadSession(c, h.log, h.store, id)
	if !ok {
		return
	}

	steps, err := h.store.GetSessionResults(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get session results", id, err)
		return
	}
	attempts, err := h.store.GetValidationAttempts(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get validation attempts", id, err)
		return
	}

	c.JSON(http.StatusOK, metrics.Summarize(*session, steps, attempts))
}
