package stats

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	statsService "github.com/jwalitptl/clinic-queue/internal/service/stats"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Servicer interface {
	Daily(ctx context.Context, date string) (*statsService.DailyReport, error)
}

type Handler struct {
	service Servicer
}

func NewHandler(service Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/stats", h.Daily)
}

// Daily reports per-clinic call totals for ?date= (today when absent).
func (h *Handler) Daily(c *gin.Context) {
	report, err := h.service.Daily(c.Request.Context(), c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(report))
}
