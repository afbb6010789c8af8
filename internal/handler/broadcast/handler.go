package broadcast

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Servicer interface {
	Announce(ctx context.Context, a model.Announcement) (model.Announcement, error)
	Control(ctx context.Context, action model.VideoAction) (model.VideoControl, error)
}

type Handler struct {
	service Servicer
}

func NewHandler(service Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.POST("/announcements", h.Announce)
	admin.POST("/video/control", h.VideoControl)
}

type announceRequest struct {
	Type         string `json:"type" binding:"required,oneof=emergency text audio doctorNotification"`
	Message      string `json:"message" binding:"max=500"`
	AudioData    string `json:"audioData"`
	ClinicNumber int    `json:"clinicNumber" binding:"gte=0"`
	ClinicName   string `json:"clinicName" binding:"max=100"`
}

func (h *Handler) Announce(c *gin.Context) {
	var req announceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	a, err := h.service.Announce(c.Request.Context(), model.Announcement{
		Type:         model.AnnouncementType(req.Type),
		Message:      req.Message,
		AudioData:    req.AudioData,
		ClinicNumber: req.ClinicNumber,
		ClinicName:   req.ClinicName,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	// the clip is not echoed back
	a.AudioData = ""
	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(a))
}

type videoRequest struct {
	Action string `json:"action" binding:"required,oneof=play pause stop next"`
}

func (h *Handler) VideoControl(c *gin.Context) {
	var req videoRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	v, err := h.service.Control(c.Request.Context(), model.VideoAction(req.Action))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(v))
}
