package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Servicer interface {
	Book(ctx context.Context, apt *model.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	Lookup(ctx context.Context, nationalID string) ([]*model.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, nationalID string) (*model.Appointment, error)
	List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) (*model.Appointment, error)
	BookedSlots(ctx context.Context, clinicNumber int, date string, shift model.Shift) ([]model.Slot, error)
}

type Handler struct {
	service Servicer
}

func NewHandler(service Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(admin, public *gin.RouterGroup) {
	booking := public.Group("/appointments", middleware.Cache(middleware.NoStoreConfig()))
	{
		booking.POST("", h.Book)
		booking.GET("", h.Lookup)
		booking.GET("/slots", h.BookedSlots)
		booking.POST("/:id/cancel", h.Cancel)
	}

	appointments := admin.Group("/appointments")
	{
		appointments.GET("", h.List)
		appointments.GET("/:id", h.Get)
		appointments.PUT("/:id/status", h.UpdateStatus)
	}
}

type bookRequest struct {
	PatientName  string `json:"patientName" binding:"required,max=100"`
	NationalID   string `json:"nationalId" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	Email        string `json:"email" binding:"omitempty,email"`
	ClinicNumber int    `json:"clinicNumber" binding:"required,min=1"`
	DoctorID     string `json:"doctorId" binding:"omitempty,uuid"`
	Date         string `json:"date" binding:"required"`
	Time         string `json:"time" binding:"required"`
	Shift        string `json:"shift" binding:"required,oneof=morning evening"`
	VisitReason  string `json:"visitReason" binding:"max=500"`
}

func (h *Handler) Book(c *gin.Context) {
	var req bookRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt := &model.Appointment{
		PatientName:  req.PatientName,
		NationalID:   req.NationalID,
		Phone:        req.Phone,
		Email:        req.Email,
		ClinicNumber: req.ClinicNumber,
		Date:         req.Date,
		Time:         req.Time,
		Shift:        model.Shift(req.Shift),
		VisitReason:  req.VisitReason,
	}
	if req.DoctorID != "" {
		id := uuid.MustParse(req.DoctorID)
		apt.DoctorID = &id
	}

	if err := h.service.Book(c.Request.Context(), apt); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(apt))
}

// Lookup is how a patient finds their bookings: ?nationalId=.
func (h *Handler) Lookup(c *gin.Context) {
	apts, err := h.service.Lookup(c.Request.Context(), c.Query("nationalId"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(apts))
}

func (h *Handler) BookedSlots(c *gin.Context) {
	clinic, ok := handler.QueryNumber(c, "clinic")
	if !ok {
		return
	}

	slots, err := h.service.BookedSlots(c.Request.Context(), clinic, c.Query("date"), model.Shift(c.Query("shift")))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(slots))
}

type cancelRequest struct {
	NationalID string `json:"nationalId" binding:"required"`
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), id, req.NationalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(apt))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(apt))
}

type listQuery struct {
	Date   string `form:"date"`
	Clinic int    `form:"clinic" binding:"gte=0"`
	Status string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid filters"))
		return
	}

	apts, err := h.service.List(c.Request.Context(), &model.AppointmentFilters{
		Date:         q.Date,
		ClinicNumber: q.Clinic,
		Status:       model.AppointmentStatus(q.Status),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(apts))
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed cancelled"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.UpdateStatus(c.Request.Context(), id, model.AppointmentStatus(req.Status))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(apt))
}
