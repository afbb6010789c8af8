package clinic

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/model"
	clinicService "github.com/jwalitptl/clinic-queue/internal/service/clinic"
	"github.com/jwalitptl/clinic-queue/internal/viewer"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	service clinicService.ClinicServicer
}

func NewHandler(service clinicService.ClinicServicer) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts clinic management on admin and the read-only views
// on public.
func (h *Handler) RegisterRoutes(admin, public *gin.RouterGroup) {
	clinics := admin.Group("/clinics")
	{
		clinics.POST("", h.CreateClinic)
		clinics.GET("", h.ListClinics)
		clinics.GET("/:id", h.GetClinic)
		clinics.PUT("/:id", h.UpdateClinic)
		clinics.DELETE("/:id", h.DeleteClinic)
	}
	queue := admin.Group("/queue")
	{
		queue.GET("", h.QueueStates)
		queue.POST("/reset-all", h.ResetAll)
	}

	public.GET("/clinics", h.PublicClinics)
	public.GET("/clinics/:number/state", h.PublicState)
}

type clinicRequest struct {
	Number       int    `json:"number" binding:"required,min=1"`
	Name         string `json:"name" binding:"required,max=100"`
	ScreenNumber int    `json:"screenNumber" binding:"gte=0"`
	Active       *bool  `json:"active"`
	Password     string `json:"password" binding:"omitempty,min=6,max=72"`
}

func (r clinicRequest) apply(clinic *model.Clinic) {
	clinic.Number = r.Number
	clinic.Name = r.Name
	clinic.ScreenNumber = r.ScreenNumber
	if r.Active != nil {
		clinic.Active = *r.Active
	}
}

func (h *Handler) CreateClinic(c *gin.Context) {
	var req clinicRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	clinic := &model.Clinic{Active: true}
	req.apply(clinic)
	if err := h.service.CreateClinic(c.Request.Context(), clinic, req.Password); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(clinic))
}

func (h *Handler) GetClinic(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	clinic, err := h.service.GetClinic(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(clinic))
}

// UpdateClinic keeps the password unless a new one is sent.
func (h *Handler) UpdateClinic(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req clinicRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	clinic, err := h.service.GetClinic(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	req.apply(clinic)

	if err := h.service.UpdateClinic(c.Request.Context(), clinic, req.Password); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(clinic))
}

func (h *Handler) DeleteClinic(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteClinic(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("clinic deleted successfully"))
}

func (h *Handler) ListClinics(c *gin.Context) {
	clinics, err := h.service.ListClinics(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(clinics))
}

func (h *Handler) QueueStates(c *gin.Context) {
	states, err := h.service.QueueStates(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(states))
}

type resetAllResponse struct {
	Clinics []int `json:"clinics"`
}

func (h *Handler) ResetAll(c *gin.Context) {
	numbers, err := h.service.ResetAll(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(resetAllResponse{Clinics: numbers}))
}

// PublicClinics lists active clinics without anything a caller logs in with.
func (h *Handler) PublicClinics(c *gin.Context) {
	screen, ok := handler.QueryNumber(c, "screen")
	if !ok {
		return
	}

	var (
		clinics []*model.Clinic
		err     error
	)
	if screen > 0 {
		clinics, err = h.service.ListScreenClinics(c.Request.Context(), screen)
	} else {
		clinics, err = h.service.ListClinics(c.Request.Context())
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	out := make([]model.ClinicSummary, 0, len(clinics))
	for _, cl := range clinics {
		if cl.Active {
			out = append(out, cl.Summary())
		}
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(out))
}

type stateResponse struct {
	ClinicNumber int              `json:"clinicNumber"`
	State        model.QueueState `json:"state"`
	Ticket       *viewer.Ticket   `json:"ticket,omitempty"`
}

// PublicState is the client ticket view; ?ticket= adds the waiting math.
func (h *Handler) PublicState(c *gin.Context) {
	number, ok := handler.ParseNumber(c, "number")
	if !ok {
		return
	}
	ticket, ok := handler.QueryNumber(c, "ticket")
	if !ok {
		return
	}

	st, err := h.service.QueueState(c.Request.Context(), number)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	resp := stateResponse{ClinicNumber: number, State: st}
	if ticket > 0 {
		t := viewer.NewTicket(ticket, st.Current)
		resp.Ticket = &t
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(resp))
}
