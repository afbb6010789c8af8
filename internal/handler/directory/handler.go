// Package directory serves the records around the queue: doctors, screens,
// video links, settings and complaints.
package directory

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Servicer interface {
	CreateDoctor(ctx context.Context, doctor *model.Doctor) error
	GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
	UpdateDoctor(ctx context.Context, doctor *model.Doctor) error
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
	ListDoctors(ctx context.Context, clinicNumbers ...int) ([]*model.Doctor, error)

	CreateScreen(ctx context.Context, screen *model.Screen) error
	GetScreen(ctx context.Context, id uuid.UUID) (*model.Screen, error)
	UpdateScreen(ctx context.Context, screen *model.Screen) error
	DeleteScreen(ctx context.Context, id uuid.UUID) error
	ListScreens(ctx context.Context) ([]*model.Screen, error)
	ScreenView(ctx context.Context, number int) (*model.ScreenView, error)

	CreateVideoLink(ctx context.Context, link *model.VideoLink) error
	UpdateVideoLink(ctx context.Context, link *model.VideoLink) error
	DeleteVideoLink(ctx context.Context, id uuid.UUID) error
	ListVideoLinks(ctx context.Context, activeOnly bool) ([]*model.VideoLink, error)

	Settings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error

	SubmitComplaint(ctx context.Context, complaint *model.Complaint) error
	ListComplaints(ctx context.Context, page model.Pagination) ([]*model.Complaint, int, error)
	DeleteComplaint(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	svc Servicer
}

func NewHandler(svc Servicer) *Handler {
	return &Handler{svc: svc}
}

// PublicMaxAge is how long displays may cache directory reads, in seconds.
const PublicMaxAge = 30

func (h *Handler) RegisterRoutes(admin, public *gin.RouterGroup) {
	doctors := admin.Group("/doctors")
	{
		doctors.POST("", h.CreateDoctor)
		doctors.GET("", h.ListDoctors)
		doctors.GET("/:id", h.GetDoctor)
		doctors.PUT("/:id", h.UpdateDoctor)
		doctors.DELETE("/:id", h.DeleteDoctor)
	}
	screens := admin.Group("/screens")
	{
		screens.POST("", h.CreateScreen)
		screens.GET("", h.ListScreens)
		screens.PUT("/:id", h.UpdateScreen)
		screens.DELETE("/:id", h.DeleteScreen)
	}
	videos := admin.Group("/videos")
	{
		videos.POST("", h.CreateVideoLink)
		videos.GET("", h.ListVideoLinks)
		videos.PUT("/:id", h.UpdateVideoLink)
		videos.DELETE("/:id", h.DeleteVideoLink)
	}
	admin.GET("/settings", h.GetSettings)
	admin.PUT("/settings", h.SaveSettings)
	complaints := admin.Group("/complaints")
	{
		complaints.GET("", h.ListComplaints)
		complaints.DELETE("/:id", h.DeleteComplaint)
	}

	cached := public.Group("", middleware.Cache(middleware.PublicCacheConfig(PublicMaxAge)))
	{
		cached.GET("/screens/:number", h.ScreenView)
		cached.GET("/doctors", h.PublicDoctors)
		cached.GET("/settings", h.GetSettings)
	}
	public.POST("/complaints", h.SubmitComplaint)
}

// Doctors

type doctorRequest struct {
	Name         string   `json:"name" binding:"required,max=100"`
	Specialty    string   `json:"specialty" binding:"max=100"`
	ClinicNumber int      `json:"clinicNumber" binding:"required,min=1"`
	PhotoURL     string   `json:"photoUrl" binding:"omitempty,url"`
	WorkingDays  []string `json:"workingDays"`
}

func (r doctorRequest) apply(d *model.Doctor) {
	d.Name = r.Name
	d.Specialty = r.Specialty
	d.ClinicNumber = r.ClinicNumber
	d.PhotoURL = r.PhotoURL
	d.WorkingDays = r.WorkingDays
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	var req doctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	doctor := &model.Doctor{}
	req.apply(doctor)
	if err := h.svc.CreateDoctor(c.Request.Context(), doctor); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(doctor))
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	doctor, err := h.svc.GetDoctor(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(doctor))
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req doctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	doctor, err := h.svc.GetDoctor(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	req.apply(doctor)
	if err := h.svc.UpdateDoctor(c.Request.Context(), doctor); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(doctor))
}

func (h *Handler) DeleteDoctor(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteDoctor(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("doctor deleted successfully"))
}

// ListDoctors filters by ?clinic= when given.
func (h *Handler) ListDoctors(c *gin.Context) {
	clinic, ok := handler.QueryNumber(c, "clinic")
	if !ok {
		return
	}

	var numbers []int
	if clinic > 0 {
		numbers = append(numbers, clinic)
	}
	doctors, err := h.svc.ListDoctors(c.Request.Context(), numbers...)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(doctors))
}

// PublicDoctors lists doctors for the displays; ?clinic= filters.
func (h *Handler) PublicDoctors(c *gin.Context) {
	h.ListDoctors(c)
}

// Screens

type screenRequest struct {
	Number int    `json:"number" binding:"required,min=1"`
	Name   string `json:"name" binding:"required,max=100"`
}

func (h *Handler) CreateScreen(c *gin.Context) {
	var req screenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	screen := &model.Screen{Number: req.Number, Name: req.Name}
	if err := h.svc.CreateScreen(c.Request.Context(), screen); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(screen))
}

func (h *Handler) UpdateScreen(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req screenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	screen, err := h.svc.GetScreen(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	screen.Number = req.Number
	screen.Name = req.Name
	if err := h.svc.UpdateScreen(c.Request.Context(), screen); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(screen))
}

func (h *Handler) DeleteScreen(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteScreen(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("screen deleted successfully"))
}

func (h *Handler) ListScreens(c *gin.Context) {
	screens, err := h.svc.ListScreens(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(screens))
}

// ScreenView is what a display loads when it is pointed at a screen number.
func (h *Handler) ScreenView(c *gin.Context) {
	number, ok := handler.ParseNumber(c, "number")
	if !ok {
		return
	}

	view, err := h.svc.ScreenView(c.Request.Context(), number)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(view))
}

// Video links

type videoRequest struct {
	Title     string `json:"title" binding:"required,max=200"`
	URL       string `json:"url" binding:"required,url"`
	Active    *bool  `json:"active"`
	SortOrder int    `json:"sortOrder"`
}

func (r videoRequest) link(id uuid.UUID) *model.VideoLink {
	link := &model.VideoLink{
		Title:     r.Title,
		URL:       r.URL,
		Active:    true,
		SortOrder: r.SortOrder,
	}
	link.ID = id
	if r.Active != nil {
		link.Active = *r.Active
	}
	return link
}

func (h *Handler) CreateVideoLink(c *gin.Context) {
	var req videoRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	link := req.link(uuid.Nil)
	if err := h.svc.CreateVideoLink(c.Request.Context(), link); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(link))
}

func (h *Handler) UpdateVideoLink(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req videoRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	link := req.link(id)
	if err := h.svc.UpdateVideoLink(c.Request.Context(), link); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(link))
}

func (h *Handler) DeleteVideoLink(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteVideoLink(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("video link deleted successfully"))
}

// ListVideoLinks lists every link; ?active=true keeps only the playlist.
func (h *Handler) ListVideoLinks(c *gin.Context) {
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	links, err := h.svc.ListVideoLinks(c.Request.Context(), activeOnly)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(links))
}

// Settings

type settingsRequest struct {
	CenterName    string  `json:"centerName" binding:"max=200"`
	AlertDuration int     `json:"alertDuration" binding:"gte=0,lte=60"`
	SpeechSpeed   float64 `json:"speechSpeed" binding:"gte=0,lte=3"`
	AudioPath     string  `json:"audioPath" binding:"max=500"`
	NewsTicker    string  `json:"newsTicker" binding:"max=1000"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.svc.Settings(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(settings))
}

func (h *Handler) SaveSettings(c *gin.Context) {
	var req settingsRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	settings := &model.Settings{
		CenterName:    req.CenterName,
		AlertDuration: req.AlertDuration,
		SpeechSpeed:   req.SpeechSpeed,
		AudioPath:     req.AudioPath,
		NewsTicker:    req.NewsTicker,
	}
	if settings.SpeechSpeed == 0 {
		settings.SpeechSpeed = model.DefaultSettings().SpeechSpeed
	}
	if err := h.svc.SaveSettings(c.Request.Context(), settings); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(settings))
}

// Complaints

type complaintRequest struct {
	Name         string `json:"name" binding:"max=100"`
	ClinicNumber *int   `json:"clinicNumber"`
	Text         string `json:"text" binding:"required"`
}

func (h *Handler) SubmitComplaint(c *gin.Context) {
	var req complaintRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	complaint := &model.Complaint{
		Name:         req.Name,
		ClinicNumber: req.ClinicNumber,
		Text:         req.Text,
	}
	if err := h.svc.SubmitComplaint(c.Request.Context(), complaint); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse(complaint))
}

func (h *Handler) ListComplaints(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid pagination"))
		return
	}
	page = page.Normalize()

	complaints, total, err := h.svc.ListComplaints(c.Request.Context(), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, complaints, page.Page, page.PageSize, total)
}

func (h *Handler) DeleteComplaint(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteComplaint(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("complaint deleted successfully"))
}
