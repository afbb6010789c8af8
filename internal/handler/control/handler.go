// Package control serves the caller control panel. Every request rebuilds the
// caller session from the clinic's current state, so two panels on one clinic
// behave like two sessions: the last write wins.
package control

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/caller"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	svc caller.Servicer
}

func NewHandler(svc caller.Servicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authMw *middleware.AuthMiddleware) {
	control := r.Group("/control", authMw.Protect(auth.RoleCaller)...)
	{
		control.GET("/state", h.State)
		control.POST("/next", h.Next)
		control.POST("/previous", h.Previous)
		control.POST("/repeat", h.Repeat)
		control.POST("/call", h.Call)
		control.POST("/call-by-name", h.CallByName)
		control.POST("/skip", h.Skip)
		control.POST("/transfer", h.Transfer)
		control.POST("/pause", h.Pause)
		control.POST("/resume", h.Resume)
		control.POST("/reset", h.Reset)
		control.POST("/emergency", h.Emergency)
		control.POST("/notify-doctor", h.NotifyDoctor)
	}
}

// ActionResponse is what every queue action returns. Event is absent for
// actions that only write state.
type ActionResponse struct {
	ClinicNumber int              `json:"clinicNumber"`
	State        model.QueueState `json:"state"`
	Event        *model.CallEvent `json:"event,omitempty"`
}

// RespondWithError maps caller errors onto HTTP statuses.
func RespondWithError(c *gin.Context, err error) {
	var verr *caller.ValidationError
	var terr *caller.TransientWriteError
	switch {
	case errors.As(err, &verr):
		err = apperrors.BadRequest(verr.Error(), err)
	case errors.Is(err, caller.ErrAuthFailed):
		err = apperrors.Unauthorized(caller.ErrAuthFailed.Error(), err)
	case errors.Is(err, caller.ErrPaused):
		err = apperrors.Conflict(caller.ErrPaused.Error(), err)
	case errors.As(err, &terr):
		err = apperrors.Unavailable(terr.Error(), err)
	}
	httputil.RespondWithError(c, err)
}

func (h *Handler) session(c *gin.Context) (*caller.Session, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse("missing token"))
		return nil, false
	}
	sess, err := h.svc.Restore(c.Request.Context(), claims.ClinicNumber)
	if err != nil {
		RespondWithError(c, err)
		return nil, false
	}
	return sess, true
}

func respond(c *gin.Context, sess *caller.Session, ev *model.CallEvent) {
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(ActionResponse{
		ClinicNumber: sess.Identity().ClinicNumber,
		State:        sess.State(),
		Event:        ev,
	}))
}

func (h *Handler) State(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	respond(c, sess, nil)
}

func (h *Handler) Next(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	_, ev, err := sess.Advance(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

func (h *Handler) Previous(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	_, ev, err := sess.Rewind(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

func (h *Handler) Repeat(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ev, err := sess.Repeat(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

type callRequest struct {
	Number int `json:"number" binding:"required,min=1"`
}

func (h *Handler) Call(c *gin.Context) {
	var req callRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	_, ev, err := sess.CallSpecific(c.Request.Context(), req.Number)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

type callByNameRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (h *Handler) CallByName(c *gin.Context) {
	var req callByNameRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ev, err := sess.CallByName(c.Request.Context(), req.Name)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

func (h *Handler) Skip(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ev, err := sess.Skip(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

type transferRequest struct {
	ClientNumber int `json:"clientNumber" binding:"required,min=1"`
	TargetClinic int `json:"targetClinic" binding:"required,min=1"`
}

func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ev, err := sess.Transfer(c.Request.Context(), req.ClientNumber, req.TargetClinic)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, ev)
}

func (h *Handler) Pause(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := sess.Pause(c.Request.Context()); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, nil)
}

func (h *Handler) Resume(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := sess.Resume(c.Request.Context()); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, nil)
}

func (h *Handler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := sess.Reset(c.Request.Context()); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, sess, nil)
}

type messageRequest struct {
	Message string `json:"message" binding:"required,max=500"`
}

func (h *Handler) Emergency(c *gin.Context) {
	h.announce(c, (*caller.Session).Emergency)
}

func (h *Handler) NotifyDoctor(c *gin.Context) {
	h.announce(c, (*caller.Session).NotifyDoctor)
}

func (h *Handler) announce(c *gin.Context, send func(*caller.Session, context.Context, string) (model.Announcement, error)) {
	var req messageRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	a, err := send(sess, c.Request.Context(), req.Message)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(a))
}
