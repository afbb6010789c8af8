package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/handler/control"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/caller"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

// Handler issues caller and admin tokens.
type Handler struct {
	callers caller.Servicer
	tokens  auth.TokenManager
	hasher  security.PasswordHasher
	admin   config.AdminConfig
	logger  zerolog.Logger
}

func NewHandler(callers caller.Servicer, tokens auth.TokenManager, hasher security.PasswordHasher, admin config.AdminConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		callers: callers,
		tokens:  tokens,
		hasher:  hasher,
		admin:   admin,
		logger:  logger.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes mounts the login endpoints. limit guards them against
// password guessing.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limit gin.HandlerFunc) {
	r.POST("/control/login", limit, h.CallerLogin)
	r.POST("/admin/login", limit, h.AdminLogin)
}

type callerLoginRequest struct {
	ClinicNumber int    `json:"clinicNumber" binding:"required,min=1"`
	Password     string `json:"password" binding:"required"`
}

type CallerLoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt int64            `json:"expiresAt"`
	Clinic    caller.Identity  `json:"clinic"`
	State     model.QueueState `json:"state"`
}

func (h *Handler) CallerLogin(c *gin.Context) {
	var req callerLoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id, err := h.callers.Authenticate(ctx, req.ClinicNumber, req.Password)
	if err != nil {
		control.RespondWithError(c, err)
		return
	}

	sess, err := h.callers.Session(ctx, *id)
	if err != nil {
		control.RespondWithError(c, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(auth.RoleCaller, id.ClinicNumber)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	h.logger.Info().Int("clinic", id.ClinicNumber).Msg("caller logged in")
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(CallerLoginResponse{
		Token:     token,
		ExpiresAt: model.Millis(expiresAt),
		Clinic:    *id,
		State:     sess.State(),
	}))
}

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

var errAdminDisabled = errors.New("admin password is not configured")

func (h *Handler) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.checkAdmin(req.Username, req.Password); err != nil {
		h.logger.Warn().Err(err).Str("username", req.Username).Msg("admin login rejected")
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse("invalid username or password"))
		return
	}

	token, expiresAt, err := h.tokens.Issue(auth.RoleAdmin, 0)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	h.logger.Info().Str("username", req.Username).Msg("admin logged in")
	c.JSON(http.StatusOK, httputil.NewSuccessResponse(AdminLoginResponse{
		Token:     token,
		ExpiresAt: model.Millis(expiresAt),
	}))
}

func (h *Handler) checkAdmin(username, password string) error {
	if h.admin.PasswordHash == "" {
		return errAdminDisabled
	}
	hashErr := h.hasher.Compare(h.admin.PasswordHash, password)
	if subtle.ConstantTimeCompare([]byte(username), []byte(h.admin.Username)) != 1 {
		return errors.New("unknown username")
	}
	return hashErr
}
