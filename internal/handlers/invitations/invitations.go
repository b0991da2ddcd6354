// Package invitations serves the resident and visitor endpoints of the
// invitation lifecycle.
package invitations

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charleshuang3/visitorlink/internal/handlers/firewall"
	"github.com/charleshuang3/visitorlink/internal/handlers/residentauth"
	"github.com/charleshuang3/visitorlink/internal/invitation"
	"github.com/charleshuang3/visitorlink/internal/logging"
	"github.com/charleshuang3/visitorlink/internal/models"
	"github.com/charleshuang3/visitorlink/internal/storage"
)

var (
	logger = logging.Component("invitations")
)

const (
	defaultMaxFailedAttempts = 10
)

type Config struct {
	// MaxFailedAttempts is how many unknown or spent tokens a client may
	// try in AttemptWindow before redemption answers 429.
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	AttemptWindow     time.Duration `yaml:"attempt_window"`
}

type Handlers struct {
	service  *invitation.Service
	verifier residentauth.Verifier
	attempts *storage.AttemptStorage

	maxFailedAttempts int
}

func New(cfg *Config, service *invitation.Service, verifier residentauth.Verifier) *Handlers {
	maxFailed := cfg.MaxFailedAttempts
	if maxFailed <= 0 {
		maxFailed = defaultMaxFailedAttempts
	}

	return &Handlers{
		service:           service,
		verifier:          verifier,
		attempts:          storage.NewAttemptStorage(cfg.AttemptWindow),
		maxFailedAttempts: maxFailed,
	}
}

func (h *Handlers) RegisterHandlers(rg *gin.RouterGroup) {
	// ---- Resident ----
	residentRoutes := rg.Group("/invitations", residentauth.Middleware(h.verifier))
	{
		residentRoutes.POST("", h.handleCreate)
		residentRoutes.GET("", h.handleList)
	}

	// ---- Visitor, the token is the credential ----
	visitorRoutes := rg.Group("/visitante")
	{
		visitorRoutes.GET("/:token", h.handleLookup)
		visitorRoutes.POST("/:token/redeem", h.handleRedeem)
	}

	rg.GET("/health", h.handleHealth)
}

type invitationResponse struct {
	Token        string                 `json:"token"`
	URL          string                 `json:"url"`
	VisitorName  string                 `json:"visitor_name"`
	ValidityDays int                    `json:"validity_days"`
	CreatedAt    time.Time              `json:"created_at"`
	ExpiresAt    time.Time              `json:"expires_at"`
	UsedAt       *time.Time             `json:"used_at,omitempty"`
	State        models.InvitationState `json:"state"`
}

func (h *Handlers) toResponse(inv *models.Invitation) *invitationResponse {
	return &invitationResponse{
		Token:        inv.Token,
		URL:          h.service.URL(inv.Token),
		VisitorName:  inv.VisitorName,
		ValidityDays: inv.ValidityDays,
		CreatedAt:    inv.CreatedAt,
		ExpiresAt:    inv.ExpiresAt,
		UsedAt:       inv.UsedAt,
		State:        h.service.State(inv),
	}
}

// visitorResponse leaves out the issuer, a visitor only needs to know if
// the link still works.
type visitorResponse struct {
	VisitorName string                 `json:"visitor_name"`
	ExpiresAt   time.Time              `json:"expires_at"`
	State       models.InvitationState `json:"state"`
}

type handleCreateParams struct {
	VisitorName  string `json:"visitor_name" binding:"required"`
	ValidityDays int    `json:"validity_days" binding:"required"`
}

type createResponse struct {
	*invitationResponse
	ValidityLabel string `json:"validity_label"`
	ShareText     string `json:"share_text"`
}

func (h *Handlers) handleCreate(c *gin.Context) {
	params := &handleCreateParams{}
	if err := c.ShouldBindJSON(params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	residentID := residentauth.ResidentID(c)
	inv, err := h.service.Create(c.Request.Context(), residentID, params.VisitorName, params.ValidityDays)
	if err != nil {
		h.responseError(c, err)
		return
	}

	logger.Info().
		Str("resident", residentID).
		Int("validity_days", inv.ValidityDays).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation created")

	resp := h.toResponse(inv)
	c.JSON(http.StatusCreated, &createResponse{
		invitationResponse: resp,
		ValidityLabel:      invitation.ValidityLabel(inv.ValidityDays),
		ShareText:          invitation.ShareText(resp.URL),
	})
}

func (h *Handlers) handleList(c *gin.Context) {
	list, err := h.service.ListByIssuer(c.Request.Context(), residentauth.ResidentID(c))
	if err != nil {
		h.responseError(c, err)
		return
	}

	resp := make([]*invitationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, h.toResponse(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"invitations": resp})
}

func (h *Handlers) handleLookup(c *gin.Context) {
	if h.throttled(c) {
		return
	}

	inv, err := h.service.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.responseError(c, err)
		return
	}

	c.JSON(http.StatusOK, &visitorResponse{
		VisitorName: inv.VisitorName,
		ExpiresAt:   inv.ExpiresAt,
		State:       h.service.State(inv),
	})
}

func (h *Handlers) handleRedeem(c *gin.Context) {
	if h.throttled(c) {
		return
	}

	inv, err := h.service.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.responseError(c, err)
		return
	}

	// the token is a door credential, never log it.
	logger.Info().
		Str("resident", inv.IssuerID).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation redeemed")
	c.JSON(http.StatusOK, &visitorResponse{
		VisitorName: inv.VisitorName,
		ExpiresAt:   inv.ExpiresAt,
		State:       models.StateRedeemed,
	})
}

func (h *Handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handlers) throttled(c *gin.Context) bool {
	if h.attempts.Get(c.ClientIP()) < h.maxFailedAttempts {
		return false
	}
	firewall.Flag(c, "too many failed attempts")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts"})
	return true
}

func (h *Handlers) responseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, invitation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, invitation.ErrNotFound):
		h.attempts.Incr(c.ClientIP())
		firewall.Flag(c, "unknown token")
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
	case errors.Is(err, invitation.ErrAlreadyUsed):
		h.attempts.Incr(c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Invitation already used"})
	case errors.Is(err, invitation.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Invitation expired"})
	case errors.Is(err, invitation.ErrDuplicateToken):
		logger.Error().Err(err).Msg("Token collisions exhausted retries")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Please try again"})
	case errors.Is(err, invitation.ErrStoreUnavailable):
		logger.Error().Err(err).Msg("Invitation store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Please try again"})
	default:
		logger.Error().Err(err).Msg("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
