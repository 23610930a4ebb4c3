package liveclasses

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edupulse/live-backend/internal/middleware"
	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/pkg/response"
)

// CreateRequest is the body for POST /live-classes.
type CreateRequest struct {
	Title       string     `json:"title" binding:"required"`
	ChannelName string     `json:"channel_name"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
}

// Handler handles live class HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a live class handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /live-classes. Teacher/admin only (route guard).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	channel := req.ChannelName
	if channel == "" {
		channel = "class-" + uuid.New().String()
	}
	lc := &models.LiveClass{
		Title:       req.Title,
		HostID:      userID,
		ChannelName: channel,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if err := h.repo.Create(c.Request.Context(), lc); err != nil {
		response.Internal(c, "failed to create live class")
		return
	}
	response.Created(c, lc)
}

// List handles GET /live-classes.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), nil)
	if err != nil {
		response.Internal(c, "failed to list live classes")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /live-classes/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	lc, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load live class")
		return
	}
	if lc == nil {
		response.NotFound(c, "live class not found")
		return
	}
	response.OK(c, lc)
}

// SetRecordingVisibility handles PATCH /live-classes/:id/recording-visibility.
// Host only: marks completed recordings visible (or hidden) to enrolled students.
func (h *Handler) SetRecordingVisibility(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.repo.IsHost(c.Request.Context(), id, userID)
	if err != nil || !ok {
		response.Forbidden(c, "only the host can change recording visibility")
		return
	}

	var req struct {
		Visible bool `json:"visible"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetRecordingVisible(c.Request.Context(), id, req.Visible); err != nil {
		response.Internal(c, "failed to update visibility")
		return
	}
	response.OK(c, gin.H{"recording_visible": req.Visible})
}

// Enroll handles POST /live-classes/:id/enroll.
func (h *Handler) Enroll(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	lc, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil || lc == nil {
		response.NotFound(c, "live class not found")
		return
	}
	if err := h.repo.AddMember(c.Request.Context(), id, userID); err != nil {
		response.Internal(c, "failed to enroll")
		return
	}
	response.OK(c, gin.H{"enrolled": true})
}
