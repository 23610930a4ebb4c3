package presence

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupulse/live-backend/internal/middleware"
	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/pkg/response"
)

// Handler exposes the roster endpoints used by clients in fallback mode.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a presence handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Join handles POST /rooms/:room/join. Doubles as the heartbeat: clients in
// fallback mode re-post periodically to stay in the roster.
func (h *Handler) Join(c *gin.Context) {
	room := c.Param("room")
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	email, _ := c.MustGet(middleware.ContextUserEmail).(string)

	identity := email
	if identity == "" {
		identity = userID.String()
	}
	// Touch keeps the original id and join time when the identity is
	// already in the roster, so repeat heartbeats do not churn the entry.
	p, err := h.repo.Touch(c.Request.Context(), room, models.Participant{
		ID:       uuid.New().String(),
		Identity: identity,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("presence join failed", zap.String("room", room), zap.Error(err))
		response.Internal(c, "failed to join room")
		return
	}
	response.OK(c, p)
}

// Leave handles POST /rooms/:room/leave.
func (h *Handler) Leave(c *gin.Context) {
	room := c.Param("room")
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	email, _ := c.MustGet(middleware.ContextUserEmail).(string)

	identity := email
	if identity == "" {
		identity = userID.String()
	}
	if err := h.repo.Remove(c.Request.Context(), room, identity); err != nil {
		h.logger.Error("presence leave failed", zap.String("room", room), zap.Error(err))
		response.Internal(c, "failed to leave room")
		return
	}
	response.OK(c, gin.H{"left": true})
}

// Participants handles GET /rooms/:room/participants.
// Response shape: { items: [{ id, identity, joined_at }] }.
func (h *Handler) Participants(c *gin.Context) {
	room := c.Param("room")
	list, err := h.repo.List(c.Request.Context(), room)
	if err != nil {
		h.logger.Error("roster list failed", zap.String("room", room), zap.Error(err))
		response.Internal(c, "failed to list participants")
		return
	}
	if list == nil {
		list = []models.Participant{}
	}
	response.OK(c, gin.H{"items": list})
}
