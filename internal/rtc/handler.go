package rtc

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupulse/live-backend/config"
	"github.com/edupulse/live-backend/internal/liveclasses"
	"github.com/edupulse/live-backend/internal/middleware"
	"github.com/edupulse/live-backend/pkg/response"
)

// ErrMsgNotConfigured is the error body clients match to skip retries and go
// straight to the polled roster fallback.
const ErrMsgNotConfigured = "RTC provider not configured"

// Handler issues room credentials for live classes.
type Handler struct {
	classRepo *liveclasses.Repository
	tokens    *TokenService
	cfg       config.RTCConfig
	logger    *zap.Logger
}

// NewHandler creates an RTC token handler.
func NewHandler(classRepo *liveclasses.Repository, cfg config.RTCConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		classRepo: classRepo,
		tokens:    NewTokenService(cfg.APIKey, cfg.APISecret, cfg.TokenTTLHours),
		cfg:       cfg,
		logger:    logger,
	}
}

// GetToken handles GET /live-classes/:id/rtc-token?identity=<id>.
// Returns { endpoint, credential } on success. When the provider is not
// configured the error body carries ErrMsgNotConfigured, which clients must
// treat as permanent (fallback, no retries).
func (h *Handler) GetToken(c *gin.Context) {
	if !h.cfg.Configured() {
		response.ServiceUnavailable(c, ErrMsgNotConfigured)
		return
	}
	classID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	lc, err := h.classRepo.GetByID(c.Request.Context(), classID)
	if err != nil {
		response.Internal(c, "failed to load live class")
		return
	}
	if lc == nil {
		response.NotFound(c, "live class not found")
		return
	}

	identity := c.Query("identity")
	if identity == "" {
		identity = userID.String()
	}

	isHost := lc.HostID == userID
	if !isHost {
		member, err := h.classRepo.IsMember(c.Request.Context(), classID, userID)
		if err != nil || !member {
			response.Forbidden(c, "not enrolled in this live class")
			return
		}
	}

	credential, err := h.tokens.Mint(lc.ChannelName, identity, isHost)
	if err != nil {
		h.logger.Error("room token mint failed", zap.Error(err), zap.String("live_class_id", classID.String()))
		response.Internal(c, "failed to generate room token")
		return
	}
	response.OK(c, gin.H{
		"endpoint":   h.cfg.WSEndpoint,
		"credential": credential,
	})
}
