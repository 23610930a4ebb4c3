package recording

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupulse/live-backend/internal/liveclasses"
	"github.com/edupulse/live-backend/internal/middleware"
	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/pkg/response"
	"github.com/edupulse/live-backend/pkg/storage"
)

// StopRequest is the body for POST /live-classes/:id/recording/stop.
type StopRequest struct {
	SID        string `json:"sid" binding:"required"`
	ResourceID string `json:"resource_id" binding:"required"`
}

// Handler handles recording HTTP endpoints. Orchestrator may be nil when
// provider credentials are not configured; start/stop then return 503.
type Handler struct {
	orchestrator *Orchestrator
	store        Store
	classes      *liveclasses.Repository
	s3           *storage.S3
	logger       *zap.Logger
}

func NewHandler(orchestrator *Orchestrator, store Store, classes *liveclasses.Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		classes:      classes,
		s3:           s3,
		logger:       logger,
	}
}

// Start handles POST /live-classes/:id/recording/start. Host only.
func (h *Handler) Start(c *gin.Context) {
	if h.orchestrator == nil {
		response.ServiceUnavailable(c, "recording provider not configured")
		return
	}
	lc, userID, ok := h.hostClass(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.StartRecording(c.Request.Context(), lc.ID, lc.ChannelName, userID.String())
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordingInProgress):
			response.Conflict(c, "a recording is already in progress for this live class")
		case errors.Is(err, ErrAcquire), errors.Is(err, ErrStart):
			h.logger.Error("recording start failed", zap.String("live_class_id", lc.ID.String()), zap.Error(err))
			response.BadGateway(c, "recording provider rejected the request")
		default:
			response.Internal(c, "failed to start recording")
		}
		return
	}
	response.OK(c, gin.H{
		"sid":         result.SID,
		"resource_id": result.ResourceID,
		"status":      models.RecordingStatusProcessing,
	})
}

// Stop handles POST /live-classes/:id/recording/stop. Host only.
func (h *Handler) Stop(c *gin.Context) {
	if h.orchestrator == nil {
		response.ServiceUnavailable(c, "recording provider not configured")
		return
	}
	lc, userID, ok := h.hostClass(c)
	if !ok {
		return
	}
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	attempt, err := h.orchestrator.StopRecording(c.Request.Context(), lc.ID, req.SID, req.ResourceID, lc.ChannelName, userID.String())
	if err != nil {
		if errors.Is(err, ErrStop) {
			h.logger.Error("recording stop failed", zap.String("sid", req.SID), zap.Error(err))
			response.BadGateway(c, "recording provider rejected the stop request")
			return
		}
		response.Internal(c, "failed to stop recording")
		return
	}
	response.OK(c, attempt)
}

// ListByClass handles GET /live-classes/:id/recordings. The host sees every
// attempt; an enrolled student sees completed ones once the host made them
// visible.
func (h *Handler) ListByClass(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	lc, err := h.classes.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load live class")
		return
	}
	if lc == nil {
		response.NotFound(c, "live class not found")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if lc.HostID == userID {
		attempts, err := h.store.ListByLiveClass(c.Request.Context(), id)
		if err != nil {
			response.Internal(c, "failed to list recordings")
			return
		}
		response.OK(c, attempts)
		return
	}

	member, err := h.classes.IsMember(c.Request.Context(), id, userID)
	if err != nil || !member || !lc.RecordingVisible {
		response.Forbidden(c, "recordings are not available to you for this live class")
		return
	}
	attempts, err := h.store.ListByLiveClass(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list recordings")
		return
	}
	completed := attempts[:0]
	for _, a := range attempts {
		if a.Status == models.RecordingStatusCompleted {
			completed = append(completed, a)
		}
	}
	response.OK(c, completed)
}

// ListAll handles GET /recordings. Admin only (route guard).
func (h *Handler) ListAll(c *gin.Context) {
	attempts, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, attempts)
}

// ListVisible handles GET /recordings/visible: completed recordings of
// classes the caller is enrolled in with visibility enabled.
func (h *Handler) ListVisible(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	attempts, err := h.store.ListForParticipant(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, attempts)
}

// DownloadURL handles GET /recordings/:id/download-url: a presigned S3 GET
// for the recording object. Host always; students only when enrolled and the
// recording is visible.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "recording storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	attempt, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	if attempt == nil {
		response.NotFound(c, "recording not found")
		return
	}
	if attempt.Status != models.RecordingStatusCompleted || attempt.FilePath == "" {
		response.NotFound(c, "recording file is not available")
		return
	}

	lc, err := h.classes.GetByID(c.Request.Context(), attempt.LiveClassID)
	if err != nil || lc == nil {
		response.Internal(c, "failed to load live class")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if lc.HostID != userID {
		member, err := h.classes.IsMember(c.Request.Context(), lc.ID, userID)
		if err != nil || !member || !lc.RecordingVisible {
			response.Forbidden(c, "recording is not available to you")
			return
		}
	}

	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), attempt.FilePath, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign download url failed", zap.String("recording_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(h.s3.PresignExpire().Seconds())})
}

// hostClass loads the live class from the :id param and verifies the caller
// hosts it.
func (h *Handler) hostClass(c *gin.Context) (*models.LiveClass, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return nil, uuid.Nil, false
	}
	lc, err := h.classes.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load live class")
		return nil, uuid.Nil, false
	}
	if lc == nil {
		response.NotFound(c, "live class not found")
		return nil, uuid.Nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if lc.HostID != userID {
		response.Forbidden(c, "only the host can manage recordings")
		return nil, uuid.Nil, false
	}
	return lc, userID, true
}
