package recording

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/pkg/queue"
)

// ChannelTokenMinter mints the short-lived channel credential the recorder
// joins with. Satisfied by rtc.TokenService.
type ChannelTokenMinter interface {
	Mint(room, identity string, canPublish bool) (string, error)
}

// ReconcileEnqueuer schedules a later metadata re-query. Satisfied by
// queue.Queue; nil disables reconcile.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, payload queue.ReconcilePayload) error
}

// StartResult carries the provider handles a caller must keep to stop the
// session later.
type StartResult struct {
	SID        string `json:"sid"`
	ResourceID string `json:"resource_id"`
}

// Orchestrator sequences the recording protocol against the provider and
// keeps the durable attempt record in step with it.
type Orchestrator struct {
	client       ResourceClient
	store        Store
	tokens       ChannelTokenMinter
	reconcile    ReconcileEnqueuer
	filesBaseURL string
	logger       *zap.Logger
}

func NewOrchestrator(client ResourceClient, store Store, tokens ChannelTokenMinter, reconcile ReconcileEnqueuer, filesBaseURL string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:       client,
		store:        store,
		tokens:       tokens,
		reconcile:    reconcile,
		filesBaseURL: filesBaseURL,
		logger:       logger,
	}
}

// StartRecording runs acquire then start and persists a processing attempt.
// A class with a non-terminal attempt is rejected with
// ErrRecordingInProgress. Nothing is persisted until start succeeds, so a
// failed acquire or start leaves no record behind.
func (o *Orchestrator) StartRecording(ctx context.Context, liveClassID uuid.UUID, channelName, uid string) (*StartResult, error) {
	active, err := o.store.FindActiveByLiveClass(ctx, liveClassID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrRecordingInProgress
	}

	resourceID, err := o.client.Acquire(ctx, channelName, uid)
	if err != nil {
		return nil, err
	}

	token, err := o.tokens.Mint(channelName, uid, false)
	if err != nil {
		return nil, fmt.Errorf("%w: mint recorder token: %s", ErrStart, err)
	}

	sid, err := o.client.Start(ctx, resourceID, channelName, uid, token)
	if err != nil {
		return nil, err
	}

	attempt := &models.RecordingAttempt{
		LiveClassID: liveClassID,
		AgoraSID:    sid,
		ResourceID:  resourceID,
		Status:      models.RecordingStatusProcessing,
	}
	if err := o.store.Upsert(ctx, attempt); err != nil {
		return nil, err
	}

	o.logger.Info("recording started",
		zap.String("live_class_id", liveClassID.String()),
		zap.String("sid", sid),
		zap.String("resource_id", resourceID))
	return &StartResult{SID: sid, ResourceID: resourceID}, nil
}

// StopRecording stops the session and persists the outcome. A stop failure
// marks the attempt failed and returns the error. A successful stop marks it
// completed even when the follow-up query yields no file metadata yet; in
// that case a reconcile job is enqueued to fill the metadata later.
func (o *Orchestrator) StopRecording(ctx context.Context, liveClassID uuid.UUID, sid, resourceID, channelName, uid string) (*models.RecordingAttempt, error) {
	if err := o.client.Stop(ctx, resourceID, sid, channelName, uid); err != nil {
		failed := &models.RecordingAttempt{
			LiveClassID: liveClassID,
			AgoraSID:    sid,
			ResourceID:  resourceID,
			Status:      models.RecordingStatusFailed,
		}
		if upsertErr := o.store.Upsert(ctx, failed); upsertErr != nil {
			o.logger.Error("failed to record stop failure",
				zap.String("sid", sid), zap.Error(upsertErr))
		}
		return nil, err
	}

	attempt := &models.RecordingAttempt{
		LiveClassID: liveClassID,
		AgoraSID:    sid,
		ResourceID:  resourceID,
		Status:      models.RecordingStatusCompleted,
	}

	// Best effort: the provider finalizes files asynchronously, so query
	// may return nothing this soon after stop.
	if resp, err := o.client.Query(ctx, resourceID, sid); err != nil {
		o.logger.Warn("post-stop query failed, metadata deferred",
			zap.String("sid", sid), zap.Error(err))
	} else if files := ParseFileList(resp.ServerResponse.FileList); len(files) > 0 {
		applyFileMetadata(attempt, files[0], o.filesBaseURL)
	}

	if err := o.store.Upsert(ctx, attempt); err != nil {
		return nil, err
	}

	if attempt.FilePath == "" && o.reconcile != nil {
		payload := queue.ReconcilePayload{
			LiveClassID: liveClassID,
			SID:         sid,
			ResourceID:  resourceID,
			UID:         uid,
		}
		if err := o.reconcile.EnqueueReconcile(ctx, payload); err != nil {
			o.logger.Error("enqueue reconcile failed", zap.String("sid", sid), zap.Error(err))
		}
	}

	o.logger.Info("recording stopped",
		zap.String("live_class_id", liveClassID.String()),
		zap.String("sid", sid),
		zap.Bool("metadata_resolved", attempt.FilePath != ""))
	return attempt, nil
}

// applyFileMetadata copies provider-reported file fields onto the attempt.
// FileURL is derived only when both a base URL and a file path exist.
func applyFileMetadata(attempt *models.RecordingAttempt, f RecordedFile, filesBaseURL string) {
	attempt.FilePath = f.FileName
	attempt.DurationSeconds = f.Duration
	attempt.SizeBytes = f.FileSize
	if filesBaseURL != "" && f.FileName != "" {
		attempt.FileURL = strings.TrimRight(filesBaseURL, "/") + "/" + strings.TrimLeft(f.FileName, "/")
	}
}
