package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/internal/recording"
	"github.com/edupulse/live-backend/pkg/queue"
	"github.com/edupulse/live-backend/pkg/storage"
)

// jobQueue is the queue surface the worker needs. Satisfied by queue.Queue.
type jobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ReconcileProcessor re-queries the recording provider for file metadata
// that was not yet available when a recording was stopped, and fills in the
// attempt record once it appears.
type ReconcileProcessor struct {
	store        recording.Store
	client       recording.ResourceClient
	queue        jobQueue
	s3           *storage.S3
	filesBaseURL string
	backoff      time.Duration
	logger       *zap.Logger
}

func NewReconcileProcessor(store recording.Store, client recording.ResourceClient, q jobQueue, s3 *storage.S3, filesBaseURL string, logger *zap.Logger) *ReconcileProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileProcessor{
		store:        store,
		client:       client,
		queue:        q,
		s3:           s3,
		filesBaseURL: filesBaseURL,
		backoff:      queue.RetryBackoff,
		logger:       logger,
	}
}

// SetBackoff overrides the wait after a failed job.
func (p *ReconcileProcessor) SetBackoff(d time.Duration) {
	if d > 0 {
		p.backoff = d
	}
}

// Run consumes reconcile jobs until ctx is done. Failed jobs go back through
// the queue's retry path and land in the DLQ after MaxRetries.
func (p *ReconcileProcessor) Run(ctx context.Context) {
	p.logger.Info("reconcile worker started")
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("reconcile worker stopping")
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := p.process(ctx, job); err != nil {
			p.logger.Warn("reconcile job failed",
				zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if retryErr := p.queue.Retry(ctx, job); retryErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(retryErr))
			}
			// The provider finalizes files asynchronously; without this wait
			// a not-ready job would cycle through BLPop and burn all its
			// retries before the file ever lands.
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

func (p *ReconcileProcessor) process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingReconcile {
		p.logger.Warn("unknown job type, dropping", zap.String("type", string(job.Type)))
		return nil
	}
	var payload queue.ReconcilePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Warn("invalid reconcile payload, dropping", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	attempt, err := p.store.GetBySID(ctx, payload.SID)
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil {
		p.logger.Warn("reconcile for unknown sid, dropping", zap.String("sid", payload.SID))
		return nil
	}
	if attempt.FilePath != "" {
		return nil
	}

	resp, err := p.client.Query(ctx, payload.ResourceID, payload.SID)
	if err != nil {
		return fmt.Errorf("provider query: %w", err)
	}
	files := recording.ParseFileList(resp.ServerResponse.FileList)
	if len(files) == 0 {
		return fmt.Errorf("file list not ready for sid %s", payload.SID)
	}
	f := files[0]

	if p.s3 != nil && f.FileName != "" {
		size, err := p.s3.ObjectSize(ctx, f.FileName)
		if err != nil {
			p.logger.Warn("object not found in bucket yet",
				zap.String("key", f.FileName), zap.Error(err))
		} else if size != f.FileSize {
			p.logger.Warn("provider-reported size differs from bucket object",
				zap.String("key", f.FileName),
				zap.Int64("reported", f.FileSize), zap.Int64("actual", size))
		}
	}

	update := &models.RecordingAttempt{
		LiveClassID:     attempt.LiveClassID,
		AgoraSID:        attempt.AgoraSID,
		ResourceID:      attempt.ResourceID,
		FilePath:        f.FileName,
		DurationSeconds: f.Duration,
		SizeBytes:       f.FileSize,
		Status:          models.RecordingStatusCompleted,
	}
	if p.filesBaseURL != "" && f.FileName != "" {
		update.FileURL = strings.TrimRight(p.filesBaseURL, "/") + "/" + strings.TrimLeft(f.FileName, "/")
	}
	if err := p.store.Upsert(ctx, update); err != nil {
		return fmt.Errorf("upsert attempt: %w", err)
	}

	p.logger.Info("recording metadata reconciled",
		zap.String("sid", payload.SID),
		zap.String("file_path", f.FileName),
		zap.Int("duration_seconds", f.Duration))
	return nil
}
