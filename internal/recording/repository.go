package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edupulse/live-backend/internal/models"
)

// Store persists recording attempts keyed by provider session id.
type Store interface {
	Upsert(ctx context.Context, attempt *models.RecordingAttempt) error
	FindActiveByLiveClass(ctx context.Context, liveClassID uuid.UUID) (*models.RecordingAttempt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error)
	GetBySID(ctx context.Context, sid string) (*models.RecordingAttempt, error)
	ListByLiveClass(ctx context.Context, liveClassID uuid.UUID) ([]models.RecordingAttempt, error)
	ListAll(ctx context.Context) ([]models.RecordingAttempt, error)
	ListForParticipant(ctx context.Context, userID uuid.UUID) ([]models.RecordingAttempt, error)
}

// Repository is the Postgres-backed Store.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const attemptColumns = `id, live_class_id, agora_sid, resource_id,
	COALESCE(file_url, ''), COALESCE(file_path, ''),
	duration_seconds, size_bytes, status, created_at, updated_at`

// Upsert inserts or updates an attempt by provider session id. Terminal
// statuses are absorbing and file metadata is write-once: a later upsert can
// fill missing fields but never blank or rewrite populated ones. The row's
// effective values are scanned back into attempt.
func (r *Repository) Upsert(ctx context.Context, attempt *models.RecordingAttempt) error {
	query := `
		INSERT INTO recording_attempts
			(live_class_id, agora_sid, resource_id, file_url, file_path, duration_seconds, size_bytes, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (agora_sid) DO UPDATE SET
			status = CASE
				WHEN recording_attempts.status IN ('completed', 'failed') THEN recording_attempts.status
				ELSE EXCLUDED.status
			END,
			file_url = COALESCE(recording_attempts.file_url, EXCLUDED.file_url),
			file_path = COALESCE(recording_attempts.file_path, EXCLUDED.file_path),
			duration_seconds = CASE
				WHEN recording_attempts.duration_seconds > 0 THEN recording_attempts.duration_seconds
				ELSE EXCLUDED.duration_seconds
			END,
			size_bytes = CASE
				WHEN recording_attempts.size_bytes > 0 THEN recording_attempts.size_bytes
				ELSE EXCLUDED.size_bytes
			END,
			updated_at = NOW()
		RETURNING ` + attemptColumns

	row := r.db.QueryRow(ctx, query,
		attempt.LiveClassID, attempt.AgoraSID, attempt.ResourceID,
		attempt.FileURL, attempt.FilePath,
		attempt.DurationSeconds, attempt.SizeBytes, attempt.Status,
	)
	if err := scanAttempt(row, attempt); err != nil {
		if isActiveConflict(err) {
			return ErrRecordingInProgress
		}
		return fmt.Errorf("upsert recording attempt: %w", err)
	}
	return nil
}

// activeAttemptIndex is the partial unique index allowing at most one
// non-terminal attempt per live class.
const activeAttemptIndex = "recording_attempts_active_per_class"

// isActiveConflict reports whether err is the unique violation raised when a
// second non-terminal attempt races past the orchestrator's check-then-act.
// The conflict target of the upsert is agora_sid, so this index can only fire
// for a distinct sid against a class that already has an active attempt.
func isActiveConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == activeAttemptIndex
}

// FindActiveByLiveClass returns the class's non-terminal attempt, or nil.
// The partial unique index guarantees at most one exists.
func (r *Repository) FindActiveByLiveClass(ctx context.Context, liveClassID uuid.UUID) (*models.RecordingAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM recording_attempts
		WHERE live_class_id = $1 AND status IN ('pending', 'processing')`
	return r.getOne(ctx, query, liveClassID)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM recording_attempts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *Repository) GetBySID(ctx context.Context, sid string) (*models.RecordingAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM recording_attempts WHERE agora_sid = $1`
	return r.getOne(ctx, query, sid)
}

// ListByLiveClass returns all attempts for a class, newest first.
func (r *Repository) ListByLiveClass(ctx context.Context, liveClassID uuid.UUID) ([]models.RecordingAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM recording_attempts
		WHERE live_class_id = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, liveClassID)
}

// ListAll returns every attempt, newest first. Admin surface.
func (r *Repository) ListAll(ctx context.Context) ([]models.RecordingAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM recording_attempts
		ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// ListForParticipant returns completed recordings of classes the user is
// enrolled in whose host made recordings visible, newest first.
func (r *Repository) ListForParticipant(ctx context.Context, userID uuid.UUID) ([]models.RecordingAttempt, error) {
	query := `SELECT ra.id, ra.live_class_id, ra.agora_sid, ra.resource_id,
			COALESCE(ra.file_url, ''), COALESCE(ra.file_path, ''),
			ra.duration_seconds, ra.size_bytes, ra.status, ra.created_at, ra.updated_at
		FROM recording_attempts ra
		JOIN live_classes lc ON lc.id = ra.live_class_id
		JOIN class_members cm ON cm.live_class_id = lc.id AND cm.user_id = $1
		WHERE lc.recording_visible AND ra.status = 'completed'
		ORDER BY ra.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...interface{}) (*models.RecordingAttempt, error) {
	var attempt models.RecordingAttempt
	err := scanAttempt(r.db.QueryRow(ctx, query, args...), &attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recording attempt: %w", err)
	}
	return &attempt, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]models.RecordingAttempt, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recording attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.RecordingAttempt
	for rows.Next() {
		var attempt models.RecordingAttempt
		if err := scanAttempt(rows, &attempt); err != nil {
			return nil, fmt.Errorf("scan recording attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row, a *models.RecordingAttempt) error {
	return row.Scan(
		&a.ID, &a.LiveClassID, &a.AgoraSID, &a.ResourceID,
		&a.FileURL, &a.FilePath,
		&a.DurationSeconds, &a.SizeBytes, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
}
