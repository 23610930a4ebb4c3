package liveclasses

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edupulse/live-backend/internal/models"
)

// Repository handles live class persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live class repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new live class.
func (r *Repository) Create(ctx context.Context, lc *models.LiveClass) error {
	const q = `INSERT INTO live_classes (title, host_id, channel_name, recording_visible, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, lc.Title, lc.HostID, lc.ChannelName, lc.RecordingVisible, lc.StartsAt, lc.EndsAt).
		Scan(&lc.ID, &lc.CreatedAt, &lc.UpdatedAt)
}

// GetByID returns a live class by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveClass, error) {
	const q = `SELECT id, title, host_id, channel_name, recording_visible, starts_at, ends_at, created_at, updated_at
		FROM live_classes WHERE id = $1`
	var lc models.LiveClass
	err := r.pool.QueryRow(ctx, q, id).Scan(&lc.ID, &lc.Title, &lc.HostID, &lc.ChannelName, &lc.RecordingVisible, &lc.StartsAt, &lc.EndsAt, &lc.CreatedAt, &lc.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &lc, nil
}

// List returns live classes, newest first, optionally filtered by host.
func (r *Repository) List(ctx context.Context, hostID *uuid.UUID) ([]models.LiveClass, error) {
	base := `SELECT id, title, host_id, channel_name, recording_visible, starts_at, ends_at, created_at, updated_at FROM live_classes`
	var args []interface{}
	if hostID != nil {
		base += ` WHERE host_id = $1`
		args = append(args, *hostID)
	}
	rows, err := r.pool.Query(ctx, base+` ORDER BY starts_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LiveClass
	for rows.Next() {
		var lc models.LiveClass
		if err := rows.Scan(&lc.ID, &lc.Title, &lc.HostID, &lc.ChannelName, &lc.RecordingVisible, &lc.StartsAt, &lc.EndsAt, &lc.CreatedAt, &lc.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, lc)
	}
	return list, rows.Err()
}

// SetRecordingVisible toggles whether completed recordings are visible to non-hosts.
func (r *Repository) SetRecordingVisible(ctx context.Context, id uuid.UUID, visible bool) error {
	const q = `UPDATE live_classes SET recording_visible = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, visible, id)
	return err
}

// AddMember enrolls a user in a live class.
func (r *Repository) AddMember(ctx context.Context, liveClassID, userID uuid.UUID) error {
	const q = `INSERT INTO class_members (live_class_id, user_id) VALUES ($1, $2)
		ON CONFLICT (live_class_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, liveClassID, userID)
	return err
}

// IsMember returns true if the user is enrolled in the live class.
func (r *Repository) IsMember(ctx context.Context, liveClassID, userID uuid.UUID) (bool, error) {
	const q = `SELECT 1 FROM class_members WHERE live_class_id = $1 AND user_id = $2`
	var exists int
	err := r.pool.QueryRow(ctx, q, liveClassID, userID).Scan(&exists)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsHost returns true if the user hosts the live class.
func (r *Repository) IsHost(ctx context.Context, liveClassID, userID uuid.UUID) (bool, error) {
	lc, err := r.GetByID(ctx, liveClassID)
	if err != nil {
		return false, err
	}
	return lc != nil && lc.HostID == userID, nil
}
