package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingAttempt statuses. Completed and failed are terminal and never
// change again; the upsert path enforces that in SQL.
const (
	RecordingStatusPending    = "pending"
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// RecordingAttempt is the durable record of one cloud-recording session.
// AgoraSID and ResourceID come from the provider's start/acquire calls;
// file metadata comes from the provider's query response, never guessed.
type RecordingAttempt struct {
	ID              uuid.UUID `json:"id"`
	LiveClassID     uuid.UUID `json:"live_class_id"`
	AgoraSID        string    `json:"agora_sid"`
	ResourceID      string    `json:"resource_id"`
	FileURL         string    `json:"file_url,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Terminal reports whether the attempt reached an absorbing status.
func (a *RecordingAttempt) Terminal() bool {
	return a.Status == RecordingStatusCompleted || a.Status == RecordingStatusFailed
}
