package models

import (
	"time"

	"github.com/google/uuid"
)

// LiveClass is a scheduled live session of a course.
// ChannelName is the real-time room participants join; it doubles as the
// recording channel (cname) for the cloud-recording provider.
type LiveClass struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	HostID           uuid.UUID `json:"host_id"`
	ChannelName      string    `json:"channel_name"`
	RecordingVisible bool      `json:"recording_visible"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
