package rtcclient

import (
	"errors"
	"strings"
)

var (
	// ErrProviderNotConfigured means the token endpoint reported the
	// real-time provider is not set up. Permanent: callers go straight to
	// fallback without retrying.
	ErrProviderNotConfigured = errors.New("rtcclient: provider not configured")

	// ErrJoinCancelled means Leave (or a superseding Join) interrupted an
	// in-flight join before it resolved.
	ErrJoinCancelled = errors.New("rtcclient: join cancelled")
)

// TransportErrorKind classifies errors raised by the underlying real-time
// transport. Benign kinds are known races inside the provider SDK that carry
// no actionable signal; they are logged and suppressed, never surfaced.
type TransportErrorKind int

const (
	TransportErrorUnknown TransportErrorKind = iota
	// TransportErrorRosterRace: the SDK updated its participant array while
	// it was being read. Harmless; the next roster event corrects it.
	TransportErrorRosterRace
	// TransportErrorPlaceholderTrack: a track was attached before its
	// placeholder was replaced. Harmless rendering race.
	TransportErrorPlaceholderTrack
)

// Benign reports whether the kind should be suppressed rather than surfaced.
func (k TransportErrorKind) Benign() bool {
	return k == TransportErrorRosterRace || k == TransportErrorPlaceholderTrack
}

func (k TransportErrorKind) String() string {
	switch k {
	case TransportErrorRosterRace:
		return "roster_race"
	case TransportErrorPlaceholderTrack:
		return "placeholder_track"
	default:
		return "unknown"
	}
}

// Markers the provider SDK embeds in its error strings. Matching happens
// here, at the transport boundary, and nowhere else.
var benignMarkers = map[string]TransportErrorKind{
	"participants array":  TransportErrorRosterRace,
	"roster out of sync":  TransportErrorRosterRace,
	"placeholder track":   TransportErrorPlaceholderTrack,
	"track already ended": TransportErrorPlaceholderTrack,
}

// ClassifyTransportError maps a raw transport error onto the closed kind set.
func ClassifyTransportError(err error) TransportErrorKind {
	if err == nil {
		return TransportErrorUnknown
	}
	msg := strings.ToLower(err.Error())
	for marker, kind := range benignMarkers {
		if strings.Contains(msg, marker) {
			return kind
		}
	}
	return TransportErrorUnknown
}
