package recording

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsActiveConflict(t *testing.T) {
	active := &pgconn.PgError{Code: "23505", ConstraintName: activeAttemptIndex}
	assert.True(t, isActiveConflict(active))
	assert.True(t, isActiveConflict(fmt.Errorf("scan: %w", active)))

	sidConflict := &pgconn.PgError{Code: "23505", ConstraintName: "recording_attempts_agora_sid_key"}
	assert.False(t, isActiveConflict(sidConflict))

	notNull := &pgconn.PgError{Code: "23502", ConstraintName: activeAttemptIndex}
	assert.False(t, isActiveConflict(notNull))

	assert.False(t, isActiveConflict(errors.New("connection refused")))
	assert.False(t, isActiveConflict(nil))
}
