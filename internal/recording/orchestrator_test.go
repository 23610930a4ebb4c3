package recording

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/pkg/queue"
)

type fakeResourceClient struct {
	acquireID  string
	acquireErr error
	startSID   string
	startErr   error
	stopErr    error
	queryRaw   json.RawMessage
	queryErr   error
	stopCalls  int
	queryCalls int
	startToken string
}

func (f *fakeResourceClient) Acquire(ctx context.Context, cname, uid string) (string, error) {
	return f.acquireID, f.acquireErr
}

func (f *fakeResourceClient) Start(ctx context.Context, resourceID, cname, uid, token string) (string, error) {
	f.startToken = token
	return f.startSID, f.startErr
}

func (f *fakeResourceClient) Stop(ctx context.Context, resourceID, sid, cname, uid string) error {
	f.stopCalls++
	return f.stopErr
}

func (f *fakeResourceClient) Query(ctx context.Context, resourceID, sid string) (*QueryResponse, error) {
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	resp := &QueryResponse{}
	resp.ServerResponse.FileList = f.queryRaw
	return resp, nil
}

type fakeStore struct {
	active    *models.RecordingAttempt
	upserts   []models.RecordingAttempt
	upsertErr error
}

func (f *fakeStore) Upsert(ctx context.Context, a *models.RecordingAttempt) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, *a)
	return nil
}

func (f *fakeStore) FindActiveByLiveClass(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error) {
	return f.active, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeStore) GetBySID(ctx context.Context, sid string) (*models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeStore) ListByLiveClass(ctx context.Context, id uuid.UUID) ([]models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeStore) ListForParticipant(ctx context.Context, userID uuid.UUID) ([]models.RecordingAttempt, error) {
	return nil, nil
}

type fakeMinter struct{ token string }

func (f *fakeMinter) Mint(room, identity string, canPublish bool) (string, error) {
	return f.token, nil
}

type fakeEnqueuer struct {
	payloads []queue.ReconcilePayload
}

func (f *fakeEnqueuer) EnqueueReconcile(ctx context.Context, p queue.ReconcilePayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func TestStartRecording(t *testing.T) {
	client := &fakeResourceClient{acquireID: "res-1", startSID: "sid-1"}
	store := &fakeStore{}
	o := NewOrchestrator(client, store, &fakeMinter{token: "rec-token"}, nil, "", nil)

	classID := uuid.New()
	result, err := o.StartRecording(context.Background(), classID, "class-abc", "42")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", result.SID)
	assert.Equal(t, "res-1", result.ResourceID)
	assert.Equal(t, "rec-token", client.startToken)

	require.Len(t, store.upserts, 1)
	saved := store.upserts[0]
	assert.Equal(t, classID, saved.LiveClassID)
	assert.Equal(t, "sid-1", saved.AgoraSID)
	assert.Equal(t, "res-1", saved.ResourceID)
	assert.Equal(t, models.RecordingStatusProcessing, saved.Status)
}

func TestStartRecordingConflict(t *testing.T) {
	store := &fakeStore{active: &models.RecordingAttempt{Status: models.RecordingStatusProcessing}}
	o := NewOrchestrator(&fakeResourceClient{}, store, &fakeMinter{}, nil, "", nil)

	_, err := o.StartRecording(context.Background(), uuid.New(), "class-abc", "42")
	assert.ErrorIs(t, err, ErrRecordingInProgress)
	assert.Empty(t, store.upserts)
}

func TestStartRecordingAcquireFailurePersistsNothing(t *testing.T) {
	client := &fakeResourceClient{acquireErr: errors.New("recording: acquire failed: status 403")}
	store := &fakeStore{}
	o := NewOrchestrator(client, store, &fakeMinter{}, nil, "", nil)

	_, err := o.StartRecording(context.Background(), uuid.New(), "class-abc", "42")
	require.Error(t, err)
	assert.Empty(t, store.upserts, "a failed acquire must leave no record behind")
}

func TestStartRecordingStartFailurePersistsNothing(t *testing.T) {
	client := &fakeResourceClient{acquireID: "res-1", startErr: errors.New("recording: start failed: status 400")}
	store := &fakeStore{}
	o := NewOrchestrator(client, store, &fakeMinter{}, nil, "", nil)

	_, err := o.StartRecording(context.Background(), uuid.New(), "class-abc", "42")
	require.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestStopRecordingWithMetadata(t *testing.T) {
	client := &fakeResourceClient{
		queryRaw: json.RawMessage(`[{"fileName":"class-abc/rec.mp4","duration":120,"fileSize":5000000}]`),
	}
	store := &fakeStore{}
	enq := &fakeEnqueuer{}
	o := NewOrchestrator(client, store, &fakeMinter{}, enq, "https://cdn.example.com/recordings", nil)

	classID := uuid.New()
	attempt, err := o.StopRecording(context.Background(), classID, "sid-1", "res-1", "class-abc", "42")
	require.NoError(t, err)

	assert.Equal(t, models.RecordingStatusCompleted, attempt.Status)
	assert.Equal(t, "class-abc/rec.mp4", attempt.FilePath)
	assert.Equal(t, 120, attempt.DurationSeconds)
	assert.Equal(t, int64(5000000), attempt.SizeBytes)
	assert.Equal(t, "https://cdn.example.com/recordings/class-abc/rec.mp4", attempt.FileURL)

	require.Len(t, store.upserts, 1)
	assert.Empty(t, enq.payloads, "resolved metadata needs no reconcile")
}

func TestStopRecordingMetadataLagEnqueuesReconcile(t *testing.T) {
	client := &fakeResourceClient{queryRaw: json.RawMessage(`[]`)}
	store := &fakeStore{}
	enq := &fakeEnqueuer{}
	o := NewOrchestrator(client, store, &fakeMinter{}, enq, "https://cdn.example.com", nil)

	classID := uuid.New()
	attempt, err := o.StopRecording(context.Background(), classID, "sid-1", "res-1", "class-abc", "42")
	require.NoError(t, err)

	// Completed even without metadata; the file fields stay empty until
	// the reconcile worker fills them.
	assert.Equal(t, models.RecordingStatusCompleted, attempt.Status)
	assert.Empty(t, attempt.FilePath)
	assert.Empty(t, attempt.FileURL)

	require.Len(t, enq.payloads, 1)
	assert.Equal(t, "sid-1", enq.payloads[0].SID)
	assert.Equal(t, "res-1", enq.payloads[0].ResourceID)
	assert.Equal(t, classID, enq.payloads[0].LiveClassID)
}

func TestStopRecordingQueryErrorStillCompletes(t *testing.T) {
	client := &fakeResourceClient{queryErr: errors.New("recording: query failed: status 404")}
	store := &fakeStore{}
	enq := &fakeEnqueuer{}
	o := NewOrchestrator(client, store, &fakeMinter{}, enq, "", nil)

	attempt, err := o.StopRecording(context.Background(), uuid.New(), "sid-1", "res-1", "class-abc", "42")
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusCompleted, attempt.Status)
	assert.Len(t, enq.payloads, 1)
}

func TestStopRecordingStopFailureMarksFailed(t *testing.T) {
	client := &fakeResourceClient{stopErr: errors.New("recording: stop failed: status 500")}
	store := &fakeStore{}
	o := NewOrchestrator(client, store, &fakeMinter{}, nil, "", nil)

	_, err := o.StopRecording(context.Background(), uuid.New(), "sid-1", "res-1", "class-abc", "42")
	require.Error(t, err)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, models.RecordingStatusFailed, store.upserts[0].Status)
	assert.Equal(t, 0, client.queryCalls, "no query after a failed stop")
}
