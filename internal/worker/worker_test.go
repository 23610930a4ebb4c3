package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/internal/recording"
	"github.com/edupulse/live-backend/pkg/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []*queue.Job
	dequeues []time.Time
	retries  []*queue.Job
}

func (f *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	f.mu.Lock()
	f.dequeues = append(f.dequeues, time.Now())
	var job *queue.Job
	if len(f.jobs) > 0 {
		job = f.jobs[0]
		f.jobs = f.jobs[1:]
	}
	f.mu.Unlock()
	if job != nil {
		return job, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeQueue) Retry(ctx context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, job)
	return nil
}

func (f *fakeQueue) snapshot() (dequeues []time.Time, retries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.dequeues...), len(f.retries)
}

type fakeWorkerStore struct {
	mu      sync.Mutex
	bySID   map[string]*models.RecordingAttempt
	upserts []models.RecordingAttempt
}

func (f *fakeWorkerStore) Upsert(ctx context.Context, a *models.RecordingAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *a)
	return nil
}

func (f *fakeWorkerStore) GetBySID(ctx context.Context, sid string) (*models.RecordingAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySID[sid], nil
}

func (f *fakeWorkerStore) FindActiveByLiveClass(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeWorkerStore) GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeWorkerStore) ListByLiveClass(ctx context.Context, id uuid.UUID) ([]models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeWorkerStore) ListAll(ctx context.Context) ([]models.RecordingAttempt, error) {
	return nil, nil
}

func (f *fakeWorkerStore) ListForParticipant(ctx context.Context, userID uuid.UUID) ([]models.RecordingAttempt, error) {
	return nil, nil
}

type fakeProviderClient struct {
	queryRaw json.RawMessage
	queryErr error
}

func (f *fakeProviderClient) Acquire(ctx context.Context, cname, uid string) (string, error) {
	return "", nil
}

func (f *fakeProviderClient) Start(ctx context.Context, resourceID, cname, uid, token string) (string, error) {
	return "", nil
}

func (f *fakeProviderClient) Stop(ctx context.Context, resourceID, sid, cname, uid string) error {
	return nil
}

func (f *fakeProviderClient) Query(ctx context.Context, resourceID, sid string) (*recording.QueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	resp := &recording.QueryResponse{}
	resp.ServerResponse.FileList = f.queryRaw
	return resp, nil
}

func reconcileJob(t *testing.T, classID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ReconcilePayload{
		LiveClassID: classID, SID: "sid-1", ResourceID: "res-1", UID: "42",
	})
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeRecordingReconcile, Payload: payload}
}

func TestRunBacksOffAfterFailedJob(t *testing.T) {
	classID := uuid.New()
	q := &fakeQueue{jobs: []*queue.Job{reconcileJob(t, classID)}}
	store := &fakeWorkerStore{bySID: map[string]*models.RecordingAttempt{
		"sid-1": {LiveClassID: classID, AgoraSID: "sid-1", ResourceID: "res-1", Status: models.RecordingStatusCompleted},
	}}
	// Empty file list: the provider has not finalized the file yet.
	client := &fakeProviderClient{queryRaw: json.RawMessage(`[]`)}

	p := NewReconcileProcessor(store, client, q, nil, "", nil)
	backoff := 60 * time.Millisecond
	p.SetBackoff(backoff)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		dequeues, retries := q.snapshot()
		return retries == 1 && len(dequeues) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	dequeues, _ := q.snapshot()
	gap := dequeues[1].Sub(dequeues[0])
	assert.GreaterOrEqual(t, gap, backoff,
		"a not-ready job must wait out the backoff before the next dequeue")
	assert.Empty(t, store.upserts)
}

func TestRunReconcilesMetadata(t *testing.T) {
	classID := uuid.New()
	q := &fakeQueue{jobs: []*queue.Job{reconcileJob(t, classID)}}
	store := &fakeWorkerStore{bySID: map[string]*models.RecordingAttempt{
		"sid-1": {LiveClassID: classID, AgoraSID: "sid-1", ResourceID: "res-1", Status: models.RecordingStatusCompleted},
	}}
	client := &fakeProviderClient{
		queryRaw: json.RawMessage(`[{"fileName":"class-abc/rec.mp4","duration":120,"fileSize":5000000}]`),
	}

	p := NewReconcileProcessor(store, client, q, nil, "https://cdn.example.com", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.upserts) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	_, retries := q.snapshot()
	assert.Equal(t, 0, retries)

	saved := store.upserts[0]
	assert.Equal(t, "class-abc/rec.mp4", saved.FilePath)
	assert.Equal(t, 120, saved.DurationSeconds)
	assert.Equal(t, int64(5000000), saved.SizeBytes)
	assert.Equal(t, "https://cdn.example.com/class-abc/rec.mp4", saved.FileURL)
	assert.Equal(t, models.RecordingStatusCompleted, saved.Status)
}

func TestRunDropsAlreadyReconciledJob(t *testing.T) {
	classID := uuid.New()
	q := &fakeQueue{jobs: []*queue.Job{reconcileJob(t, classID)}}
	store := &fakeWorkerStore{bySID: map[string]*models.RecordingAttempt{
		"sid-1": {
			LiveClassID: classID, AgoraSID: "sid-1", ResourceID: "res-1",
			FilePath: "already/there.mp4", Status: models.RecordingStatusCompleted,
		},
	}}

	p := NewReconcileProcessor(store, &fakeProviderClient{}, q, nil, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		dequeues, _ := q.snapshot()
		return len(dequeues) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	_, retries := q.snapshot()
	assert.Equal(t, 0, retries)
	assert.Empty(t, store.upserts)
}
