package rtcclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenClient scripts FetchToken outcomes per room.
type fakeTokenClient struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string][]fetchResult
	block   map[string]chan struct{} // rooms that wait before resolving
}

type fetchResult struct {
	cred *RoomCredential
	err  error
}

func newFakeTokenClient() *fakeTokenClient {
	return &fakeTokenClient{
		calls:   make(map[string]int),
		results: make(map[string][]fetchResult),
		block:   make(map[string]chan struct{}),
	}
}

func (f *fakeTokenClient) FetchToken(ctx context.Context, roomID, identity string) (*RoomCredential, error) {
	f.mu.Lock()
	gate := f.block[roomID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	scripted := f.results[roomID]
	i := f.calls[roomID]
	f.calls[roomID]++
	if i >= len(scripted) {
		i = len(scripted) - 1
	}
	r := scripted[i]
	return r.cred, r.err
}

func (f *fakeTokenClient) callCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[roomID]
}

func fastManager(tokens TokenClient) *Manager {
	m := NewManager(tokens, nil)
	m.SetRetryPolicy(DefaultRetryBound, time.Millisecond)
	return m
}

func TestJoinSuccess(t *testing.T) {
	tokens := newFakeTokenClient()
	tokens.results["room-1"] = []fetchResult{
		{cred: &RoomCredential{Endpoint: "wss://rtc.example.com", Credential: "tok-1"}},
	}
	m := fastManager(tokens)

	state, err := m.Join(context.Background(), "room-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, state)

	sess := m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "room-1", sess.RoomID)
	assert.Equal(t, "wss://rtc.example.com", sess.Endpoint)
	assert.Equal(t, "tok-1", sess.Credential)
	assert.Equal(t, 0, sess.RetryCount)
	assert.Equal(t, 1, tokens.callCount("room-1"))
}

func TestJoinNotConfiguredSkipsRetries(t *testing.T) {
	tokens := newFakeTokenClient()
	tokens.results["room-1"] = []fetchResult{{err: ErrProviderNotConfigured}}
	m := fastManager(tokens)

	state, err := m.Join(context.Background(), "room-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StateFallback, state)
	assert.Equal(t, 1, tokens.callCount("room-1"), "not-configured must not be retried")

	sess := m.Session()
	require.NotNil(t, sess)
	assert.Empty(t, sess.Endpoint)
	assert.Empty(t, sess.Credential)
}

func TestJoinRetriesThenFallback(t *testing.T) {
	tokens := newFakeTokenClient()
	tokens.results["room-1"] = []fetchResult{
		{err: errors.New("token endpoint error (status 500)")},
	}
	m := fastManager(tokens)

	state, err := m.Join(context.Background(), "room-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StateFallback, state)
	assert.Equal(t, 1+DefaultRetryBound, tokens.callCount("room-1"))

	sess := m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, DefaultRetryBound, sess.RetryCount)
}

func TestJoinRecoversOnRetry(t *testing.T) {
	tokens := newFakeTokenClient()
	tokens.results["room-1"] = []fetchResult{
		{err: errors.New("transient")},
		{cred: &RoomCredential{Endpoint: "wss://rtc.example.com", Credential: "tok-2"}},
	}
	m := fastManager(tokens)

	state, err := m.Join(context.Background(), "room-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, state)
	assert.Equal(t, 2, tokens.callCount("room-1"))
	assert.Equal(t, 1, m.Session().RetryCount)
}

func TestSecondJoinSupersedesUnresolvedFirst(t *testing.T) {
	tokens := newFakeTokenClient()
	gate := make(chan struct{})
	tokens.block["room-a"] = gate
	tokens.results["room-a"] = []fetchResult{
		{cred: &RoomCredential{Endpoint: "wss://rtc.example.com", Credential: "tok-a"}},
	}
	tokens.results["room-b"] = []fetchResult{
		{cred: &RoomCredential{Endpoint: "wss://rtc.example.com", Credential: "tok-b"}},
	}
	m := fastManager(tokens)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Join(context.Background(), "room-a", "alice@example.com")
		firstDone <- err
	}()
	require.Eventually(t, func() bool {
		return m.State() == StateAcquiring
	}, time.Second, time.Millisecond)

	state, err := m.Join(context.Background(), "room-b", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, state)

	close(gate)
	assert.ErrorIs(t, <-firstDone, ErrJoinCancelled)

	// The superseded join must not have leaked its session.
	sess := m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "room-b", sess.RoomID)
	assert.Equal(t, "tok-b", sess.Credential)
	assert.Equal(t, StateConnected, m.State())
}

func TestLeaveCancelsInflightJoin(t *testing.T) {
	tokens := newFakeTokenClient()
	gate := make(chan struct{})
	defer close(gate)
	tokens.block["room-1"] = gate
	tokens.results["room-1"] = []fetchResult{
		{cred: &RoomCredential{Endpoint: "wss://rtc.example.com", Credential: "tok"}},
	}
	m := fastManager(tokens)

	done := make(chan error, 1)
	go func() {
		_, err := m.Join(context.Background(), "room-1", "alice@example.com")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return m.State() == StateAcquiring
	}, time.Second, time.Millisecond)

	m.Leave()
	assert.ErrorIs(t, <-done, ErrJoinCancelled)
	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Session())
}

func TestLeaveIdempotent(t *testing.T) {
	tokens := newFakeTokenClient()
	tokens.results["room-1"] = []fetchResult{
		{cred: &RoomCredential{Endpoint: "e", Credential: "c"}},
	}
	m := fastManager(tokens)

	m.Leave()
	m.Leave()
	assert.Equal(t, StateIdle, m.State())

	_, err := m.Join(context.Background(), "room-1", "alice@example.com")
	require.NoError(t, err)
	m.Leave()
	m.Leave()
	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Session())
}

func TestSuppressTransportError(t *testing.T) {
	m := fastManager(newFakeTokenClient())

	assert.NoError(t, m.SuppressTransportError(nil))
	assert.NoError(t, m.SuppressTransportError(errors.New("cannot read participants array during update")))
	assert.NoError(t, m.SuppressTransportError(errors.New("placeholder track not yet replaced")))

	real := errors.New("ice connection failed")
	assert.Equal(t, real, m.SuppressTransportError(real))
}
