package rtcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the fallback roster is refreshed.
const DefaultPollInterval = 3 * time.Second

// Participant is one deduplicated roster entry in fallback mode.
type Participant struct {
	ID       string    `json:"id"`
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joined_at"`
}

// Poller approximates room presence by polling the roster endpoint on a
// fixed interval. Used when the real-time provider is unavailable. Best
// effort: poll failures keep the previous roster, no backoff.
type Poller struct {
	baseURL   string
	roomID    string
	authToken string
	interval  time.Duration
	client    *http.Client
	logger    *zap.Logger

	mu     sync.Mutex
	roster map[string]Participant
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a roster poller for one room.
func NewPoller(baseURL, roomID, authToken string, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		baseURL:   strings.TrimRight(baseURL, "/"),
		roomID:    roomID,
		authToken: authToken,
		interval:  DefaultPollInterval,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		roster:    make(map[string]Participant),
	}
}

// SetInterval overrides the poll interval.
func (p *Poller) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Start begins polling until Stop is called or ctx is done. Calling Start on
// a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.pollOnce(pollCtx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				p.pollOnce(pollCtx)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit. Idempotent. Must be
// called on teardown: an orphaned poller keeps firing network calls after
// the room is left.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Roster returns the deduplicated participant list, ordered by join time.
func (p *Poller) Roster() []Participant {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := make([]Participant, 0, len(p.roster))
	for _, v := range p.roster {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].Identity < list[j].Identity
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

type rosterEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Items []Participant `json:"items"`
	} `json:"data"`
	Error string `json:"error"`
}

func (p *Poller) pollOnce(ctx context.Context) {
	u := fmt.Sprintf("%s/rooms/%s/participants", p.baseURL, url.PathEscape(p.roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return
	}
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("roster poll failed", zap.String("room", p.roomID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	var env rosterEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || !env.Success {
		p.logger.Debug("roster poll bad response", zap.String("room", p.roomID), zap.Error(err))
		return
	}

	// Dedupe by identity; the last entry in the response wins.
	next := make(map[string]Participant, len(env.Data.Items))
	for _, item := range env.Data.Items {
		if item.Identity == "" {
			continue
		}
		next[item.Identity] = item
	}

	p.mu.Lock()
	p.roster = next
	p.mu.Unlock()
}
