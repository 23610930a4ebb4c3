package recording

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edupulse/live-backend/config"
)

// Step sentinels for the recording protocol. Wrapped with call context by the
// client and orchestrator; callers match with errors.Is.
var (
	ErrNotConfigured       = errors.New("recording: provider credentials not configured")
	ErrAcquire             = errors.New("recording: acquire failed")
	ErrStart               = errors.New("recording: start failed")
	ErrStop                = errors.New("recording: stop failed")
	ErrQuery               = errors.New("recording: query failed")
	ErrRecordingInProgress = errors.New("recording: recording already in progress for this live class")
)

// ResourceClient drives the cloud-recording provider's four-step protocol.
// Acquire must precede Start; Start must precede Stop/Query for a session.
type ResourceClient interface {
	Acquire(ctx context.Context, cname, uid string) (resourceID string, err error)
	Start(ctx context.Context, resourceID, cname, uid, token string) (sid string, err error)
	Stop(ctx context.Context, resourceID, sid, cname, uid string) error
	Query(ctx context.Context, resourceID, sid string) (*QueryResponse, error)
}

// QueryResponse is the provider's query result. FileList is raw because the
// provider sometimes returns it as a JSON-encoded string instead of an array;
// ParseFileList handles both.
type QueryResponse struct {
	ServerResponse struct {
		FileListMode string          `json:"fileListMode"`
		FileList     json.RawMessage `json:"fileList"`
	} `json:"serverResponse"`
}

// Client is the HTTP implementation of ResourceClient.
type Client struct {
	baseURL    string
	appID      string
	authHeader string
	cfg        config.RecordingConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a recording provider client. Missing credentials are a
// configuration error raised here, at startup, not on individual calls.
func NewClient(cfg config.RecordingConfig, logger *zap.Logger) (*Client, error) {
	if cfg.AppID == "" || cfg.CustomerID == "" || cfg.CustomerSecret == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	basic := base64.StdEncoding.EncodeToString([]byte(cfg.CustomerID + ":" + cfg.CustomerSecret))
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		authHeader: "Basic " + basic,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

type acquireRequest struct {
	Cname         string `json:"cname"`
	UID           string `json:"uid"`
	ClientRequest struct {
		ResourceExpiredHour int `json:"resourceExpiredHour"`
	} `json:"clientRequest"`
}

// Acquire allocates a recording resource for the channel.
func (c *Client) Acquire(ctx context.Context, cname, uid string) (string, error) {
	body := acquireRequest{Cname: cname, UID: uid}
	body.ClientRequest.ResourceExpiredHour = c.cfg.ResourceExpiredHour

	var out struct {
		ResourceID string `json:"resourceId"`
	}
	if err := c.post(ctx, c.url("acquire"), body, &out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrAcquire, err)
	}
	if out.ResourceID == "" {
		return "", fmt.Errorf("%w: provider returned empty resourceId", ErrAcquire)
	}
	return out.ResourceID, nil
}

type startRequest struct {
	Cname         string `json:"cname"`
	UID           string `json:"uid"`
	ClientRequest struct {
		Token           string          `json:"token"`
		RecordingConfig recordingConfig `json:"recordingConfig"`
		StorageConfig   storageConfig   `json:"storageConfig"`
	} `json:"clientRequest"`
}

type recordingConfig struct {
	ChannelType int `json:"channelType"`
	StreamTypes int `json:"streamTypes"`
	MaxIdleTime int `json:"maxIdleTime"`
}

type storageConfig struct {
	Vendor         int      `json:"vendor"`
	Region         int      `json:"region"`
	Bucket         string   `json:"bucket"`
	AccessKey      string   `json:"accessKey"`
	SecretKey      string   `json:"secretKey"`
	FileNamePrefix []string `json:"fileNamePrefix,omitempty"`
}

// Start begins recording on an acquired resource. token is the short-lived
// channel credential for the recorder, separate from the REST credentials.
func (c *Client) Start(ctx context.Context, resourceID, cname, uid, token string) (string, error) {
	body := startRequest{Cname: cname, UID: uid}
	body.ClientRequest.Token = token
	body.ClientRequest.RecordingConfig = recordingConfig{
		ChannelType: 1, // live broadcast
		StreamTypes: 2, // audio and video
		MaxIdleTime: 30,
	}
	body.ClientRequest.StorageConfig = storageConfig{
		Vendor:    c.cfg.StorageVendor,
		Region:    c.cfg.StorageRegion,
		Bucket:    c.cfg.StorageBucket,
		AccessKey: c.cfg.StorageAccessKey,
		SecretKey: c.cfg.StorageSecretKey,
		FileNamePrefix: []string{"recordings", cname},
	}

	var out struct {
		SID string `json:"sid"`
	}
	path := fmt.Sprintf("resourceid/%s/mode/individual/start", resourceID)
	if err := c.post(ctx, c.url(path), body, &out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrStart, err)
	}
	if out.SID == "" {
		return "", fmt.Errorf("%w: provider returned empty sid", ErrStart)
	}
	return out.SID, nil
}

type stopRequest struct {
	Cname         string   `json:"cname"`
	UID           string   `json:"uid"`
	ClientRequest struct{} `json:"clientRequest"`
}

// Stop ends the recording session. The provider acks synchronously but
// finalizes the file asynchronously; Query may lag behind.
func (c *Client) Stop(ctx context.Context, resourceID, sid, cname, uid string) error {
	body := stopRequest{Cname: cname, UID: uid}
	path := fmt.Sprintf("resourceid/%s/sid/%s/stop", resourceID, sid)
	if err := c.post(ctx, c.url(path), body, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrStop, err)
	}
	return nil
}

// Query fetches the session's file list once the provider has it.
func (c *Client) Query(ctx context.Context, resourceID, sid string) (*QueryResponse, error) {
	path := fmt.Sprintf("resourceid/%s/sid/%s/mode/individual/query", resourceID, sid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQuery, err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQuery, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrQuery, resp.StatusCode, string(raw))
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", ErrQuery, err)
	}
	return &out, nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/%s/cloud_recording/%s", c.baseURL, c.appID, path)
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %s", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %s", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %s", err)
	}
	return nil
}
