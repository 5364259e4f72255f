// Package api is the HTTP client for the deliberation server's REST
// surface: file upload, facilitation, progress checks, push subscription
// and proposal export. The room WebSocket lives in internal/realtime.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

// Client talks to the deliberation server's HTTP endpoints.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the given server root, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// envelope is the server's standard JSON wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorInfo      `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// doRequest performs a request and unwraps the standard envelope into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("server returned status %d: %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("server error %s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", out)
}

// UploadResult describes a stored attachment.
type UploadResult struct {
	FileURL          string `json:"file_url"`
	OriginalFilename string `json:"original_filename"`
	GeminiFileRef    string `json:"gemini_file_ref,omitempty"`
}

// Upload stores a file and returns the references to attach to a message.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out UploadResult
	if err := c.doRequest(ctx, http.MethodPost, "/upload_file", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	return &out, nil
}

// ProgressResult is the facilitation progress analysis for a room.
type ProgressResult struct {
	Progress string `json:"progress"`
}

// CheckProgress asks for an analysis of how the discussion is going.
func (c *Client) CheckProgress(ctx context.Context, roomID string) (*ProgressResult, error) {
	var out ProgressResult
	path := "/check_progress/" + url.PathEscape(roomID)
	if err := c.doRequest(ctx, http.MethodPost, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FacilitateResult is an on-demand facilitation prompt.
type FacilitateResult struct {
	Message string `json:"message"`
}

// Facilitate requests an immediate facilitation prompt for a room.
func (c *Client) Facilitate(ctx context.Context, roomID string) (*FacilitateResult, error) {
	var out FacilitateResult
	path := "/facilitate/" + url.PathEscape(roomID)
	if err := c.doRequest(ctx, http.MethodPost, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportRequest carries the proposal list to render as a document.
type ExportRequest struct {
	Topic     string                  `json:"topic"`
	Proposals []domain.ProposalRecord `json:"proposals"`
}

// ExportProposals renders the proposal list as a Word document and
// returns its bytes. The response is the raw document, not the JSON
// envelope.
func (c *Client) ExportProposals(ctx context.Context, topic string, proposals []domain.ProposalRecord) ([]byte, error) {
	body, err := json.Marshal(ExportRequest{Topic: topic, Proposals: proposals})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/download_proposals_word", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("export returned status %d: %s", resp.StatusCode, respBody)
	}
	return io.ReadAll(resp.Body)
}

// SubscriptionKeys are the Web Push crypto keys.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a Web Push subscription to register.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
	Username string           `json:"username"`
	RoomID   string           `json:"room_id"`
}

// Subscribe registers a push subscription for offline notifications.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	return c.postJSON(ctx, "/subscribe", sub, nil)
}

// RoomInfo is one entry of the room directory.
type RoomInfo struct {
	RoomID string `json:"room_id"`
	Topic  string `json:"topic"`
	Status string `json:"status"`
}

// ListRooms returns the room directory.
func (c *Client) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	var out []RoomInfo
	if err := c.doRequest(ctx, http.MethodGet, "/rooms", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRoomRequest names a new room and its topic.
type CreateRoomRequest struct {
	RoomID string `json:"room_id"`
	Topic  string `json:"topic"`
}

// CreateRoom registers a room so it appears in the directory before
// anyone connects.
func (c *Client) CreateRoom(ctx context.Context, roomID, topic string) (*RoomInfo, error) {
	var out RoomInfo
	if err := c.postJSON(ctx, "/rooms", CreateRoomRequest{RoomID: roomID, Topic: topic}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthResult is the server health report.
type HealthResult struct {
	Status string `json:"status"`
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var out HealthResult
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
