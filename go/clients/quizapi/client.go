// Package quizapi is the HTTP client for the game server's REST surface: the
// out-of-band end-round call and the server-side TTS proxy that keeps
// synthesis credentials off the appliance.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin JSON client over the game server API.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// New creates a client for the given API base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader adds a header to every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) request(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}

// EndRound asks the server to end a round after the local countdown expired.
// Fire-and-forget from the caller's perspective: failures are returned only
// so they can be logged.
func (c *Client) EndRound(ctx context.Context, sessionCode string, roundID int) error {
	endpoint := fmt.Sprintf("/api/session/%s/rounds/%d/end/", strings.ToUpper(sessionCode), roundID)
	_, err := c.request(ctx, http.MethodPost, endpoint, nil)
	return err
}

// TTSJob is the server's answer to a synthesis submission. Either AudioURL is
// immediately usable or TaskID must be polled.
type TTSJob struct {
	TaskID   string `json:"task_id"`
	AudioURL string `json:"audio_url"`
}

// TTSStatus is one poll response for a synthesis job.
type TTSStatus struct {
	Status   string `json:"status"` // pending | processing | completed | failed
	AudioURL string `json:"audio_url"`
	Error    string `json:"error"`
}

// TTSRequest is a synthesis submission.
type TTSRequest struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Language string  `json:"language,omitempty"`
}

// SubmitTTS starts a synthesis job on the server-side proxy.
func (c *Client) SubmitTTS(ctx context.Context, req TTSRequest) (TTSJob, error) {
	raw, err := c.request(ctx, http.MethodPost, "/api/hedra-tts/", req)
	if err != nil {
		return TTSJob{}, err
	}
	var job TTSJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return TTSJob{}, fmt.Errorf("failed to parse TTS job response: %w", err)
	}
	return job, nil
}

// TTSJobStatus polls a synthesis job.
func (c *Client) TTSJobStatus(ctx context.Context, taskID string) (TTSStatus, error) {
	raw, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api/hedra-tts/%s/status/", url.PathEscape(taskID)), nil)
	if err != nil {
		return TTSStatus{}, err
	}
	var st TTSStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return TTSStatus{}, fmt.Errorf("failed to parse TTS status response: %w", err)
	}
	return st, nil
}

// TTSAudioURL returns the proxied audio location for a completed job. The
// proxy URL is preferred over the provider CDN the job may reference.
func (c *Client) TTSAudioURL(taskID string) string {
	return fmt.Sprintf("%s/api/hedra-tts/%s/audio/", c.baseURL, url.PathEscape(taskID))
}

// TTSStreamURL returns the one-shot streaming synthesis endpoint for short
// phrases, keyed by voice name.
func (c *Client) TTSStreamURL(text, voice string) string {
	params := url.Values{}
	params.Set("text", strings.TrimSpace(text))
	if voice != "" {
		params.Set("voice", voice)
	}
	return c.baseURL + "/api/tts/?" + params.Encode()
}
