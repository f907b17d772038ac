package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nkarpachev/tvquiz/go/internal/media"
)

const (
	defaultDirectBaseURL      = "https://api.hedra.com/web-app/public"
	defaultDirectPollInterval = 500 * time.Millisecond
	defaultDirectMaxAttempts  = 30
)

// DirectSynth calls the speech provider API straight from the appliance.
// Only used when an API key is configured client-side; otherwise it reports
// ErrNotConfigured and the chain falls through.
type DirectSynth struct {
	baseURL string
	apiKey  string
	voiceID string
	player  media.Player
	clock   clockwork.Clock
	http    *http.Client

	pollInterval time.Duration
	maxAttempts  int
}

// NewDirectSynth builds the direct provider adapter from config.
func NewDirectSynth(cfg Config, player media.Player, clock clockwork.Clock) *DirectSynth {
	baseURL := cfg.DirectBaseURL
	if baseURL == "" {
		baseURL = defaultDirectBaseURL
	}
	interval := cfg.DirectPollInterval
	if interval <= 0 {
		interval = defaultDirectPollInterval
	}
	attempts := cfg.DirectMaxAttempts
	if attempts <= 0 {
		attempts = defaultDirectMaxAttempts
	}
	return &DirectSynth{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       cfg.DirectAPIKey,
		voiceID:      cfg.DirectVoiceID,
		player:       player,
		clock:        clock,
		http:         &http.Client{Timeout: 20 * time.Second},
		pollInterval: interval,
		maxAttempts:  attempts,
	}
}

type generation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message"`
	Asset  struct {
		Asset struct {
			URL string `json:"url"`
		} `json:"asset"`
	} `json:"asset"`
}

// Speak synthesizes text via the provider and plays the resulting audio.
func (d *DirectSynth) Speak(ctx context.Context, text string) error {
	if d.apiKey == "" || d.voiceID == "" {
		return ErrNotConfigured
	}

	gen, err := d.createGeneration(ctx, text)
	if err != nil {
		return err
	}

	audioURL := gen.Asset.Asset.URL
	if gen.Status != "complete" || audioURL == "" {
		audioURL, err = d.poll(ctx, gen.ID)
		if err != nil {
			return err
		}
	}

	if err := d.player.Play(ctx, audioURL, media.PlayOptions{Volume: 1.0}); err != nil {
		return fmt.Errorf("failed to play provider audio: %w", err)
	}
	return nil
}

func (d *DirectSynth) createGeneration(ctx context.Context, text string) (*generation, error) {
	payload, err := json.Marshal(map[string]any{
		"type":     "text_to_speech",
		"voice_id": d.voiceID,
		"text":     text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", d.apiKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var gen generation
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	return &gen, nil
}

func (d *DirectSynth) poll(ctx context.Context, id string) (string, error) {
	for i := 0; i < d.maxAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-d.clock.After(d.pollInterval):
		}

		gen, err := d.fetchGeneration(ctx, id)
		if err != nil {
			continue
		}
		switch gen.Status {
		case "complete":
			if url := gen.Asset.Asset.URL; url != "" {
				return url, nil
			}
		case "error":
			return "", fmt.Errorf("%w: %s", ErrSynthesisFailed, gen.Error)
		}
	}
	return "", ErrSynthesisTimeout
}

func (d *DirectSynth) fetchGeneration(ctx context.Context, id string) (*generation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/generations?limit=5", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", d.apiKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list struct {
		Data []generation `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	for i := range list.Data {
		if list.Data[i].ID == id {
			return &list.Data[i], nil
		}
	}
	return nil, fmt.Errorf("generation %s not in list", id)
}

// Stop halts any playing provider audio.
func (d *DirectSynth) Stop() {
	d.player.Stop()
}
