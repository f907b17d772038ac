// Package config centralizes every knob the TV client reads from the
// environment. Nothing else in the tree calls os.Getenv; components receive
// explicit values at construction.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full runtime configuration.
type Config struct {
	// Game server endpoints and the session this screen mirrors.
	ServerWSURL  string `env:"TVQUIZ_WS_URL" envDefault:"ws://localhost:8000"`
	ServerAPIURL string `env:"TVQUIZ_API_URL" envDefault:"http://localhost:8000"`
	SessionCode  string `env:"TVQUIZ_SESSION_CODE" envDefault:"NATA"`

	// Narration chain.
	Voice               string        `env:"TVQUIZ_TTS_VOICE"`
	ClipTablePath       string        `env:"TVQUIZ_NARRATION_CLIPS" envDefault:"assets/narration-clips.yaml"`
	BackendPollInterval time.Duration `env:"TVQUIZ_TTS_POLL_INTERVAL" envDefault:"1s"`
	BackendMaxAttempts  int           `env:"TVQUIZ_TTS_MAX_ATTEMPTS" envDefault:"60"`
	DirectBaseURL       string        `env:"TVQUIZ_HEDRA_BASE_URL"`
	DirectAPIKey        string        `env:"TVQUIZ_HEDRA_API_KEY"`
	DirectVoiceID       string        `env:"TVQUIZ_HEDRA_VOICE_ID"`
	DirectPollInterval  time.Duration `env:"TVQUIZ_HEDRA_POLL_INTERVAL" envDefault:"500ms"`
	DirectMaxAttempts   int           `env:"TVQUIZ_HEDRA_MAX_ATTEMPTS" envDefault:"30"`
	SpeechBinary        string        `env:"TVQUIZ_SPEECH_BINARY"`
	SpeechLang          string        `env:"TVQUIZ_SPEECH_LANG" envDefault:"ru"`

	// Local media assets.
	TensionTrackURL string `env:"TVQUIZ_TENSION_TRACK" envDefault:"assets/audio/tension.mp3"`
	InterludeDir    string `env:"TVQUIZ_INTERLUDE_DIR" envDefault:"assets/video/interludes"`
	PromoURL        string `env:"TVQUIZ_PROMO_VIDEO"`

	// mpv engines.
	MPVBinary    string `env:"TVQUIZ_MPV_BINARY" envDefault:"mpv"`
	MPVSocketDir string `env:"TVQUIZ_MPV_SOCKET_DIR" envDefault:"/tmp"`
	Fullscreen   bool   `env:"TVQUIZ_FULLSCREEN" envDefault:"true"`

	LogLevel string `env:"TVQUIZ_LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (when present) and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.SessionCode == "" {
		return Config{}, fmt.Errorf("session code must not be empty")
	}
	return cfg, nil
}
