package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/clients/quizapi"
	"github.com/nkarpachev/tvquiz/go/internal/config"
	"github.com/nkarpachev/tvquiz/go/internal/gateway"
	"github.com/nkarpachev/tvquiz/go/internal/interlude"
	"github.com/nkarpachev/tvquiz/go/internal/media/mpv"
	"github.com/nkarpachev/tvquiz/go/internal/narration"
	"github.com/nkarpachev/tvquiz/go/internal/show"
)

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	sessionCode := strings.ToUpper(cfg.SessionCode)
	clock := clockwork.NewRealClock()
	api := quizapi.New(cfg.ServerAPIURL)

	// Two engines: one audio-only for narration and music, one with video
	// output for interludes.
	audio, err := mpv.New(mpv.Options{
		Binary:     cfg.MPVBinary,
		SocketPath: filepath.Join(cfg.MPVSocketDir, "tvquiz-audio.sock"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start audio engine")
	}
	defer audio.Close()

	video, err := mpv.New(mpv.Options{
		Binary:     cfg.MPVBinary,
		SocketPath: filepath.Join(cfg.MPVSocketDir, "tvquiz-video.sock"),
		Video:      true,
		Fullscreen: cfg.Fullscreen,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start video engine")
	}
	defer video.Close()

	speaker, err := narration.NewSpeaker(narration.Config{
		ClipTablePath:       cfg.ClipTablePath,
		Voice:               cfg.Voice,
		BackendPollInterval: cfg.BackendPollInterval,
		BackendMaxAttempts:  cfg.BackendMaxAttempts,
		DirectBaseURL:       cfg.DirectBaseURL,
		DirectAPIKey:        cfg.DirectAPIKey,
		DirectVoiceID:       cfg.DirectVoiceID,
		DirectPollInterval:  cfg.DirectPollInterval,
		DirectMaxAttempts:   cfg.DirectMaxAttempts,
		SpeechBinary:        cfg.SpeechBinary,
		SpeechLang:          cfg.SpeechLang,
	}, api, audio, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build narration chain")
	}

	var client *gateway.Client
	director := show.New(show.Config{
		SessionCode:     sessionCode,
		Clock:           clock,
		Sender:          senderFunc(func(v any) { client.Send(v) }),
		API:             api,
		Narrator:        speaker,
		Music:           audio,
		Video:           video,
		Display:         show.LogView{},
		InterludeView:   show.LogView{},
		TensionTrackURL: cfg.TensionTrackURL,
		InterludeAssets: interlude.Assets{
			InterludeDir: cfg.InterludeDir,
			PromoURL:     cfg.PromoURL,
		},
	})

	client = gateway.NewClient(cfg.ServerWSURL, sessionCode, clock, director.HandleEvent)
	client.OnConnectivity(director.OnConnectivity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("session", sessionCode).
		Str("ws_url", cfg.ServerWSURL).
		Msg("starting tvquiz display client")

	go client.Run(ctx)
	<-ctx.Done()
	log.Info().Msg("shutting down")
}

// senderFunc adapts a closure to the command sender interface so the director
// can be built before the gateway client that carries its commands.
type senderFunc func(v any)

func (f senderFunc) Send(v any) { f(v) }
