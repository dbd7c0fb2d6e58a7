package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"chorus/agent/internal/audiodev"
	"chorus/agent/internal/client"
	"chorus/agent/internal/config"
	"chorus/agent/internal/gate"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/playback"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("client stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	gcfg, err := gate.Profile(cfg.Gate.Profile)
	if err != nil {
		return err
	}
	var cls gate.Classifier
	vad, err := gate.NewWebRTC(cfg.Client.InputRate, gcfg)
	if err != nil {
		log.Warn().Err(err).Msg("webrtc vad unavailable, using RMS")
		cls = gate.RMS{Threshold: gcfg.RMSThreshold}
	} else {
		cls = vad
	}

	terminate, err := audiodev.Init()
	if err != nil {
		return err
	}
	defer terminate()

	mixer := playback.NewMixer(cfg.Client.OutputRate)
	out, err := audiodev.OpenPlayback(cfg.Client.OutputRate, cfg.Client.OutputRate/100, mixer)
	if err != nil {
		return err
	}
	defer out.Close()

	mic, err := audiodev.OpenCapture(cfg.Client.InputRate, cfg.Client.FramesPerBuffer)
	if err != nil {
		return err
	}

	remote := client.NewRemote(client.Config{
		ServerURL:   cfg.Client.ServerURL,
		BootstrapID: cfg.Client.BootstrapID,
		SampleRate:  cfg.Client.InputRate,
	})
	player := playback.New(mixer, playback.MP3{}, remote)
	g := gate.New(cls, gcfg)

	log.Info().
		Str("server", cfg.Client.ServerURL).
		Str("profile", cfg.Gate.Profile).
		Int("input_rate", cfg.Client.InputRate).
		Msg("listening")

	go g.Run(ctx, mic.Run(ctx))
	client.Drive(ctx, g.Events(), player, remote)
	player.Wait()

	st := player.State()
	log.Info().Int("queued", st.Queued).Strs("panners", st.Panners).Msg("client stopped")
	return nil
}
