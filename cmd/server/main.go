package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chorus/agent/internal/api"
	"chorus/agent/internal/auth"
	"chorus/agent/internal/config"
	"chorus/agent/internal/events"
	"chorus/agent/internal/feed"
	"chorus/agent/internal/floor"
	chealth "chorus/agent/internal/health"
	"chorus/agent/internal/llm"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/orchestrator"
	"chorus/agent/internal/store"
	"chorus/agent/internal/stt"
	"chorus/agent/internal/tts"
	"chorus/agent/internal/types"
)

const serviceName = "chorus.Server"

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	audio, err := store.New(cfg.Storage.Dir, cfg.Storage.Retention)
	if err != nil {
		return err
	}

	gen, closeGen, err := llm.New(ctx, llm.Config{
		Provider:        cfg.LLM.Provider,
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		AzureAPIVersion: cfg.LLM.AzureAPIVersion,
	})
	if err != nil {
		return err
	}
	defer closeGen()

	sched, err := floor.New(gen, cfg.Personalities, floor.Options{
		Mode:             floor.Mode(cfg.Scheduler.Mode),
		ActiveID:         cfg.Scheduler.ActiveID,
		MaxHistoryLength: cfg.Scheduler.MaxHistoryLength,
		MaxTotalChars:    cfg.Scheduler.MaxTotalChars,
		AutoDrain:        cfg.Scheduler.AutoDrain,
	})
	if err != nil {
		return err
	}

	transcriber := stt.NewDeepgram(stt.DeepgramConfig{
		APIKey:   cfg.Deepgram.APIKey,
		Model:    cfg.Deepgram.Model,
		Language: cfg.Deepgram.Language,
		BaseURL:  cfg.Deepgram.BaseURL,
	})
	synth := tts.NewElevenLabs(tts.ElevenLabsConfig{
		APIKey:  cfg.Eleven.APIKey,
		ModelID: cfg.Eleven.ModelID,
		BaseURL: cfg.Eleven.BaseURL,
	})

	journal := events.NewStore(cfg.Feed.MaxEvents)
	hub := feed.NewHub()
	journal.SetPublisher(hub)

	pipe := orchestrator.New(transcriber, sched, synth, audio, journal)
	pipe.OnDeferredUnit = func(u *types.AudioUnit) {
		log.Info().Str("unit", u.ID).Str("participant", u.ParticipantID).Msg("deferred reply ready on /last-audio")
	}
	h := api.NewHandlers(pipe, audio, journal, auth.Guard(cfg.Feed.Secret, hub), func(ctx context.Context) chealth.HealthStatus {
		return chealth.CheckAll(ctx, cfg)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Int("personalities", len(cfg.Personalities)).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			return err
		}
		log.Info().Str("addr", lis.Addr().String()).Msg("grpc health server starting")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received; draining")
		h.SetReady(false)
		hs.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		grpcSrv.GracefulStop()
		if err := sched.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Int("pending", sched.PendingCount()).Msg("background replies abandoned")
		}
		return nil
	})
	return g.Wait()
}
