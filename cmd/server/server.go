package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/loopback"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	wssignal "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
)

var errEngineLost = errors.New("media engine lost")

type mediaEngine interface {
	core.MediaGateway
	Shutdown()
}

func newMediaEngine(cfg config.MediaConfig) (mediaEngine, error) {
	if cfg.Engine == config.EngineLoopback {
		log.Warn().Str("module", "main").Msg("using loopback media engine, no media will flow")
		return loopback.New(), nil
	}
	return rtc.NewGateway(rtc.Options{
		ICEServers: cfg.ICEServers,
		UDPPortMin: cfg.UDPPortMin,
		UDPPortMax: cfg.UDPPortMax,
	})
}

func run(parent context.Context, v *viper.Viper, configFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	config.ApplyLogLevel(cfg.LogLevel)
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	config.Watch(v)

	media, err := newMediaEngine(cfg.Media)
	if err != nil {
		return fmt.Errorf("media engine: %w", err)
	}
	defer media.Shutdown()

	o := orch.New(
		app.NewRegistry(),
		app.NewRoomManager(),
		app.SimplePolicy{DeleteEmptyRooms: cfg.Rooms.DeleteOnEmpty, Grace: cfg.Rooms.ReconnectGrace},
		media,
		orch.ChatOptions{
			MaxLength:    cfg.Chat.MaxLength,
			RateLimit:    cfg.Chat.RateLimit,
			RateInterval: cfg.Chat.RateInterval,
		},
	)
	ctl := wssignal.NewSignalWSController(o, wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Timeout:    cfg.Signal.Timeout,
		SendBuffer: cfg.Signal.SendBuffer,
	})

	g, gctx := errgroup.WithContext(ctx)
	r := router.SetupRouter(gctx, cfg, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Room and handle state cannot be trusted once the engine is gone.
		select {
		case <-media.Done():
			log.Error().Str("module", "main").Msg("media engine lost, exiting")
			return errEngineLost
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("module", "main").Msg("Server exited gracefully")
	return nil
}
