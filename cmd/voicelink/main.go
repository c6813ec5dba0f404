package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/config"
	"github.com/jihoon-dev/voicelink/internal/credential"
	"github.com/jihoon-dev/voicelink/internal/device"
	"github.com/jihoon-dev/voicelink/internal/history"
	"github.com/jihoon-dev/voicelink/internal/orchestrator"
	"github.com/jihoon-dev/voicelink/internal/protocol"
	"github.com/jihoon-dev/voicelink/internal/signaling"
	"github.com/jihoon-dev/voicelink/internal/tools"
	"github.com/jihoon-dev/voicelink/internal/transport"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.LoadClient()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	mic, err := device.NewMicrophone(logger)
	if err != nil {
		logger.Fatal("create microphone", zap.Error(err))
	}
	speaker := device.NewSpeaker(logger)

	var store history.Store
	if cfg.HistoryDSN != "" {
		pg, err := history.NewPostgresStore(context.Background(), cfg.HistoryDSN)
		if err != nil {
			logger.Fatal("connect history store", zap.Error(err))
		}
		defer pg.Close()
		store = pg
	} else {
		store = history.NewMemoryStore()
	}

	orch := orchestrator.New(orchestrator.Deps{
		Credentials: credential.NewClient(cfg.TokenEndpoint, cfg.TokenAuth, logger),
		Microphone:  mic,
		NewTransport: func() (orchestrator.Transport, error) {
			peer, err := transport.NewPeer(logger, cfg.STUNServers, mic.Track())
			if err != nil {
				return nil, err
			}
			peer.OnRemoteTrack(speaker.Play)
			return peer, nil
		},
		Signaler: signaling.New(cfg.SignalingURL, logger),
		Tools: tools.NewDispatcher(
			tools.NewHTTPSearcher(cfg.SearchURL, cfg.SearchAuth, logger),
			logger,
		),
		Router:  device.NewSpeakerRouter(logger, speaker),
		History: store,
		Logger:  logger,
	})

	orch.OnTranscript(func(ev history.TranscriptEvent) {
		fmt.Printf("[%s] %s\n", ev.Role, ev.Text)
	})
	orch.OnStateChange(func(st orchestrator.SessionState) {
		if st.Phase == orchestrator.PhaseError {
			fmt.Printf("session error: %s\n", st.LastError)
		}
	})

	sessionCfg := protocol.SessionConfig{
		Model: cfg.Model,
		Voice: cfg.Voice,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = orch.Start(ctx, sessionCfg)
	cancel()
	if err != nil {
		logger.Fatal("start session", zap.Error(err))
	}
	fmt.Println("voice session started, press Ctrl-C to hang up")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("hanging up")
	endCtx, endCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer endCancel()
	if err := orch.End(endCtx); err != nil {
		logger.Warn("end session", zap.Error(err))
	}
}
