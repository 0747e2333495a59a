// Command voicebridge runs the telephony-to-agent audio bridge: it serves
// the Twilio call setup document, terminates Media Streams WebSocket
// connections, and relays each call to a realtime voice agent.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentplexus/voicebridge/agent"
	"github.com/agentplexus/voicebridge/bridge"
	"github.com/agentplexus/voicebridge/callsystem"
	"github.com/agentplexus/voicebridge/config"
	"github.com/agentplexus/voicebridge/httpd"
	"github.com/agentplexus/voicebridge/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("voicebridge exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := transport.New(transport.WithLogger(logger))
	if err != nil {
		return err
	}
	defer tr.Close()

	dial := func(ctx context.Context) (bridge.AgentConn, error) {
		return agent.Dial(ctx,
			agent.WithURL(cfg.AgentURL),
			agent.WithAPIKey(cfg.AgentAPIKey),
			agent.WithLogger(logger),
		)
	}

	var opts []bridge.BridgeOption
	opts = append(opts, bridge.WithLogger(logger))

	var registry *callsystem.Registry
	if cfg.RESTEnabled() {
		registry, err = callsystem.New(
			callsystem.WithAccountSID(cfg.TwilioAccountSID),
			callsystem.WithAuthToken(cfg.TwilioAuthToken),
		)
		if err != nil {
			return err
		}
		opts = append(opts, bridge.WithRegistry(registry))
		logger.Info("REST call control enabled")
	} else {
		logger.Info("REST call control disabled, set TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN to enable")
	}

	b := bridge.New(bridge.Config{
		Voice:         cfg.Voice,
		Instructions:  cfg.Instructions,
		OutputFormat:  cfg.OutputFormat,
		FillerTone:    cfg.FillerTone,
		OutboundTrack: cfg.OutboundTrack,
	}, dial, opts...)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpd.New(ctx, cfg, tr, b, registry, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port, "stream_url", cfg.StreamURL())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	_ = tr.Close()
	if registry != nil {
		_ = registry.Close()
	}
	return nil
}
