package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/streamgate/channeld/channel"
	"github.com/streamgate/channeld/config"
	"github.com/streamgate/channeld/connection"
)

func main() {
	cfg := config.LoadFromEnv()

	var logWriter *os.File = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file, falling back to stderr", "file", cfg.LogFile, "error", err)
		} else {
			logWriter = f
			defer f.Close()
		}
	}

	runID := uuid.New()
	log := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("run_id", runID.String(), "channel_type", cfg.ChannelType, "channel_role", cfg.ChannelRole)
	slog.SetDefault(log)

	ch := buildChannel(cfg, log)

	if err := ch.ValidateConfiguration(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		ch.Shutdown()
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ch.Start(gctx, func(err error) {
			log.Error("channel reported a fatal connection error", "error", err)
		}, cfg.NumThreads)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("channel exited with error", "error", err)
		os.Exit(1)
	}
}

// buildChannel wires a Channel from cfg. This is a minimal default
// topology — one TCP input, one TCP output, a single video stream
// mapped between them — standing in for whatever real configuration
// source (file, discovery service) a deployment plugs in ahead of this.
func buildChannel(cfg config.Config, log *slog.Logger) *channel.Channel {
	ch := channel.New(1024,
		channel.WithLogger(log),
		channel.WithInlineHandlers(cfg.InlineHandlers),
	)

	inputName := "input"
	outputName := "output"

	if _, err := ch.AddInput(connection.Tcp, inputName, cfg.Adapter, cfg.Port, connection.Server, 0); err != nil {
		log.Error("failed to add input connection", "error", err)
		os.Exit(1)
	}
	if _, err := ch.AddOutput(connection.Tcp, outputName, cfg.Host, cfg.Port+1, connection.Client, cfg.SmallBufferPoolSize); err != nil {
		log.Error("failed to add output connection", "error", err)
		os.Exit(1)
	}

	streamID := uint16(100)
	if _, err := ch.AddVideoStream(streamID, cfg.VideoWidth, cfg.VideoHeight, cfg.VideoFrameRate); err != nil {
		log.Error("failed to add video stream", "error", err)
		os.Exit(1)
	}
	if err := ch.MapStream(streamID, inputName); err != nil {
		log.Error(fmt.Sprintf("failed to map stream %d to %s", streamID, inputName), "error", err)
		os.Exit(1)
	}
	if err := ch.MapStream(streamID, outputName); err != nil {
		log.Error(fmt.Sprintf("failed to map stream %d to %s", streamID, outputName), "error", err)
		os.Exit(1)
	}

	return ch
}
