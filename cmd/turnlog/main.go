// Package main implements the turn analytics consumer. It subscribes to the
// chat turn event stream published by the API server, logs each completed turn
// as structured JSON, and exposes aggregate counters for scraping.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/PartSenseAI/partsense-mvp/pkg/metrics"
	"github.com/PartSenseAI/partsense-mvp/pkg/natsutil"
)

const turnSubject = "chat.turn.completed"

// turnEvent mirrors the payload the API server publishes per completed turn.
type turnEvent struct {
	SessionID string   `json:"session_id"`
	Intents   []string `json:"intents"`
	Clarify   bool     `json:"clarify"`
	Snippets  int      `json:"snippets"`
	At        string   `json:"at"`
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	natsURL := envOr("NATS_URL", nats.DefaultURL)
	metricsPort, _ := strconv.Atoi(envOr("METRICS_PORT", "9091"))

	nc, err := nats.Connect(natsURL, nats.Name("partsense-turnlog"))
	if err != nil {
		logger.Error("nats connect failed", "url", natsURL, "err", err)
		os.Exit(1)
	}
	defer nc.Drain()

	reg := metrics.New()
	turns := reg.Counter("turnlog_turns_total", "Completed turns observed")
	clarifies := reg.Counter("turnlog_clarify_turns_total", "Turns answered with a clarifying question")
	empty := reg.Counter("turnlog_empty_context_turns_total", "Turns answered without any retrieved snippets")

	sub, err := natsutil.Subscribe(nc, turnSubject, func(_ context.Context, ev turnEvent) {
		turns.Inc()
		if ev.Clarify {
			clarifies.Inc()
		}
		if ev.Snippets == 0 && !ev.Clarify {
			empty.Inc()
		}
		logger.Info("turn completed",
			"session_id", ev.SessionID,
			"intents", ev.Intents,
			"clarify", ev.Clarify,
			"snippets", ev.Snippets,
			"at", ev.At,
		)
	})
	if err != nil {
		logger.Error("subscribe failed", "subject", turnSubject, "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	reg.ServeAsync(metricsPort)
	logger.Info("turnlog started", "subject", turnSubject, "metrics_port", metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutdown signal received")
}
