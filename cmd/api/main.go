// Package main implements the PartSense API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PartSenseAI/partsense-mvp/engine/answer"
	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/graph"
	"github.com/PartSenseAI/partsense-mvp/engine/planner"
	"github.com/PartSenseAI/partsense-mvp/engine/rag"
	"github.com/PartSenseAI/partsense-mvp/engine/schema"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
	"github.com/PartSenseAI/partsense-mvp/engine/session"
	"github.com/PartSenseAI/partsense-mvp/pkg/fn"
	"github.com/PartSenseAI/partsense-mvp/pkg/metrics"
	"github.com/PartSenseAI/partsense-mvp/pkg/mid"
	"github.com/PartSenseAI/partsense-mvp/pkg/natsutil"
	"github.com/PartSenseAI/partsense-mvp/pkg/ollama"
	"github.com/PartSenseAI/partsense-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	Neo4jURL         string
	Neo4jUser        string
	Neo4jPass        string
	QdrantURL        string
	CollectionPrefix string
	OllamaURL        string
	EmbedModel       string
	ChatModel        string
	NATSURL          string
	CORSOrigin       string
}

func loadConfig() Config {
	return Config{
		Port:             envOr("PORT", "8080"),
		Neo4jURL:         envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:        envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:        envOr("NEO4J_PASS", "password"),
		QdrantURL:        envOr("QDRANT_URL", "localhost:6334"),
		CollectionPrefix: envOr("QDRANT_COLLECTION_PREFIX", "partsense"),
		OllamaURL:        envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:       envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:        envOr("CHAT_MODEL", "llama3.1:8b"),
		NATSURL:          envOr("NATS_URL", ""),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.NewStore(cfg.QdrantURL, cfg.CollectionPrefix)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = vectorStore.CheckCollections(checkCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("qdrant collections: %w", err)
	}

	// --- Optional NATS analytics stream ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("partsense-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
	}

	// --- Build the query engine ---
	registry := schema.New()
	metricsReg := metrics.New()

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	vecRetriever := semantic.NewRetriever(embedder, vectorStore, 0.35)
	graphRetriever := graph.New(driver, registry, logger)

	chat := ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, 0.2)
	synth := answer.New(chat, answer.DefaultOptions(), logger)

	sessions := session.NewManager(session.DefaultOptions(), logger)
	defer sessions.Close()

	ragSvc := rag.NewService(
		planner.New(registry, logger),
		graphRetriever,
		vecRetriever,
		rag.NewAssembler(registry, rag.DefaultAssemblerOpts()),
		synth,
		sessions,
		rag.DefaultOptions(),
		metricsReg,
		logger,
	)

	// --- Build HTTP server ---
	partRepo := newPartRepo(driver)
	modelRepo := newModelRepo(driver)

	// Chat turns are the expensive path (graph + vector + LLM), so they get
	// their own inbound rate limit; catalog reads stay unthrottled.
	chatLimiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: 5, Burst: 10})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/chat", mid.RateLimit(chatLimiter)(handleChat(ragSvc, nc, logger)))
	mux.HandleFunc("GET /api/parts/{num}", handleGetPart(partRepo, logger))
	mux.HandleFunc("GET /api/parts", handleListParts(partRepo))
	mux.HandleFunc("GET /api/models/{num}", handleGetModel(modelRepo, logger))
	mux.Handle("GET /metrics", metricsReg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("partsense-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnEvent is published to NATS after each completed turn.
type TurnEvent struct {
	SessionID string   `json:"session_id"`
	Intents   []string `json:"intents"`
	Clarify   bool     `json:"clarify"`
	Snippets  int      `json:"snippets"`
	At        string   `json:"at"`
}

const turnSubject = "chat.turn.completed"

func handleChat(ragSvc *rag.Service, nc *nats.Conn, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
			return
		}

		reply, err := ragSvc.Query(r.Context(), req.SessionID, req.Message)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				http.Error(w, fmt.Sprintf(`{"error":%q}`, verr.Error()), http.StatusBadRequest)
				return
			}
			logger.Error("rag query failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		if nc != nil {
			ev := TurnEvent{
				SessionID: reply.SessionID,
				Intents:   fn.Map(reply.Intents, func(it planner.Intent) string { return string(it) }),
				Clarify:   reply.Clarify,
				Snippets:  reply.Snippets,
				At:        time.Now().UTC().Format(time.RFC3339),
			}
			if err := natsutil.Publish(r.Context(), nc, turnSubject, ev); err != nil {
				logger.Warn("turn event publish failed", "err", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}
}
