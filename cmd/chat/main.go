// Package main implements a lightweight streaming chat API. It skips graph
// planning entirely: questions are embedded, matched against the vector
// collections, and the answer is streamed back over SSE. Useful for demos and
// for exercising the vector path in isolation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/engine/semantic"
	"github.com/PartSenseAI/partsense-mvp/pkg/fn"
	"github.com/PartSenseAI/partsense-mvp/pkg/ollama"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

const systemPrompt = `You are a helpful appliance parts assistant.
Answer the user's question using ONLY the provided context from the knowledge base.
If the context does not contain enough information, say so honestly and ask for
the appliance model number. Be concise and practical.`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	qdrantAddr := envOr("QDRANT_URL", "localhost:6334")
	prefix := envOr("QDRANT_COLLECTION_PREFIX", "partsense")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	chatModel := envOr("CHAT_MODEL", "llama3.1:8b")
	port := envOr("PORT", "8090")

	store, err := semantic.NewStore(qdrantAddr, prefix)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	retriever := semantic.NewRetriever(ollama.NewEmbedClient(ollamaURL, embedModel), store, 0.3)
	chat := ollama.NewChatClient(ollamaURL, chatModel, 0.3)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(w, r, retriever, chat, logger)
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + port, Handler: corsMiddleware(mux)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("chat API starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type chatRequest struct {
	Question string `json:"question"`
}

type sourceDoc struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	ContentType string  `json:"content_type"`
	Score       float32 `json:"score"`
}

// searchedTypes are the collections the demo endpoint queries, in the order
// their results are presented.
var searchedTypes = []domain.ContentType{domain.ContentQnA, domain.ContentStories, domain.ContentParts}

// searcher is the slice of the retriever this handler needs.
type searcher interface {
	Search(ctx context.Context, query string, ct domain.ContentType, topK int) ([]semantic.Hit, error)
}

// searchAll queries every collection concurrently. Results stay grouped by
// content type: similarity scores are only comparable within one collection,
// so hits are never re-ranked across types. A failed collection contributes
// nothing and the rest proceed.
func searchAll(ctx context.Context, s searcher, question string, logger *slog.Logger) []semantic.Hit {
	groups := fn.ParMap(searchedTypes, len(searchedTypes), func(ct domain.ContentType) []semantic.Hit {
		found, err := s.Search(ctx, question, ct, 3)
		if err != nil {
			logger.Warn("search failed", "content_type", ct, "err", err)
			return nil
		}
		return found
	})
	var hits []semantic.Hit
	for _, g := range groups {
		hits = append(hits, g...)
	}
	return hits
}

func handleChat(w http.ResponseWriter, r *http.Request, retriever searcher, chat *ollama.ChatClient, logger *slog.Logger) {
	if r.Method != "POST" {
		http.Error(w, "method not allowed", 405)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		http.Error(w, `{"error":"question required"}`, 400)
		return
	}

	ctx := r.Context()

	hits := searchAll(ctx, retriever, req.Question, logger)

	sources := fn.Map(hits, func(h semantic.Hit) sourceDoc {
		return sourceDoc{
			ID:          h.ID,
			Content:     h.Content,
			ContentType: string(h.ContentType),
			Score:       h.Score,
		}
	})
	var contextParts []string
	for i, h := range hits {
		contextParts = append(contextParts, fmt.Sprintf("[%d] (type: %s, score: %.3f)\n%s", i+1, h.ContentType, h.Score, h.Content))
	}

	contextText := strings.Join(contextParts, "\n\n")
	prompt := fmt.Sprintf("Context from knowledge base:\n%s\n\nUser question: %s", contextText, req.Question)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", 500)
		return
	}

	sourcesJSON, _ := json.Marshal(sources)
	fmt.Fprintf(w, "event: sources\ndata: %s\n\n", sourcesJSON)
	flusher.Flush()

	err := chat.ChatStream(ctx, systemPrompt, prompt, func(token string) {
		tokenJSON, _ := json.Marshal(map[string]string{"token": token})
		fmt.Fprintf(w, "event: token\ndata: %s\n\n", tokenJSON)
		flusher.Flush()
	})
	if err != nil {
		logger.Error("chat stream failed", "err", err)
		fmt.Fprintf(w, "event: error\ndata: {\"error\":\"model unavailable\"}\n\n")
		flusher.Flush()
		return
	}
	fmt.Fprintf(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}
