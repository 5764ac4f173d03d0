package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sawa-team5/CPI-5/internal/chat"
	"github.com/Sawa-team5/CPI-5/internal/config"
	"github.com/Sawa-team5/CPI-5/internal/harvest"
	"github.com/Sawa-team5/CPI-5/internal/llm"
	"github.com/Sawa-team5/CPI-5/internal/logging"
	"github.com/Sawa-team5/CPI-5/internal/opinion"
	"github.com/Sawa-team5/CPI-5/internal/push"
	"github.com/Sawa-team5/CPI-5/internal/store"
	transporthttp "github.com/Sawa-team5/CPI-5/internal/transport/http"
)

func main() {
	logging.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	var st store.Store
	if cfg.SQLitePath != "" {
		st, err = store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			slog.Error("open sqlite", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		slog.Info("sqlite store opened", "path", cfg.SQLitePath)
	} else {
		st = store.NewMemory()
		slog.Info("using in-memory store")
	}
	defer st.Close()

	registry := push.NewRegistry(push.WithSendTimeout(cfg.SendTimeout))
	trigger := push.NewTrigger(registry, cfg.TriggerThreshold)
	engine := opinion.NewEngine(st, st, st, trigger,
		opinion.WithVoteWeight(cfg.VoteWeight),
		opinion.WithScoreBound(cfg.ScoreBound))

	var harvester *harvest.Harvester
	var chatSvc *chat.Service
	if cfg.OpenAIAPIKey != "" {
		client := llm.NewClient(cfg.OpenAIAPIKey)
		harvester = harvest.NewHarvester(client, cfg.TopicCardsModel)
		harvester.TargetN = cfg.SelectTarget
		harvester.MinKept = cfg.MinKept
		harvester.LabelMax = cfg.LabelMax
		harvester.SummaryMax = cfg.SummaryMax
		chatSvc = chat.NewService(client, cfg.ChatModel)
		slog.Info("generation enabled", "cards_model", cfg.TopicCardsModel, "chat_model", cfg.ChatModel)
	} else {
		slog.Warn("OPENAI_API_KEY not set; seed and chat routes disabled")
	}

	server := transporthttp.NewServer(st, engine, harvester, chatSvc, registry, cfg)

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     withLogging(withCORS(cfg.CORSOrigins, server.Routes())),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func withCORS(origins string, next http.Handler) http.Handler {
	allowAll := origins == "" || origins == "*"
	allowed := make(map[string]struct{})
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
