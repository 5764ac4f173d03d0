package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the Kaleido service.
type Config struct {
	ListenAddr       string
	SQLitePath       string
	CORSOrigins      string
	OpenAIAPIKey     string
	TopicCardsModel  string
	ChatModel        string
	VoteWeight       float64
	ScoreBound       float64
	TriggerThreshold float64
	SelectTarget     int
	MinKept          int
	LabelMax         int
	SummaryMax       int
	SendTimeout      time.Duration
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:       getEnv("KALEIDO_LISTEN_ADDR", ":8000"),
		SQLitePath:       getEnv("KALEIDO_SQLITE_PATH", ""),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		TopicCardsModel:  getEnv("TOPIC_CARDS_MODEL", "gpt-4o-mini"),
		ChatModel:        getEnv("CHAT_MODEL", "gpt-4o-mini"),
		VoteWeight:       0.2,
		ScoreBound:       100,
		TriggerThreshold: 40,
		SelectTarget:     6,
		MinKept:          4,
		LabelMax:         40,
		SummaryMax:       200,
		SendTimeout:      5 * time.Second,
	}

	if weight := os.Getenv("KALEIDO_VOTE_WEIGHT"); weight != "" {
		if _, err := fmt.Sscanf(weight, "%f", &cfg.VoteWeight); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_VOTE_WEIGHT: %w", err)
		}
	}

	if threshold := os.Getenv("KALEIDO_TRIGGER_THRESHOLD"); threshold != "" {
		if _, err := fmt.Sscanf(threshold, "%f", &cfg.TriggerThreshold); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_TRIGGER_THRESHOLD: %w", err)
		}
	}

	if target := os.Getenv("KALEIDO_SELECT_TARGET"); target != "" {
		if _, err := fmt.Sscanf(target, "%d", &cfg.SelectTarget); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_SELECT_TARGET: %w", err)
		}
	}

	if minKept := os.Getenv("KALEIDO_MIN_KEPT"); minKept != "" {
		if _, err := fmt.Sscanf(minKept, "%d", &cfg.MinKept); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_MIN_KEPT: %w", err)
		}
	}

	if bound := os.Getenv("KALEIDO_SCORE_BOUND"); bound != "" {
		if _, err := fmt.Sscanf(bound, "%f", &cfg.ScoreBound); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_SCORE_BOUND: %w", err)
		}
	}

	if labelMax := os.Getenv("KALEIDO_LABEL_MAX"); labelMax != "" {
		if _, err := fmt.Sscanf(labelMax, "%d", &cfg.LabelMax); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_LABEL_MAX: %w", err)
		}
	}

	if summaryMax := os.Getenv("KALEIDO_SUMMARY_MAX"); summaryMax != "" {
		if _, err := fmt.Sscanf(summaryMax, "%d", &cfg.SummaryMax); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_SUMMARY_MAX: %w", err)
		}
	}

	if timeout := os.Getenv("KALEIDO_SEND_TIMEOUT_S"); timeout != "" {
		var seconds int
		if _, err := fmt.Sscanf(timeout, "%d", &seconds); err != nil {
			return Config{}, fmt.Errorf("parse KALEIDO_SEND_TIMEOUT_S: %w", err)
		}
		cfg.SendTimeout = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
