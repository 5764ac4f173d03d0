package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

type rawCard struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Score   int    `json:"agreement_score"`
}

// decodeCandidates parses the model reply and drops cards that fail
// validation rather than failing the whole batch.
func (h *Harvester) decodeCandidates(content string) ([]opinion.Candidate, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, errors.New("response missing json payload")
	}

	var decoded struct {
		Cards []rawCard `json:"cards"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}

	out := make([]opinion.Candidate, 0, len(decoded.Cards))
	for _, card := range decoded.Cards {
		label := strings.TrimSpace(card.Label)
		summary := strings.TrimSpace(card.Summary)
		url := strings.TrimSpace(card.URL)
		if label == "" || summary == "" || url == "" {
			continue
		}
		if card.Score < -100 || card.Score > 100 {
			continue
		}
		out = append(out, opinion.Candidate{
			Label:   truncateRunes(label, h.LabelMax),
			Summary: truncateRunes(summary, h.SummaryMax),
			URL:     url,
			Score:   card.Score,
		})
	}
	return out, nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}
