// Package harvest collects candidate opinion cards for a topic from the
// chat completion API and narrows them down to a diverse selection.
package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Sawa-team5/CPI-5/internal/llm"
	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

// ErrTooFewCandidates is returned when every attempt produced fewer usable
// cards than the configured minimum.
var ErrTooFewCandidates = errors.New("harvest: too few candidates")

// Harvester asks the model for raw candidates and runs diversity selection on
// the result, retrying the whole round trip on upstream failures.
type Harvester struct {
	Client llm.ChatClient
	Model  string

	TargetN    int           // cards to keep after selection
	MinKept    int           // below this the attempt is considered failed
	MaxItems   int           // cards to request from the model
	LabelMax   int           // label length cap, in runes
	SummaryMax int           // summary length cap, in runes
	Attempts   int           // round trips before giving up
	Backoff    time.Duration // grows linearly per attempt

	Log *slog.Logger
}

// NewHarvester constructs a harvester with the default knobs.
func NewHarvester(client llm.ChatClient, model string) *Harvester {
	return &Harvester{
		Client:     client,
		Model:      model,
		TargetN:    6,
		MinKept:    4,
		MaxItems:   8,
		LabelMax:   40,
		SummaryMax: 200,
		Attempts:   3,
		Backoff:    600 * time.Millisecond,
		Log:        slog.Default(),
	}
}

// Collect gathers candidates for topic and returns the diverse selection.
// Each failed attempt backs off a little longer than the previous one.
func (h *Harvester) Collect(ctx context.Context, topic string) (opinion.SelectionResult, error) {
	if topic == "" {
		return opinion.SelectionResult{}, fmt.Errorf("%w: empty topic", opinion.ErrInvalidInput)
	}
	if h.Client == nil || h.Model == "" {
		return opinion.SelectionResult{}, errors.New("harvest: client not configured")
	}

	var lastErr error
	for attempt := 1; attempt <= h.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return opinion.SelectionResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * h.Backoff):
			}
		}

		sel, err := h.collectOnce(ctx, topic)
		if err == nil {
			return sel, nil
		}
		lastErr = err
		h.Log.Warn("harvest attempt failed", "topic", topic, "attempt", attempt, "err", err)
	}
	return opinion.SelectionResult{}, fmt.Errorf("harvest %q after %d attempts: %w", topic, h.Attempts, lastErr)
}

func (h *Harvester) collectOnce(ctx context.Context, topic string) (opinion.SelectionResult, error) {
	resp, err := h.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: h.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: h.userPrompt(topic)},
		},
		Temperature: 0.8,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "topic_cards",
				Schema: json.RawMessage(cardsSchema),
				Strict: true,
			},
		},
	})
	if err != nil {
		return opinion.SelectionResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return opinion.SelectionResult{}, errors.New("response missing choices")
	}

	candidates, err := h.decodeCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return opinion.SelectionResult{}, err
	}

	sel := opinion.SelectDiverse(candidates, h.TargetN)
	if sel.Kept < h.MinKept {
		return opinion.SelectionResult{}, fmt.Errorf("%w: kept %d of %d", ErrTooFewCandidates, sel.Kept, len(candidates))
	}
	return sel, nil
}

func (h *Harvester) userPrompt(topic string) string {
	return fmt.Sprintf(`Topic: %s

Produce %d distinct opinion cards about this topic.
Rules:
- Each card states one concrete position someone actually holds.
- Cover the full range: strongly supportive, strongly opposing, and neutral positions.
- Cite a real, relevant source URL for each card; vary the outlets.
- agreement_score is an integer from -100 (fully opposing) to 100 (fully supportive).
- Keep each label under %d characters and each summary under %d characters.`,
		topic, h.MaxItems, h.LabelMax, h.SummaryMax)
}

const systemPrompt = "You survey public discourse and summarize real positions people take on a topic. Respond strictly with JSON matching the provided schema."

const cardsSchema = `{
  "type": "object",
  "properties": {
    "cards": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "label": {"type": "string"},
          "summary": {"type": "string"},
          "url": {"type": "string"},
          "agreement_score": {"type": "integer"}
        },
        "required": ["label", "summary", "url", "agreement_score"],
        "additionalProperties": false
      }
    }
  },
  "required": ["cards"],
  "additionalProperties": false
}`
