// Package chat runs the short reflective dialogue offered when a user's
// stance becomes one-sided.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Sawa-team5/CPI-5/internal/llm"
	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

// maxSteps bounds the dialogue; the final step wraps up regardless of input.
const maxSteps = 8

// stepGoals steer each turn of the dialogue. Step n uses stepGoals[n-1].
var stepGoals = [maxSteps]string{
	"Acknowledge the user's position warmly and ask what drew them to it.",
	"Ask for the concrete experience or source behind their view.",
	"Introduce the strongest opposing argument as something worth examining, not refuting.",
	"Ask what a thoughtful person on the other side might be worried about.",
	"Explore which part of the opposing view, if any, feels even slightly reasonable.",
	"Ask what evidence would make them reconsider, even partially.",
	"Invite them to restate their position now, noting anything that shifted.",
	"Close by thanking them and summarizing the nuance they surfaced.",
}

// Reply is one assistant turn.
type Reply struct {
	Reply string `json:"reply"`
	Step  int    `json:"step"`
}

type session struct {
	step     int
	messages []openai.ChatCompletionMessage
}

// Service keeps one dialogue per session id in memory.
type Service struct {
	client llm.ChatClient
	model  string

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService constructs the dialogue service.
func NewService(client llm.ChatClient, model string) *Service {
	return &Service{
		client:   client,
		model:    model,
		sessions: make(map[string]*session),
	}
}

// Chat advances the dialogue for sessionID by one step and returns the
// assistant's turn. themeTitle, stanceScore and agreedOpinion describe the
// skewed stance that opened the dialogue.
func (s *Service) Chat(ctx context.Context, sessionID, message, themeTitle string, stanceScore float64, agreedOpinion string) (Reply, error) {
	if sessionID == "" || strings.TrimSpace(message) == "" {
		return Reply{}, fmt.Errorf("%w: session id and message are required", opinion.ErrInvalidInput)
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: s.systemPrompt(themeTitle, stanceScore, agreedOpinion)},
			},
		}
		s.sessions[sessionID] = sess
	}
	if sess.step < maxSteps {
		sess.step++
	}
	step := sess.step

	sess.messages = append(sess.messages,
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("Step %d of %d. Goal: %s Keep the reply under 3 sentences.", step, maxSteps, stepGoals[step-1]),
		},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message},
	)
	history := make([]openai.ChatCompletionMessage, len(sess.messages))
	copy(history, sess.messages)
	s.mu.Unlock()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    history,
		Temperature: 0.7,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}

	reply := ""
	if len(resp.Choices) > 0 {
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if reply == "" {
		reply = "I didn't quite catch that. Could you tell me a bit more about how you see it?"
	}

	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.messages = append(sess.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply,
		})
	}
	s.mu.Unlock()

	return Reply{Reply: reply, Step: step}, nil
}

func (s *Service) systemPrompt(themeTitle string, stanceScore float64, agreedOpinion string) string {
	var b strings.Builder
	b.WriteString("You guide a short reflective dialogue with someone whose view on a topic has become one-sided. ")
	b.WriteString("You never argue them out of their position; you help them examine it. Be curious and concise.")
	if themeTitle != "" {
		fmt.Fprintf(&b, "\nTopic: %s.", themeTitle)
	}
	fmt.Fprintf(&b, "\nTheir current stance score is %.0f on a -100..100 scale.", stanceScore)
	if agreedOpinion != "" {
		fmt.Fprintf(&b, "\nThey most recently agreed with: %q.", agreedOpinion)
	}
	return b.String()
}
