// Package transporthttp exposes the service over HTTP and WebSocket.
package transporthttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Sawa-team5/CPI-5/internal/chat"
	"github.com/Sawa-team5/CPI-5/internal/config"
	"github.com/Sawa-team5/CPI-5/internal/harvest"
	"github.com/Sawa-team5/CPI-5/internal/opinion"
	"github.com/Sawa-team5/CPI-5/internal/push"
	"github.com/Sawa-team5/CPI-5/internal/store"
)

type Server struct {
	store     store.Store
	engine    *opinion.Engine
	harvester *harvest.Harvester
	chat      *chat.Service
	registry  *push.Registry
	cfg       config.Config
}

// NewServer wires the handlers. harvester and chatSvc may be nil when no API
// key is configured; their routes answer 503.
func NewServer(st store.Store, engine *opinion.Engine, harvester *harvest.Harvester, chatSvc *chat.Service, registry *push.Registry, cfg config.Config) *Server {
	return &Server{
		store:     st,
		engine:    engine,
		harvester: harvester,
		chat:      chatSvc,
		registry:  registry,
		cfg:       cfg,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /api/themes", s.handleThemes)
	mux.HandleFunc("POST /api/news/vote", s.handleVote)
	mux.HandleFunc("GET /api/news/stance/{userID}/{themeID}", s.handleStance)
	mux.HandleFunc("POST /api/news/conviction", s.handleConviction)
	mux.HandleFunc("POST /api/users/register", s.handleRegister)
	mux.HandleFunc("POST /api/users/login", s.handleLogin)
	mux.HandleFunc("GET /api/users/{userID}", s.handleUser)
	mux.HandleFunc("GET /api/users/{userID}/votes", s.handleVoteHistory)
	mux.HandleFunc("POST /api/seed/preview", s.handleSeedPreview)
	mux.HandleFunc("POST /api/seed/theme", s.handleSeedTheme)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := s.store.ListThemes(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if themes == nil {
		themes = []opinion.Theme{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"themes": themes})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID    string `json:"userId"`
		OpinionID string `json:"opinionId"`
		VoteType  string `json:"voteType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	userID := s.userID(r, payload.UserID)

	score, err := s.engine.RecordVote(r.Context(), userID, payload.OpinionID, opinion.VoteType(payload.VoteType))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stanceScore": score})
}

func (s *Server) handleStance(w http.ResponseWriter, r *http.Request) {
	score, err := s.engine.GetStance(r.Context(), r.PathValue("userID"), r.PathValue("themeID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"userId":      r.PathValue("userID"),
		"themeId":     r.PathValue("themeID"),
		"stanceScore": score,
	})
}

func (s *Server) handleConviction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string `json:"userId"`
		ThemeID string `json:"themeId"`
		Rating  int    `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	userID := s.userID(r, payload.UserID)

	score, err := s.engine.AdjustByConviction(r.Context(), userID, payload.ThemeID, payload.Rating)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stanceScore": score})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	nickname, ok := s.decodeNickname(w, r)
	if !ok {
		return
	}
	user, err := s.store.CreateUser(r.Context(), nickname)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	nickname, ok := s.decodeNickname(w, r)
	if !ok {
		return
	}
	user, err := s.store.UserByNickname(r.Context(), nickname)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleVoteHistory(w http.ResponseWriter, r *http.Request) {
	votes, err := s.store.ListVotes(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if votes == nil {
		votes = []opinion.VoteRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"votes": votes})
}

func (s *Server) handleSeedPreview(w http.ResponseWriter, r *http.Request) {
	topic, ok := s.decodeTopic(w, r)
	if !ok {
		return
	}
	sel, ok := s.collect(w, r, topic)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleSeedTheme(w http.ResponseWriter, r *http.Request) {
	topic, ok := s.decodeTopic(w, r)
	if !ok {
		return
	}

	themeID := opinion.StableThemeID(topic)
	exists, err := s.store.ThemeExists(r.Context(), themeID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if exists {
		s.writeError(w, http.StatusConflict, "theme already exists")
		return
	}

	sel, ok := s.collect(w, r, topic)
	if !ok {
		return
	}
	theme := opinion.BuildTheme(topic, sel)
	if err := s.store.UpsertTheme(r.Context(), theme); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, theme)
}

func (s *Server) collect(w http.ResponseWriter, r *http.Request, topic string) (opinion.SelectionResult, bool) {
	if s.harvester == nil {
		s.writeError(w, http.StatusServiceUnavailable, "generation disabled")
		return opinion.SelectionResult{}, false
	}
	sel, err := s.harvester.Collect(r.Context(), topic)
	if err != nil {
		s.writeDomainError(w, err)
		return opinion.SelectionResult{}, false
	}
	return sel, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat disabled")
		return
	}

	var payload struct {
		SessionID     string  `json:"sessionId"`
		Message       string  `json:"message"`
		ThemeTitle    string  `json:"themeTitle"`
		StanceScore   float64 `json:"stanceScore"`
		AgreedOpinion string  `json:"agreedOpinion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	reply, err := s.chat.Chat(r.Context(), payload.SessionID, payload.Message, payload.ThemeTitle, payload.StanceScore, payload.AgreedOpinion)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// userID prefers the X-User-ID header and falls back to the request body.
func (s *Server) userID(r *http.Request, fromBody string) string {
	if header := strings.TrimSpace(r.Header.Get("X-User-ID")); header != "" {
		return header
	}
	return fromBody
}

func (s *Server) decodeNickname(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return "", false
	}
	nickname := strings.TrimSpace(payload.Nickname)
	if nickname == "" {
		s.writeError(w, http.StatusBadRequest, "nickname is required")
		return "", false
	}
	return nickname, true
}

func (s *Server) decodeTopic(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return "", false
	}
	topic := strings.TrimSpace(payload.Topic)
	if topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return "", false
	}
	return topic, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, opinion.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, opinion.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, opinion.ErrDuplicateVote), errors.Is(err, store.ErrNicknameTaken):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, harvest.ErrTooFewCandidates):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
