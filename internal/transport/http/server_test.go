package transporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sawa-team5/CPI-5/internal/config"
	"github.com/Sawa-team5/CPI-5/internal/opinion"
	"github.com/Sawa-team5/CPI-5/internal/push"
	"github.com/Sawa-team5/CPI-5/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })

	registry := push.NewRegistry()
	trigger := push.NewTrigger(registry, push.DefaultThreshold)
	engine := opinion.NewEngine(st, st, st, trigger)

	srv := NewServer(st, engine, nil, nil, registry, config.Config{})
	return srv, st
}

func seedOpinions(t *testing.T, st store.Store) opinion.Theme {
	t.Helper()
	theme := opinion.Theme{
		ID:    "theme_seed000001",
		Title: "bear culling policy",
		Color: "#4A90D9",
		Opinions: []opinion.Opinion{
			{ID: "op_a", ThemeID: "theme_seed000001", Title: "for", Body: "in favour", Score: 80, Color: "#E8F5E9", SourceURL: "https://a.example/1"},
			{ID: "op_b", ThemeID: "theme_seed000001", Title: "against", Body: "opposed", Score: -60, Color: "#FFEBEE", SourceURL: "https://b.example/2"},
		},
	}
	if err := st.UpsertTheme(context.Background(), theme); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return theme
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListThemes(t *testing.T) {
	srv, st := newTestServer(t)
	seedOpinions(t, st)

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/themes", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Themes []opinion.Theme `json:"themes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Themes) != 1 || len(payload.Themes[0].Opinions) != 2 {
		t.Fatalf("unexpected themes payload: %+v", payload.Themes)
	}
}

func TestVoteFlow(t *testing.T) {
	srv, st := newTestServer(t)
	seedOpinions(t, st)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/news/vote",
		map[string]string{"userId": "u1", "opinionId": "op_a", "voteType": "agree"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		StanceScore float64 `json:"stanceScore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.StanceScore != 16 {
		t.Fatalf("expected stance 16, got %v", payload.StanceScore)
	}

	// Same vote again conflicts.
	rec = doJSON(t, routes, http.MethodPost, "/api/news/vote",
		map[string]string{"userId": "u1", "opinionId": "op_a", "voteType": "agree"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}

	// Stance endpoint reflects the committed score.
	rec = doJSON(t, routes, http.MethodGet, "/api/news/stance/u1/theme_seed000001", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "16") {
		t.Fatalf("stance missing from body: %s", rec.Body.String())
	}

	// Vote history carries the single vote.
	rec = doJSON(t, routes, http.MethodGet, "/api/users/u1/votes", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var history struct {
		Votes []opinion.VoteRecord `json:"votes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Votes) != 1 || history.Votes[0].OpinionID != "op_a" {
		t.Fatalf("unexpected history: %+v", history.Votes)
	}
}

func TestVoteUserIDFromHeader(t *testing.T) {
	srv, st := newTestServer(t)
	seedOpinions(t, st)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/news/vote",
		map[string]string{"opinionId": "op_a", "voteType": "agree"},
		map[string]string{"X-User-ID": "header-user"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	score, ok, err := st.GetStance(context.Background(), "header-user", "theme_seed000001")
	if err != nil {
		t.Fatalf("get stance: %v", err)
	}
	if !ok || score != 16 {
		t.Fatalf("stance not recorded for header user: %v %v", score, ok)
	}
}

func TestVoteErrorMapping(t *testing.T) {
	srv, st := newTestServer(t)
	seedOpinions(t, st)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/news/vote",
		map[string]string{"userId": "u1", "opinionId": "op_missing", "voteType": "agree"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown opinion, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/news/vote",
		map[string]string{"userId": "u1", "opinionId": "op_a", "voteType": "maybe"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad vote type, got %d", rec.Code)
	}
}

func TestConvictionEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	seedOpinions(t, st)
	routes := srv.Routes()

	if err := st.PutStance(context.Background(), "u1", "theme_seed000001", 40); err != nil {
		t.Fatalf("seed stance: %v", err)
	}

	rec := doJSON(t, routes, http.MethodPost, "/api/news/conviction",
		map[string]any{"userId": "u1", "themeId": "theme_seed000001", "rating": 3}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		StanceScore float64 `json:"stanceScore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.StanceScore != 44 {
		t.Fatalf("expected 44, got %v", payload.StanceScore)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/news/conviction",
		map[string]any{"userId": "nobody", "themeId": "theme_seed000001", "rating": 2}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without prior stance, got %d", rec.Code)
	}
}

func TestUserRegistrationAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/users/register",
		map[string]string{"nickname": "sora"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var user store.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/users/register",
		map[string]string{"nickname": "sora"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for taken nickname, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/users/login",
		map[string]string{"nickname": "sora"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodGet, "/api/users/"+user.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on lookup, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/users/login",
		map[string]string{"nickname": "nobody"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown nickname, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/users/register",
		map[string]string{"nickname": "  "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank nickname, got %d", rec.Code)
	}
}

func TestSeedRoutesWithoutHarvester(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/seed/preview",
		map[string]string{"topic": "bear culling policy"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without harvester, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/seed/theme",
		map[string]string{"topic": "bear culling policy"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without harvester, got %d", rec.Code)
	}

	rec = doJSON(t, routes, http.MethodPost, "/api/seed/theme",
		map[string]string{"topic": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty topic, got %d", rec.Code)
	}
}

func TestSeedThemeConflictsWhenThemeExists(t *testing.T) {
	srv, st := newTestServer(t)
	topic := "bear culling policy"
	theme := opinion.BuildTheme(topic, opinion.SelectionResult{})
	if err := st.UpsertTheme(context.Background(), theme); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/seed/theme",
		map[string]string{"topic": topic}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for existing theme, got %d", rec.Code)
	}
}

func TestChatWithoutService(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/chat",
		map[string]string{"sessionId": "s1", "message": "hi"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without chat service, got %d", rec.Code)
	}
}
