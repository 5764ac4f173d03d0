package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

// Memory is the in-process Store used by default and in tests. Every map is
// guarded by the same RWMutex; mutations are atomic per call, which is what
// the stance engine's duplicate-vote check relies on.
type Memory struct {
	mu          sync.RWMutex
	themes      map[string]opinion.Theme
	themeOrder  []string
	opinions    map[string]opinion.Opinion
	stances     map[string]float64
	votes       map[string]opinion.VoteRecord
	votesByUser map[string][]opinion.VoteRecord
	users       map[string]User
	usersByNick map[string]string
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		themes:      make(map[string]opinion.Theme),
		opinions:    make(map[string]opinion.Opinion),
		stances:     make(map[string]float64),
		votes:       make(map[string]opinion.VoteRecord),
		votesByUser: make(map[string][]opinion.VoteRecord),
		users:       make(map[string]User),
		usersByNick: make(map[string]string),
	}
}

func stanceKey(userID, themeID string) string { return userID + "\x00" + themeID }
func voteKey(userID, opinionID string) string { return userID + "\x00" + opinionID }

// UpsertTheme stores the theme row and its opinion rows.
func (m *Memory) UpsertTheme(_ context.Context, theme opinion.Theme) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.themes[theme.ID]; !exists {
		m.themeOrder = append(m.themeOrder, theme.ID)
	}
	opinions := theme.Opinions
	theme.Opinions = nil
	m.themes[theme.ID] = theme

	for _, op := range opinions {
		m.opinions[op.ID] = op
	}
	return nil
}

// ListThemes returns all themes with their opinions attached, in insertion order.
func (m *Memory) ListThemes(_ context.Context) ([]opinion.Theme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTheme := make(map[string][]opinion.Opinion)
	for _, op := range m.opinions {
		byTheme[op.ThemeID] = append(byTheme[op.ThemeID], op)
	}

	out := make([]opinion.Theme, 0, len(m.themeOrder))
	for _, id := range m.themeOrder {
		theme := m.themes[id]
		theme.Opinions = sortOpinionsByID(byTheme[id])
		out = append(out, theme)
	}
	return out, nil
}

// ThemeExists reports whether a theme row is present.
func (m *Memory) ThemeExists(_ context.Context, themeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.themes[themeID]
	return ok, nil
}

// GetOpinion resolves a single opinion row.
func (m *Memory) GetOpinion(_ context.Context, opinionID string) (opinion.Opinion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.opinions[opinionID]
	if !ok {
		return opinion.Opinion{}, fmt.Errorf("%w: opinion %s", opinion.ErrNotFound, opinionID)
	}
	return op, nil
}

// GetStance returns the stored score and whether a stance row exists.
func (m *Memory) GetStance(_ context.Context, userID, themeID string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.stances[stanceKey(userID, themeID)]
	return score, ok, nil
}

// PutStance creates or replaces the stance row for (user, theme).
func (m *Memory) PutStance(_ context.Context, userID, themeID string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stances[stanceKey(userID, themeID)] = score
	return nil
}

// AddVote inserts the vote if the (user, opinion) pair has not voted yet.
func (m *Memory) AddVote(_ context.Context, rec opinion.VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := voteKey(rec.UserID, rec.OpinionID)
	if _, dup := m.votes[key]; dup {
		return fmt.Errorf("%w: user %s opinion %s", opinion.ErrDuplicateVote, rec.UserID, rec.OpinionID)
	}
	m.votes[key] = rec
	m.votesByUser[rec.UserID] = append(m.votesByUser[rec.UserID], rec)
	return nil
}

// ListVotes returns the user's vote history in insertion order.
func (m *Memory) ListVotes(_ context.Context, userID string) ([]opinion.VoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.votesByUser[userID]
	out := make([]opinion.VoteRecord, len(history))
	copy(out, history)
	return out, nil
}

// CreateUser registers a new user with a unique nickname.
func (m *Memory) CreateUser(_ context.Context, nickname string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usersByNick[nickname]; taken {
		return User{}, fmt.Errorf("%w: %s", ErrNicknameTaken, nickname)
	}
	user := User{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		CreatedAt: time.Now().UTC(),
	}
	m.users[user.ID] = user
	m.usersByNick[nickname] = user.ID
	return user, nil
}

// UserByNickname resolves a user by nickname.
func (m *Memory) UserByNickname(_ context.Context, nickname string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByNick[nickname]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", opinion.ErrNotFound, nickname)
	}
	return m.users[id], nil
}

// UserByID resolves a user by id.
func (m *Memory) UserByID(_ context.Context, userID string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", opinion.ErrNotFound, userID)
	}
	return user, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

func sortOpinionsByID(ops []opinion.Opinion) []opinion.Opinion {
	out := make([]opinion.Opinion, len(ops))
	copy(out, ops)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
