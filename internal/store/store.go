package store

import (
	"context"
	"errors"
	"time"

	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

// ErrNicknameTaken is returned when registering a nickname that already exists.
var ErrNicknameTaken = errors.New("store: nickname taken")

// User is a registered participant identified by a unique nickname.
type User struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence boundary shared by the in-memory and SQLite
// implementations. Reads used inside an update reflect the latest committed
// write for that key; per-key serialization is the caller's concern.
type Store interface {
	UpsertTheme(ctx context.Context, theme opinion.Theme) error
	ListThemes(ctx context.Context) ([]opinion.Theme, error)
	ThemeExists(ctx context.Context, themeID string) (bool, error)
	GetOpinion(ctx context.Context, opinionID string) (opinion.Opinion, error)

	GetStance(ctx context.Context, userID, themeID string) (float64, bool, error)
	PutStance(ctx context.Context, userID, themeID string, score float64) error

	AddVote(ctx context.Context, rec opinion.VoteRecord) error
	ListVotes(ctx context.Context, userID string) ([]opinion.VoteRecord, error)

	CreateUser(ctx context.Context, nickname string) (User, error)
	UserByNickname(ctx context.Context, nickname string) (User, error)
	UserByID(ctx context.Context, userID string) (User, error)

	Close() error
}
