package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sawa-team5/CPI-5/internal/opinion"
)

// SQLite is the file-backed Store. UNIQUE constraints carry the
// duplicate-vote and nickname invariants, so concurrent inserts cannot both
// succeed regardless of in-process locking.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and bootstraps the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    nickname TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS themes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    color TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS opinions (
    id TEXT PRIMARY KEY,
    theme_id TEXT NOT NULL REFERENCES themes(id),
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    score INTEGER NOT NULL CHECK (score BETWEEN -100 AND 100),
    color TEXT NOT NULL,
    source_url TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opinions_theme_id ON opinions(theme_id);

CREATE TABLE IF NOT EXISTS user_stances (
    user_id TEXT NOT NULL,
    theme_id TEXT NOT NULL,
    stance_score REAL NOT NULL,
    PRIMARY KEY (user_id, theme_id)
);

CREATE TABLE IF NOT EXISTS user_votes (
    user_id TEXT NOT NULL,
    opinion_id TEXT NOT NULL,
    theme_id TEXT NOT NULL,
    vote_type TEXT NOT NULL CHECK (vote_type IN ('agree', 'oppose')),
    voted_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, opinion_id)
);

CREATE INDEX IF NOT EXISTS idx_user_votes_user_id ON user_votes(user_id);
`

// UpsertTheme writes the theme row and inserts its opinion rows.
func (s *SQLite) UpsertTheme(ctx context.Context, theme opinion.Theme) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert theme: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO themes (id, title, color) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, color = excluded.color
	`, theme.ID, theme.Title, theme.Color)
	if err != nil {
		return fmt.Errorf("upsert theme %s: %w", theme.ID, err)
	}

	for _, op := range theme.Opinions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO opinions (id, theme_id, title, body, score, color, source_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, op.ID, op.ThemeID, op.Title, op.Body, op.Score, op.Color, op.SourceURL)
		if err != nil {
			return fmt.Errorf("insert opinion %s: %w", op.ID, err)
		}
	}

	return tx.Commit()
}

// ListThemes returns all themes with opinions attached.
func (s *SQLite) ListThemes(ctx context.Context) ([]opinion.Theme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, color FROM themes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	var themes []opinion.Theme
	index := make(map[string]int)
	for rows.Next() {
		var theme opinion.Theme
		if err := rows.Scan(&theme.ID, &theme.Title, &theme.Color); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		index[theme.ID] = len(themes)
		themes = append(themes, theme)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}

	opRows, err := s.db.QueryContext(ctx, `
		SELECT id, theme_id, title, body, score, color, source_url FROM opinions ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query opinions: %w", err)
	}
	defer opRows.Close()

	for opRows.Next() {
		var op opinion.Opinion
		if err := opRows.Scan(&op.ID, &op.ThemeID, &op.Title, &op.Body, &op.Score, &op.Color, &op.SourceURL); err != nil {
			return nil, fmt.Errorf("scan opinion: %w", err)
		}
		if i, ok := index[op.ThemeID]; ok {
			themes[i].Opinions = append(themes[i].Opinions, op)
		}
	}
	if err := opRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opinions: %w", err)
	}

	return themes, nil
}

// ThemeExists reports whether a theme row is present.
func (s *SQLite) ThemeExists(ctx context.Context, themeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM themes WHERE id = $1`, themeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query theme %s: %w", themeID, err)
	}
	return true, nil
}

// GetOpinion resolves a single opinion row.
func (s *SQLite) GetOpinion(ctx context.Context, opinionID string) (opinion.Opinion, error) {
	var op opinion.Opinion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, theme_id, title, body, score, color, source_url FROM opinions WHERE id = $1
	`, opinionID).Scan(&op.ID, &op.ThemeID, &op.Title, &op.Body, &op.Score, &op.Color, &op.SourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return opinion.Opinion{}, fmt.Errorf("%w: opinion %s", opinion.ErrNotFound, opinionID)
	}
	if err != nil {
		return opinion.Opinion{}, fmt.Errorf("query opinion %s: %w", opinionID, err)
	}
	return op, nil
}

// GetStance returns the stored score and whether a stance row exists.
func (s *SQLite) GetStance(ctx context.Context, userID, themeID string) (float64, bool, error) {
	var score float64
	err := s.db.QueryRowContext(ctx, `
		SELECT stance_score FROM user_stances WHERE user_id = $1 AND theme_id = $2
	`, userID, themeID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query stance: %w", err)
	}
	return score, true, nil
}

// PutStance creates or replaces the stance row for (user, theme).
func (s *SQLite) PutStance(ctx context.Context, userID, themeID string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_stances (user_id, theme_id, stance_score) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, theme_id) DO UPDATE SET stance_score = excluded.stance_score
	`, userID, themeID, score)
	if err != nil {
		return fmt.Errorf("put stance: %w", err)
	}
	return nil
}

// AddVote inserts the vote; the primary key rejects a second vote on the
// same opinion by the same user.
func (s *SQLite) AddVote(ctx context.Context, rec opinion.VoteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_votes (user_id, opinion_id, theme_id, vote_type, voted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.UserID, rec.OpinionID, rec.ThemeID, string(rec.Type), rec.VotedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s opinion %s", opinion.ErrDuplicateVote, rec.UserID, rec.OpinionID)
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// ListVotes returns the user's vote history, oldest first.
func (s *SQLite) ListVotes(ctx context.Context, userID string) ([]opinion.VoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, opinion_id, theme_id, vote_type, voted_at
		FROM user_votes WHERE user_id = $1 ORDER BY voted_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var out []opinion.VoteRecord
	for rows.Next() {
		var rec opinion.VoteRecord
		var voteType string
		if err := rows.Scan(&rec.UserID, &rec.OpinionID, &rec.ThemeID, &voteType, &rec.VotedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		rec.Type = opinion.VoteType(voteType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateUser registers a new user with a unique nickname.
func (s *SQLite) CreateUser(ctx context.Context, nickname string) (User, error) {
	user := User{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, nickname, created_at) VALUES ($1, $2, $3)
	`, user.ID, user.Nickname, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: %s", ErrNicknameTaken, nickname)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// UserByNickname resolves a user by nickname.
func (s *SQLite) UserByNickname(ctx context.Context, nickname string) (User, error) {
	return s.queryUser(ctx, `SELECT id, nickname, created_at FROM users WHERE nickname = $1`, nickname)
}

// UserByID resolves a user by id.
func (s *SQLite) UserByID(ctx context.Context, userID string) (User, error) {
	return s.queryUser(ctx, `SELECT id, nickname, created_at FROM users WHERE id = $1`, userID)
}

func (s *SQLite) queryUser(ctx context.Context, query, arg string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Nickname, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %s", opinion.ErrNotFound, arg)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user %s: %w", arg, err)
	}
	return user, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
