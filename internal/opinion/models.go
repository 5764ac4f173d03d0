package opinion

import "time"

// Candidate is a raw opinion card candidate produced by the harvesting
// service. Candidates are ephemeral; only the ones surviving diversity
// selection become persisted opinions.
type Candidate struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Score   int    `json:"agreement_score"`
}

// Bucket is one of the fixed polarity ranges used for diversity balancing.
type Bucket string

const (
	BucketSupportive Bucket = "supportive"
	BucketOpposing   Bucket = "opposing"
	BucketNeutral    Bucket = "neutral"
	BucketOther      Bucket = "other"
)

// SelectionResult is the outcome of a diversity selection pass over a
// candidate list, including the coverage metadata the caller uses for
// quality gating.
type SelectionResult struct {
	Items         []Candidate    `json:"items"`
	UniqueDomains int            `json:"unique_domains"`
	BucketCounts  map[Bucket]int `json:"bucket_counts"`
	Candidates    int            `json:"candidates"`
	Kept          int            `json:"kept"`
}

// Theme groups generated opinion cards around a single discussion topic.
type Theme struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Color    string    `json:"color"`
	Opinions []Opinion `json:"opinions"`
}

// Opinion is a persisted opinion card. Score is fixed at creation and is
// read-only afterwards; it is the target the stance engine moves toward.
type Opinion struct {
	ID        string `json:"id"`
	ThemeID   string `json:"theme_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Score     int    `json:"score"`
	Color     string `json:"color"`
	SourceURL string `json:"source_url"`
}

// VoteType is the direction of a user's reaction to an opinion.
type VoteType string

const (
	VoteAgree  VoteType = "agree"
	VoteOppose VoteType = "oppose"
)

// VoteRecord is one user's final vote on one opinion. At most one record
// exists per (user, opinion) pair; votes are never removed.
type VoteRecord struct {
	UserID    string    `json:"user_id"`
	OpinionID string    `json:"opinion_id"`
	ThemeID   string    `json:"theme_id"`
	Type      VoteType  `json:"vote_type"`
	VotedAt   time.Time `json:"voted_at"`
}

// UserStance is the persisted per-(user, theme) position summary.
type UserStance struct {
	UserID  string  `json:"user_id"`
	ThemeID string  `json:"theme_id"`
	Score   float64 `json:"stance_score"`
}
