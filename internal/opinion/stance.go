package opinion

import (
	"context"
	"fmt"
	"time"
)

// Defaults for the stance update model.
const (
	DefaultVoteWeight = 0.2
	DefaultScoreBound = 100.0
)

// convictionFactors scale the current score after a reflective dialogue
// concludes: weaker conviction shrinks it, stronger conviction amplifies it.
var convictionFactors = map[int]float64{1: 0.9, 2: 1.0, 3: 1.1}

// OpinionSource resolves persisted opinions by id.
type OpinionSource interface {
	GetOpinion(ctx context.Context, opinionID string) (Opinion, error)
}

// StanceStore reads and writes per-(user, theme) stance scores. Get reports
// whether a stance row exists; a missing row reads as score 0.
type StanceStore interface {
	GetStance(ctx context.Context, userID, themeID string) (float64, bool, error)
	PutStance(ctx context.Context, userID, themeID string, score float64) error
}

// VoteStore records final votes, enforcing at most one per (user, opinion)
// pair. AddVote must be an atomic insert-if-absent returning ErrDuplicateVote
// on conflict.
type VoteStore interface {
	AddVote(ctx context.Context, rec VoteRecord) error
}

// Notifier observes committed stance updates. Calls are made while the
// engine still holds the per-key lock, so observations for one (user, theme)
// pair arrive in commit order.
type Notifier interface {
	StanceChanged(userID, themeID string, score float64)
}

// Engine turns discrete votes into bounded stance scores.
type Engine struct {
	opinions OpinionSource
	stances  StanceStore
	votes    VoteStore
	notifier Notifier
	weight   float64
	bound    float64
	keys     keyedMutex
	now      func() time.Time
}

// NewEngine constructs an Engine with default weight and bound. The notifier
// may be nil when nothing listens for stance changes.
func NewEngine(opinions OpinionSource, stances StanceStore, votes VoteStore, notifier Notifier, opts ...func(*Engine)) *Engine {
	e := &Engine{
		opinions: opinions,
		stances:  stances,
		votes:    votes,
		notifier: notifier,
		weight:   DefaultVoteWeight,
		bound:    DefaultScoreBound,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithVoteWeight overrides the fraction of the distance a vote moves the score.
func WithVoteWeight(w float64) func(*Engine) {
	return func(e *Engine) {
		if w > 0 && w <= 1 {
			e.weight = w
		}
	}
}

// WithScoreBound overrides the symmetric clamp bound.
func WithScoreBound(b float64) func(*Engine) {
	return func(e *Engine) {
		if b > 0 {
			e.bound = b
		}
	}
}

// RecordVote applies one agree/oppose vote to the voter's stance on the
// opinion's theme and returns the new score. Agreeing moves the score a
// fixed fraction of the distance toward the opinion's polarity; opposing
// moves it toward the reflected polarity. A second vote on the same opinion
// fails with ErrDuplicateVote and changes nothing.
func (e *Engine) RecordVote(ctx context.Context, userID, opinionID string, vote VoteType) (float64, error) {
	if userID == "" || opinionID == "" {
		return 0, fmt.Errorf("%w: user and opinion ids are required", ErrInvalidInput)
	}
	if vote != VoteAgree && vote != VoteOppose {
		return 0, fmt.Errorf("%w: unknown vote type %q", ErrInvalidInput, vote)
	}

	op, err := e.opinions.GetOpinion(ctx, opinionID)
	if err != nil {
		return 0, err
	}

	unlock := e.keys.lock(userID + "\x00" + op.ThemeID)
	defer unlock()

	rec := VoteRecord{
		UserID:    userID,
		OpinionID: opinionID,
		ThemeID:   op.ThemeID,
		Type:      vote,
		VotedAt:   e.now().UTC(),
	}
	if err := e.votes.AddVote(ctx, rec); err != nil {
		return 0, err
	}

	current, _, err := e.stances.GetStance(ctx, userID, op.ThemeID)
	if err != nil {
		return 0, err
	}

	target := float64(op.Score)
	if vote == VoteOppose {
		target = -target
	}
	next := clamp(current+(target-current)*e.weight, e.bound)

	if err := e.stances.PutStance(ctx, userID, op.ThemeID, next); err != nil {
		return 0, err
	}

	if e.notifier != nil {
		e.notifier.StanceChanged(userID, op.ThemeID, next)
	}
	return next, nil
}

// AdjustByConviction scales an existing stance by the factor for the given
// rating (1 softens, 2 keeps, 3 hardens). It requires a prior stance and is
// idempotent for rating 2.
func (e *Engine) AdjustByConviction(ctx context.Context, userID, themeID string, rating int) (float64, error) {
	if userID == "" || themeID == "" {
		return 0, fmt.Errorf("%w: user and theme ids are required", ErrInvalidInput)
	}
	factor, ok := convictionFactors[rating]
	if !ok {
		return 0, fmt.Errorf("%w: unknown conviction rating %d", ErrInvalidInput, rating)
	}

	unlock := e.keys.lock(userID + "\x00" + themeID)
	defer unlock()

	current, found, err := e.stances.GetStance(ctx, userID, themeID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: no stance for user %s on theme %s", ErrNotFound, userID, themeID)
	}

	next := clamp(current*factor, e.bound)
	if err := e.stances.PutStance(ctx, userID, themeID, next); err != nil {
		return 0, err
	}

	if e.notifier != nil {
		e.notifier.StanceChanged(userID, themeID, next)
	}
	return next, nil
}

// GetStance returns the current stance score, defaulting to 0 when the user
// has never voted on the theme.
func (e *Engine) GetStance(ctx context.Context, userID, themeID string) (float64, error) {
	score, _, err := e.stances.GetStance(ctx, userID, themeID)
	if err != nil {
		return 0, err
	}
	return score, nil
}

func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
