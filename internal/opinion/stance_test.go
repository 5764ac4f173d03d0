package opinion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

type fakeStore struct {
	mu       sync.Mutex
	opinions map[string]Opinion
	stances  map[string]float64
	votes    map[string]VoteRecord
}

func newFakeStore(opinions ...Opinion) *fakeStore {
	s := &fakeStore{
		opinions: make(map[string]Opinion),
		stances:  make(map[string]float64),
		votes:    make(map[string]VoteRecord),
	}
	for _, op := range opinions {
		s.opinions[op.ID] = op
	}
	return s
}

func (s *fakeStore) GetOpinion(_ context.Context, id string) (Opinion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.opinions[id]
	if !ok {
		return Opinion{}, fmt.Errorf("%w: opinion %s", ErrNotFound, id)
	}
	return op, nil
}

func (s *fakeStore) GetStance(_ context.Context, userID, themeID string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.stances[userID+"/"+themeID]
	return score, ok, nil
}

func (s *fakeStore) PutStance(_ context.Context, userID, themeID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stances[userID+"/"+themeID] = score
	return nil
}

func (s *fakeStore) AddVote(_ context.Context, rec VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.UserID + "/" + rec.OpinionID
	if _, dup := s.votes[key]; dup {
		return fmt.Errorf("%w: user %s opinion %s", ErrDuplicateVote, rec.UserID, rec.OpinionID)
	}
	s.votes[key] = rec
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	scores []float64
}

func (n *recordingNotifier) StanceChanged(_, _ string, score float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scores = append(n.scores, score)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecordVoteAgreeMovesTowardOpinion(t *testing.T) {
	store := newFakeStore(
		Opinion{ID: "op1", ThemeID: "th1", Score: 80},
		Opinion{ID: "op2", ThemeID: "th1", Score: 80},
	)
	engine := NewEngine(store, store, store, nil)

	score, err := engine.RecordVote(context.Background(), "u1", "op1", VoteAgree)
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if !almostEqual(score, 16) {
		t.Fatalf("expected 16 after first agree, got %v", score)
	}

	score, err = engine.RecordVote(context.Background(), "u1", "op2", VoteAgree)
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if !almostEqual(score, 28.8) {
		t.Fatalf("expected 28.8 after second agree, got %v", score)
	}
}

func TestRecordVoteOpposeReflectsTarget(t *testing.T) {
	store := newFakeStore(Opinion{ID: "op1", ThemeID: "th1", Score: 80})
	store.stances["u1/th1"] = 50
	engine := NewEngine(store, store, store, nil)

	score, err := engine.RecordVote(context.Background(), "u1", "op1", VoteOppose)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !almostEqual(score, 24) {
		t.Fatalf("expected 24 after oppose, got %v", score)
	}
}

func TestRecordVoteDuplicateRejected(t *testing.T) {
	store := newFakeStore(Opinion{ID: "op1", ThemeID: "th1", Score: 80})
	engine := NewEngine(store, store, store, nil)

	first, err := engine.RecordVote(context.Background(), "u1", "op1", VoteAgree)
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}

	if _, err := engine.RecordVote(context.Background(), "u1", "op1", VoteAgree); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}

	after, err := engine.GetStance(context.Background(), "u1", "th1")
	if err != nil {
		t.Fatalf("get stance: %v", err)
	}
	if !almostEqual(after, first) {
		t.Fatalf("score changed by rejected vote: %v -> %v", first, after)
	}
}

func TestRecordVoteUnknownOpinion(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, store, nil)

	if _, err := engine.RecordVote(context.Background(), "u1", "missing", VoteAgree); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordVoteInvalidType(t *testing.T) {
	store := newFakeStore(Opinion{ID: "op1", ThemeID: "th1", Score: 80})
	engine := NewEngine(store, store, store, nil)

	if _, err := engine.RecordVote(context.Background(), "u1", "op1", VoteType("maybe")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := engine.RecordVote(context.Background(), "", "op1", VoteAgree); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty user, got %v", err)
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	opinions := make([]Opinion, 0, 40)
	for i := 0; i < 40; i++ {
		opinions = append(opinions, Opinion{ID: fmt.Sprintf("op%d", i), ThemeID: "th1", Score: 100})
	}
	store := newFakeStore(opinions...)
	engine := NewEngine(store, store, store, nil)

	for i := 0; i < 20; i++ {
		score, err := engine.RecordVote(context.Background(), "u1", fmt.Sprintf("op%d", i), VoteAgree)
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
		if score > 100 || score < -100 {
			t.Fatalf("score out of bounds after agree %d: %v", i, score)
		}
	}
	for i := 20; i < 40; i++ {
		score, err := engine.RecordVote(context.Background(), "u1", fmt.Sprintf("op%d", i), VoteOppose)
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
		if score > 100 || score < -100 {
			t.Fatalf("score out of bounds after oppose %d: %v", i, score)
		}
	}
}

func TestAdjustByConviction(t *testing.T) {
	cases := []struct {
		rating int
		want   float64
	}{
		{1, 36},
		{2, 40},
		{3, 44},
	}
	for _, tc := range cases {
		store := newFakeStore()
		store.stances["u1/th1"] = 40
		engine := NewEngine(store, store, store, nil)

		got, err := engine.AdjustByConviction(context.Background(), "u1", "th1", tc.rating)
		if err != nil {
			t.Fatalf("rating %d: %v", tc.rating, err)
		}
		if !almostEqual(got, tc.want) {
			t.Errorf("rating %d: got %v, want %v", tc.rating, got, tc.want)
		}
	}
}

func TestAdjustByConvictionErrors(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, store, nil)

	if _, err := engine.AdjustByConviction(context.Background(), "u1", "th1", 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for rating 5, got %v", err)
	}
	if _, err := engine.AdjustByConviction(context.Background(), "u1", "th1", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without prior stance, got %v", err)
	}
}

func TestAdjustByConvictionClampsAtBound(t *testing.T) {
	store := newFakeStore()
	store.stances["u1/th1"] = 95
	engine := NewEngine(store, store, store, nil)

	got, err := engine.AdjustByConviction(context.Background(), "u1", "th1", 3)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !almostEqual(got, 100) {
		t.Fatalf("expected clamp at 100, got %v", got)
	}
}

func TestGetStanceDefaultsToZero(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, store, nil)

	score, err := engine.GetStance(context.Background(), "u1", "th1")
	if err != nil {
		t.Fatalf("get stance: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected 0 for unknown stance, got %v", score)
	}
}

func TestConcurrentVotesOnSameOpinionSucceedOnce(t *testing.T) {
	store := newFakeStore(Opinion{ID: "op1", ThemeID: "th1", Score: 80})
	engine := NewEngine(store, store, store, nil)

	const voters = 16
	var wg sync.WaitGroup
	errs := make(chan error, voters)

	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RecordVote(context.Background(), "u1", "op1", VoteAgree)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateVote):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != voters-1 {
		t.Fatalf("expected exactly one success, got %d successes, %d duplicates", successes, duplicates)
	}

	score, _ := engine.GetStance(context.Background(), "u1", "th1")
	if !almostEqual(score, 16) {
		t.Fatalf("expected score 16 after the single successful vote, got %v", score)
	}
}

func TestNotifierObservesCommittedScore(t *testing.T) {
	store := newFakeStore(Opinion{ID: "op1", ThemeID: "th1", Score: 80})
	notifier := &recordingNotifier{}
	engine := NewEngine(store, store, store, notifier)

	if _, err := engine.RecordVote(context.Background(), "u1", "op1", VoteAgree); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if len(notifier.scores) != 1 || !almostEqual(notifier.scores[0], 16) {
		t.Fatalf("expected one notification with score 16, got %v", notifier.scores)
	}
}
