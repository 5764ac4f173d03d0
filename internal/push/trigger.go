package push

import (
	"log/slog"
	"math"
	"sync"
)

// DefaultThreshold is the absolute stance score at which the chat prompt fires.
const DefaultThreshold = 40.0

// Broadcaster is what the trigger needs from the registry.
type Broadcaster interface {
	Broadcast(userID string, payload any) (bool, error)
}

// TriggerMessage is the frame pushed when a stance crosses the threshold.
type TriggerMessage struct {
	Type        string  `json:"type"`
	ThemeID     string  `json:"themeId"`
	StanceScore float64 `json:"stanceScore"`
	Threshold   float64 `json:"threshold"`
}

// Trigger fires a chat prompt the moment a user's stance on a theme becomes
// skewed, and stays silent until the stance returns inside the threshold.
// Edge-triggered: only the below-to-at-or-above transition fires.
type Trigger struct {
	broadcaster Broadcaster
	threshold   float64
	log         *slog.Logger

	mu   sync.Mutex
	last map[string]bool // (user, theme) -> was at-or-above threshold
}

// NewTrigger constructs a detector pushing through b. A threshold <= 0 falls
// back to DefaultThreshold.
func NewTrigger(b Broadcaster, threshold float64) *Trigger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Trigger{
		broadcaster: b,
		threshold:   threshold,
		log:         slog.Default(),
		last:        make(map[string]bool),
	}
}

// MaybeTrigger records the new score and reports whether it crossed the
// threshold from below. The crossing is reported even when the user has no
// open connection; delivery is best effort.
func (t *Trigger) MaybeTrigger(userID, themeID string, score float64) bool {
	skewed := math.Abs(score) >= t.threshold
	key := userID + "\x00" + themeID

	t.mu.Lock()
	wasSkewed := t.last[key]
	t.last[key] = skewed
	t.mu.Unlock()

	crossed := skewed && !wasSkewed
	if !crossed {
		return false
	}

	sent, err := t.broadcaster.Broadcast(userID, TriggerMessage{
		Type:        "chat_trigger",
		ThemeID:     themeID,
		StanceScore: score,
		Threshold:   t.threshold,
	})
	if err != nil {
		t.log.Warn("chat trigger broadcast failed", "user_id", userID, "theme_id", themeID, "err", err)
	} else if !sent {
		t.log.Debug("chat trigger had no live connection", "user_id", userID, "theme_id", themeID)
	}
	return true
}

// StanceChanged lets the trigger sit behind the stance engine as its notifier.
func (t *Trigger) StanceChanged(userID, themeID string, score float64) {
	t.MaybeTrigger(userID, themeID, score)
}
