package opinion

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

var themeColors = []string{"#E57373", "#FFD54F", "#81C784"}

var (
	opinionPositive = []string{"#EF9A9A", "#A5D6A7", "#81C784", "#FDD835"}
	opinionNeutral  = []string{"#B0BEC5", "#7986CB"}
	opinionNegative = []string{"#90CAF9", "#B0BEC5"}
)

// StableThemeID derives a deterministic theme id from the topic title, so
// seeding the same topic twice targets the same theme row.
func StableThemeID(topic string) string {
	sum := sha1.Sum([]byte(topic))
	return "theme_" + hex.EncodeToString(sum[:])[:10]
}

// BuildTheme converts a selection result into a theme row with opinion rows
// ready for persistence. Opinion ids are fresh; the theme id is stable.
func BuildTheme(topic string, sel SelectionResult) Theme {
	themeID := StableThemeID(topic)
	theme := Theme{
		ID:    themeID,
		Title: topic,
		Color: themeColor(themeID),
	}

	for idx, item := range sel.Items {
		theme.Opinions = append(theme.Opinions, Opinion{
			ID:        "op_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			ThemeID:   themeID,
			Title:     item.Label,
			Body:      item.Summary,
			Score:     item.Score,
			Color:     opinionColor(item.Score, idx),
			SourceURL: item.URL,
		})
	}

	return theme
}

func themeColor(themeID string) string {
	idx := 0
	if len(themeID) > 0 {
		if v, ok := hexDigit(themeID[len(themeID)-1]); ok {
			idx = v
		}
	}
	return themeColors[idx%len(themeColors)]
}

func opinionColor(score, idx int) string {
	palette := opinionNeutral
	switch {
	case score > 30:
		palette = opinionPositive
	case score < -30:
		palette = opinionNegative
	}
	return palette[idx%len(palette)]
}

func hexDigit(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}
