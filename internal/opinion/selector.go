package opinion

import (
	"net/url"
	"strings"
)

// Stance bucket boundaries.
const (
	supportiveMin = 60
	opposingMax   = -30
	neutralMin    = -10
	neutralMax    = 10
)

// Greedy selection weights: filling an empty stance bucket beats reaching a
// new domain, and the catch-all bucket is slightly discouraged.
const (
	bonusNewBucket = 4
	bonusNewDomain = 3
	penaltyOther   = -1
)

// BucketFor classifies a polarity score into its stance bucket.
func BucketFor(score int) Bucket {
	switch {
	case score >= supportiveMin:
		return BucketSupportive
	case score <= opposingMax:
		return BucketOpposing
	case score >= neutralMin && score <= neutralMax:
		return BucketNeutral
	default:
		return BucketOther
	}
}

// SelectDiverse picks up to targetN candidates, maximizing coverage across
// stance buckets and source domains. Identical (label, summary) pairs are
// collapsed first. The result is deterministic for a given input order; ties
// resolve in favor of the earlier candidate.
func SelectDiverse(items []Candidate, targetN int) SelectionResult {
	result := SelectionResult{
		Candidates: len(items),
		BucketCounts: map[Bucket]int{
			BucketSupportive: 0,
			BucketOpposing:   0,
			BucketNeutral:    0,
			BucketOther:      0,
		},
	}
	if targetN <= 0 || len(items) == 0 {
		return result
	}

	type annotated struct {
		item   Candidate
		domain string
		bucket Bucket
	}

	seen := make(map[string]struct{}, len(items))
	remaining := make([]annotated, 0, len(items))
	for _, item := range items {
		key := normalizeText(item.Label) + "\x00" + normalizeText(item.Summary)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		remaining = append(remaining, annotated{
			item:   item,
			domain: domainOf(item.URL),
			bucket: BucketFor(item.Score),
		})
	}

	usedDomains := make(map[string]struct{})
	candScore := func(a annotated) int {
		score := 0
		if result.BucketCounts[a.bucket] == 0 {
			score += bonusNewBucket
		}
		if _, ok := usedDomains[a.domain]; !ok {
			score += bonusNewDomain
		}
		if a.bucket == BucketOther {
			score += penaltyOther
		}
		return score
	}

	for len(remaining) > 0 && len(result.Items) < targetN {
		best := 0
		bestScore := candScore(remaining[0])
		for i := 1; i < len(remaining); i++ {
			if s := candScore(remaining[i]); s > bestScore {
				best, bestScore = i, s
			}
		}

		pick := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)

		result.Items = append(result.Items, pick.item)
		usedDomains[pick.domain] = struct{}{}
		result.BucketCounts[pick.bucket]++
	}

	result.UniqueDomains = len(usedDomains)
	result.Kept = len(result.Items)
	return result
}

// domainOf extracts the source domain used for diversity accounting:
// lowercase hostname with a leading "www." stripped.
func domainOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
