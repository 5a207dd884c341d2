package service

import (
	"math"
	"sort"

	"github.com/Luckybob666/wa-bot-sub000/internal/phone"
)

// CompareResult partitions a target phone set against a group's active
// member phones. Matched and Unmatched always partition the target set;
// Extra is everything the group has beyond the target.
type CompareResult struct {
	Matched   []string `json:"matched"`
	Unmatched []string `json:"unmatched"`
	Extra     []string `json:"extra"`
	MatchRate float64  `json:"matchRate"`
}

// Compare is a pure set computation over normalized phone numbers.
// Identifiers without a phone representation are discarded, both sides are
// de-duplicated, and the result is recomputed deterministically from the
// inputs on every call.
func Compare(target []string, memberPhones []string) CompareResult {
	targetSet := normalizeSet(target)
	groupSet := normalizeSet(memberPhones)

	result := CompareResult{
		Matched:   []string{},
		Unmatched: []string{},
		Extra:     []string{},
	}

	for t := range targetSet {
		if _, ok := groupSet[t]; ok {
			result.Matched = append(result.Matched, t)
		} else {
			result.Unmatched = append(result.Unmatched, t)
		}
	}
	for g := range groupSet {
		if _, ok := targetSet[g]; !ok {
			result.Extra = append(result.Extra, g)
		}
	}

	sort.Strings(result.Matched)
	sort.Strings(result.Unmatched)
	sort.Strings(result.Extra)

	if len(targetSet) > 0 {
		rate := float64(len(result.Matched)) / float64(len(targetSet)) * 100
		result.MatchRate = math.Round(rate*100) / 100
	}

	return result
}

func normalizeSet(raw []string) map[string]struct{} {
	set := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if digits, ok := phone.Normalize(r); ok {
			set[digits] = struct{}{}
		}
	}
	return set
}
