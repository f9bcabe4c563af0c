// Package curation reconciles multiple annotators' work on a document into
// a single accepted result.
package curation

import (
	"sort"

	"github.com/raphaelgruber/annobridge/internal/models"
)

// ThresholdMergeStrategy merges annotations position by position: at each
// annotated position the candidate values are ranked by vote count, and the
// best candidate is accepted only when enough annotators agree.
//
// UserThreshold is the minimum absolute number of votes; Confidence is the
// minimum fraction of all contributing annotators that must back the winner;
// TopRanks bounds how many leading candidates are considered (the exchange
// always uses 1, so a tie for the lead rejects the position).
type ThresholdMergeStrategy struct {
	UserThreshold int
	Confidence    float64
	TopRanks      int
}

// NewThresholdMergeStrategy builds a strategy from the manifest parameters.
func NewThresholdMergeStrategy(userThreshold int, confidence float64, topRanks int) ThresholdMergeStrategy {
	if userThreshold < 1 {
		userThreshold = 1
	}
	if topRanks < 1 {
		topRanks = 1
	}
	return ThresholdMergeStrategy{
		UserThreshold: userThreshold,
		Confidence:    confidence,
		TopRanks:      topRanks,
	}
}

type position struct {
	layer      string
	begin, end int
}

// Merge combines the finished annotators' span sets into the curated result.
// Positions are keyed by exact (layer, begin, end); each annotator
// contributes at most one vote per (position, value). Positions where no
// candidate clears the thresholds produce no output, so fully divergent
// documents merge to an empty result.
func (s ThresholdMergeStrategy) Merge(byAnnotator [][]models.Span) []models.Span {
	total := len(byAnnotator)
	if total == 0 {
		return nil
	}

	votes := map[position]map[string]int{}
	order := []position{}
	for _, spans := range byAnnotator {
		counted := map[position]map[string]bool{}
		for _, span := range spans {
			pos := position{span.Layer, span.Begin, span.End}
			if counted[pos] == nil {
				counted[pos] = map[string]bool{}
			}
			if counted[pos][span.Value] {
				continue
			}
			counted[pos][span.Value] = true

			if votes[pos] == nil {
				votes[pos] = map[string]int{}
				order = append(order, pos)
			}
			votes[pos][span.Value]++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.layer != b.layer {
			return a.layer < b.layer
		}
		if a.begin != b.begin {
			return a.begin < b.begin
		}
		return a.end < b.end
	})

	var merged []models.Span
	for _, pos := range order {
		value, ok := s.electValue(votes[pos], total)
		if !ok {
			continue
		}
		merged = append(merged, models.Span{
			Layer: pos.layer,
			Begin: pos.begin,
			End:   pos.end,
			Value: value,
		})
	}
	return merged
}

// electValue picks the winning value at one position, or reports that no
// value clears the thresholds.
func (s ThresholdMergeStrategy) electValue(tally map[string]int, total int) (string, bool) {
	type candidate struct {
		value string
		votes int
	}
	candidates := make([]candidate, 0, len(tally))
	for value, n := range tally {
		candidates = append(candidates, candidate{value, n})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].votes != candidates[j].votes {
			return candidates[i].votes > candidates[j].votes
		}
		return candidates[i].value < candidates[j].value
	})

	best := candidates[0]
	// A tie extending past the considered ranks means no clear winner.
	if len(candidates) > s.TopRanks && candidates[s.TopRanks].votes == best.votes {
		return "", false
	}
	if best.votes < s.UserThreshold {
		return "", false
	}
	if float64(best.votes)/float64(total) < s.Confidence {
		return "", false
	}
	return best.value, true
}
