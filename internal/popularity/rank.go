package popularity

import (
	"fmt"
	"sort"
)

const (
	VariationNew  = "NEW"
	VariationSame = "="
)

// Rank assigns dense 1-based ranks over the given items, highest score first,
// ties broken by ascending id so repeated passes over the same inputs produce
// the same ordering. previous maps item id to the rank it held after the last
// pass; absent or zero means the item was unranked.
func Rank(items []ScoredItem, previous map[int64]uint32) []RankRecord {
	sorted := make([]ScoredItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	records := make([]RankRecord, len(sorted))
	for i, item := range sorted {
		rank := uint32(i + 1)
		prev := previous[item.ID]
		records[i] = RankRecord{
			ID:           item.ID,
			Rank:         rank,
			PreviousRank: prev,
			Variation:    Variation(prev, rank),
		}
	}
	return records
}

// Variation renders the rank movement between two passes: "NEW" for a first
// ranking, "=" for no movement, otherwise the signed distance ("+3" moved up
// three places, "-2" moved down two).
func Variation(previous, current uint32) string {
	switch {
	case previous == 0:
		return VariationNew
	case previous == current:
		return VariationSame
	default:
		return fmt.Sprintf("%+d", int64(previous)-int64(current))
	}
}
