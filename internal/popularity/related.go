package popularity

import (
	"sort"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
)

// RelatedSignal collects the relatedness evidence between one catalog item
// and a candidate: an explicit relation edge, overlapping tags, a shared
// studio, and title similarity. The four signals come from different queries;
// blending them happens in one place, here.
type RelatedSignal struct {
	Ref             catalog.Ref
	Explicit        bool
	SharedTags      int
	SameStudio      bool
	TitleSimilarity float64 // 0-1
}

// Fixed blend priorities: an explicit relation edge outranks tag overlap,
// which outranks a shared studio, which outranks title similarity.
const (
	blendExplicit   = 5.0
	blendTags       = 4.0
	blendStudio     = 3.0
	blendTitle      = 2.0
	blendTagCeiling = 3 // shared tags beyond this add nothing
)

// BlendRelated orders candidates by combined relatedness and returns at most
// limit refs. Candidates appearing more than once are merged, keeping the
// strongest value of each signal. Ordering is deterministic: blended score
// descending, then class and id ascending.
func BlendRelated(signals []RelatedSignal, limit int) []catalog.Ref {
	merged := make(map[catalog.Ref]RelatedSignal, len(signals))
	for _, sig := range signals {
		cur, ok := merged[sig.Ref]
		if !ok {
			merged[sig.Ref] = sig
			continue
		}
		cur.Explicit = cur.Explicit || sig.Explicit
		if sig.SharedTags > cur.SharedTags {
			cur.SharedTags = sig.SharedTags
		}
		cur.SameStudio = cur.SameStudio || sig.SameStudio
		if sig.TitleSimilarity > cur.TitleSimilarity {
			cur.TitleSimilarity = sig.TitleSimilarity
		}
		merged[sig.Ref] = cur
	}

	type scored struct {
		ref   catalog.Ref
		score float64
	}
	out := make([]scored, 0, len(merged))
	for ref, sig := range merged {
		out = append(out, scored{ref: ref, score: blendScore(sig)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].ref.Class != out[j].ref.Class {
			return out[i].ref.Class < out[j].ref.Class
		}
		return out[i].ref.ID < out[j].ref.ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	refs := make([]catalog.Ref, len(out))
	for i, s := range out {
		refs[i] = s.ref
	}
	return refs
}

func blendScore(sig RelatedSignal) float64 {
	var score float64
	if sig.Explicit {
		score += blendExplicit
	}
	tags := sig.SharedTags
	if tags > blendTagCeiling {
		tags = blendTagCeiling
	}
	score += blendTags * float64(tags) / blendTagCeiling
	if sig.SameStudio {
		score += blendStudio
	}
	score += blendTitle * clamp01(sig.TitleSimilarity)
	return score
}
