package popularity

import (
	"testing"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
)

func TestBlendRelatedPriorities(t *testing.T) {
	signals := []RelatedSignal{
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 1}, TitleSimilarity: 1.0},
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 2}, SameStudio: true},
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 3}, SharedTags: 3},
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 4}, Explicit: true},
	}
	got := BlendRelated(signals, 0)
	wantOrder := []int64{4, 3, 2, 1}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d refs, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d: got id %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestBlendRelatedMergesDuplicates(t *testing.T) {
	ref := catalog.Ref{Class: catalog.ClassManga, ID: 9}
	signals := []RelatedSignal{
		{Ref: ref, SharedTags: 1},
		{Ref: ref, Explicit: true},
		{Ref: catalog.Ref{Class: catalog.ClassManga, ID: 10}, SharedTags: 2},
	}
	got := BlendRelated(signals, 0)
	if len(got) != 2 {
		t.Fatalf("got %d refs, want 2 after merging", len(got))
	}
	if got[0] != ref {
		t.Fatalf("merged candidate should rank first, got %+v", got[0])
	}
}

func TestBlendRelatedLimitAndDeterminism(t *testing.T) {
	signals := []RelatedSignal{
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 5}, SameStudio: true},
		{Ref: catalog.Ref{Class: catalog.ClassAnime, ID: 2}, SameStudio: true},
		{Ref: catalog.Ref{Class: catalog.ClassManga, ID: 2}, SameStudio: true},
	}
	for i := 0; i < 10; i++ {
		got := BlendRelated(signals, 2)
		if len(got) != 2 {
			t.Fatalf("got %d refs, want 2", len(got))
		}
		// Equal scores fall back to class then id ordering.
		if got[0] != (catalog.Ref{Class: catalog.ClassAnime, ID: 2}) ||
			got[1] != (catalog.Ref{Class: catalog.ClassAnime, ID: 5}) {
			t.Fatalf("unexpected order: %+v", got)
		}
	}
}

func TestBlendRelatedTagCeiling(t *testing.T) {
	a := blendScore(RelatedSignal{SharedTags: 3})
	b := blendScore(RelatedSignal{SharedTags: 30})
	if a != b {
		t.Fatalf("shared tags past the ceiling changed the score: %v vs %v", a, b)
	}
}
