package catalog

import "fmt"

// Class identifies which rank table an item belongs to. Items of different
// classes are ranked independently.
type Class string

const (
	ClassAnime  Class = "anime"
	ClassManga  Class = "manga"
	ClassReview Class = "review"
)

func Classes() []Class {
	return []Class{ClassAnime, ClassManga, ClassReview}
}

func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassAnime, ClassManga, ClassReview:
		return Class(s), nil
	}
	return "", fmt.Errorf("unknown content class %q", s)
}

// Ref points at one catalog item across classes.
type Ref struct {
	Class Class `json:"class"`
	ID    int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Class, r.ID)
}
