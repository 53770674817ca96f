package store

import (
	"math/rand/v2"
	"slices"
	"strings"
)

// IdeaFilter is the predicate GetIdeas and GetRandomIdea apply. A nil field
// matches every idea.
type IdeaFilter struct {
	Tag       *string
	Completed *bool
}

func (f IdeaFilter) Matches(idea Idea) bool {
	if f.Completed != nil && idea.Completed != *f.Completed {
		return false
	}
	if f.Tag != nil && !idea.HasTag(*f.Tag) {
		return false
	}
	return true
}

// Apply returns the ideas that match f, preserving their order.
func (f IdeaFilter) Apply(ideas []Idea) []Idea {
	out := make([]Idea, 0, len(ideas))
	for _, idea := range ideas {
		if f.Matches(idea) {
			out = append(out, idea)
		}
	}
	return out
}

// PrepareIdea validates an idea for storage and returns it with a normalized
// tag set. Tags are persisted comma-joined by some backends, so a comma can
// never appear inside a tag.
func PrepareIdea(idea Idea) (Idea, error) {
	for _, tag := range idea.Tags {
		if strings.TrimSpace(tag) == "" {
			return Idea{}, BadRequest("Tags must not be empty.")
		}
		if strings.Contains(tag, ",") {
			return Idea{}, BadRequest("Tags must not contain commas.")
		}
	}
	idea.Tags = NormalizeTags(idea.Tags)
	return idea, nil
}

// PickRandom draws one element uniformly. It reports false for an empty slice.
func PickRandom[T any](items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[rand.IntN(len(items))], true
}

// SortByKey orders items by the row key returned from key.
func SortByKey[T any](items []T, key func(T) ID) {
	slices.SortFunc(items, func(a, b T) int {
		return key(a).Compare(key(b))
	})
}

func IdeaKey(i Idea) ID                     { return i.ID }
func CollectionKey(c Collection) ID         { return c.CollectionID }
func RoleAssignmentKey(r RoleAssignment) ID { return r.UserID }
