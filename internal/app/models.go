package app

import (
	"time"

	"rex/api/internal/store"
)

type healthView struct {
	OK        bool      `json:"ok"`
	StartedAt time.Time `json:"started_at"`
}

type ideaView struct {
	Collection  string   `json:"collection,omitempty"`
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Completed   bool     `json:"completed"`
}

func newIdeaView(idea store.Idea) ideaView {
	return ideaView{
		Collection:  idea.CollectionID.String(),
		ID:          idea.ID.String(),
		Name:        idea.Name,
		Description: idea.Description,
		Tags:        idea.Tags,
		Completed:   idea.Completed,
	}
}

// model keeps only the fields a caller may set; ids come from the route.
func (v ideaView) model() store.Idea {
	return store.Idea{
		Name:        v.Name,
		Description: v.Description,
		Tags:        v.Tags,
		Completed:   v.Completed,
	}
}

type collectionView struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

func newCollectionView(c store.Collection) collectionView {
	return collectionView{ID: c.CollectionID.String(), UserID: c.UserID.String(), Name: c.Name}
}

type roleAssignmentView struct {
	CollectionID string `json:"collectionId,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Role         string `json:"role"`
}

func newRoleAssignmentView(ra store.RoleAssignment) roleAssignmentView {
	return roleAssignmentView{CollectionID: ra.CollectionID.String(), UserID: ra.UserID.String(), Role: string(ra.Role)}
}

type userView struct {
	ID        string `json:"id"`
	EmailHash string `json:"emailHash"`
	FirstName string `json:"firstName"`
}

func newUserView(u store.User) userView {
	return userView{ID: u.PrincipalID.String(), EmailHash: u.EmailHash.String(), FirstName: u.FirstName}
}

func mapViews[T, V any](items []T, view func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, view(item))
	}
	return out
}
