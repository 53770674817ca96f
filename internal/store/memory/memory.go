// Package memory keeps every table in process memory. It backs tests and
// deployments that do not need records to survive a restart.
package memory

import (
	"context"
	"sync/atomic"
	"time"

	"rex/api/internal/store"
)

type Backend struct {
	startedAt       time.Time
	closed          atomic.Bool
	ideas           *table[store.Idea]
	collections     *table[store.Collection]
	roleAssignments *table[store.RoleAssignment]
	users           *table[store.User]
}

var _ store.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		startedAt:       time.Now().UTC(),
		ideas:           newTable[store.Idea](),
		collections:     newTable[store.Collection](),
		roleAssignments: newTable[store.RoleAssignment](),
		users:           newTable[store.User](),
	}
}

func (b *Backend) Name() string { return "memory" }

func (b *Backend) GetHealth(context.Context, store.GetHealth) (store.Health, error) {
	return store.Health{OK: !b.closed.Load(), StartedAt: b.startedAt}, nil
}

func (b *Backend) GetIdea(_ context.Context, req store.GetIdea) (store.Idea, error) {
	idea, result := b.ideas.get(req.CollectionID, req.ID)
	switch result {
	case missingPartition:
		return store.Idea{}, store.NotFound(store.MsgCollectionNotFound)
	case missingRow:
		return store.Idea{}, store.NotFound(store.MsgIdeaNotFound)
	}
	return idea, nil
}

func (b *Backend) GetIdeas(_ context.Context, req store.GetIdeas) ([]store.Idea, error) {
	ideas, ok := b.ideas.list(req.CollectionID)
	if !ok {
		return nil, store.NotFound(store.MsgCollectionNotFound)
	}
	ideas = req.Apply(ideas)
	store.SortByKey(ideas, store.IdeaKey)
	return ideas, nil
}

func (b *Backend) GetRandomIdea(_ context.Context, req store.GetRandomIdea) (store.Idea, error) {
	ideas, ok := b.ideas.list(req.CollectionID)
	if !ok {
		return store.Idea{}, store.NotFound(store.MsgCollectionNotFound)
	}
	idea, ok := store.PickRandom(req.Apply(ideas))
	if !ok {
		return store.Idea{}, store.NotFound(store.MsgNoRandomIdea)
	}
	return idea, nil
}

func (b *Backend) StoreIdea(_ context.Context, req store.StoreIdea) (store.Idea, error) {
	idea, err := store.PrepareIdea(req.Idea)
	if err != nil {
		return store.Idea{}, err
	}
	b.ideas.put(idea.CollectionID, idea.ID, idea)
	return idea, nil
}

func (b *Backend) RemoveIdea(_ context.Context, req store.RemoveIdea) (store.Unit, error) {
	switch b.ideas.remove(req.CollectionID, req.ID) {
	case missingPartition:
		return store.Unit{}, store.NotFound(store.MsgCollectionNotFound)
	case missingRow:
		return store.Unit{}, store.NotFound(store.MsgIdeaNotFound)
	}
	return store.Unit{}, nil
}

func (b *Backend) GetCollection(_ context.Context, req store.GetCollection) (store.Collection, error) {
	collection, result := b.collections.get(req.UserID, req.CollectionID)
	switch result {
	case missingPartition:
		return store.Collection{}, store.NotFound(store.MsgPrincipalNotFound)
	case missingRow:
		return store.Collection{}, store.NotFound(store.MsgCollectionNotFound)
	}
	return collection, nil
}

func (b *Backend) GetCollections(_ context.Context, req store.GetCollections) ([]store.Collection, error) {
	collections, ok := b.collections.list(req.UserID)
	if !ok {
		return nil, store.NotFound(store.MsgPrincipalNotFound)
	}
	store.SortByKey(collections, store.CollectionKey)
	return collections, nil
}

func (b *Backend) StoreCollection(_ context.Context, req store.StoreCollection) (store.Collection, error) {
	c := req.Collection
	b.collections.put(c.UserID, c.CollectionID, c)
	return c, nil
}

func (b *Backend) RemoveCollection(_ context.Context, req store.RemoveCollection) (store.Unit, error) {
	switch b.collections.remove(req.UserID, req.CollectionID) {
	case missingPartition:
		return store.Unit{}, store.NotFound(store.MsgPrincipalNotFound)
	case missingRow:
		return store.Unit{}, store.NotFound(store.MsgCollectionNotFound)
	}
	return store.Unit{}, nil
}

func (b *Backend) GetRoleAssignment(_ context.Context, req store.GetRoleAssignment) (store.RoleAssignment, error) {
	assignment, result := b.roleAssignments.get(req.CollectionID, req.UserID)
	switch result {
	case missingPartition:
		return store.RoleAssignment{}, store.NotFound(store.MsgCollectionNotFound)
	case missingRow:
		return store.RoleAssignment{}, store.NotFound(store.MsgAssigneeNotFound)
	}
	return assignment, nil
}

func (b *Backend) GetRoleAssignments(_ context.Context, req store.GetRoleAssignments) ([]store.RoleAssignment, error) {
	assignments, ok := b.roleAssignments.list(req.CollectionID)
	if !ok {
		return nil, store.NotFound(store.MsgCollectionNotFound)
	}
	store.SortByKey(assignments, store.RoleAssignmentKey)
	return assignments, nil
}

func (b *Backend) StoreRoleAssignment(_ context.Context, req store.StoreRoleAssignment) (store.RoleAssignment, error) {
	ra := req.RoleAssignment
	b.roleAssignments.put(ra.CollectionID, ra.UserID, ra)
	return ra, nil
}

func (b *Backend) RemoveRoleAssignment(_ context.Context, req store.RemoveRoleAssignment) (store.Unit, error) {
	switch b.roleAssignments.remove(req.CollectionID, req.UserID) {
	case missingPartition:
		return store.Unit{}, store.NotFound(store.MsgCollectionNotFound)
	case missingRow:
		return store.Unit{}, store.NotFound(store.MsgAssigneeNotFound)
	}
	return store.Unit{}, nil
}

// Users are partitioned and keyed by the same email hash.
func (b *Backend) GetUser(_ context.Context, req store.GetUser) (store.User, error) {
	user, result := b.users.get(req.EmailHash, req.EmailHash)
	if result != found {
		return store.User{}, store.NotFound(store.MsgUserNotFound)
	}
	return user, nil
}

func (b *Backend) StoreUser(_ context.Context, req store.StoreUser) (store.User, error) {
	u := req.User
	b.users.put(u.EmailHash, u.EmailHash, u)
	return u, nil
}

func (b *Backend) Ping(context.Context) error {
	if b.closed.Load() {
		return store.Unavailable(store.MsgBackendUnavailable, nil)
	}
	return nil
}

func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}
