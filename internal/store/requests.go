package store

import "context"

// Request is one operation descriptor. Each descriptor names its operation
// for logs and metrics and knows which Backend method answers it.
type Request[R any] interface {
	Operation() string
	Execute(ctx context.Context, backend Backend) (R, error)
}

type GetHealth struct{}

func (GetHealth) Operation() string { return "GetHealth" }

func (r GetHealth) Execute(ctx context.Context, b Backend) (Health, error) {
	return b.GetHealth(ctx, r)
}

type GetIdea struct {
	CollectionID ID
	ID           ID
}

func (GetIdea) Operation() string { return "GetIdea" }

func (r GetIdea) Execute(ctx context.Context, b Backend) (Idea, error) {
	return b.GetIdea(ctx, r)
}

type GetIdeas struct {
	CollectionID ID
	IdeaFilter
}

func (GetIdeas) Operation() string { return "GetIdeas" }

func (r GetIdeas) Execute(ctx context.Context, b Backend) ([]Idea, error) {
	return b.GetIdeas(ctx, r)
}

type GetRandomIdea struct {
	CollectionID ID
	IdeaFilter
}

func (GetRandomIdea) Operation() string { return "GetRandomIdea" }

func (r GetRandomIdea) Execute(ctx context.Context, b Backend) (Idea, error) {
	return b.GetRandomIdea(ctx, r)
}

type StoreIdea struct {
	Idea Idea
}

func (StoreIdea) Operation() string { return "StoreIdea" }

func (r StoreIdea) Execute(ctx context.Context, b Backend) (Idea, error) {
	return b.StoreIdea(ctx, r)
}

type RemoveIdea struct {
	CollectionID ID
	ID           ID
}

func (RemoveIdea) Operation() string { return "RemoveIdea" }

func (r RemoveIdea) Execute(ctx context.Context, b Backend) (Unit, error) {
	return b.RemoveIdea(ctx, r)
}

type GetCollection struct {
	UserID       ID
	CollectionID ID
}

func (GetCollection) Operation() string { return "GetCollection" }

func (r GetCollection) Execute(ctx context.Context, b Backend) (Collection, error) {
	return b.GetCollection(ctx, r)
}

type GetCollections struct {
	UserID ID
}

func (GetCollections) Operation() string { return "GetCollections" }

func (r GetCollections) Execute(ctx context.Context, b Backend) ([]Collection, error) {
	return b.GetCollections(ctx, r)
}

type StoreCollection struct {
	Collection Collection
}

func (StoreCollection) Operation() string { return "StoreCollection" }

func (r StoreCollection) Execute(ctx context.Context, b Backend) (Collection, error) {
	return b.StoreCollection(ctx, r)
}

type RemoveCollection struct {
	UserID       ID
	CollectionID ID
}

func (RemoveCollection) Operation() string { return "RemoveCollection" }

func (r RemoveCollection) Execute(ctx context.Context, b Backend) (Unit, error) {
	return b.RemoveCollection(ctx, r)
}

type GetRoleAssignment struct {
	CollectionID ID
	UserID       ID
}

func (GetRoleAssignment) Operation() string { return "GetRoleAssignment" }

func (r GetRoleAssignment) Execute(ctx context.Context, b Backend) (RoleAssignment, error) {
	return b.GetRoleAssignment(ctx, r)
}

type GetRoleAssignments struct {
	CollectionID ID
}

func (GetRoleAssignments) Operation() string { return "GetRoleAssignments" }

func (r GetRoleAssignments) Execute(ctx context.Context, b Backend) ([]RoleAssignment, error) {
	return b.GetRoleAssignments(ctx, r)
}

type StoreRoleAssignment struct {
	RoleAssignment RoleAssignment
}

func (StoreRoleAssignment) Operation() string { return "StoreRoleAssignment" }

func (r StoreRoleAssignment) Execute(ctx context.Context, b Backend) (RoleAssignment, error) {
	return b.StoreRoleAssignment(ctx, r)
}

type RemoveRoleAssignment struct {
	CollectionID ID
	UserID       ID
}

func (RemoveRoleAssignment) Operation() string { return "RemoveRoleAssignment" }

func (r RemoveRoleAssignment) Execute(ctx context.Context, b Backend) (Unit, error) {
	return b.RemoveRoleAssignment(ctx, r)
}

type GetUser struct {
	EmailHash ID
}

func (GetUser) Operation() string { return "GetUser" }

func (r GetUser) Execute(ctx context.Context, b Backend) (User, error) {
	return b.GetUser(ctx, r)
}

type StoreUser struct {
	User User
}

func (StoreUser) Operation() string { return "StoreUser" }

func (r StoreUser) Execute(ctx context.Context, b Backend) (User, error) {
	return b.StoreUser(ctx, r)
}
