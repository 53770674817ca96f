package store

import "context"

// Unit is the result of operations that only report success or failure.
type Unit struct{}

// Backend answers every operation request. Implementations are selected at
// process start and must be safe for concurrent use.
type Backend interface {
	Name() string

	GetHealth(ctx context.Context, req GetHealth) (Health, error)

	GetIdea(ctx context.Context, req GetIdea) (Idea, error)
	GetIdeas(ctx context.Context, req GetIdeas) ([]Idea, error)
	GetRandomIdea(ctx context.Context, req GetRandomIdea) (Idea, error)
	StoreIdea(ctx context.Context, req StoreIdea) (Idea, error)
	RemoveIdea(ctx context.Context, req RemoveIdea) (Unit, error)

	GetCollection(ctx context.Context, req GetCollection) (Collection, error)
	GetCollections(ctx context.Context, req GetCollections) ([]Collection, error)
	StoreCollection(ctx context.Context, req StoreCollection) (Collection, error)
	RemoveCollection(ctx context.Context, req RemoveCollection) (Unit, error)

	GetRoleAssignment(ctx context.Context, req GetRoleAssignment) (RoleAssignment, error)
	GetRoleAssignments(ctx context.Context, req GetRoleAssignments) ([]RoleAssignment, error)
	StoreRoleAssignment(ctx context.Context, req StoreRoleAssignment) (RoleAssignment, error)
	RemoveRoleAssignment(ctx context.Context, req RemoveRoleAssignment) (Unit, error)

	GetUser(ctx context.Context, req GetUser) (User, error)
	StoreUser(ctx context.Context, req StoreUser) (User, error)

	Ping(ctx context.Context) error
	Close() error
}

// Messages shared by every backend so that callers see the same wording
// regardless of which one is configured.
const (
	MsgCollectionNotFound = "The collection ID you provided could not be found. Please check it and try again."
	MsgIdeaNotFound       = "The idea ID you provided could not be found. Please check it and try again."
	MsgNoRandomIdea       = "No random ideas were available."
	MsgPrincipalNotFound  = "The principal ID you provided could not be found. This likely means that you do not yet have any collections."
	MsgAssigneeNotFound   = "The principal ID you provided could not be found. Please check it and try again."
	MsgUserNotFound       = "No user could be found with the email hash you provided. Please check it and try again."
	MsgStoreFailed        = "We were unable to store the item you requested, this failure has been reported."
	MsgRemoveFailed       = "We were unable to remove the item you requested, this failure has been reported."
	MsgQueryFailed        = "We were unable to query the items you requested, this failure has been reported."
	MsgBackendUnavailable = "The service is currently unavailable, please try again later."
)
