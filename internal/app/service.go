package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"rex/api/internal/auth"
	"rex/api/internal/gateway"
	"rex/api/internal/rbac"
	"rex/api/internal/store"
)

const msgBadPrincipal = "The auth token OID you provided could not be parsed. Please check it and try again."

// Caller is an authenticated request's identity.
type Caller struct {
	Claims    auth.Claims
	Principal store.ID
}

func (c Caller) identity() rbac.Identity {
	return rbac.Identity{PrincipalID: c.Principal, DisplayName: c.Claims.Name, Email: c.Claims.Email}
}

// Service sequences provisioning, authorization and store operations for
// the HTTP layer. It holds no state of its own beyond its collaborators.
type Service struct {
	gw     *gateway.Gateway
	authz  *rbac.Authorizer
	secret []byte
	log    *zap.SugaredLogger
}

func New(gw *gateway.Gateway, tokenSecret string, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		gw:     gw,
		authz:  rbac.NewAuthorizer(gw, log),
		secret: []byte(tokenSecret),
		log:    log,
	}
}

// Authenticate verifies a bearer token and resolves its principal id.
func (s *Service) Authenticate(token string) (Caller, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return Caller{}, store.Unauthorized("Your access token has expired. Please sign in again.")
		}
		return Caller{}, store.Unauthorized("You must provide a valid access token to use this resource.")
	}
	principal, err := store.ParseID(claims.Sub)
	if err != nil {
		return Caller{}, store.BadRequest(msgBadPrincipal)
	}
	return Caller{Claims: claims, Principal: principal}, nil
}

// IssueToken signs claims with the service secret.
func (s *Service) IssueToken(claims auth.Claims) (string, error) {
	return auth.IssueToken(s.secret, claims)
}

func (s *Service) Health(ctx context.Context) (store.Health, error) {
	return gateway.Send(ctx, s.gw, store.GetHealth{})
}

func (s *Service) Ping(ctx context.Context) error {
	return s.gw.Ping(ctx)
}

func (s *Service) BackendName() string {
	return s.gw.BackendName()
}

// target resolves the collection an idea route works on, provisioning the
// caller first. A nil collection means the caller's default collection.
func (s *Service) target(ctx context.Context, caller Caller, collection *store.ID, action rbac.Action) (store.ID, error) {
	if err := s.authz.Provision(ctx, caller.identity()); err != nil {
		return store.ID{}, err
	}
	id := caller.Principal
	if collection != nil {
		id = *collection
	}
	if _, err := s.authz.Require(ctx, caller.Principal, id, action); err != nil {
		return store.ID{}, err
	}
	return id, nil
}

// Ideas

func (s *Service) ListIdeas(ctx context.Context, caller Caller, collection *store.ID, filter store.IdeaFilter) ([]store.Idea, error) {
	cid, err := s.target(ctx, caller, collection, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	ideas, err := gateway.Send(ctx, s.gw, store.GetIdeas{CollectionID: cid, IdeaFilter: filter})
	if store.IsNotFound(err) {
		return []store.Idea{}, nil
	}
	return ideas, err
}

func (s *Service) RandomIdea(ctx context.Context, caller Caller, collection *store.ID, filter store.IdeaFilter) (store.Idea, error) {
	cid, err := s.target(ctx, caller, collection, rbac.ActionRead)
	if err != nil {
		return store.Idea{}, err
	}
	return gateway.Send(ctx, s.gw, store.GetRandomIdea{CollectionID: cid, IdeaFilter: filter})
}

func (s *Service) GetIdea(ctx context.Context, caller Caller, collection *store.ID, id store.ID) (store.Idea, error) {
	cid, err := s.target(ctx, caller, collection, rbac.ActionRead)
	if err != nil {
		return store.Idea{}, err
	}
	return gateway.Send(ctx, s.gw, store.GetIdea{CollectionID: cid, ID: id})
}

// CreateIdea stores idea under a freshly drawn id.
func (s *Service) CreateIdea(ctx context.Context, caller Caller, collection *store.ID, idea store.Idea) (store.Idea, error) {
	return s.StoreIdea(ctx, caller, collection, store.NewID(), idea)
}

func (s *Service) StoreIdea(ctx context.Context, caller Caller, collection *store.ID, id store.ID, idea store.Idea) (store.Idea, error) {
	cid, err := s.target(ctx, caller, collection, rbac.ActionWrite)
	if err != nil {
		return store.Idea{}, err
	}
	idea.ID = id
	idea.CollectionID = cid
	return gateway.Send(ctx, s.gw, store.StoreIdea{Idea: idea})
}

func (s *Service) RemoveIdea(ctx context.Context, caller Caller, collection *store.ID, id store.ID) error {
	cid, err := s.target(ctx, caller, collection, rbac.ActionWrite)
	if err != nil {
		return err
	}
	_, err = gateway.Send(ctx, s.gw, store.RemoveIdea{CollectionID: cid, ID: id})
	return err
}

// Collections

func (s *Service) ListCollections(ctx context.Context, caller Caller) ([]store.Collection, error) {
	if err := s.authz.Provision(ctx, caller.identity()); err != nil {
		return nil, err
	}
	collections, err := gateway.Send(ctx, s.gw, store.GetCollections{UserID: caller.Principal})
	if store.IsNotFound(err) {
		return []store.Collection{}, nil
	}
	return collections, err
}

func (s *Service) GetCollection(ctx context.Context, caller Caller, id store.ID) (store.Collection, error) {
	return gateway.Send(ctx, s.gw, store.GetCollection{UserID: caller.Principal, CollectionID: id})
}

// CreateCollection lists a new collection for the caller and makes them its
// Owner. Both writes are issued together and both must succeed.
func (s *Service) CreateCollection(ctx context.Context, caller Caller, name string) (store.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Collection{}, store.BadRequest("You must provide a name for your collection.")
	}
	id := store.NewID()
	stored := gateway.Go(ctx, s.gw, store.StoreCollection{Collection: store.Collection{
		CollectionID: id, UserID: caller.Principal, Name: name,
	}})
	owner := gateway.Go(ctx, s.gw, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{
		CollectionID: id, UserID: caller.Principal, Role: store.RoleOwner,
	}})

	collection, err := stored.Wait(ctx)
	if _, roleErr := owner.Wait(ctx); err == nil {
		err = roleErr
	}
	if err != nil {
		return store.Collection{}, err
	}
	s.log.Infow("Created collection", "collection", id, "principal", caller.Principal)
	return collection, nil
}

// StoreCollection adds or renames a collection in the caller's own list. The
// caller must hold a role on it.
func (s *Service) StoreCollection(ctx context.Context, caller Caller, id store.ID, name string) (store.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Collection{}, store.BadRequest("You must provide a name for your collection.")
	}
	if _, err := s.authz.Require(ctx, caller.Principal, id, rbac.ActionRead); err != nil {
		return store.Collection{}, err
	}
	return gateway.Send(ctx, s.gw, store.StoreCollection{Collection: store.Collection{
		CollectionID: id, UserID: caller.Principal, Name: name,
	}})
}

// RemoveCollection drops a collection from the caller's list together with
// the caller's own role on it. Other principals' access is untouched.
func (s *Service) RemoveCollection(ctx context.Context, caller Caller, id store.ID) error {
	if _, err := gateway.Send(ctx, s.gw, store.RemoveCollection{UserID: caller.Principal, CollectionID: id}); err != nil {
		return err
	}
	_, err := gateway.Send(ctx, s.gw, store.RemoveRoleAssignment{CollectionID: id, UserID: caller.Principal})
	if store.IsNotFound(err) {
		return nil
	}
	return err
}

// Users

func (s *Service) GetUser(ctx context.Context, emailHash store.ID) (store.User, error) {
	return gateway.Send(ctx, s.gw, store.GetUser{EmailHash: emailHash})
}
