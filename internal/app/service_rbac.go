package app

import (
	"context"

	"rex/api/internal/gateway"
	"rex/api/internal/rbac"
	"rex/api/internal/store"
)

func (s *Service) ListRoleAssignments(ctx context.Context, caller Caller, collection store.ID) ([]store.RoleAssignment, error) {
	if _, err := s.authz.Require(ctx, caller.Principal, collection, rbac.ActionManage); err != nil {
		return nil, err
	}
	assignments, err := gateway.Send(ctx, s.gw, store.GetRoleAssignments{CollectionID: collection})
	if store.IsNotFound(err) {
		return []store.RoleAssignment{}, nil
	}
	return assignments, err
}

// GetRoleAssignment returns user's role on collection. Callers may always
// read their own; reading anyone else's needs the manage action.
func (s *Service) GetRoleAssignment(ctx context.Context, caller Caller, collection, user store.ID) (store.RoleAssignment, error) {
	if user != caller.Principal {
		if _, err := s.authz.Require(ctx, caller.Principal, collection, rbac.ActionManage); err != nil {
			return store.RoleAssignment{}, err
		}
	}
	return gateway.Send(ctx, s.gw, store.GetRoleAssignment{CollectionID: collection, UserID: user})
}

func (s *Service) StoreRoleAssignment(ctx context.Context, caller Caller, collection, user store.ID, role store.Role) (store.RoleAssignment, error) {
	if !role.Valid() {
		return store.RoleAssignment{}, store.BadRequest("The role you provided is not one of Owner, Contributor or Viewer.")
	}
	if err := s.authz.RequireManage(ctx, caller.Principal, collection, user); err != nil {
		return store.RoleAssignment{}, err
	}
	ra, err := gateway.Send(ctx, s.gw, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{
		CollectionID: collection, UserID: user, Role: role,
	}})
	if err != nil {
		return store.RoleAssignment{}, err
	}
	s.log.Infow("Assigned role", "collection", collection, "user", user, "role", role, "by", caller.Principal)
	return ra, nil
}

func (s *Service) RemoveRoleAssignment(ctx context.Context, caller Caller, collection, user store.ID) error {
	if err := s.authz.RequireManage(ctx, caller.Principal, collection, user); err != nil {
		return err
	}
	if _, err := gateway.Send(ctx, s.gw, store.RemoveRoleAssignment{CollectionID: collection, UserID: user}); err != nil {
		return err
	}
	s.log.Infow("Removed role", "collection", collection, "user", user, "by", caller.Principal)
	return nil
}
