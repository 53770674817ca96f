package rbac

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"rex/api/internal/gateway"
	"rex/api/internal/store"
)

// DefaultCollectionName names the collection provisioned for a new principal.
const DefaultCollectionName = "My Ideas"

const (
	msgForbidden       = "You do not have permission to access this resource."
	msgManageForbidden = "You do not have permission to view or manage the list of users for this collection."
	msgSelfAssignment  = "You cannot modify or remove your own role assignment. Please request that another collection owner performs this for you."
)

// Identity is the part of a verified caller the rules need.
type Identity struct {
	PrincipalID store.ID
	DisplayName string
	Email       string
}

// Authorizer decides access from stored role assignments, reading them
// through the gateway like any other caller.
type Authorizer struct {
	gw  *gateway.Gateway
	log *zap.SugaredLogger
}

func NewAuthorizer(gw *gateway.Gateway, log *zap.SugaredLogger) *Authorizer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Authorizer{gw: gw, log: log}
}

// Require returns the caller's assignment on collection when its role permits
// action. A missing assignment is Forbidden rather than NotFound so that
// callers cannot probe which collections exist.
func (a *Authorizer) Require(ctx context.Context, principal, collection store.ID, action Action) (store.RoleAssignment, error) {
	ra, err := gateway.Send(ctx, a.gw, store.GetRoleAssignment{CollectionID: collection, UserID: principal})
	if store.IsNotFound(err) {
		return store.RoleAssignment{}, store.Forbidden(msgForbidden)
	}
	if err != nil {
		return store.RoleAssignment{}, err
	}
	if !Can(ra.Role, action) {
		if action == ActionManage {
			return store.RoleAssignment{}, store.Forbidden(msgManageForbidden)
		}
		return store.RoleAssignment{}, store.Forbidden(msgForbidden)
	}
	return ra, nil
}

// RequireManage guards changes to target's assignment on collection. Nobody
// may change their own assignment this way, whatever their role.
func (a *Authorizer) RequireManage(ctx context.Context, principal, collection, target store.ID) error {
	if principal == target {
		return store.BadRequest(msgSelfAssignment)
	}
	_, err := a.Require(ctx, principal, collection, ActionManage)
	return err
}

// Provision makes sure a principal seen for the first time has a user record,
// a default collection keyed by their own id and ownership of it. The user
// record is bookkeeping and its failure is only logged; the collection and
// role writes are returned to the caller.
func (a *Authorizer) Provision(ctx context.Context, id Identity) error {
	if id.Email != "" {
		user := store.User{
			PrincipalID: id.PrincipalID,
			EmailHash:   store.HashEmail(id.Email),
			FirstName:   FirstName(id.DisplayName),
		}
		if _, err := gateway.Send(ctx, a.gw, store.StoreUser{User: user}); err != nil {
			a.log.Warnw("Failed to record user details", "principal", id.PrincipalID, "error", err)
		}
	}

	_, err := gateway.Send(ctx, a.gw, store.GetCollection{UserID: id.PrincipalID, CollectionID: id.PrincipalID})
	switch {
	case store.IsNotFound(err):
		a.log.Infow("Provisioning default collection", "principal", id.PrincipalID)
		collection := store.Collection{CollectionID: id.PrincipalID, UserID: id.PrincipalID, Name: DefaultCollectionName}
		if _, err := gateway.Send(ctx, a.gw, store.StoreCollection{Collection: collection}); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	_, err = gateway.Send(ctx, a.gw, store.GetRoleAssignment{CollectionID: id.PrincipalID, UserID: id.PrincipalID})
	switch {
	case store.IsNotFound(err):
		a.log.Infow("Provisioning default role assignment", "principal", id.PrincipalID)
		ra := store.RoleAssignment{CollectionID: id.PrincipalID, UserID: id.PrincipalID, Role: store.RoleOwner}
		if _, err := gateway.Send(ctx, a.gw, store.StoreRoleAssignment{RoleAssignment: ra}); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	return nil
}

// FirstName returns the first word of a display name.
func FirstName(displayName string) string {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
