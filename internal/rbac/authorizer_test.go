package rbac

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rex/api/internal/gateway"
	"rex/api/internal/store"
	"rex/api/internal/store/memory"
)

type failingWrites struct {
	*memory.Backend
	failUsers       bool
	failCollections bool
}

func (f *failingWrites) StoreUser(ctx context.Context, req store.StoreUser) (store.User, error) {
	if f.failUsers {
		return store.User{}, store.Unavailable(store.MsgStoreFailed, errors.New("users table down"))
	}
	return f.Backend.StoreUser(ctx, req)
}

func (f *failingWrites) StoreCollection(ctx context.Context, req store.StoreCollection) (store.Collection, error) {
	if f.failCollections {
		return store.Collection{}, store.Unavailable(store.MsgStoreFailed, errors.New("collections table down"))
	}
	return f.Backend.StoreCollection(ctx, req)
}

func newAuthorizer(t *testing.T, backend store.Backend) (*Authorizer, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(backend)
	t.Cleanup(func() { _ = gw.Close() })
	return NewAuthorizer(gw, nil), gw
}

func assign(t *testing.T, gw *gateway.Gateway, collection, user store.ID, role store.Role) {
	t.Helper()
	_, err := gateway.Send(context.Background(), gw, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{
		CollectionID: collection, UserID: user, Role: role,
	}})
	require.NoError(t, err)
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	authz, gw := newAuthorizer(t, memory.New())
	collection := store.IDFromUint64(7)
	owner, contributor, viewer, invalid, stranger := store.IDFromUint64(1), store.IDFromUint64(2), store.IDFromUint64(3), store.IDFromUint64(4), store.IDFromUint64(5)
	assign(t, gw, collection, owner, store.RoleOwner)
	assign(t, gw, collection, contributor, store.RoleContributor)
	assign(t, gw, collection, viewer, store.RoleViewer)
	assign(t, gw, collection, invalid, store.RoleInvalid)

	cases := []struct {
		name      string
		principal store.ID
		action    Action
		status    int
	}{
		{"owner manages", owner, ActionManage, http.StatusOK},
		{"contributor writes", contributor, ActionWrite, http.StatusOK},
		{"contributor cannot manage", contributor, ActionManage, http.StatusForbidden},
		{"viewer reads", viewer, ActionRead, http.StatusOK},
		{"viewer cannot write", viewer, ActionWrite, http.StatusForbidden},
		{"invalid cannot read", invalid, ActionRead, http.StatusForbidden},
		{"invalid cannot write", invalid, ActionWrite, http.StatusForbidden},
		{"stranger cannot read", stranger, ActionRead, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ra, err := authz.Require(ctx, tc.principal, collection, tc.action)
			assert.Equal(t, tc.status, store.StatusOf(err))
			if err == nil {
				assert.Equal(t, tc.principal, ra.UserID)
			}
		})
	}
}

func TestRequireOnUnknownCollectionIsForbidden(t *testing.T) {
	authz, _ := newAuthorizer(t, memory.New())
	_, err := authz.Require(context.Background(), store.IDFromUint64(1), store.IDFromUint64(99), ActionRead)
	assert.True(t, store.IsForbidden(err))
}

func TestViewerNeverWritesWhereContributorCan(t *testing.T) {
	ctx := context.Background()
	authz, gw := newAuthorizer(t, memory.New())
	collection := store.NewID()
	viewer, contributor, owner := store.NewID(), store.NewID(), store.NewID()
	assign(t, gw, collection, viewer, store.RoleViewer)
	assign(t, gw, collection, contributor, store.RoleContributor)
	assign(t, gw, collection, owner, store.RoleOwner)

	for _, action := range []Action{ActionWrite, ActionManage} {
		_, err := authz.Require(ctx, viewer, collection, action)
		assert.True(t, store.IsForbidden(err), action)
		_, err = authz.Require(ctx, owner, collection, action)
		assert.NoError(t, err, action)
	}
	_, err := authz.Require(ctx, contributor, collection, ActionWrite)
	assert.NoError(t, err)
}

func TestRequireManage(t *testing.T) {
	ctx := context.Background()
	authz, gw := newAuthorizer(t, memory.New())
	collection := store.IDFromUint64(7)
	owner, contributor := store.IDFromUint64(1), store.IDFromUint64(2)
	assign(t, gw, collection, owner, store.RoleOwner)
	assign(t, gw, collection, contributor, store.RoleContributor)

	assert.NoError(t, authz.RequireManage(ctx, owner, collection, contributor))
	assert.Equal(t, http.StatusBadRequest, store.StatusOf(authz.RequireManage(ctx, owner, collection, owner)))
	assert.Equal(t, http.StatusForbidden, store.StatusOf(authz.RequireManage(ctx, contributor, collection, owner)))
	assert.Equal(t, http.StatusBadRequest, store.StatusOf(authz.RequireManage(ctx, contributor, collection, contributor)))
}

func TestProvisionCreatesDefaultCollection(t *testing.T) {
	ctx := context.Background()
	authz, gw := newAuthorizer(t, memory.New())
	principal := store.IDFromUint64(42)

	require.NoError(t, authz.Provision(ctx, Identity{PrincipalID: principal, DisplayName: "Ada Lovelace", Email: "Ada@example.com"}))

	collection, err := gateway.Send(ctx, gw, store.GetCollection{UserID: principal, CollectionID: principal})
	require.NoError(t, err)
	assert.Equal(t, DefaultCollectionName, collection.Name)

	ra, err := gateway.Send(ctx, gw, store.GetRoleAssignment{CollectionID: principal, UserID: principal})
	require.NoError(t, err)
	assert.Equal(t, store.RoleOwner, ra.Role)

	user, err := gateway.Send(ctx, gw, store.GetUser{EmailHash: store.HashEmail("ada@example.com")})
	require.NoError(t, err)
	assert.Equal(t, principal, user.PrincipalID)
	assert.Equal(t, "Ada", user.FirstName)
}

func TestProvisionKeepsExistingRecords(t *testing.T) {
	ctx := context.Background()
	authz, gw := newAuthorizer(t, memory.New())
	principal := store.IDFromUint64(42)
	_, err := gateway.Send(ctx, gw, store.StoreCollection{Collection: store.Collection{CollectionID: principal, UserID: principal, Name: "Renamed"}})
	require.NoError(t, err)

	require.NoError(t, authz.Provision(ctx, Identity{PrincipalID: principal}))
	require.NoError(t, authz.Provision(ctx, Identity{PrincipalID: principal}))

	collection, err := gateway.Send(ctx, gw, store.GetCollection{UserID: principal, CollectionID: principal})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", collection.Name)
}

func TestProvisionToleratesUserWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := &failingWrites{Backend: memory.New(), failUsers: true}
	authz, gw := newAuthorizer(t, backend)
	principal := store.IDFromUint64(42)

	require.NoError(t, authz.Provision(ctx, Identity{PrincipalID: principal, DisplayName: "Ada", Email: "ada@example.com"}))

	_, err := gateway.Send(ctx, gw, store.GetRoleAssignment{CollectionID: principal, UserID: principal})
	require.NoError(t, err)
}

func TestProvisionFailsWhenCollectionWriteFails(t *testing.T) {
	backend := &failingWrites{Backend: memory.New(), failCollections: true}
	authz, _ := newAuthorizer(t, backend)

	err := authz.Provision(context.Background(), Identity{PrincipalID: store.IDFromUint64(42)})
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))
}
