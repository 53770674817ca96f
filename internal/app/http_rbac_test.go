package app

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rex/api/internal/gateway"
	"rex/api/internal/store"
)

type rbacFixture struct {
	*testServer
	base        string
	owner       store.ID
	contributor store.ID
	viewer      store.ID
}

// newRBACFixture seeds collection 1 with an Owner (0), a Contributor (2) and
// a Viewer (3).
func newRBACFixture(t *testing.T) rbacFixture {
	t.Helper()
	ts := newTestServer(t)
	f := rbacFixture{
		testServer:  ts,
		base:        "/api/v3/collection/" + store.IDFromUint64(1).String(),
		owner:       store.IDFromUint64(0),
		contributor: store.IDFromUint64(2),
		viewer:      store.IDFromUint64(3),
	}
	for user, role := range map[store.ID]store.Role{f.owner: store.RoleOwner, f.contributor: store.RoleContributor, f.viewer: store.RoleViewer} {
		_, err := gateway.Send(t.Context(), ts.gw, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{
			CollectionID: store.IDFromUint64(1), UserID: user, Role: role,
		}})
		require.NoError(t, err)
	}
	return f
}

func TestListRoleAssignments(t *testing.T) {
	f := newRBACFixture(t)

	rr := f.do(t, http.MethodGet, f.base+"/users", tokenFor(t, f.owner), "")
	expectStatus(t, rr, http.StatusOK)
	assignments := decode[[]roleAssignmentView](t, rr)
	require.Len(t, assignments, 3)
	assert.Equal(t, []string{f.owner.String(), f.contributor.String(), f.viewer.String()},
		[]string{assignments[0].UserID, assignments[1].UserID, assignments[2].UserID})

	for _, user := range []store.ID{f.contributor, f.viewer, store.IDFromUint64(9)} {
		rr = f.do(t, http.MethodGet, f.base+"/users", tokenFor(t, user), "")
		expectStatus(t, rr, http.StatusForbidden)
	}
	rr = f.do(t, http.MethodGet, f.base+"/users", tokenFor(t, f.viewer), "")
	assert.Equal(t, "You do not have permission to view or manage the list of users for this collection.", decode[errorResponse](t, rr).Message)
}

func TestGetRoleAssignment(t *testing.T) {
	f := newRBACFixture(t)

	cases := []struct {
		name   string
		caller store.ID
		target store.ID
		status int
		role   string
	}{
		{"owner reads viewer", f.owner, f.viewer, http.StatusOK, "Viewer"},
		{"viewer reads own", f.viewer, f.viewer, http.StatusOK, "Viewer"},
		{"viewer reads owner", f.viewer, f.owner, http.StatusForbidden, ""},
		{"contributor reads viewer", f.contributor, f.viewer, http.StatusForbidden, ""},
		{"owner reads absent user", f.owner, store.IDFromUint64(9), http.StatusNotFound, ""},
		{"stranger reads own", store.IDFromUint64(9), store.IDFromUint64(9), http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, http.MethodGet, f.base+"/user/"+tc.target.String(), tokenFor(t, tc.caller), "")
			expectStatus(t, rr, tc.status)
			if tc.status == http.StatusOK {
				view := decode[roleAssignmentView](t, rr)
				assert.Equal(t, tc.role, view.Role)
				assert.Equal(t, tc.target.String(), view.UserID)
				assert.Equal(t, store.IDFromUint64(1).String(), view.CollectionID)
			}
		})
	}
}

func TestStoreRoleAssignment(t *testing.T) {
	f := newRBACFixture(t)
	newcomer := store.IDFromUint64(4)

	rr := f.do(t, http.MethodPut, f.base+"/user/"+newcomer.String(), tokenFor(t, f.owner), `{"role":"Contributor"}`)
	expectStatus(t, rr, http.StatusOK)
	assert.Equal(t, roleAssignmentView{
		CollectionID: store.IDFromUint64(1).String(),
		UserID:       newcomer.String(),
		Role:         "Contributor",
	}, decode[roleAssignmentView](t, rr))

	rr = f.do(t, http.MethodPut, f.base+"/user/"+f.owner.String(), tokenFor(t, f.owner), `{"role":"Viewer"}`)
	expectStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, decode[errorResponse](t, rr).Message, "cannot modify or remove your own role assignment")

	expectStatus(t, f.do(t, http.MethodPut, f.base+"/user/"+newcomer.String(), tokenFor(t, f.owner), `{"role":"Superuser"}`), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPut, f.base+"/user/"+newcomer.String(), tokenFor(t, f.contributor), `{"role":"Owner"}`), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodPut, f.base+"/user/"+f.viewer.String(), tokenFor(t, f.viewer), `{"role":"Owner"}`), http.StatusBadRequest)

	// The newcomer can now write ideas.
	expectStatus(t, f.do(t, http.MethodPost, f.base+"/ideas", tokenFor(t, newcomer), `{"name":"From newcomer"}`), http.StatusCreated)
}

func TestRemoveRoleAssignment(t *testing.T) {
	f := newRBACFixture(t)

	expectStatus(t, f.do(t, http.MethodDelete, f.base+"/user/"+f.owner.String(), tokenFor(t, f.owner), ""), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodDelete, f.base+"/user/"+f.owner.String(), tokenFor(t, f.contributor), ""), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, f.base+"/user/"+f.viewer.String(), tokenFor(t, f.owner), ""), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodDelete, f.base+"/user/"+f.viewer.String(), tokenFor(t, f.owner), ""), http.StatusNotFound)

	// The removed viewer has lost access.
	expectStatus(t, f.do(t, http.MethodGet, f.base+"/ideas", tokenFor(t, f.viewer), ""), http.StatusForbidden)
}

func TestGetUser(t *testing.T) {
	ts := newTestServer(t)
	emailHash := store.IDFromUint64(1)
	_, err := gateway.Send(t.Context(), ts.gw, store.StoreUser{User: store.User{
		EmailHash: emailHash, PrincipalID: store.IDFromUint64(0), FirstName: "Test",
	}})
	require.NoError(t, err)
	token := tokenFor(t, store.IDFromUint64(5))

	rr := ts.do(t, http.MethodGet, "/api/v3/user/00000000000000000000000000000001", token, "")
	expectStatus(t, rr, http.StatusOK)
	assert.Equal(t, userView{
		ID:        "00000000000000000000000000000000",
		EmailHash: "00000000000000000000000000000001",
		FirstName: "Test",
	}, decode[userView](t, rr))

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v3/user/2", token, ""), http.StatusNotFound)
}

func TestFirstRequestRecordsUser(t *testing.T) {
	ts := newTestServer(t)
	principal := store.IDFromUint64(7)
	token := tokenFor(t, principal)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v3/ideas", token, ""), http.StatusOK)

	hash := store.HashEmail("test-" + principal.String() + "@example.com")
	rr := ts.do(t, http.MethodGet, "/api/v3/user/"+hash.String(), token, "")
	expectStatus(t, rr, http.StatusOK)
	user := decode[userView](t, rr)
	assert.Equal(t, principal.String(), user.ID)
	assert.Equal(t, "Test", user.FirstName)
}
