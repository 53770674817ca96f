package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"rex/api/internal/auth"
	"rex/api/internal/store"
)

// routeRBAC registers role assignment and user lookup routes.
func (s *HTTPServer) routeRBAC(v3 *mux.Router) {
	v3.Handle("/collection/{collection}/users", s.authed(auth.ScopeRoleAssignmentsWrite, s.handleListRoleAssignments)).Methods(http.MethodGet)
	v3.Handle("/collection/{collection}/user/{user}", s.authed(auth.ScopeRoleAssignmentsWrite, s.handleGetRoleAssignment)).Methods(http.MethodGet)
	v3.Handle("/collection/{collection}/user/{user}", s.authed(auth.ScopeRoleAssignmentsWrite, s.handleStoreRoleAssignment)).Methods(http.MethodPut)
	v3.Handle("/collection/{collection}/user/{user}", s.authed(auth.ScopeRoleAssignmentsWrite, s.handleRemoveRoleAssignment)).Methods(http.MethodDelete)
	v3.Handle("/user/{user}", s.authed(auth.ScopeUsersRead, s.handleGetUser)).Methods(http.MethodGet)
}

func collectionUserPath(r *http.Request) (store.ID, store.ID, error) {
	collection, err := pathID(r, "collection", "collection ID")
	if err != nil {
		return store.ID{}, store.ID{}, err
	}
	user, err := pathID(r, "user", "user ID")
	if err != nil {
		return store.ID{}, store.ID{}, err
	}
	return collection, user, nil
}

func (s *HTTPServer) handleListRoleAssignments(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, err := pathID(r, "collection", "collection ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	assignments, err := s.service.ListRoleAssignments(r.Context(), caller, collection)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapViews(assignments, newRoleAssignmentView))
}

func (s *HTTPServer) handleGetRoleAssignment(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, user, err := collectionUserPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ra, err := s.service.GetRoleAssignment(r.Context(), caller, collection, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoleAssignmentView(ra))
}

func (s *HTTPServer) handleStoreRoleAssignment(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, user, err := collectionUserPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body roleAssignmentView
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ra, err := s.service.StoreRoleAssignment(r.Context(), caller, collection, user, store.ParseRole(body.Role))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoleAssignmentView(ra))
}

func (s *HTTPServer) handleRemoveRoleAssignment(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, user, err := collectionUserPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.RemoveRoleAssignment(r.Context(), caller, collection, user); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request, caller Caller) {
	emailHash, err := pathID(r, "user", "user ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.service.GetUser(r.Context(), emailHash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}
