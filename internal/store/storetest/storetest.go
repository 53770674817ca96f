// Package storetest holds the behavior every store.Backend must share. Each
// backend package runs Run from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"rex/api/internal/store"
)

// Factory returns a ready backend. It is called once per subtest and should
// register its own cleanup.
type Factory func(t *testing.T) store.Backend

func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b store.Backend)
	}{
		{"Health", testHealth},
		{"IdeaRoundTrip", testIdeaRoundTrip},
		{"CollectionRoundTrip", testCollectionRoundTrip},
		{"RoleAssignmentRoundTrip", testRoleAssignmentRoundTrip},
		{"UserRoundTrip", testUserRoundTrip},
		{"StoreOverwrites", testStoreOverwrites},
		{"Isolation", testIsolation},
		{"RemoveIsNotRepeatable", testRemoveIsNotRepeatable},
		{"TagFilterIsExact", testTagFilterIsExact},
		{"CompletedFilter", testCompletedFilter},
		{"RandomDraw", testRandomDraw},
		{"TagValidation", testTagValidation},
		{"ListsOrderedByRowKey", testListsOrderedByRowKey},
		{"AbsentPartition", testAbsentPartition},
		{"ConcurrentWrites", testConcurrentWrites},
		{"ExampleScenario", testExampleScenario},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newBackend(t))
		})
	}
}

func ptr[T any](v T) *T { return &v }

// RequireIdea compares ideas treating the tag set as unordered.
func RequireIdea(t *testing.T, want, got store.Idea) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.CollectionID, got.CollectionID)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Description, got.Description)
	require.Equal(t, want.Completed, got.Completed)
	require.ElementsMatch(t, want.Tags, got.Tags)
}

func ideaIDs(ideas []store.Idea) []store.ID {
	ids := make([]store.ID, 0, len(ideas))
	for _, idea := range ideas {
		ids = append(ids, idea.ID)
	}
	return ids
}

func mustStoreIdea(t *testing.T, b store.Backend, idea store.Idea) store.Idea {
	t.Helper()
	stored, err := b.StoreIdea(context.Background(), store.StoreIdea{Idea: idea})
	require.NoError(t, err)
	return stored
}

func testHealth(t *testing.T, b store.Backend) {
	health, err := b.GetHealth(context.Background(), store.GetHealth{})
	require.NoError(t, err)
	assert.True(t, health.OK)
	assert.False(t, health.StartedAt.IsZero())
	require.NoError(t, b.Ping(context.Background()))
}

func testIdeaRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	idea := store.Idea{
		ID:           store.NewID(),
		CollectionID: store.NewID(),
		Name:         "Walk the dog",
		Description:  "Somewhere with 'quotes' & ampersands",
		Tags:         []string{"outdoor", "pets"},
		Completed:    true,
	}

	stored := mustStoreIdea(t, b, idea)
	RequireIdea(t, idea, stored)

	got, err := b.GetIdea(ctx, store.GetIdea{CollectionID: idea.CollectionID, ID: idea.ID})
	require.NoError(t, err)
	RequireIdea(t, idea, got)
}

func testCollectionRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.Collection{CollectionID: store.NewID(), UserID: store.NewID(), Name: "Weekend"}

	stored, err := b.StoreCollection(ctx, store.StoreCollection{Collection: collection})
	require.NoError(t, err)
	require.Equal(t, collection, stored)

	got, err := b.GetCollection(ctx, store.GetCollection{UserID: collection.UserID, CollectionID: collection.CollectionID})
	require.NoError(t, err)
	require.Equal(t, collection, got)

	all, err := b.GetCollections(ctx, store.GetCollections{UserID: collection.UserID})
	require.NoError(t, err)
	require.Equal(t, []store.Collection{collection}, all)
}

func testRoleAssignmentRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, role := range []store.Role{store.RoleOwner, store.RoleContributor, store.RoleViewer} {
		ra := store.RoleAssignment{CollectionID: store.NewID(), UserID: store.NewID(), Role: role}
		stored, err := b.StoreRoleAssignment(ctx, store.StoreRoleAssignment{RoleAssignment: ra})
		require.NoError(t, err)
		require.Equal(t, ra, stored)

		got, err := b.GetRoleAssignment(ctx, store.GetRoleAssignment{CollectionID: ra.CollectionID, UserID: ra.UserID})
		require.NoError(t, err)
		require.Equal(t, ra, got)
	}
}

func testUserRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	user := store.User{
		PrincipalID: store.NewID(),
		EmailHash:   store.HashEmail(fmt.Sprintf("%s@example.com", store.NewID())),
		FirstName:   "Ada",
	}

	stored, err := b.StoreUser(ctx, store.StoreUser{User: user})
	require.NoError(t, err)
	require.Equal(t, user, stored)

	got, err := b.GetUser(ctx, store.GetUser{EmailHash: user.EmailHash})
	require.NoError(t, err)
	require.Equal(t, user, got)

	_, err = b.GetUser(ctx, store.GetUser{EmailHash: store.NewID()})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
}

func testStoreOverwrites(t *testing.T, b store.Backend) {
	ctx := context.Background()
	idea := store.Idea{ID: store.NewID(), CollectionID: store.NewID(), Name: "first", Tags: []string{"a"}}
	mustStoreIdea(t, b, idea)

	idea.Name = "second"
	idea.Tags = []string{"b"}
	idea.Completed = true
	mustStoreIdea(t, b, idea)

	got, err := b.GetIdea(ctx, store.GetIdea{CollectionID: idea.CollectionID, ID: idea.ID})
	require.NoError(t, err)
	RequireIdea(t, idea, got)

	all, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: idea.CollectionID})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testIsolation(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collectionA, collectionB := store.NewID(), store.NewID()
	inA := mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: collectionA, Name: "a", Tags: []string{"shared"}})
	inB := mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: collectionB, Name: "b", Tags: []string{"shared"}})

	_, err := b.GetIdea(ctx, store.GetIdea{CollectionID: collectionB, ID: inA.ID})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: collectionB, IdeaFilter: store.IdeaFilter{Tag: ptr("shared")}})
	require.NoError(t, err)
	require.Equal(t, []store.ID{inB.ID}, ideaIDs(ideas))

	for range 10 {
		idea, err := b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: collectionA})
		require.NoError(t, err)
		require.Equal(t, inA.ID, idea.ID)
	}
}

func testRemoveIsNotRepeatable(t *testing.T, b store.Backend) {
	ctx := context.Background()

	idea := mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: store.NewID(), Name: "gone", Tags: []string{"x"}})
	_, err := b.RemoveIdea(ctx, store.RemoveIdea{CollectionID: idea.CollectionID, ID: idea.ID})
	require.NoError(t, err)
	for range 2 {
		_, err = b.RemoveIdea(ctx, store.RemoveIdea{CollectionID: idea.CollectionID, ID: idea.ID})
		require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
	}
	_, err = b.GetIdea(ctx, store.GetIdea{CollectionID: idea.CollectionID, ID: idea.ID})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	collection := store.Collection{CollectionID: store.NewID(), UserID: store.NewID(), Name: "gone"}
	_, err = b.StoreCollection(ctx, store.StoreCollection{Collection: collection})
	require.NoError(t, err)
	_, err = b.RemoveCollection(ctx, store.RemoveCollection{UserID: collection.UserID, CollectionID: collection.CollectionID})
	require.NoError(t, err)
	_, err = b.RemoveCollection(ctx, store.RemoveCollection{UserID: collection.UserID, CollectionID: collection.CollectionID})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	ra := store.RoleAssignment{CollectionID: store.NewID(), UserID: store.NewID(), Role: store.RoleViewer}
	_, err = b.StoreRoleAssignment(ctx, store.StoreRoleAssignment{RoleAssignment: ra})
	require.NoError(t, err)
	_, err = b.RemoveRoleAssignment(ctx, store.RemoveRoleAssignment{CollectionID: ra.CollectionID, UserID: ra.UserID})
	require.NoError(t, err)
	_, err = b.RemoveRoleAssignment(ctx, store.RemoveRoleAssignment{CollectionID: ra.CollectionID, UserID: ra.UserID})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
	_, err = b.GetRoleAssignment(ctx, store.GetRoleAssignment{CollectionID: ra.CollectionID, UserID: ra.UserID})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
}

func testTagFilterIsExact(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.NewID()
	exact := mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(1), CollectionID: collection, Name: "exact", Tags: []string{"test"}})
	mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(2), CollectionID: collection, Name: "longer", Tags: []string{"testing"}})
	mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(3), CollectionID: collection, Name: "prefixed", Tags: []string{"pretest", "other"}})
	both := mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(4), CollectionID: collection, Name: "both", Tags: []string{"attest", "test"}})

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("test")}})
	require.NoError(t, err)
	require.Equal(t, []store.ID{exact.ID, both.ID}, ideaIDs(ideas))
	for _, idea := range ideas {
		require.Contains(t, idea.Tags, "test")
	}

	ideas, err = b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("est")}})
	require.NoError(t, err)
	require.Empty(t, ideas)

	for range 20 {
		idea, err := b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("testing")}})
		require.NoError(t, err)
		require.Equal(t, store.IDFromUint64(2), idea.ID)
	}
}

func testCompletedFilter(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.NewID()
	done := mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(1), CollectionID: collection, Name: "done", Tags: []string{"t"}, Completed: true})
	open := mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(2), CollectionID: collection, Name: "open", Tags: []string{"t"}})
	mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(3), CollectionID: collection, Name: "other", Tags: []string{"u"}})

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection, IdeaFilter: store.IdeaFilter{Completed: ptr(true)}})
	require.NoError(t, err)
	require.Equal(t, []store.ID{done.ID}, ideaIDs(ideas))

	ideas, err = b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("t"), Completed: ptr(false)}})
	require.NoError(t, err)
	require.Equal(t, []store.ID{open.ID}, ideaIDs(ideas))

	ideas, err = b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection})
	require.NoError(t, err)
	require.Len(t, ideas, 3)
}

func testRandomDraw(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.NewID()
	only := mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: collection, Name: "only", Tags: []string{"solo"}})
	mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: collection, Name: "done", Tags: []string{"group"}, Completed: true})

	for range 20 {
		idea, err := b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("solo")}})
		require.NoError(t, err)
		RequireIdea(t, only, idea)
	}

	for range 5 {
		_, err := b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("group"), Completed: ptr(false)}})
		require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
	}

	seen := map[store.ID]bool{}
	for range 200 {
		idea, err := b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: collection})
		require.NoError(t, err)
		seen[idea.ID] = true
	}
	require.Len(t, seen, 2)
}

func testTagValidation(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.NewID()

	for _, tags := range [][]string{{"a,b"}, {""}, {"ok", "  "}} {
		_, err := b.StoreIdea(ctx, store.StoreIdea{Idea: store.Idea{ID: store.NewID(), CollectionID: collection, Name: "bad", Tags: tags}})
		require.Equal(t, 400, store.StatusOf(err), "tags %q", tags)
	}

	stored := mustStoreIdea(t, b, store.Idea{ID: store.NewID(), CollectionID: collection, Name: "dup", Tags: []string{"b", "a", "b"}})
	require.ElementsMatch(t, []string{"a", "b"}, stored.Tags)

	got, err := b.GetIdea(ctx, store.GetIdea{CollectionID: collection, ID: stored.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, got.Tags)
}

func testListsOrderedByRowKey(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection, user := store.NewID(), store.NewID()
	for _, n := range []uint64{30, 10, 20} {
		mustStoreIdea(t, b, store.Idea{ID: store.IDFromUint64(n), CollectionID: collection, Name: "n", Tags: []string{"x"}})
		_, err := b.StoreCollection(ctx, store.StoreCollection{Collection: store.Collection{CollectionID: store.IDFromUint64(n), UserID: user, Name: "c"}})
		require.NoError(t, err)
		_, err = b.StoreRoleAssignment(ctx, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{CollectionID: collection, UserID: store.IDFromUint64(n), Role: store.RoleViewer}})
		require.NoError(t, err)
	}
	want := []store.ID{store.IDFromUint64(10), store.IDFromUint64(20), store.IDFromUint64(30)}

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection})
	require.NoError(t, err)
	require.Equal(t, want, ideaIDs(ideas))

	collections, err := b.GetCollections(ctx, store.GetCollections{UserID: user})
	require.NoError(t, err)
	require.Len(t, collections, 3)
	for i, c := range collections {
		require.Equal(t, want[i], c.CollectionID)
	}

	assignments, err := b.GetRoleAssignments(ctx, store.GetRoleAssignments{CollectionID: collection})
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	for i, ra := range assignments {
		require.Equal(t, want[i], ra.UserID)
	}
}

// An absent partition is either NotFound or an empty list depending on the
// backend; callers treat both the same way.
func testAbsentPartition(t *testing.T, b store.Backend) {
	ctx := context.Background()
	missing := store.NewID()

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: missing})
	requireEmptyOrNotFound(t, len(ideas), err)

	collections, err := b.GetCollections(ctx, store.GetCollections{UserID: missing})
	requireEmptyOrNotFound(t, len(collections), err)

	assignments, err := b.GetRoleAssignments(ctx, store.GetRoleAssignments{CollectionID: missing})
	requireEmptyOrNotFound(t, len(assignments), err)

	_, err = b.GetRandomIdea(ctx, store.GetRandomIdea{CollectionID: missing})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	_, err = b.GetIdea(ctx, store.GetIdea{CollectionID: missing, ID: store.NewID()})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	_, err = b.GetCollection(ctx, store.GetCollection{UserID: missing, CollectionID: store.NewID()})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	_, err = b.GetRoleAssignment(ctx, store.GetRoleAssignment{CollectionID: missing, UserID: store.NewID()})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
}

func requireEmptyOrNotFound(t *testing.T, n int, err error) {
	t.Helper()
	if err != nil {
		require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
		return
	}
	require.Zero(t, n)
}

func testConcurrentWrites(t *testing.T, b store.Backend) {
	ctx := context.Background()
	collection := store.NewID()

	var g errgroup.Group
	for i := range 32 {
		g.Go(func() error {
			_, err := b.StoreIdea(ctx, store.StoreIdea{Idea: store.Idea{
				ID:           store.IDFromUint64(uint64(i + 1)),
				CollectionID: collection,
				Name:         fmt.Sprintf("idea %d", i),
				Tags:         []string{"bulk"},
			}})
			if err != nil {
				return err
			}
			_, err = b.StoreRoleAssignment(ctx, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{
				CollectionID: collection,
				UserID:       store.IDFromUint64(uint64(i + 1)),
				Role:         store.RoleContributor,
			}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	ideas, err := b.GetIdeas(ctx, store.GetIdeas{CollectionID: collection, IdeaFilter: store.IdeaFilter{Tag: ptr("bulk")}})
	require.NoError(t, err)
	require.Len(t, ideas, 32)

	assignments, err := b.GetRoleAssignments(ctx, store.GetRoleAssignments{CollectionID: collection})
	require.NoError(t, err)
	require.Len(t, assignments, 32)
}

func testExampleScenario(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cid, user := store.IDFromUint64(7), store.IDFromUint64(0)

	_, err := b.StoreCollection(ctx, store.StoreCollection{Collection: store.Collection{CollectionID: cid, UserID: user, Name: "Test Collection"}})
	require.NoError(t, err)
	_, err = b.StoreRoleAssignment(ctx, store.StoreRoleAssignment{RoleAssignment: store.RoleAssignment{CollectionID: cid, UserID: user, Role: store.RoleOwner}})
	require.NoError(t, err)
	idea := store.Idea{ID: store.IDFromUint64(1), CollectionID: cid, Name: "Test Idea", Tags: []string{"test"}}
	mustStoreIdea(t, b, idea)

	got, err := b.GetIdea(ctx, store.GetIdea{CollectionID: cid, ID: idea.ID})
	require.NoError(t, err)
	RequireIdea(t, idea, got)

	ra, err := b.GetRoleAssignment(ctx, store.GetRoleAssignment{CollectionID: cid, UserID: user})
	require.NoError(t, err)
	require.Equal(t, store.RoleOwner, ra.Role)

	_, err = b.RemoveCollection(ctx, store.RemoveCollection{UserID: user, CollectionID: cid})
	require.NoError(t, err)
	_, err = b.GetCollection(ctx, store.GetCollection{UserID: user, CollectionID: cid})
	require.True(t, store.IsNotFound(err), "expected not found, got %v", err)
}
