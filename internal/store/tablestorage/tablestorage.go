// Package tablestorage persists records in a wide-column table service,
// using Azure Table Storage. Each entity's partition and row keys are the
// 32-digit hex form of its two-level key.
package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"rex/api/internal/store"
)

type Tables struct {
	Ideas           Table
	Collections     Table
	RoleAssignments Table
	Users           Table
}

type Backend struct {
	tables    Tables
	log       *zap.SugaredLogger
	startedAt time.Time
	ping      func(ctx context.Context) error
}

var _ store.Backend = (*Backend)(nil)

// New wraps already constructed tables. Tests pass in-process fakes here.
func New(tables Tables, log *zap.SugaredLogger) *Backend {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	b := &Backend{tables: tables, log: log, startedAt: time.Now().UTC()}
	b.ping = func(ctx context.Context) error {
		_, err := tables.Users.Query(ctx, partitionFilter(store.ID{}), nil)
		return err
	}
	return b
}

// Open connects with a storage account connection string and creates the
// four tables when they do not exist yet.
func Open(ctx context.Context, connectionString string, log *zap.SugaredLogger) (*Backend, error) {
	service, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("open table service: %w", err)
	}

	ideas := newAzureTable(service, IdeasTable)
	collections := newAzureTable(service, CollectionsTable)
	roleAssignments := newAzureTable(service, RoleAssignmentsTable)
	users := newAzureTable(service, UsersTable)
	for name, table := range map[string]*azureTable{
		IdeasTable:           ideas,
		CollectionsTable:     collections,
		RoleAssignmentsTable: roleAssignments,
		UsersTable:           users,
	} {
		if err := table.create(ctx); err != nil {
			return nil, fmt.Errorf("ensure table %s: %w", name, err)
		}
	}

	b := New(Tables{
		Ideas:           ideas,
		Collections:     collections,
		RoleAssignments: roleAssignments,
		Users:           users,
	}, log)
	b.ping = users.ping
	return b, nil
}

func (b *Backend) Name() string { return "tablestorage" }

func (b *Backend) GetHealth(context.Context, store.GetHealth) (store.Health, error) {
	return store.Health{OK: true, StartedAt: b.startedAt}, nil
}

func (b *Backend) GetIdea(ctx context.Context, req store.GetIdea) (store.Idea, error) {
	return getSingle[ideaEntity, store.Idea](ctx, b, b.tables.Ideas, key(req.CollectionID), key(req.ID), store.MsgIdeaNotFound)
}

func (b *Backend) GetIdeas(ctx context.Context, req store.GetIdeas) ([]store.Idea, error) {
	ideas, err := getAll[ideaEntity, store.Idea](ctx, b, b.tables.Ideas, ideaFilter(req.CollectionID, req.IdeaFilter), store.IdeaKey)
	if err != nil {
		return nil, err
	}
	return req.Apply(ideas), nil
}

func (b *Backend) GetRandomIdea(ctx context.Context, req store.GetRandomIdea) (store.Idea, error) {
	ideas, err := getAll[ideaEntity, store.Idea](ctx, b, b.tables.Ideas, ideaFilter(req.CollectionID, req.IdeaFilter), store.IdeaKey)
	if err != nil {
		return store.Idea{}, err
	}
	idea, ok := store.PickRandom(req.Apply(ideas))
	if !ok {
		return store.Idea{}, store.NotFound(store.MsgNoRandomIdea)
	}
	return idea, nil
}

func (b *Backend) StoreIdea(ctx context.Context, req store.StoreIdea) (store.Idea, error) {
	idea, err := store.PrepareIdea(req.Idea)
	if err != nil {
		return store.Idea{}, err
	}
	if err := b.storeSingle(ctx, b.tables.Ideas, newIdeaEntity(idea)); err != nil {
		return store.Idea{}, err
	}
	return idea, nil
}

func (b *Backend) RemoveIdea(ctx context.Context, req store.RemoveIdea) (store.Unit, error) {
	return store.Unit{}, b.removeSingle(ctx, b.tables.Ideas, key(req.CollectionID), key(req.ID), store.MsgIdeaNotFound)
}

func (b *Backend) GetCollection(ctx context.Context, req store.GetCollection) (store.Collection, error) {
	return getSingle[collectionEntity, store.Collection](ctx, b, b.tables.Collections, key(req.UserID), key(req.CollectionID), store.MsgCollectionNotFound)
}

func (b *Backend) GetCollections(ctx context.Context, req store.GetCollections) ([]store.Collection, error) {
	return getAll[collectionEntity, store.Collection](ctx, b, b.tables.Collections, partitionFilter(req.UserID), store.CollectionKey)
}

func (b *Backend) StoreCollection(ctx context.Context, req store.StoreCollection) (store.Collection, error) {
	if err := b.storeSingle(ctx, b.tables.Collections, newCollectionEntity(req.Collection)); err != nil {
		return store.Collection{}, err
	}
	return req.Collection, nil
}

func (b *Backend) RemoveCollection(ctx context.Context, req store.RemoveCollection) (store.Unit, error) {
	return store.Unit{}, b.removeSingle(ctx, b.tables.Collections, key(req.UserID), key(req.CollectionID), store.MsgCollectionNotFound)
}

func (b *Backend) GetRoleAssignment(ctx context.Context, req store.GetRoleAssignment) (store.RoleAssignment, error) {
	return getSingle[roleAssignmentEntity, store.RoleAssignment](ctx, b, b.tables.RoleAssignments, key(req.CollectionID), key(req.UserID), store.MsgAssigneeNotFound)
}

func (b *Backend) GetRoleAssignments(ctx context.Context, req store.GetRoleAssignments) ([]store.RoleAssignment, error) {
	return getAll[roleAssignmentEntity, store.RoleAssignment](ctx, b, b.tables.RoleAssignments, partitionFilter(req.CollectionID), store.RoleAssignmentKey)
}

func (b *Backend) StoreRoleAssignment(ctx context.Context, req store.StoreRoleAssignment) (store.RoleAssignment, error) {
	if err := b.storeSingle(ctx, b.tables.RoleAssignments, newRoleAssignmentEntity(req.RoleAssignment)); err != nil {
		return store.RoleAssignment{}, err
	}
	return req.RoleAssignment, nil
}

func (b *Backend) RemoveRoleAssignment(ctx context.Context, req store.RemoveRoleAssignment) (store.Unit, error) {
	return store.Unit{}, b.removeSingle(ctx, b.tables.RoleAssignments, key(req.CollectionID), key(req.UserID), store.MsgAssigneeNotFound)
}

func (b *Backend) GetUser(ctx context.Context, req store.GetUser) (store.User, error) {
	return getSingle[userEntity, store.User](ctx, b, b.tables.Users, key(req.EmailHash), key(req.EmailHash), store.MsgUserNotFound)
}

func (b *Backend) StoreUser(ctx context.Context, req store.StoreUser) (store.User, error) {
	if err := b.storeSingle(ctx, b.tables.Users, newUserEntity(req.User)); err != nil {
		return store.User{}, err
	}
	return req.User, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if err := b.ping(ctx); err != nil {
		return store.Unavailable(store.MsgBackendUnavailable, err)
	}
	return nil
}

// Close is a no-op; the SDK clients hold no resources that need releasing.
func (b *Backend) Close() error {
	return nil
}

func getSingle[E entity[T], T any](ctx context.Context, b *Backend, table Table, partitionKey, rowKey, notFound string) (T, error) {
	var zero T
	raw, err := table.Get(ctx, partitionKey, rowKey)
	if errors.Is(err, ErrEntityNotFound) {
		return zero, store.NotFound(notFound)
	}
	if err != nil {
		b.log.Errorw("Failed to retrieve item from table storage", "partition", partitionKey, "row", rowKey, "error", err)
		return zero, store.Unavailable(store.MsgBackendUnavailable, err)
	}
	v, err := decode[E, T](raw)
	if err != nil {
		return zero, store.Internal(store.MsgQueryFailed, err)
	}
	return v, nil
}

// getAll follows continuation tokens until the query is exhausted and then
// decodes and orders every entity it collected.
func getAll[E entity[T], T any](ctx context.Context, b *Backend, table Table, filter string, rowKey func(T) store.ID) ([]T, error) {
	var (
		entities [][]byte
		next     *Continuation
	)
	for {
		page, err := table.Query(ctx, filter, next)
		if err != nil {
			b.log.Errorw("Failed to retrieve items from table storage", "filter", filter, "error", err)
			return nil, store.Unavailable(store.MsgQueryFailed, err)
		}
		entities = append(entities, page.Entities...)
		if page.Next == nil {
			break
		}
		next = page.Next
	}

	values, err := decodeAll[E, T](entities)
	if err != nil {
		return nil, store.Internal(store.MsgQueryFailed, err)
	}
	store.SortByKey(values, rowKey)
	return values, nil
}

func (b *Backend) storeSingle(ctx context.Context, table Table, entity any) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return store.Internal(store.MsgStoreFailed, fmt.Errorf("encode entity: %w", err))
	}
	if err := table.Upsert(ctx, raw); err != nil {
		b.log.Errorw("Failed to store item in table storage", "error", err)
		return store.Unavailable(store.MsgStoreFailed, err)
	}
	return nil
}

func (b *Backend) removeSingle(ctx context.Context, table Table, partitionKey, rowKey, notFound string) error {
	err := table.Delete(ctx, partitionKey, rowKey)
	if errors.Is(err, ErrEntityNotFound) {
		return store.NotFound(notFound)
	}
	if err != nil {
		b.log.Errorw("Failed to remove item from table storage", "partition", partitionKey, "row", rowKey, "error", err)
		return store.Unavailable(store.MsgRemoveFailed, err)
	}
	return nil
}
