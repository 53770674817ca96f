// Package redisstore keeps each table partition in a Redis hash whose fields
// are row keys and whose values are JSON records.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rex/api/internal/store"
)

const (
	ideasTable           = "ideas"
	collectionsTable     = "collections"
	roleAssignmentsTable = "roleassignments"
	usersTable           = "users"
)

type ideaRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Completed   bool     `json:"completed"`
}

type collectionRecord struct {
	Name string `json:"name"`
}

type roleAssignmentRecord struct {
	Role string `json:"role"`
}

type userRecord struct {
	PrincipalID store.ID `json:"principal_id"`
	FirstName   string   `json:"first_name"`
}

type Backend struct {
	client    *redis.Client
	prefix    string
	log       *zap.SugaredLogger
	startedAt time.Time
}

var _ store.Backend = (*Backend)(nil)

// Open parses redisURL and verifies the server is reachable.
func Open(ctx context.Context, redisURL string, log *zap.SugaredLogger) (*Backend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return New(client, log), nil
}

func New(client *redis.Client, log *zap.SugaredLogger) *Backend {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Backend{client: client, prefix: "rex:", log: log, startedAt: time.Now().UTC()}
}

func (b *Backend) key(table string, partition store.ID) string {
	return b.prefix + table + ":" + partition.String()
}

func (b *Backend) Name() string { return "redis" }

func (b *Backend) GetHealth(context.Context, store.GetHealth) (store.Health, error) {
	return store.Health{OK: true, StartedAt: b.startedAt}, nil
}

func (b *Backend) GetIdea(ctx context.Context, req store.GetIdea) (store.Idea, error) {
	var rec ideaRecord
	if err := b.get(ctx, ideasTable, req.CollectionID, req.ID, store.MsgIdeaNotFound, &rec); err != nil {
		return store.Idea{}, err
	}
	return rec.model(req.CollectionID, req.ID), nil
}

func (b *Backend) listIdeas(ctx context.Context, collection store.ID, filter store.IdeaFilter) ([]store.Idea, error) {
	ideas, err := list(ctx, b, ideasTable, collection, func(row store.ID, rec ideaRecord) store.Idea {
		return rec.model(collection, row)
	})
	if err != nil {
		return nil, err
	}
	return filter.Apply(ideas), nil
}

func (b *Backend) GetIdeas(ctx context.Context, req store.GetIdeas) ([]store.Idea, error) {
	return b.listIdeas(ctx, req.CollectionID, req.IdeaFilter)
}

func (b *Backend) GetRandomIdea(ctx context.Context, req store.GetRandomIdea) (store.Idea, error) {
	ideas, err := b.listIdeas(ctx, req.CollectionID, req.IdeaFilter)
	if err != nil {
		return store.Idea{}, err
	}
	idea, ok := store.PickRandom(ideas)
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
	rec := ideaRecord{Name: idea.Name, Description: idea.Description, Tags: idea.Tags, Completed: idea.Completed}
	if err := b.put(ctx, ideasTable, idea.CollectionID, idea.ID, rec); err != nil {
		return store.Idea{}, err
	}
	return idea, nil
}

func (b *Backend) RemoveIdea(ctx context.Context, req store.RemoveIdea) (store.Unit, error) {
	return store.Unit{}, b.remove(ctx, ideasTable, req.CollectionID, req.ID, store.MsgIdeaNotFound)
}

func (b *Backend) GetCollection(ctx context.Context, req store.GetCollection) (store.Collection, error) {
	var rec collectionRecord
	if err := b.get(ctx, collectionsTable, req.UserID, req.CollectionID, store.MsgCollectionNotFound, &rec); err != nil {
		return store.Collection{}, err
	}
	return store.Collection{CollectionID: req.CollectionID, UserID: req.UserID, Name: rec.Name}, nil
}

func (b *Backend) GetCollections(ctx context.Context, req store.GetCollections) ([]store.Collection, error) {
	return list(ctx, b, collectionsTable, req.UserID, func(row store.ID, rec collectionRecord) store.Collection {
		return store.Collection{CollectionID: row, UserID: req.UserID, Name: rec.Name}
	})
}

func (b *Backend) StoreCollection(ctx context.Context, req store.StoreCollection) (store.Collection, error) {
	c := req.Collection
	if err := b.put(ctx, collectionsTable, c.UserID, c.CollectionID, collectionRecord{Name: c.Name}); err != nil {
		return store.Collection{}, err
	}
	return c, nil
}

func (b *Backend) RemoveCollection(ctx context.Context, req store.RemoveCollection) (store.Unit, error) {
	return store.Unit{}, b.remove(ctx, collectionsTable, req.UserID, req.CollectionID, store.MsgCollectionNotFound)
}

func (b *Backend) GetRoleAssignment(ctx context.Context, req store.GetRoleAssignment) (store.RoleAssignment, error) {
	var rec roleAssignmentRecord
	if err := b.get(ctx, roleAssignmentsTable, req.CollectionID, req.UserID, store.MsgAssigneeNotFound, &rec); err != nil {
		return store.RoleAssignment{}, err
	}
	return store.RoleAssignment{CollectionID: req.CollectionID, UserID: req.UserID, Role: store.ParseRole(rec.Role)}, nil
}

func (b *Backend) GetRoleAssignments(ctx context.Context, req store.GetRoleAssignments) ([]store.RoleAssignment, error) {
	return list(ctx, b, roleAssignmentsTable, req.CollectionID, func(row store.ID, rec roleAssignmentRecord) store.RoleAssignment {
		return store.RoleAssignment{CollectionID: req.CollectionID, UserID: row, Role: store.ParseRole(rec.Role)}
	})
}

func (b *Backend) StoreRoleAssignment(ctx context.Context, req store.StoreRoleAssignment) (store.RoleAssignment, error) {
	ra := req.RoleAssignment
	if err := b.put(ctx, roleAssignmentsTable, ra.CollectionID, ra.UserID, roleAssignmentRecord{Role: string(ra.Role)}); err != nil {
		return store.RoleAssignment{}, err
	}
	return ra, nil
}

func (b *Backend) RemoveRoleAssignment(ctx context.Context, req store.RemoveRoleAssignment) (store.Unit, error) {
	return store.Unit{}, b.remove(ctx, roleAssignmentsTable, req.CollectionID, req.UserID, store.MsgAssigneeNotFound)
}

func (b *Backend) GetUser(ctx context.Context, req store.GetUser) (store.User, error) {
	var rec userRecord
	if err := b.get(ctx, usersTable, req.EmailHash, req.EmailHash, store.MsgUserNotFound, &rec); err != nil {
		return store.User{}, err
	}
	return store.User{PrincipalID: rec.PrincipalID, EmailHash: req.EmailHash, FirstName: rec.FirstName}, nil
}

func (b *Backend) StoreUser(ctx context.Context, req store.StoreUser) (store.User, error) {
	u := req.User
	if err := b.put(ctx, usersTable, u.EmailHash, u.EmailHash, userRecord{PrincipalID: u.PrincipalID, FirstName: u.FirstName}); err != nil {
		return store.User{}, err
	}
	return u, nil
}

// Ping checks if Redis is reachable
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable(store.MsgBackendUnavailable, fmt.Errorf("ping redis: %w", err))
	}
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) get(ctx context.Context, table string, partition, row store.ID, notFound string, into any) error {
	raw, err := b.client.HGet(ctx, b.key(table, partition), row.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.NotFound(notFound)
	}
	if err != nil {
		return b.unavailable("get "+table, store.MsgBackendUnavailable, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return store.Internal(store.MsgQueryFailed, fmt.Errorf("unmarshal %s record: %w", table, err))
	}
	return nil
}

// list reads a whole partition. A missing hash is an empty partition.
func list[R, T any](ctx context.Context, b *Backend, table string, partition store.ID, model func(store.ID, R) T) ([]T, error) {
	fields, err := b.client.HGetAll(ctx, b.key(table, partition)).Result()
	if err != nil {
		return nil, b.unavailable("list "+table, store.MsgQueryFailed, err)
	}

	rows := make([]store.ID, 0, len(fields))
	for field := range fields {
		row, err := store.ParseID(field)
		if err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("%s row key %q: %w", table, field, err))
		}
		rows = append(rows, row)
	}
	store.SortByKey(rows, func(id store.ID) store.ID { return id })

	items := make([]T, 0, len(rows))
	for _, row := range rows {
		var rec R
		if err := json.Unmarshal([]byte(fields[row.String()]), &rec); err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("unmarshal %s record: %w", table, err))
		}
		items = append(items, model(row, rec))
	}
	return items, nil
}

func (b *Backend) put(ctx context.Context, table string, partition, row store.ID, rec any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return store.Internal(store.MsgStoreFailed, fmt.Errorf("marshal %s record: %w", table, err))
	}
	if err := b.client.HSet(ctx, b.key(table, partition), row.String(), raw).Err(); err != nil {
		return b.unavailable("store "+table, store.MsgStoreFailed, err)
	}
	return nil
}

func (b *Backend) remove(ctx context.Context, table string, partition, row store.ID, notFound string) error {
	removed, err := b.client.HDel(ctx, b.key(table, partition), row.String()).Result()
	if err != nil {
		return b.unavailable("remove "+table, store.MsgRemoveFailed, err)
	}
	if removed == 0 {
		return store.NotFound(notFound)
	}
	return nil
}

func (b *Backend) unavailable(op, message string, err error) error {
	b.log.Errorw("redis operation failed", "operation", op, "error", err)
	return store.Unavailable(message, fmt.Errorf("%s: %w", op, err))
}

func (r ideaRecord) model(collection, id store.ID) store.Idea {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return store.Idea{
		ID:           id,
		CollectionID: collection,
		Name:         r.Name,
		Description:  r.Description,
		Tags:         tags,
		Completed:    r.Completed,
	}
}
