// Package postgres stores every table in PostgreSQL, keyed by the same
// (partition, row) pairs the other backends use.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"rex/api/internal/store"
)

type Backend struct {
	db        *sql.DB
	types     *pgtype.Map
	log       *zap.SugaredLogger
	startedAt time.Time
}

var _ store.Backend = (*Backend)(nil)

// Open connects to databaseURL and creates the tables if they are missing.
func Open(ctx context.Context, databaseURL string, log *zap.SugaredLogger) (*Backend, error) {
	db, err := openDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, log), nil
}

func New(db *sql.DB, log *zap.SugaredLogger) *Backend {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Backend{db: db, types: pgtype.NewMap(), log: log, startedAt: time.Now().UTC()}
}

func (b *Backend) Name() string { return "postgres" }

func (b *Backend) GetHealth(context.Context, store.GetHealth) (store.Health, error) {
	return store.Health{OK: true, StartedAt: b.startedAt}, nil
}

const selectIdeas = `
	SELECT collection_id, id, name, description, tags, completed
	FROM ideas
	WHERE collection_id=$1
	  AND ($2::boolean IS NULL OR completed=$2)
	  AND ($3::text IS NULL OR $3 = ANY(tags))
`

func (b *Backend) GetIdea(ctx context.Context, req store.GetIdea) (store.Idea, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT collection_id, id, name, description, tags, completed
		FROM ideas
		WHERE collection_id=$1 AND id=$2
	`, req.CollectionID.String(), req.ID.String())
	idea, err := b.scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Idea{}, store.NotFound(store.MsgIdeaNotFound)
	}
	if err != nil {
		return store.Idea{}, b.unavailable("get idea", store.MsgBackendUnavailable, err)
	}
	return idea, nil
}

func (b *Backend) GetIdeas(ctx context.Context, req store.GetIdeas) ([]store.Idea, error) {
	completed, tag := filterArgs(req.IdeaFilter)
	rows, err := b.db.QueryContext(ctx, selectIdeas+` ORDER BY id ASC`, req.CollectionID.String(), completed, tag)
	if err != nil {
		return nil, b.unavailable("list ideas", store.MsgQueryFailed, err)
	}
	defer rows.Close()

	items := make([]store.Idea, 0)
	for rows.Next() {
		idea, err := b.scanIdea(rows)
		if err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("scan idea: %w", err))
		}
		items = append(items, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, b.unavailable("iterate ideas", store.MsgQueryFailed, err)
	}
	return items, nil
}

func (b *Backend) GetRandomIdea(ctx context.Context, req store.GetRandomIdea) (store.Idea, error) {
	completed, tag := filterArgs(req.IdeaFilter)
	row := b.db.QueryRowContext(ctx, selectIdeas+` ORDER BY random() LIMIT 1`, req.CollectionID.String(), completed, tag)
	idea, err := b.scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Idea{}, store.NotFound(store.MsgNoRandomIdea)
	}
	if err != nil {
		return store.Idea{}, b.unavailable("random idea", store.MsgQueryFailed, err)
	}
	return idea, nil
}

func (b *Backend) StoreIdea(ctx context.Context, req store.StoreIdea) (store.Idea, error) {
	idea, err := store.PrepareIdea(req.Idea)
	if err != nil {
		return store.Idea{}, err
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO ideas (collection_id, id, name, description, tags, completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection_id, id) DO UPDATE
		SET name=EXCLUDED.name, description=EXCLUDED.description, tags=EXCLUDED.tags, completed=EXCLUDED.completed
	`, idea.CollectionID.String(), idea.ID.String(), idea.Name, idea.Description, idea.Tags, idea.Completed)
	if err != nil {
		return store.Idea{}, b.unavailable("store idea", store.MsgStoreFailed, err)
	}
	return idea, nil
}

func (b *Backend) RemoveIdea(ctx context.Context, req store.RemoveIdea) (store.Unit, error) {
	return b.remove(ctx, "remove idea", store.MsgIdeaNotFound,
		`DELETE FROM ideas WHERE collection_id=$1 AND id=$2`, req.CollectionID, req.ID)
}

func (b *Backend) GetCollection(ctx context.Context, req store.GetCollection) (store.Collection, error) {
	var collection store.Collection
	var user, id string
	err := b.db.QueryRowContext(ctx, `
		SELECT user_id, id, name FROM collections WHERE user_id=$1 AND id=$2
	`, req.UserID.String(), req.CollectionID.String()).Scan(&user, &id, &collection.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Collection{}, store.NotFound(store.MsgCollectionNotFound)
	}
	if err != nil {
		return store.Collection{}, b.unavailable("get collection", store.MsgBackendUnavailable, err)
	}
	if err := parseKeys(&collection.UserID, user, &collection.CollectionID, id); err != nil {
		return store.Collection{}, store.Internal(store.MsgQueryFailed, err)
	}
	return collection, nil
}

func (b *Backend) GetCollections(ctx context.Context, req store.GetCollections) ([]store.Collection, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, id, name FROM collections WHERE user_id=$1 ORDER BY id ASC
	`, req.UserID.String())
	if err != nil {
		return nil, b.unavailable("list collections", store.MsgQueryFailed, err)
	}
	defer rows.Close()

	items := make([]store.Collection, 0)
	for rows.Next() {
		var item store.Collection
		var user, id string
		if err := rows.Scan(&user, &id, &item.Name); err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("scan collection: %w", err))
		}
		if err := parseKeys(&item.UserID, user, &item.CollectionID, id); err != nil {
			return nil, store.Internal(store.MsgQueryFailed, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, b.unavailable("iterate collections", store.MsgQueryFailed, err)
	}
	return items, nil
}

func (b *Backend) StoreCollection(ctx context.Context, req store.StoreCollection) (store.Collection, error) {
	c := req.Collection
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO collections (user_id, id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, id) DO UPDATE SET name=EXCLUDED.name
	`, c.UserID.String(), c.CollectionID.String(), c.Name)
	if err != nil {
		return store.Collection{}, b.unavailable("store collection", store.MsgStoreFailed, err)
	}
	return c, nil
}

func (b *Backend) RemoveCollection(ctx context.Context, req store.RemoveCollection) (store.Unit, error) {
	return b.remove(ctx, "remove collection", store.MsgCollectionNotFound,
		`DELETE FROM collections WHERE user_id=$1 AND id=$2`, req.UserID, req.CollectionID)
}

func (b *Backend) GetRoleAssignment(ctx context.Context, req store.GetRoleAssignment) (store.RoleAssignment, error) {
	var role string
	err := b.db.QueryRowContext(ctx, `
		SELECT role FROM roleassignments WHERE collection_id=$1 AND user_id=$2
	`, req.CollectionID.String(), req.UserID.String()).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RoleAssignment{}, store.NotFound(store.MsgAssigneeNotFound)
	}
	if err != nil {
		return store.RoleAssignment{}, b.unavailable("get role assignment", store.MsgBackendUnavailable, err)
	}
	return store.RoleAssignment{CollectionID: req.CollectionID, UserID: req.UserID, Role: store.ParseRole(role)}, nil
}

func (b *Backend) GetRoleAssignments(ctx context.Context, req store.GetRoleAssignments) ([]store.RoleAssignment, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, role FROM roleassignments WHERE collection_id=$1 ORDER BY user_id ASC
	`, req.CollectionID.String())
	if err != nil {
		return nil, b.unavailable("list role assignments", store.MsgQueryFailed, err)
	}
	defer rows.Close()

	items := make([]store.RoleAssignment, 0)
	for rows.Next() {
		var user, role string
		if err := rows.Scan(&user, &role); err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("scan role assignment: %w", err))
		}
		userID, err := store.ParseID(user)
		if err != nil {
			return nil, store.Internal(store.MsgQueryFailed, fmt.Errorf("role assignment user %q: %w", user, err))
		}
		items = append(items, store.RoleAssignment{CollectionID: req.CollectionID, UserID: userID, Role: store.ParseRole(role)})
	}
	if err := rows.Err(); err != nil {
		return nil, b.unavailable("iterate role assignments", store.MsgQueryFailed, err)
	}
	return items, nil
}

func (b *Backend) StoreRoleAssignment(ctx context.Context, req store.StoreRoleAssignment) (store.RoleAssignment, error) {
	ra := req.RoleAssignment
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO roleassignments (collection_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, ra.CollectionID.String(), ra.UserID.String(), string(ra.Role))
	if err != nil {
		return store.RoleAssignment{}, b.unavailable("store role assignment", store.MsgStoreFailed, err)
	}
	return ra, nil
}

func (b *Backend) RemoveRoleAssignment(ctx context.Context, req store.RemoveRoleAssignment) (store.Unit, error) {
	return b.remove(ctx, "remove role assignment", store.MsgAssigneeNotFound,
		`DELETE FROM roleassignments WHERE collection_id=$1 AND user_id=$2`, req.CollectionID, req.UserID)
}

func (b *Backend) GetUser(ctx context.Context, req store.GetUser) (store.User, error) {
	var principal string
	user := store.User{EmailHash: req.EmailHash}
	err := b.db.QueryRowContext(ctx, `
		SELECT principal_id, first_name FROM users WHERE email_hash=$1
	`, req.EmailHash.String()).Scan(&principal, &user.FirstName)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.NotFound(store.MsgUserNotFound)
	}
	if err != nil {
		return store.User{}, b.unavailable("get user", store.MsgBackendUnavailable, err)
	}
	if user.PrincipalID, err = store.ParseID(principal); err != nil {
		return store.User{}, store.Internal(store.MsgQueryFailed, fmt.Errorf("user principal %q: %w", principal, err))
	}
	return user, nil
}

func (b *Backend) StoreUser(ctx context.Context, req store.StoreUser) (store.User, error) {
	u := req.User
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO users (email_hash, principal_id, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email_hash) DO UPDATE SET principal_id=EXCLUDED.principal_id, first_name=EXCLUDED.first_name
	`, u.EmailHash.String(), u.PrincipalID.String(), u.FirstName)
	if err != nil {
		return store.User{}, b.unavailable("store user", store.MsgStoreFailed, err)
	}
	return u, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return store.Unavailable(store.MsgBackendUnavailable, fmt.Errorf("ping db: %w", err))
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (b *Backend) scanIdea(row scanner) (store.Idea, error) {
	var idea store.Idea
	var collection, id string
	var tags []string
	if err := row.Scan(&collection, &id, &idea.Name, &idea.Description, b.types.SQLScanner(&tags), &idea.Completed); err != nil {
		return store.Idea{}, err
	}
	if err := parseKeys(&idea.CollectionID, collection, &idea.ID, id); err != nil {
		return store.Idea{}, err
	}
	if tags == nil {
		tags = []string{}
	}
	idea.Tags = tags
	return idea, nil
}

func (b *Backend) remove(ctx context.Context, op, notFound, query string, partition, row store.ID) (store.Unit, error) {
	result, err := b.db.ExecContext(ctx, query, partition.String(), row.String())
	if err != nil {
		return store.Unit{}, b.unavailable(op, store.MsgRemoveFailed, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return store.Unit{}, b.unavailable(op, store.MsgRemoveFailed, err)
	}
	if affected == 0 {
		return store.Unit{}, store.NotFound(notFound)
	}
	return store.Unit{}, nil
}

func (b *Backend) unavailable(op, message string, err error) error {
	b.log.Errorw("postgres operation failed", "operation", op, "error", err)
	return store.Unavailable(message, fmt.Errorf("%s: %w", op, err))
}

func filterArgs(f store.IdeaFilter) (sql.NullBool, sql.NullString) {
	var completed sql.NullBool
	if f.Completed != nil {
		completed = sql.NullBool{Bool: *f.Completed, Valid: true}
	}
	var tag sql.NullString
	if f.Tag != nil {
		tag = sql.NullString{String: *f.Tag, Valid: true}
	}
	return completed, tag
}

func parseKeys(partition *store.ID, partitionKey string, row *store.ID, rowKey string) error {
	var err error
	if *partition, err = store.ParseID(partitionKey); err != nil {
		return fmt.Errorf("partition key %q: %w", partitionKey, err)
	}
	if *row, err = store.ParseID(rowKey); err != nil {
		return fmt.Errorf("row key %q: %w", rowKey, err)
	}
	return nil
}
