package tablestorage

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"rex/api/internal/store"
)

type ideaEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Name         string `json:"Name"`
	Description  string `json:"Description"`
	Tags         string `json:"Tags"`
	Completed    bool   `json:"Completed"`
}

func newIdeaEntity(idea store.Idea) ideaEntity {
	return ideaEntity{
		PartitionKey: key(idea.CollectionID),
		RowKey:       key(idea.ID),
		Name:         idea.Name,
		Description:  idea.Description,
		Tags:         strings.Join(idea.Tags, ","),
		Completed:    idea.Completed,
	}
}

func (e ideaEntity) model() (store.Idea, error) {
	collection, err := store.ParseID(e.PartitionKey)
	if err != nil {
		return store.Idea{}, fmt.Errorf("idea partition key %q: %w", e.PartitionKey, err)
	}
	id, err := store.ParseID(e.RowKey)
	if err != nil {
		return store.Idea{}, fmt.Errorf("idea row key %q: %w", e.RowKey, err)
	}
	tags := []string{}
	for _, tag := range strings.Split(e.Tags, ",") {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return store.Idea{
		ID:           id,
		CollectionID: collection,
		Name:         e.Name,
		Description:  e.Description,
		Tags:         tags,
		Completed:    e.Completed,
	}, nil
}

type collectionEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Name         string `json:"Name"`
}

func newCollectionEntity(c store.Collection) collectionEntity {
	return collectionEntity{PartitionKey: key(c.UserID), RowKey: key(c.CollectionID), Name: c.Name}
}

func (e collectionEntity) model() (store.Collection, error) {
	user, err := store.ParseID(e.PartitionKey)
	if err != nil {
		return store.Collection{}, fmt.Errorf("collection partition key %q: %w", e.PartitionKey, err)
	}
	id, err := store.ParseID(e.RowKey)
	if err != nil {
		return store.Collection{}, fmt.Errorf("collection row key %q: %w", e.RowKey, err)
	}
	return store.Collection{CollectionID: id, UserID: user, Name: e.Name}, nil
}

type roleAssignmentEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Role         string `json:"Role"`
}

func newRoleAssignmentEntity(ra store.RoleAssignment) roleAssignmentEntity {
	return roleAssignmentEntity{PartitionKey: key(ra.CollectionID), RowKey: key(ra.UserID), Role: string(ra.Role)}
}

func (e roleAssignmentEntity) model() (store.RoleAssignment, error) {
	collection, err := store.ParseID(e.PartitionKey)
	if err != nil {
		return store.RoleAssignment{}, fmt.Errorf("role assignment partition key %q: %w", e.PartitionKey, err)
	}
	user, err := store.ParseID(e.RowKey)
	if err != nil {
		return store.RoleAssignment{}, fmt.Errorf("role assignment row key %q: %w", e.RowKey, err)
	}
	return store.RoleAssignment{CollectionID: collection, UserID: user, Role: store.ParseRole(e.Role)}, nil
}

type userEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	PrincipalID  string `json:"PrincipalId"`
	FirstName    string `json:"FirstName"`
}

func newUserEntity(u store.User) userEntity {
	return userEntity{
		PartitionKey: key(u.EmailHash),
		RowKey:       key(u.EmailHash),
		PrincipalID:  key(u.PrincipalID),
		FirstName:    u.FirstName,
	}
}

func (e userEntity) model() (store.User, error) {
	hash, err := store.ParseID(e.RowKey)
	if err != nil {
		return store.User{}, fmt.Errorf("user row key %q: %w", e.RowKey, err)
	}
	principal, err := store.ParseID(e.PrincipalID)
	if err != nil {
		return store.User{}, fmt.Errorf("user principal %q: %w", e.PrincipalID, err)
	}
	return store.User{PrincipalID: principal, EmailHash: hash, FirstName: e.FirstName}, nil
}

// entity is implemented by the row types above.
type entity[T any] interface {
	model() (T, error)
}

func decode[E entity[T], T any](raw []byte) (T, error) {
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		var zero T
		return zero, fmt.Errorf("decode entity: %w", err)
	}
	return e.model()
}

func decodeAll[E entity[T], T any](pages [][]byte) ([]T, error) {
	out := make([]T, 0, len(pages))
	for _, raw := range pages {
		v, err := decode[E, T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
