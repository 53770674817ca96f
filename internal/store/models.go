package store

import (
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleOwner       Role = "Owner"
	RoleContributor Role = "Contributor"
	RoleViewer      Role = "Viewer"
	RoleInvalid     Role = "INVALID"
)

// ParseRole maps anything other than the three known role names to RoleInvalid.
func ParseRole(value string) Role {
	switch Role(value) {
	case RoleOwner, RoleContributor, RoleViewer:
		return Role(value)
	default:
		return RoleInvalid
	}
}

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleContributor || r == RoleViewer
}

type Idea struct {
	ID           ID
	CollectionID ID
	Name         string
	Description  string
	Tags         []string
	Completed    bool
}

// HasTag reports whether tag is an exact member of the idea's tag set.
func (i Idea) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

type Collection struct {
	CollectionID ID
	UserID       ID
	Name         string
}

type RoleAssignment struct {
	CollectionID ID
	UserID       ID
	Role         Role
}

type User struct {
	PrincipalID ID
	EmailHash   ID
	FirstName   string
}

type Health struct {
	OK        bool
	StartedAt time.Time
}

// NormalizeTags trims, de-duplicates and sorts a tag list.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
