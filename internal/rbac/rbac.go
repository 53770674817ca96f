package rbac

import "rex/api/internal/store"

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
)

// Can reports whether role permits action on a collection. RoleInvalid and
// any unknown role permit nothing.
func Can(role store.Role, action Action) bool {
	switch role {
	case store.RoleOwner:
		return action == ActionRead || action == ActionWrite || action == ActionManage
	case store.RoleContributor:
		return action == ActionRead || action == ActionWrite
	case store.RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}
